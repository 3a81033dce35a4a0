package services

import (
	"bytes"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// MidtransConfig holds Midtrans credentials and merchant identity.
type MidtransConfig struct {
	ServerKey    string
	ClientKey    string
	IsProduction bool
	MerchantID   string
	BaseURL      string // overrides the production/sandbox URL, used in tests
}

// LoadMidtransConfig reads the Midtrans configuration from the
// environment, falling back to sandbox defaults.
func LoadMidtransConfig() *MidtransConfig {
	return &MidtransConfig{
		ServerKey:    os.Getenv("MIDTRANS_SERVER_KEY"),
		ClientKey:    os.Getenv("MIDTRANS_CLIENT_KEY"),
		IsProduction: os.Getenv("MIDTRANS_ENV") == "production",
		MerchantID:   os.Getenv("MIDTRANS_MERCHANT_ID"),
	}
}

// MidtransGateway settles QRIS charges through the Midtrans API.
type MidtransGateway struct {
	config     *MidtransConfig
	httpClient *http.Client
}

func NewMidtransGateway(config *MidtransConfig) *MidtransGateway {
	return &MidtransGateway{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type midtransChargeResponse struct {
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	OrderID           string `json:"order_id"`
	QRString          string `json:"qr_string"`
	Actions           []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"actions"`
}

// Charge creates a QRIS charge for exactly the share's amount.
func (mg *MidtransGateway) Charge(req *ChargeRequest) (*ChargeResult, error) {
	payload := map[string]interface{}{
		"payment_type": "qris",
		"transaction_details": map[string]interface{}{
			"order_id":     req.Reference,
			"gross_amount": req.Amount / 100,
		},
		"customer_details": map[string]interface{}{
			"first_name": req.CustomerName,
			"email":      req.CustomerEmail,
		},
	}

	body, err := mg.post("/v2/charge", payload)
	if err != nil {
		return nil, err
	}

	var resp midtransChargeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("error unmarshaling charge response: %w", err)
	}

	result := &ChargeResult{
		TransactionID: resp.TransactionID,
		Status:        mapMidtransStatus(resp.TransactionStatus),
		QRCode:        resp.QRString,
	}
	for _, action := range resp.Actions {
		if action.Name == "generate-qr-code" {
			result.PaymentURL = action.URL
		}
	}
	return result, nil
}

// Refund reverses a settled transaction, partially or in full.
func (mg *MidtransGateway) Refund(transactionID string, amount int64) error {
	payload := map[string]interface{}{
		"refund_key": fmt.Sprintf("refund-%s", transactionID),
		"amount":     amount / 100,
		"reason":     "share refund",
	}
	_, err := mg.post(fmt.Sprintf("/v2/%s/refund", transactionID), payload)
	return err
}

// VerifyWebhook checks the SHA512 signature Midtrans attaches to
// callback notifications.
func (mg *MidtransGateway) VerifyWebhook(reference, statusCode, grossAmount, signature string) bool {
	raw := fmt.Sprintf("%s%s%s%s", reference, statusCode, grossAmount, mg.config.ServerKey)
	hash := sha512.Sum512([]byte(raw))
	return hex.EncodeToString(hash[:]) == signature
}

// GetStatus queries the current transaction status for a reference.
func (mg *MidtransGateway) GetStatus(reference string) (string, error) {
	url := fmt.Sprintf("%s/v2/%s/status", mg.baseURL(), reference)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	mg.setHeaders(req)

	resp, err := mg.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("midtrans API error: %s", string(body))
	}

	var statusResp struct {
		TransactionStatus string `json:"transaction_status"`
	}
	if err := json.Unmarshal(body, &statusResp); err != nil {
		return "", fmt.Errorf("error unmarshaling response: %w", err)
	}

	return mapMidtransStatus(statusResp.TransactionStatus), nil
}

func (mg *MidtransGateway) post(path string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, mg.baseURL()+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	mg.setHeaders(req)

	resp, err := mg.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("midtrans API error: %s", string(body))
	}
	return body, nil
}

func (mg *MidtransGateway) setHeaders(req *http.Request) {
	auth := "Basic " + base64.StdEncoding.EncodeToString([]byte(mg.config.ServerKey+":"))
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", auth)
}

func (mg *MidtransGateway) baseURL() string {
	if mg.config.BaseURL != "" {
		return mg.config.BaseURL
	}
	if mg.config.IsProduction {
		return "https://api.midtrans.com"
	}
	return "https://api.sandbox.midtrans.com"
}

func mapMidtransStatus(status string) string {
	switch status {
	case "capture", "settlement":
		return GatewayStatusSuccess
	case "pending", "authorize":
		return GatewayStatusPending
	case "deny", "cancel", "expire", "failure":
		return GatewayStatusFailed
	default:
		return GatewayStatusUnknown
	}
}
