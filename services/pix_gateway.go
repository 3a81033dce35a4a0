package services

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// PixConfig holds credentials for the PIX payment service provider.
type PixConfig struct {
	APIKey    string
	APISecret string
	PixKey    string
	IsSandbox bool
	BaseURL   string // overrides the default URL, used in tests
}

// LoadPixConfig reads the PIX configuration from the environment.
func LoadPixConfig() *PixConfig {
	return &PixConfig{
		APIKey:    os.Getenv("PIX_API_KEY"),
		APISecret: os.Getenv("PIX_API_SECRET"),
		PixKey:    os.Getenv("PIX_KEY"),
		IsSandbox: os.Getenv("PIX_ENV") != "production",
	}
}

// PixGateway settles instant bank transfers through a PIX payment
// service provider.
type PixGateway struct {
	config     *PixConfig
	httpClient *http.Client
}

func NewPixGateway(config *PixConfig) *PixGateway {
	return &PixGateway{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type pixChargeResponse struct {
	TxID      string `json:"txid"`
	Status    string `json:"status"`
	QRCode    string `json:"qr_code"`
	CopyPaste string `json:"copy_paste"`
}

// Charge registers an immediate PIX charge for the share amount.
func (pg *PixGateway) Charge(req *ChargeRequest) (*ChargeResult, error) {
	payload := map[string]interface{}{
		"reference": req.Reference,
		"amount":    fmt.Sprintf("%d.%02d", req.Amount/100, req.Amount%100),
		"pix_key":   pg.config.PixKey,
		"payer": map[string]interface{}{
			"name":  req.CustomerName,
			"email": req.CustomerEmail,
		},
	}

	body, err := pg.post("/v1/charges", payload)
	if err != nil {
		return nil, err
	}

	var resp pixChargeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("error unmarshaling charge response: %w", err)
	}

	return &ChargeResult{
		TransactionID: resp.TxID,
		Status:        mapPixStatus(resp.Status),
		QRCode:        resp.QRCode,
		PaymentURL:    resp.CopyPaste,
	}, nil
}

// Refund returns a settled PIX transfer to the payer.
func (pg *PixGateway) Refund(transactionID string, amount int64) error {
	payload := map[string]interface{}{
		"amount": fmt.Sprintf("%d.%02d", amount/100, amount%100),
	}
	_, err := pg.post(fmt.Sprintf("/v1/charges/%s/refund", transactionID), payload)
	return err
}

// VerifyWebhook checks the HMAC-SHA256 signature the provider attaches
// to callback notifications.
func (pg *PixGateway) VerifyWebhook(reference, statusCode, grossAmount, signature string) bool {
	mac := hmac.New(sha256.New, []byte(pg.config.APISecret))
	mac.Write([]byte(reference + statusCode + grossAmount))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// GetStatus queries the current charge status for a reference.
func (pg *PixGateway) GetStatus(reference string) (string, error) {
	url := fmt.Sprintf("%s/v1/charges/%s", pg.baseURL(), reference)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	pg.setHeaders(req)

	resp, err := pg.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("pix API error: %s", string(body))
	}

	var statusResp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &statusResp); err != nil {
		return "", fmt.Errorf("error unmarshaling response: %w", err)
	}

	return mapPixStatus(statusResp.Status), nil
}

func (pg *PixGateway) post(path string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, pg.baseURL()+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	pg.setHeaders(req)

	resp, err := pg.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("pix API error: %s", string(body))
	}
	return body, nil
}

func (pg *PixGateway) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", pg.config.APIKey)
}

func (pg *PixGateway) baseURL() string {
	if pg.config.BaseURL != "" {
		return pg.config.BaseURL
	}
	if pg.config.IsSandbox {
		return "https://sandbox.pix-psp.com.br"
	}
	return "https://api.pix-psp.com.br"
}

func mapPixStatus(status string) string {
	switch status {
	case "CONCLUIDA", "paid":
		return GatewayStatusSuccess
	case "ATIVA", "waiting":
		return GatewayStatusPending
	case "REMOVIDA_PELO_USUARIO_RECEBEDOR", "REMOVIDA_PELO_PSP", "expired", "refused":
		return GatewayStatusFailed
	default:
		return GatewayStatusUnknown
	}
}
