package services

import (
	"sync"
)

// Gateway transaction statuses, normalized across providers.
const (
	GatewayStatusSuccess = "success"
	GatewayStatusPending = "pending"
	GatewayStatusFailed  = "failed"
	GatewayStatusUnknown = "unknown"
)

// Provider keys.
const (
	ProviderMidtrans = "midtrans"
	ProviderPix      = "pix"
)

// ChargeRequest carries everything a provider needs to collect one
// share. Amount is in minor units of the single configured currency.
type ChargeRequest struct {
	Reference     string
	Amount        int64
	Currency      string
	Method        string
	CustomerName  string
	CustomerEmail string
	Details       map[string]string
}

// ChargeResult is the provider's answer to a charge attempt.
type ChargeResult struct {
	TransactionID string
	Status        string
	QRCode        string
	PaymentURL    string
}

// PaymentGateway is the capability any payment provider must
// implement. Concrete gateways wrap one external network each.
type PaymentGateway interface {
	Charge(req *ChargeRequest) (*ChargeResult, error)
	Refund(transactionID string, amount int64) error
	VerifyWebhook(reference, statusCode, grossAmount, signature string) bool
	GetStatus(reference string) (string, error)
}

// GatewayFactory resolves provider keys to gateway instances, keeping
// one instance per key for the life of the process so provider
// credentials are read once.
type GatewayFactory struct {
	mu        sync.Mutex
	instances map[string]PaymentGateway
	builders  map[string]func() PaymentGateway
}

func NewGatewayFactory() *GatewayFactory {
	return &GatewayFactory{
		instances: make(map[string]PaymentGateway),
		builders: map[string]func() PaymentGateway{
			ProviderMidtrans: func() PaymentGateway { return NewMidtransGateway(LoadMidtransConfig()) },
			ProviderPix:      func() PaymentGateway { return NewPixGateway(LoadPixConfig()) },
		},
	}
}

// Register installs or replaces a provider builder. Tests use this to
// swap in stub gateways.
func (f *GatewayFactory) Register(provider string, builder func() PaymentGateway) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[provider] = builder
	delete(f.instances, provider)
}

// Get returns the memoized gateway for a provider key, building it
// lazily on first use.
func (f *GatewayFactory) Get(provider string) (PaymentGateway, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if gw, ok := f.instances[provider]; ok {
		return gw, nil
	}
	builder, ok := f.builders[provider]
	if !ok {
		return nil, ErrUnknownGateway
	}
	gw := builder()
	f.instances[provider] = gw
	return gw, nil
}

// ProviderForMethod maps a payment method chosen by the payer to the
// provider that settles it.
func ProviderForMethod(method string) (string, error) {
	switch method {
	case "qris":
		return ProviderMidtrans, nil
	case "pix":
		return ProviderPix, nil
	default:
		return "", ErrUnknownGateway
	}
}
