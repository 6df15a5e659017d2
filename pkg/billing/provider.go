package billing

import "context"

// Provider verifies and parses inbound billing webhooks.
//
// VerifyAndParse must validate the signature before touching the payload and
// return ErrInvalidSignature on any authenticity failure; parse failures of
// an authentic payload return ErrMalformedPayload. Event types the provider
// transports but this system doesn't act on come back as Unrecognized, never
// as errors.
type Provider interface {
	VerifyAndParse(ctx context.Context, payload []byte, signature string) (Event, error)
}

// Config selects and configures the billing provider.
type Config struct {
	Provider      string `env:"BILLING_PROVIDER" envDefault:"paddle"` // paddle or hmac
	APIKey        string `env:"BILLING_API_KEY"`
	WebhookSecret string `env:"BILLING_WEBHOOK_SECRET,required"`
	Environment   string `env:"BILLING_ENVIRONMENT" envDefault:"production"`
}

// NewProvider constructs the configured Provider implementation.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "paddle":
		return NewPaddleProvider(cfg)
	case "hmac":
		return NewHMACProvider(cfg.WebhookSecret)
	default:
		return nil, ErrUnknownProvider
	}
}
