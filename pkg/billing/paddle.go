package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleProvider implements Provider for Paddle-hosted billing. Signature
// verification goes through the official SDK verifier; event payloads are
// normalized into this package's variant set so the router never sees
// Paddle-specific JSON.
type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
}

// NewPaddleProvider creates a Paddle provider from config. The API key is
// optional: webhook verification needs only the secret, the SDK client is
// built when portal-session support is wanted too.
func NewPaddleProvider(cfg Config) (*PaddleProvider, error) {
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	p := &PaddleProvider{
		verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret),
	}

	if cfg.APIKey != "" {
		var client *paddle.SDK
		var err error

		switch strings.ToLower(cfg.Environment) {
		case "sandbox":
			client, err = paddle.NewSandbox(cfg.APIKey)
		case "production", "":
			client, err = paddle.New(cfg.APIKey)
		default:
			return nil, fmt.Errorf("%w: %s", ErrInvalidEnvironment, cfg.Environment)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create paddle client: %w", err)
		}
		p.client = client
	}

	return p, nil
}

// VerifyAndParse validates the Paddle-Signature header against the raw body
// and normalizes the event.
func (p *PaddleProvider) VerifyAndParse(ctx context.Context, payload []byte, signature string) (Event, error) {
	// The SDK verifier consumes an http.Request, so one is reconstructed
	// around the raw body the ingress captured.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := p.verifier.Verify(req)
	if err != nil || !valid {
		return nil, errors.Join(ErrInvalidSignature, err)
	}

	return parsePaddleEvent(payload)
}

// PortalURL returns a pre-authenticated customer portal link where users
// manage payment methods and cancellation. Requires the SDK client.
func (p *PaddleProvider) PortalURL(ctx context.Context, customerID, subscriptionID string) (string, error) {
	if p.client == nil {
		return "", ErrMissingAPIKey
	}

	session, err := p.client.CustomerPortalSessionsClient.CreateCustomerPortalSession(ctx,
		&paddle.CreateCustomerPortalSessionRequest{
			CustomerID:      customerID,
			SubscriptionIDs: []string{subscriptionID},
		})
	if err != nil {
		return "", fmt.Errorf("failed to create paddle portal session: %w", err)
	}
	if session.URLs.General.Overview == "" {
		return "", errors.New("no portal URL returned from paddle")
	}

	return session.URLs.General.Overview, nil
}

// paddleEnvelope is the outer shape of every Paddle webhook.
type paddleEnvelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// paddleData covers the fields this system reads across transaction and
// subscription events. Internal identifiers travel in custom_data, set when
// the checkout was created.
type paddleData struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	CustomData struct {
		UserID    string `json:"user_id"`
		ProductID string `json:"product_id"`
	} `json:"custom_data"`
	Items []struct {
		Price struct {
			ID string `json:"id"`
		} `json:"price"`
	} `json:"items"`
	CurrentBillingPeriod *struct {
		EndsAt *time.Time `json:"ends_at"`
	} `json:"current_billing_period"`
}

func parsePaddleEvent(payload []byte) (Event, error) {
	var env paddleEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}
	if env.EventID == "" || env.EventType == "" {
		return nil, ErrMalformedPayload
	}

	meta := Meta{ID: env.EventID, Type: env.EventType, OccurredAt: env.OccurredAt}

	var data paddleData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, errors.Join(ErrMalformedPayload, err)
		}
	}

	var planID string
	if len(data.Items) > 0 {
		planID = data.Items[0].Price.ID
	}
	var periodEnd *time.Time
	if data.CurrentBillingPeriod != nil {
		periodEnd = data.CurrentBillingPeriod.EndsAt
	}

	switch env.EventType {
	case "transaction.completed":
		if data.CustomData.UserID == "" || data.CustomData.ProductID == "" || planID == "" {
			return nil, ErrMalformedPayload
		}
		return CheckoutCompleted{
			Meta:       meta,
			UserID:     data.CustomData.UserID,
			ProductID:  data.CustomData.ProductID,
			PlanID:     planID,
			ValidUntil: periodEnd,
		}, nil

	case "transaction.paid":
		if data.CustomData.UserID == "" || data.CustomData.ProductID == "" {
			return nil, ErrMalformedPayload
		}
		return InvoicePaid{
			Meta:      meta,
			UserID:    data.CustomData.UserID,
			ProductID: data.CustomData.ProductID,
			PeriodEnd: periodEnd,
		}, nil

	case "subscription.updated":
		if data.CustomData.UserID == "" || data.CustomData.ProductID == "" {
			return nil, ErrMalformedPayload
		}
		return SubscriptionUpdated{
			Meta:       meta,
			UserID:     data.CustomData.UserID,
			ProductID:  data.CustomData.ProductID,
			PlanID:     planID,
			Status:     data.Status,
			ValidUntil: periodEnd,
		}, nil

	case "subscription.canceled":
		if data.CustomData.UserID == "" || data.CustomData.ProductID == "" {
			return nil, ErrMalformedPayload
		}
		return SubscriptionCanceled{
			Meta:      meta,
			UserID:    data.CustomData.UserID,
			ProductID: data.CustomData.ProductID,
		}, nil

	default:
		return Unrecognized{Meta: meta, Raw: json.RawMessage(payload)}, nil
	}
}
