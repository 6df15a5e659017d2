package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/billing"
)

const testSecret = "whsec_test_secret"

func validPayload() []byte {
	return []byte(`{
		"event_id": "evt_sig",
		"event_type": "invoice.paid",
		"data": {"user_id": "user_1", "product_id": "prod_api"}
	}`)
}

func TestHMACProvider_VerifyAndParse(t *testing.T) {
	ctx := context.Background()

	t.Run("valid signature parses event", func(t *testing.T) {
		provider, err := billing.NewHMACProvider(testSecret)
		require.NoError(t, err)

		payload := validPayload()
		sig := provider.Sign(payload, time.Now())

		evt, err := provider.VerifyAndParse(ctx, payload, sig)
		require.NoError(t, err)
		assert.Equal(t, "evt_sig", evt.EventID())
		assert.IsType(t, billing.InvoicePaid{}, evt)
	})

	t.Run("tampered payload rejected", func(t *testing.T) {
		provider, err := billing.NewHMACProvider(testSecret)
		require.NoError(t, err)

		sig := provider.Sign(validPayload(), time.Now())
		tampered := []byte(`{"event_id": "evt_sig", "event_type": "invoice.paid", "data": {"user_id": "attacker", "product_id": "prod_api"}}`)

		_, err = provider.VerifyAndParse(ctx, tampered, sig)
		assert.ErrorIs(t, err, billing.ErrInvalidSignature)
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		signer, err := billing.NewHMACProvider("whsec_other")
		require.NoError(t, err)
		provider, err := billing.NewHMACProvider(testSecret)
		require.NoError(t, err)

		payload := validPayload()
		sig := signer.Sign(payload, time.Now())

		_, err = provider.VerifyAndParse(ctx, payload, sig)
		assert.ErrorIs(t, err, billing.ErrInvalidSignature)
	})

	t.Run("stale timestamp rejected", func(t *testing.T) {
		provider, err := billing.NewHMACProvider(testSecret)
		require.NoError(t, err)

		payload := validPayload()
		sig := provider.Sign(payload, time.Now().Add(-10*time.Minute))

		_, err = provider.VerifyAndParse(ctx, payload, sig)
		assert.ErrorIs(t, err, billing.ErrInvalidSignature)
	})

	t.Run("widened tolerance accepts older payloads", func(t *testing.T) {
		provider, err := billing.NewHMACProvider(testSecret, billing.WithSignatureTolerance(time.Hour))
		require.NoError(t, err)

		payload := validPayload()
		sig := provider.Sign(payload, time.Now().Add(-10*time.Minute))

		_, err = provider.VerifyAndParse(ctx, payload, sig)
		assert.NoError(t, err)
	})

	t.Run("far future timestamp rejected", func(t *testing.T) {
		provider, err := billing.NewHMACProvider(testSecret)
		require.NoError(t, err)

		payload := validPayload()
		sig := provider.Sign(payload, time.Now().Add(10*time.Minute))

		_, err = provider.VerifyAndParse(ctx, payload, sig)
		assert.ErrorIs(t, err, billing.ErrInvalidSignature)
	})

	t.Run("malformed signature header rejected", func(t *testing.T) {
		provider, err := billing.NewHMACProvider(testSecret)
		require.NoError(t, err)

		for _, sig := range []string{"", "garbage", "t=abc,v1=def", "v1=deadbeef", "t=1700000000"} {
			_, err := provider.VerifyAndParse(ctx, validPayload(), sig)
			assert.ErrorIs(t, err, billing.ErrInvalidSignature, "signature %q", sig)
		}
	})

	t.Run("authentic but malformed payload", func(t *testing.T) {
		provider, err := billing.NewHMACProvider(testSecret)
		require.NoError(t, err)

		payload := []byte(`{"event_type": "invoice.paid"}`)
		sig := provider.Sign(payload, time.Now())

		_, err = provider.VerifyAndParse(ctx, payload, sig)
		assert.ErrorIs(t, err, billing.ErrMalformedPayload)
	})
}

func TestNewHMACProvider_RequiresSecret(t *testing.T) {
	_, err := billing.NewHMACProvider("")
	assert.ErrorIs(t, err, billing.ErrMissingWebhookSecret)
}

func TestNewProvider(t *testing.T) {
	t.Run("hmac", func(t *testing.T) {
		provider, err := billing.NewProvider(billing.Config{Provider: "hmac", WebhookSecret: testSecret})
		require.NoError(t, err)
		assert.IsType(t, &billing.HMACProvider{}, provider)
	})

	t.Run("paddle", func(t *testing.T) {
		provider, err := billing.NewProvider(billing.Config{Provider: "paddle", WebhookSecret: testSecret})
		require.NoError(t, err)
		assert.IsType(t, &billing.PaddleProvider{}, provider)
	})

	t.Run("paddle rejects bad environment", func(t *testing.T) {
		_, err := billing.NewProvider(billing.Config{
			Provider:      "paddle",
			WebhookSecret: testSecret,
			APIKey:        "pdl_test_key",
			Environment:   "staging",
		})
		assert.ErrorIs(t, err, billing.ErrInvalidEnvironment)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := billing.NewProvider(billing.Config{Provider: "stripe", WebhookSecret: testSecret})
		assert.ErrorIs(t, err, billing.ErrUnknownProvider)
	})
}
