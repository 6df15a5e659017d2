package billing_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	module "github.com/dmitrymomot/billingkit/modules/billing"
	"github.com/dmitrymomot/billingkit/pkg/billing"
)

type fakeProcessor struct {
	outcome   billing.Outcome
	err       error
	payload   []byte
	signature string
}

func (p *fakeProcessor) Process(ctx context.Context, payload []byte, signature string) (billing.Outcome, error) {
	p.payload = payload
	p.signature = signature
	return p.outcome, p.err
}

func postWebhook(t *testing.T, handler http.Handler, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if signature != "" {
		req.Header.Set("Paddle-Signature", signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestWebhookService(t *testing.T) {
	t.Run("processed returns 200", func(t *testing.T) {
		processor := &fakeProcessor{outcome: billing.Processed}
		handler := module.NewWebhookService(processor).Handle()

		rec := postWebhook(t, handler, `{"event_id":"evt_1"}`, "t=1,v1=abc")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"processed"}`, rec.Body.String())
		assert.Equal(t, `{"event_id":"evt_1"}`, string(processor.payload))
		assert.Equal(t, "t=1,v1=abc", processor.signature)
	})

	t.Run("duplicate and ignored are also 200", func(t *testing.T) {
		for outcome, want := range map[billing.Outcome]string{
			billing.Duplicate: `{"status":"duplicate"}`,
			billing.Ignored:   `{"status":"ignored"}`,
		} {
			handler := module.NewWebhookService(&fakeProcessor{outcome: outcome}).Handle()
			rec := postWebhook(t, handler, `{}`, "sig")

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, want, rec.Body.String())
		}
	})

	t.Run("invalid signature returns 400", func(t *testing.T) {
		handler := module.NewWebhookService(&fakeProcessor{err: billing.ErrInvalidSignature}).Handle()
		rec := postWebhook(t, handler, `{}`, "bad")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed payload returns 400", func(t *testing.T) {
		handler := module.NewWebhookService(&fakeProcessor{err: billing.ErrMalformedPayload}).Handle()
		rec := postWebhook(t, handler, `{`, "sig")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("handler failure returns 500 so the provider retries", func(t *testing.T) {
		handler := module.NewWebhookService(&fakeProcessor{err: errors.New("store down")}).Handle()
		rec := postWebhook(t, handler, `{}`, "sig")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("custom signature header", func(t *testing.T) {
		processor := &fakeProcessor{outcome: billing.Processed}
		handler := module.NewWebhookService(processor, module.WithSignatureHeader("X-Signature")).Handle()

		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
		req.Header.Set("X-Signature", "t=1,v1=def")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "t=1,v1=def", processor.signature)
	})
}
