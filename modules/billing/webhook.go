package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/billingkit/pkg/billing"
	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// maxWebhookBody caps the payload read so an oversized body cannot exhaust
// memory before signature verification rejects it.
const maxWebhookBody = 1 << 20 // 1 MiB

// WebhookProcessor drives a raw delivery through verification, claiming, and
// the event handlers. Satisfied by *billing.Processor.
type WebhookProcessor interface {
	Process(ctx context.Context, payload []byte, signature string) (billing.Outcome, error)
}

// WebhookService is the provider-facing ingress endpoint.
type WebhookService struct {
	processor       WebhookProcessor
	signatureHeader string
	log             *slog.Logger
}

// WebhookOption configures a WebhookService.
type WebhookOption func(*WebhookService)

// WithSignatureHeader overrides the header the signature is read from.
// Defaults to Paddle-Signature.
func WithSignatureHeader(name string) WebhookOption {
	return func(s *WebhookService) {
		if name != "" {
			s.signatureHeader = name
		}
	}
}

// WithWebhookLogger sets the logger.
func WithWebhookLogger(log *slog.Logger) WebhookOption {
	return func(s *WebhookService) {
		if log != nil {
			s.log = log
		}
	}
}

// NewWebhookService creates the ingress endpoint over a processor.
func NewWebhookService(processor WebhookProcessor, opts ...WebhookOption) *WebhookService {
	s := &WebhookService{
		processor:       processor,
		signatureHeader: "Paddle-Signature",
		log:             slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle returns the webhook subtree: a single POST /.
func (s *WebhookService) Handle() http.Handler {
	r := chi.NewRouter()
	r.Post("/", s.receive)
	return r
}

// receive maps processor results onto the status codes providers key their
// retry behavior on: 2xx stops retries (including duplicates and ignored
// types), 4xx marks the delivery permanently failed, 5xx requests a retry.
func (s *WebhookService) receive(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	outcome, err := s.processor.Process(r.Context(), payload, r.Header.Get(s.signatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrInvalidSignature):
			writeError(w, http.StatusBadRequest, "invalid signature")
		case errors.Is(err, billing.ErrMalformedPayload):
			writeError(w, http.StatusBadRequest, "malformed payload")
		default:
			s.log.ErrorContext(r.Context(), "webhook processing failed", logger.Error(err))
			writeError(w, http.StatusInternalServerError, "processing failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": outcome.String()})
}
