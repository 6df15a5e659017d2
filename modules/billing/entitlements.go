package billing

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/billingkit/pkg/entitlement"
	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// EntitlementReader is the lookup and metering surface the endpoints need.
// Satisfied by *entitlement.Service.
type EntitlementReader interface {
	Get(ctx context.Context, userID, productID string) (*entitlement.Entitlement, error)
	Usage(ctx context.Context, userID, productID string) (int64, error)
	RecordUsage(ctx context.Context, userID, productID string, amount int64) (entitlement.UsageResult, error)
}

// EntitlementService serves entitlement lookups and usage recording.
type EntitlementService struct {
	svc EntitlementReader
	log *slog.Logger
}

// NewEntitlementService creates the entitlement read/usage endpoints.
func NewEntitlementService(svc EntitlementReader, log *slog.Logger) *EntitlementService {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &EntitlementService{svc: svc, log: log}
}

// Handle returns the subtree mounted under /entitlements.
func (s *EntitlementService) Handle() http.Handler {
	r := chi.NewRouter()
	r.Get("/{user}/{product}", s.get)
	r.Post("/{user}/{product}/usage", s.recordUsage)
	return r
}

type entitlementView struct {
	EntitlementID string         `json:"entitlement_id"`
	UserID        string         `json:"user_id"`
	ProductID     string         `json:"product_id"`
	PlanID        string         `json:"plan_id"`
	Status        string         `json:"status"`
	FeatureFlags  map[string]any `json:"feature_flags"`
	UsageLimit    int64          `json:"usage_limit"`
	UsageCount    int64          `json:"usage_count"`
	SoftLimit     int64          `json:"soft_limit,omitempty"`
	UsageResetAt  *time.Time     `json:"usage_reset_at,omitempty"`
	ValidUntil    *time.Time     `json:"valid_until,omitempty"`
}

func viewOf(e *entitlement.Entitlement, usage int64) entitlementView {
	return entitlementView{
		EntitlementID: e.ID.String(),
		UserID:        e.UserID,
		ProductID:     e.ProductID,
		PlanID:        e.PlanID,
		Status:        string(e.Status),
		FeatureFlags:  e.FeatureFlags,
		UsageLimit:    e.UsageLimit,
		UsageCount:    usage,
		SoftLimit:     e.SoftLimit,
		UsageResetAt:  e.UsageResetAt,
		ValidUntil:    e.ValidUntil,
	}
}

func (s *EntitlementService) get(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user")
	productID := chi.URLParam(r, "product")

	e, err := s.svc.Get(r.Context(), userID, productID)
	if err != nil {
		if errors.Is(err, entitlement.ErrNotFound) {
			writeError(w, http.StatusNotFound, "entitlement not found")
			return
		}
		s.log.ErrorContext(r.Context(), "entitlement lookup failed",
			logger.UserID(userID), logger.ProductID(productID), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	// The durable row undercounts while a live counter is open; Usage folds
	// the counter in.
	usage, err := s.svc.Usage(r.Context(), userID, productID)
	if err != nil {
		usage = e.UsageCount
	}

	writeJSON(w, http.StatusOK, viewOf(e, usage))
}

type usageRequest struct {
	Amount int64 `json:"amount"`
}

type usageResponse struct {
	Count         int64 `json:"count"`
	OverLimit     bool  `json:"over_limit"`
	OverSoftLimit bool  `json:"over_soft_limit"`
}

func (s *EntitlementService) recordUsage(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user")
	productID := chi.URLParam(r, "product")

	req := usageRequest{Amount: 1}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	result, err := s.svc.RecordUsage(r.Context(), userID, productID, req.Amount)
	if err != nil {
		if errors.Is(err, entitlement.ErrNotFound) {
			writeError(w, http.StatusNotFound, "entitlement not found")
			return
		}
		s.log.ErrorContext(r.Context(), "usage recording failed",
			logger.UserID(userID), logger.ProductID(productID), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "usage recording failed")
		return
	}

	writeJSON(w, http.StatusOK, usageResponse{
		Count:         result.Count,
		OverLimit:     result.OverLimit,
		OverSoftLimit: result.OverSoftLimit,
	})
}
