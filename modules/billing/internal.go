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

// Granter provisions entitlements outside the webhook flow. Satisfied by
// *entitlement.Service.
type Granter interface {
	Grant(ctx context.Context, req entitlement.GrantRequest) (*entitlement.Entitlement, error)
}

// InternalService is the trusted provisioning surface for support tooling and
// service-to-service grants (trials, comps, manual fixes).
type InternalService struct {
	granter Granter
	log     *slog.Logger
}

// NewInternalService creates the internal grant endpoint.
func NewInternalService(granter Granter, log *slog.Logger) *InternalService {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &InternalService{granter: granter, log: log}
}

// Handle returns the subtree mounted under /internal.
func (s *InternalService) Handle() http.Handler {
	r := chi.NewRouter()
	r.Post("/entitlements/grant", s.grant)
	return r
}

type grantRequest struct {
	UserID       string         `json:"user_id"`
	ProductID    string         `json:"product_id"`
	PlanID       string         `json:"plan_id"`
	UsageLimit   *int64         `json:"usage_limit,omitempty"`
	SoftLimit    *int64         `json:"soft_limit,omitempty"`
	ValidUntil   *time.Time     `json:"valid_until,omitempty"`
	FeatureFlags map[string]any `json:"feature_flags,omitempty"`
}

type grantResponse struct {
	EntitlementID string    `json:"entitlement_id"`
	Status        string    `json:"status"`
	GrantedAt     time.Time `json:"granted_at"`
}

func (s *InternalService) grant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.ProductID == "" || req.PlanID == "" {
		writeError(w, http.StatusBadRequest, "user_id, product_id and plan_id are required")
		return
	}

	e, err := s.granter.Grant(r.Context(), entitlement.GrantRequest{
		UserID:       req.UserID,
		ProductID:    req.ProductID,
		PlanID:       req.PlanID,
		UsageLimit:   req.UsageLimit,
		SoftLimit:    req.SoftLimit,
		ValidUntil:   req.ValidUntil,
		FeatureFlags: req.FeatureFlags,
	})
	if err != nil {
		switch {
		case errors.Is(err, entitlement.ErrPlanNotFound):
			writeError(w, http.StatusNotFound, "unknown plan")
		case errors.Is(err, entitlement.ErrInvalidGrant):
			writeError(w, http.StatusBadRequest, "invalid grant")
		default:
			s.log.ErrorContext(r.Context(), "grant failed",
				logger.UserID(req.UserID), logger.ProductID(req.ProductID),
				logger.PlanID(req.PlanID), logger.Error(err))
			writeError(w, http.StatusInternalServerError, "grant failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, grantResponse{
		EntitlementID: e.ID.String(),
		Status:        string(e.Status),
		GrantedAt:     e.UpdatedAt,
	})
}
