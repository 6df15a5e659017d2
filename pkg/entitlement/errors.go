package entitlement

import "errors"

var (
	// ErrNotFound indicates no entitlement exists for the (user, product) pair.
	ErrNotFound = errors.New("entitlement not found")

	// ErrInvalidGrant indicates a grant request missing required fields.
	ErrInvalidGrant = errors.New("invalid grant: user_id, product_id and plan_id are required")

	// ErrPlanNotFound indicates the plan ID does not resolve to an active plan.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrFailedToLoadPlans indicates the plan source could not be read.
	ErrFailedToLoadPlans = errors.New("failed to load plans")

	// ErrInvalidPlanConfiguration indicates an internally inconsistent plan set.
	ErrInvalidPlanConfiguration = errors.New("invalid plan configuration")
)
