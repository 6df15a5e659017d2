package ratelimit

import "errors"

var (
	// ErrInvalidLimit indicates a non-positive request limit.
	ErrInvalidLimit = errors.New("rate limit must be positive")

	// ErrInvalidWindow indicates a non-positive window duration.
	ErrInvalidWindow = errors.New("rate limit window must be positive")

	// ErrUnknownTier indicates a tier name missing from the tier table.
	ErrUnknownTier = errors.New("unknown rate limit tier")
)
