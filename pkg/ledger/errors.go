package ledger

import "errors"

var (
	// ErrEmptyEventID indicates a claim attempt without an event identifier.
	ErrEmptyEventID = errors.New("event id is required")
)
