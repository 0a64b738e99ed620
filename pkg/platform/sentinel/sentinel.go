package sentinel

import "errors"

// Sentinel errors for ledger-storage facts. Stores return these (optionally
// wrapped) so services can translate them into coded domain errors.
//
// These represent factual states about stored records, not validation
// failures:
// - ErrNotFound: record does not exist in store
// - ErrTerminal: clearing record already settled, no longer pending
// - ErrConflict: write collides with existing state (duplicate schedule)
// - ErrUnavailable: backing service temporarily unavailable
//
// For validation errors (bad input, violated preconditions), use
// pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrTerminal    = errors.New("record settled")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
