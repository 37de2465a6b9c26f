package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, lockers and gateway
// adapters return these (optionally wrapped) so the lifecycle service can
// translate them into domain errors:
//   - ErrNotFound: record does not exist in the store
//   - ErrConflict: optimistic version check failed on save
//   - ErrInvalidState: record in wrong state for the requested operation
//   - ErrUnavailable: dependency temporarily unavailable (lock wait, circuit open)
//
// For validation failures use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
