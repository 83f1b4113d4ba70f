package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: key or entity does not exist in store
// - ErrQuotaExceeded: store refused the write because it is full
// - ErrUnavailable: service or resource temporarily unavailable
// - ErrCircuitOpen: a breaker short-circuited the call
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrQuotaExceeded = errors.New("quota exceeded")
	ErrUnavailable   = errors.New("unavailable")
	ErrCircuitOpen   = errors.New("circuit open")
)
