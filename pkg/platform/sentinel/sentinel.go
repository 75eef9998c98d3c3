package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about persisted documents, not validation failures:
// - ErrNotFound: document does not exist in the collection
// - ErrConflict: a uniqueness constraint was violated (e.g. audit chain index taken)
// - ErrExpired: session or challenge has expired
// - ErrAlreadyUsed: one-time material (backup code) already consumed
// - ErrInvalidState: document in wrong state for requested transition
// - ErrUnavailable: backend temporarily unavailable
//
// For security failures surfaced to callers, use pkg/domain-errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
