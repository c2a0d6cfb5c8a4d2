// Package domain defines the entities, invariants, and ports of the
// result-lifecycle middleware. It is import-free of adapters; services and
// adapters depend on it, never the reverse.
package domain

import "errors"

// Error taxonomy (sentinels). The HTTP boundary owns the mapping to status
// codes; everything below it wraps these with op= context.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrImmutable         = errors.New("immutable")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrUpstream          = errors.New("upstream failure")
	ErrInternal          = errors.New("internal error")
)
