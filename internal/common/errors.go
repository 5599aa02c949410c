// Package common defines shared constants and sentinel errors used across
// the server, the CLI and the storage tiers. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// ErrWriteConflict is returned when a link id is already taken by another letter.
	ErrWriteConflict = errors.New("write conflict")

	// ErrMergeIncomplete means the ownership merge gave up after retries.
	// Letters stay under their anonymous owner and the next sign-in retries.
	ErrMergeIncomplete = errors.New("merge incomplete")

	// ErrQueryUnsupported is returned when a rich query reaches a key-only tier.
	ErrQueryUnsupported = errors.New("query unsupported")

	// ErrBackendUnavailable means every configured tier failed.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// Session token errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
