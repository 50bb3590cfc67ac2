package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrSoldOut          = errors.New("sold out")
	ErrInvalid          = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrConflict         = errors.New("conflict")
)

var (
	ErrInvalidCredentials  = fmt.Errorf("invalid credentials: %w", ErrUnauthorized)
	ErrEmailTaken          = fmt.Errorf("email already registered: %w", ErrConflict)
	ErrIdempotencyMismatch = fmt.Errorf("idempotency key reused with a different request: %w", ErrConflict)
)

// Invalidf builds a validation error that matches ErrInvalid.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// IsDomain reports whether err already carries one of the sentinel kinds.
func IsDomain(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSoldOut) ||
		errors.Is(err, ErrInvalid) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrConflict)
}
