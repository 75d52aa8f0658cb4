package service

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated = errors.New("service: unknown license key")
	ErrLicenseExpired  = errors.New("service: license expired")
	ErrInvalidCode     = errors.New("service: invalid redemption code")
	ErrAlreadyUsed     = errors.New("service: redemption code already used")
	ErrBadRequest      = errors.New("service: bad request")
	ErrUnauthorized    = errors.New("service: admin secret mismatch")
	ErrStoreFailure    = errors.New("service: store failure")
	// ErrContention means a conditional write kept losing to concurrent writers.
	ErrContention = errors.New("service: too many concurrent updates")

	ErrLicenseNotFound = errors.New("service: license record not found")
	ErrCodeNotFound    = errors.New("service: redemption code not found")
	ErrCodeExists      = errors.New("service: redemption code already exists")
)

// ValidationError is a BadRequest naming the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("service: invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrBadRequest }

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func storeFailure(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreFailure, err)
}
