package services

import "errors"

// Error taxonomy shared by every use case. Handlers match these with errors.Is.
var (
	ErrDuplicateIdentity  = errors.New("username or email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrValidationFailed   = errors.New("validation failed")
)

// Identity fields reported by DuplicateIdentityError.
const (
	FieldEmail    = "email"
	FieldUsername = "username"
)

// DuplicateIdentityError names the field that collided with an existing account.
type DuplicateIdentityError struct {
	Field string
}

func (e *DuplicateIdentityError) Error() string { return e.Field + " already registered" }

func (e *DuplicateIdentityError) Unwrap() error { return ErrDuplicateIdentity }
