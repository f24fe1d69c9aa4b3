package auth

import (
	"context"
	"fmt"

	"github.com/cyp0633/libguestshare/server/apperror"
	"github.com/cyp0633/libguestshare/server/storage"
)

// Credentials represents authentication credentials
type Credentials struct {
	Login    string
	Password string
}

// ErrorType represents the type of authentication error
type ErrorType string

const (
	ErrMissingCredentials ErrorType = "missing_credentials"
	ErrInvalidCredentials ErrorType = "invalid_credentials"
	ErrPasswordPolicy     ErrorType = "password_policy"
	ErrLoginMismatch      ErrorType = "login_mismatch"
)

// Error represents an authentication-related error. It always matches
// apperror.ErrUnauthorized.
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{apperror.ErrUnauthorized}
	}
	return []error{apperror.ErrUnauthorized, e.Err}
}

// Authenticator verifies a guest's password.
type Authenticator interface {
	// Authenticate returns nil if password belongs to user.
	Authenticate(ctx context.Context, user *storage.User, password string) error
}
