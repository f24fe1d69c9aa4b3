package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/cyp0633/libguestshare/server/storage"
	"golang.org/x/crypto/bcrypt"
)

// BcryptAuthenticator checks passwords against the bcrypt hash stored on the user.
type BcryptAuthenticator struct {
	logger *slog.Logger
}

// Option represents a configuration option for the BcryptAuthenticator
type Option func(*BcryptAuthenticator)

// WithLogger sets the logger for the authenticator
func WithLogger(logger *slog.Logger) Option {
	return func(a *BcryptAuthenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewBcryptAuthenticator creates a new bcrypt-backed Authenticator
func NewBcryptAuthenticator(opts ...Option) *BcryptAuthenticator {
	a := &BcryptAuthenticator{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// HashPassword hashes password for storage on a User.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Authenticate implements Authenticator
func (a *BcryptAuthenticator) Authenticate(_ context.Context, user *storage.User, password string) error {
	if user == nil || user.PasswordHash == "" {
		a.logger.Info("authentication failed: no password set")
		return &Error{
			Type:    ErrInvalidCredentials,
			Message: "invalid login or password",
		}
	}

	err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		a.logger.Info("authentication failed: invalid password",
			"context_id", user.ContextID,
			"user_id", user.ID)
		return &Error{
			Type:    ErrInvalidCredentials,
			Message: "invalid login or password",
		}
	} else if err != nil {
		a.logger.Error("failed to compare password hash",
			"error", err,
			"user_id", user.ID)
		return &Error{
			Type:    ErrInvalidCredentials,
			Message: "invalid login or password",
			Err:     err,
		}
	}

	a.logger.Debug("authentication successful",
		"context_id", user.ContextID,
		"user_id", user.ID)
	return nil
}
