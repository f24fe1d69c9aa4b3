// Package apperror classifies the failures of the guest share path and maps
// them to HTTP status codes.
package apperror

import (
	"errors"
	"net/http"

	"github.com/cyp0633/libguestshare/permission"
)

var (
	ErrInvalidLink            = errors.New("invalid share link")
	ErrTokenResolution        = errors.New("share token could not be resolved")
	ErrNotFound               = errors.New("not found")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrSessionRefused         = errors.New("session refused")
	ErrRateLimited            = errors.New("rate limited")
	ErrServiceUnavailable     = errors.New("service unavailable")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrInvalidPermission      = permission.ErrInvalidLevel
)

// Error carries a kind (one of the sentinels above), a display message and an
// optional cause. errors.Is matches both the kind and the cause.
type Error struct {
	Kind    error
	Message string
	Err     error
}

var _ error = (*Error)(nil)

// New returns an *Error of the given kind.
func New(kind error, msg string, cause error) error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

func (e *Error) Error() string {
	if e == nil {
		return "(*apperror.Error)(nil)"
	}
	message := e.Kind.Error()
	if e.Message != "" {
		message += ": " + e.Message
	}
	if e.Err != nil {
		message += ": " + e.Err.Error()
	}
	return message
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// StatusCode maps err to the HTTP status the share handler answers with.
// Rate limiting wins over every other kind.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrInvalidLink):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrSessionRefused):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// DisplayMessage returns the text shown to the client: the message of the
// outermost *Error, or err.Error() for anything unclassified.
func DisplayMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
