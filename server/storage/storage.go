package storage

import (
	"context"
	"time"

	"github.com/cyp0633/libguestshare/server/apperror"
	"github.com/samber/mo"
)

// Storage connects the share handler with the directory backend holding
// shares, contexts and guest users. Please use the error kinds provided.
type Storage interface {
	// ResolveShare finds the share issued under token. Unknown and expired
	// tokens return ErrNotFound.
	ResolveShare(ctx context.Context, token string) (*Share, error)
	// GetContext looks up a context by id.
	GetContext(ctx context.Context, contextID int) (*Context, error)
	// GetUser looks up a user (guests included) within a context.
	GetUser(ctx context.Context, c *Context, userID int) (*User, error)
}

// Share is a tokenized grant of access to a folder or a single item.
type Share struct {
	// Token is the 32 digit hex string embedded in the link.
	Token     string
	ContextID int
	Module    Module
	Folder    string
	// Item is set when the share targets one object rather than the folder.
	Item mo.Option[string]
	// Guest is the user id of the guest provisioned for this share.
	Guest          int
	Authentication AuthMode
	Expires        mo.Option[time.Time]
}

// Expired reports whether the share is no longer valid at now.
func (s *Share) Expired(now time.Time) bool {
	exp, ok := s.Expires.Get()
	return ok && !now.Before(exp)
}

// Context is a tenant.
type Context struct {
	ID      int
	Name    string
	Enabled bool
}

type User struct {
	ID        int
	ContextID int
	// Login name, sent to the client in the redirect
	Login string
	// Mail is what credentialed guests log in with
	Mail        string
	DisplayName string
	// Locale, e.g. en_US
	Locale       string
	PasswordHash string
	Guest        bool
}

var (
	// ErrNotFound is returned when a requested share, context or user doesn't exist
	ErrNotFound = apperror.ErrNotFound
	// ErrStorageUnavailable is returned when the directory backend is unavailable
	ErrStorageUnavailable = apperror.ErrServiceUnavailable
)

// AuthMode tells how a guest proves its identity.
type AuthMode int

const (
	AuthAnonymous AuthMode = iota
	AuthGuestPassword
)

func (m AuthMode) String() string {
	switch m {
	case AuthAnonymous:
		return "ANONYMOUS"
	case AuthGuestPassword:
		return "GUEST_PASSWORD"
	default:
		return "UNKNOWN"
	}
}

// Module is the domain area a share belongs to.
type Module int

const (
	ModuleUnbound Module = iota
	ModuleCalendar
	ModuleContacts
	ModuleInfostore
	ModuleMail
	ModuleSystem
	ModuleTask
)

// String provides a human-readable representation of the Module.
func (m Module) String() string {
	switch m {
	case ModuleCalendar:
		return "calendar"
	case ModuleContacts:
		return "contacts"
	case ModuleInfostore:
		return "infostore"
	case ModuleMail:
		return "mail"
	case ModuleSystem:
		return "system"
	case ModuleTask:
		return "tasks"
	default:
		return "unbound"
	}
}
