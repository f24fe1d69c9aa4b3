// Package folder applies share grants to folders owned by an external
// folder service.
package folder

import (
	"context"
	"time"

	"github.com/cyp0633/libguestshare/permission"
	"github.com/cyp0633/libguestshare/server/apperror"
)

// Folder is a snapshot of a folder as returned by a Service.
type Folder struct {
	ID          string
	ContextID   int
	Name        string
	Permissions []permission.Entry
	// LastModified is the optimistic concurrency token.
	LastModified time.Time
}

// Service is the folder storage collaborator.
type Service interface {
	// GetFolder returns a snapshot of the folder, ErrNotFound if it does not exist.
	GetFolder(ctx context.Context, id string) (*Folder, error)
	// UpdatePermissions replaces the folder's permissions if the folder has
	// not been modified since lastModified. A newer folder yields
	// ErrConcurrentModification.
	UpdatePermissions(ctx context.Context, id string, perms []permission.Entry, lastModified time.Time) error
}

var (
	// ErrNotFound is returned when a folder doesn't exist
	ErrNotFound = apperror.ErrNotFound
	// ErrConcurrentModification is returned when a folder changed since it was read
	ErrConcurrentModification = apperror.ErrConcurrentModification
	// ErrServiceUnavailable is returned when the folder backend is unavailable
	ErrServiceUnavailable = apperror.ErrServiceUnavailable
)

// clonePermissions copies perms so snapshots never alias stored state.
func clonePermissions(perms []permission.Entry) []permission.Entry {
	if perms == nil {
		return nil
	}
	out := make([]permission.Entry, len(perms))
	copy(out, perms)
	return out
}

// Clone returns a deep copy of f.
func (f *Folder) Clone() *Folder {
	c := *f
	c.Permissions = clonePermissions(f.Permissions)
	return &c
}
