// memory based implementation for testing purposes
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cyp0633/libguestshare/folder"
	"github.com/cyp0633/libguestshare/permission"
	"github.com/cyp0633/libguestshare/server/apperror"
)

// Store implements folder.Service using an in-memory map
type Store struct {
	mu      sync.RWMutex
	folders map[string]*folder.Folder
	now     func() time.Time
}

// New creates a new in-memory folder store
func New() *Store {
	return &Store{
		folders: make(map[string]*folder.Folder),
		now:     time.Now,
	}
}

// CreateFolder stores a copy of f, stamping its modification time.
func (s *Store) CreateFolder(_ context.Context, f *folder.Folder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.folders[f.ID]; exists {
		return fmt.Errorf("folder already exists: %s", f.ID)
	}
	c := f.Clone()
	c.LastModified = s.now()
	s.folders[f.ID] = c

	return nil
}

func (s *Store) GetFolder(_ context.Context, id string) (*folder.Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.folders[id]
	if !ok {
		return nil, apperror.New(folder.ErrNotFound, fmt.Sprintf("folder %s not found", id), nil)
	}

	return f.Clone(), nil
}

func (s *Store) UpdatePermissions(_ context.Context, id string, perms []permission.Entry, lastModified time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.folders[id]
	if !ok {
		return apperror.New(folder.ErrNotFound, fmt.Sprintf("folder %s not found", id), nil)
	}
	if !f.LastModified.Equal(lastModified) {
		return apperror.New(folder.ErrConcurrentModification,
			fmt.Sprintf("folder %s was modified at %s", id, f.LastModified.Format(time.RFC3339Nano)), nil)
	}

	updated := f.Clone()
	updated.Permissions = append([]permission.Entry(nil), perms...)
	updated.LastModified = s.now()
	// keep the token moving even when the clock does not
	if !updated.LastModified.After(f.LastModified) {
		updated.LastModified = f.LastModified.Add(time.Nanosecond)
	}
	s.folders[id] = updated

	return nil
}
