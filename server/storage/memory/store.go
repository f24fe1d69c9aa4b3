// memory based implementation for testing purposes
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cyp0633/libguestshare/server/apperror"
	"github.com/cyp0633/libguestshare/server/storage"
)

// Store implements storage.Storage interface using in-memory maps
type Store struct {
	mu       sync.RWMutex
	shares   map[string]*storage.Share // key: lower-case token
	contexts map[int]*storage.Context  // key: context id
	users    map[string]*storage.User  // key: contextID/userID
	now      func() time.Time
}

// New creates a new in-memory storage
func New() *Store {
	return &Store{
		shares:   make(map[string]*storage.Share),
		contexts: make(map[int]*storage.Context),
		users:    make(map[string]*storage.User),
		now:      time.Now,
	}
}

func (s *Store) userKey(contextID, userID int) string {
	return fmt.Sprintf("%d/%d", contextID, userID)
}

// Share operations

func (s *Store) AddShare(share *storage.Share) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shares[strings.ToLower(share.Token)] = share
}

func (s *Store) ResolveShare(_ context.Context, token string) (*storage.Share, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	share, ok := s.shares[strings.ToLower(token)]
	if !ok {
		return nil, apperror.New(storage.ErrNotFound, "share not found", nil)
	}
	if share.Expired(s.now()) {
		return nil, apperror.New(storage.ErrNotFound, "share expired", nil)
	}

	return share, nil
}

// Context operations

func (s *Store) AddContext(c *storage.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[c.ID] = c
}

func (s *Store) GetContext(_ context.Context, contextID int) (*storage.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contexts[contextID]
	if !ok {
		return nil, apperror.New(storage.ErrNotFound, fmt.Sprintf("context %d not found", contextID), nil)
	}

	return c, nil
}

// User operations

func (s *Store) AddUser(u *storage.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.userKey(u.ContextID, u.ID)
	if _, exists := s.users[key]; exists {
		return fmt.Errorf("user already exists: %s", key)
	}
	s.users[key] = u

	return nil
}

func (s *Store) GetUser(_ context.Context, c *storage.Context, userID int) (*storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[s.userKey(c.ID, userID)]
	if !ok {
		return nil, apperror.New(storage.ErrNotFound, fmt.Sprintf("user %d not found in context %d", userID, c.ID), nil)
	}

	return u, nil
}
