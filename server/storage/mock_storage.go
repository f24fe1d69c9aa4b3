package storage

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/stretchr/testify/mock"
)

// MockStorage implements the Storage interface for testing
type MockStorage struct {
	mock.Mock
}

// ResolveShare implements the Storage interface
func (m *MockStorage) ResolveShare(ctx context.Context, token string) (*Share, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Share), args.Error(1)
}

// GetContext implements the Storage interface
func (m *MockStorage) GetContext(ctx context.Context, contextID int) (*Context, error) {
	args := m.Called(ctx, contextID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Context), args.Error(1)
}

// GetUser implements the Storage interface
func (m *MockStorage) GetUser(ctx context.Context, c *Context, userID int) (*User, error) {
	args := m.Called(ctx, c, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

// --- Helper methods for creating test data ---

// NewToken returns a fresh 32 digit hex share token.
func NewToken() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// NewMockShare creates a folder share for a guest
func NewMockShare(token string, contextID, guest int, module Module, folder string, mode AuthMode) *Share {
	return &Share{
		Token:          token,
		ContextID:      contextID,
		Module:         module,
		Folder:         folder,
		Item:           mo.None[string](),
		Guest:          guest,
		Authentication: mode,
		Expires:        mo.None[time.Time](),
	}
}

// SetupGuestShare populates the mock with a share, its context and its guest
func (m *MockStorage) SetupGuestShare(share *Share, guest *User) *Context {
	c := &Context{ID: share.ContextID, Name: "ctx", Enabled: true}
	m.On("ResolveShare", mock.Anything, share.Token).Return(share, nil)
	m.On("GetContext", mock.Anything, share.ContextID).Return(c, nil)
	m.On("GetUser", mock.Anything, c, share.Guest).Return(guest, nil)
	return c
}
