package folder

import (
	"context"
	"time"

	"github.com/cyp0633/libguestshare/permission"
	"github.com/stretchr/testify/mock"
)

// MockService implements the Service interface for testing
type MockService struct {
	mock.Mock
}

// GetFolder implements the Service interface
func (m *MockService) GetFolder(ctx context.Context, id string) (*Folder, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Folder), args.Error(1)
}

// UpdatePermissions implements the Service interface
func (m *MockService) UpdatePermissions(ctx context.Context, id string, perms []permission.Entry, lastModified time.Time) error {
	args := m.Called(ctx, id, perms, lastModified)
	return args.Error(0)
}
