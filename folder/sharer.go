package folder

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/cyp0633/libguestshare/permission"
	"go.uber.org/multierr"
)

// Sharer grants recipients access to folders.
type Sharer struct {
	service Service
	logger  *slog.Logger
}

// NewSharer creates a Sharer on top of service.
func NewSharer(service Service, logger *slog.Logger) (*Sharer, error) {
	if service == nil {
		return nil, fmt.Errorf("folder service is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sharer{service: service, logger: logger}, nil
}

// Grant merges recipients into the folder's permissions and persists the
// result. Failures of the folder service are returned unchanged.
func (s *Sharer) Grant(ctx context.Context, folderID string, recipients []permission.Recipient) ([]permission.Entry, error) {
	f, err := s.service.GetFolder(ctx, folderID)
	if err != nil {
		s.logger.Error("failed to load folder",
			"folder_id", folderID,
			"error", err)
		return nil, fmt.Errorf("folder %s: %w", folderID, err)
	}

	merged, err := permission.Merge(f.Permissions, recipients)
	if err != nil {
		return nil, fmt.Errorf("folder %s: %w", folderID, err)
	}

	if err := s.service.UpdatePermissions(ctx, folderID, merged, f.LastModified); err != nil {
		s.logger.Error("failed to update folder permissions",
			"folder_id", folderID,
			"error", err)
		return nil, fmt.Errorf("folder %s: %w", folderID, err)
	}

	s.logger.Info("folder permissions updated",
		"folder_id", folderID,
		"recipients", len(recipients),
		"entries", len(merged))
	return merged, nil
}

// GrantAll grants recipients on every folder independently. Folders that
// succeed stay committed when others fail; the returned error combines every
// per-folder failure and the map holds the permissions of the folders that
// were updated.
func (s *Sharer) GrantAll(ctx context.Context, folderIDs []string, recipients []permission.Recipient) (map[string][]permission.Entry, error) {
	updated := make(map[string][]permission.Entry, len(folderIDs))
	var errs error
	for _, id := range folderIDs {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("folder %s: %w", id, err))
			continue
		}
		perms, err := s.Grant(ctx, id, recipients)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		updated[id] = perms
	}
	return updated, errs
}
