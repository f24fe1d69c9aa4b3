package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cyp0633/libguestshare/folder"
	foldermemory "github.com/cyp0633/libguestshare/folder/memory"
	"github.com/cyp0633/libguestshare/permission"
	"github.com/cyp0633/libguestshare/server/auth"
	"github.com/cyp0633/libguestshare/server/storage"
	"github.com/cyp0633/libguestshare/server/storage/memory"
)

const (
	demoContext  = 1
	demoOwner    = 2
	demoGuest    = 10
	demoFolder   = "42"
	demoPassword = "guest"
)

// readOnlyBits grants folder visibility and read access to own objects.
var readOnlyBits = permission.NoLevel().
	WithFolder(permission.LevelOwn).
	WithRead(permission.LevelOwn).
	Bits()

// seedDemo provisions one context, a guest, a shared folder and two share
// links (anonymous and password protected).
func seedDemo(ctx context.Context, directory *memory.Store, folders folder.Service, sharer *folder.Sharer, logger *slog.Logger) error {
	directory.AddContext(&storage.Context{ID: demoContext, Name: "demo", Enabled: true})

	hash, err := auth.HashPassword(demoPassword)
	if err != nil {
		return err
	}
	if err := directory.AddUser(&storage.User{
		ID:           demoGuest,
		ContextID:    demoContext,
		Login:        "guest@example.com",
		Mail:         "guest@example.com",
		DisplayName:  "Demo Guest",
		Locale:       "en_US",
		PasswordHash: hash,
		Guest:        true,
	}); err != nil {
		return err
	}

	if mem, ok := folders.(*foldermemory.Store); ok {
		err := mem.CreateFolder(ctx, &folder.Folder{
			ID:          demoFolder,
			ContextID:   demoContext,
			Name:        "Team calendar",
			Permissions: []permission.Entry{{Entity: demoOwner, Level: permission.MaxLevel()}},
		})
		if err != nil {
			return err
		}
	}

	perms, err := sharer.Grant(ctx, demoFolder, []permission.Recipient{{Entity: demoGuest, Bits: readOnlyBits}})
	if errors.Is(err, folder.ErrNotFound) {
		logger.Warn("demo folder missing, skipping grant", "folder_id", demoFolder)
	} else if err != nil {
		return err
	} else {
		logger.Info("demo folder shared", "folder_id", demoFolder, "entries", len(perms))
	}

	anonymous := storage.NewMockShare(storage.NewToken(), demoContext, demoGuest, storage.ModuleCalendar, demoFolder, storage.AuthAnonymous)
	protected := storage.NewMockShare(storage.NewToken(), demoContext, demoGuest, storage.ModuleCalendar, demoFolder, storage.AuthGuestPassword)
	directory.AddShare(anonymous)
	directory.AddShare(protected)

	logger.Info("demo shares ready",
		"anonymous_token", anonymous.Token,
		"protected_token", protected.Token,
		"login", "guest@example.com")
	return nil
}
