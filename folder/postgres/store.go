// Package postgres implements folder.Service on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cyp0633/libguestshare/folder"
	"github.com/cyp0633/libguestshare/permission"
	"github.com/cyp0633/libguestshare/server/apperror"
	"github.com/lib/pq"
)

const (
	queryFolder = `SELECT id, context_id, name, last_modified FROM folders WHERE id = $1`
	queryPerms  = `SELECT entity, is_group, bits, system FROM folder_permissions WHERE folder_id = $1 ORDER BY position`
	bumpFolder  = `UPDATE folders SET last_modified = $1 WHERE id = $2 AND last_modified = $3`
	existsQuery = `SELECT 1 FROM folders WHERE id = $1`
	deletePerms = `DELETE FROM folder_permissions WHERE folder_id = $1`
	insertPerm  = `INSERT INTO folder_permissions (folder_id, position, entity, is_group, bits, system) VALUES ($1, $2, $3, $4, $5, $6)`

	// serialization_failure
	codeSerializationFailure = "40001"
)

// Schema creates the tables the store uses.
const Schema = `
CREATE TABLE IF NOT EXISTS folders (
	id            TEXT PRIMARY KEY,
	context_id    INTEGER NOT NULL,
	name          TEXT NOT NULL DEFAULT '',
	last_modified TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS folder_permissions (
	folder_id TEXT NOT NULL REFERENCES folders(id) ON DELETE CASCADE,
	position  INTEGER NOT NULL,
	entity    INTEGER NOT NULL,
	is_group  BOOLEAN NOT NULL,
	bits      BIGINT NOT NULL,
	system    INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (folder_id, position)
);`

// Store implements folder.Service over database/sql with the lib/pq driver.
type Store struct {
	db     *sql.DB
	now    func() time.Time
	logger *slog.Logger
}

// Open connects to dsn and checks the connection.
func Open(ctx context.Context, dsn string, maxConns int) (*sql.DB, error) {
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	db := sql.OpenDB(connector)
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// New creates a Store on db.
func New(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{db: db, now: time.Now, logger: logger}, nil
}

// Migrate creates the schema if it is missing.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

func unavailable(err error) error {
	return apperror.New(folder.ErrServiceUnavailable, "folder storage", err)
}

// GetFolder implements folder.Service
func (s *Store) GetFolder(ctx context.Context, id string) (*folder.Folder, error) {
	f := &folder.Folder{}
	err := s.db.QueryRowContext(ctx, queryFolder, id).Scan(&f.ID, &f.ContextID, &f.Name, &f.LastModified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.New(folder.ErrNotFound, fmt.Sprintf("folder %s not found", id), nil)
	} else if err != nil {
		return nil, unavailable(err)
	}

	rows, err := s.db.QueryContext(ctx, queryPerms, id)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entity, system int
			group          bool
			bits           int64
		)
		if err := rows.Scan(&entity, &group, &bits, &system); err != nil {
			return nil, unavailable(err)
		}
		f.Permissions = append(f.Permissions, permission.Entry{
			Entity: entity,
			Group:  group,
			Level:  permission.Decode(permission.Bits(bits)),
			System: system,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}

	return f, nil
}

// UpdatePermissions implements folder.Service. The permission rows are
// replaced in the same transaction that advances last_modified.
func (s *Store) UpdatePermissions(ctx context.Context, id string, perms []permission.Entry, lastModified time.Time) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Error("failed to roll back folder update",
					"folder_id", id,
					"error", rbErr)
			}
		}
	}()

	next := s.now().UTC().Truncate(time.Microsecond)
	if !next.After(lastModified) {
		next = lastModified.Add(time.Microsecond)
	}
	res, err := tx.ExecContext(ctx, bumpFolder, next, id, lastModified)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		var one int
		err = tx.QueryRowContext(ctx, existsQuery, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.New(folder.ErrNotFound, fmt.Sprintf("folder %s not found", id), nil)
		} else if err != nil {
			return unavailable(err)
		}
		return apperror.New(folder.ErrConcurrentModification, fmt.Sprintf("folder %s was modified concurrently", id), nil)
	}

	if _, err = tx.ExecContext(ctx, deletePerms, id); err != nil {
		return classify(err)
	}
	for i, p := range perms {
		if _, err = tx.ExecContext(ctx, insertPerm, id, i, p.Entity, p.Group, int64(p.Level.Bits()), p.System); err != nil {
			return classify(err)
		}
	}

	if err = tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

// classify maps serialization failures to concurrent modification.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == codeSerializationFailure {
		return apperror.New(folder.ErrConcurrentModification, "serialization failure", err)
	}
	return unavailable(err)
}
