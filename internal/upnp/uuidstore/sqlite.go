package uuidstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-upnp/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-upnp/migrations" // registers the upnp_uuids migration
)

// SQLiteStore persists UUIDs in the upnp_uuids table.
type SQLiteStore struct {
	mu     sync.Mutex
	db     *database.DB
	closed bool
}

// OpenSQLite opens the database at cfg.Path, verifies it and applies
// pending migrations.
//
// Parameters:
//   - ctx: Context for the open, check and migration queries
//   - cfg: Database location and pragmas
//
// Returns:
//   - *SQLiteStore: Ready store
//   - error: If the file cannot be opened, is damaged, or migration fails
func OpenSQLite(ctx context.Context, cfg database.Config) (*SQLiteStore, error) {
	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := db.IntegrityCheck(ctx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("migrating uuid store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Resolve implements Store.
func (s *SQLiteStore) Resolve(ctx context.Context, uniqueID string) (string, error) {
	if uniqueID == "" {
		return uuid.NewString(), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrClosed
	}

	var id string
	err := s.db.QueryRowContext(ctx, "SELECT uuid FROM upnp_uuids WHERE unique_id = ?", uniqueID).Scan(&id)
	switch {
	case err == nil:
		return id, nil
	case !errors.Is(err, sql.ErrNoRows):
		return "", fmt.Errorf("looking up uuid for %q: %w", uniqueID, err)
	}

	id = uuid.NewString()
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO upnp_uuids (unique_id, uuid, created_at) VALUES (?, ?, ?)",
		uniqueID, id, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return "", fmt.Errorf("storing uuid for %q: %w", uniqueID, err)
	}
	return id, nil
}

// Backend implements Store.
func (s *SQLiteStore) Backend() string { return BackendSQLite }

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
