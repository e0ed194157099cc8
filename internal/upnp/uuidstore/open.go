package uuidstore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/nerrad567/gray-logic-upnp/internal/infrastructure/database"
)

// Config selects and locates the backend.
type Config struct {
	// Backend is BackendSQLite, BackendBolt or BackendMemory.
	Backend string

	// Path is the store file.
	Path string

	// WALMode and BusyTimeout apply to the SQLite backend.
	WALMode     bool
	BusyTimeout int
}

// Open returns a usable Store, healing or replacing a damaged one.
//
// The sequence is:
//  1. Open the configured backend
//  2. On failure, remove the file and open again
//  3. If that fails too, log a warning and use a MemoryStore
//
// Parameters:
//   - ctx: Context for database operations
//   - cfg: Backend selection
//   - log: Logger for recovery messages (nil for silent)
//
// Returns:
//   - Store: Never nil
func Open(ctx context.Context, cfg Config, log Logger) Store {
	if log == nil {
		log = noopLogger{}
	}
	if cfg.Backend == BackendMemory || cfg.Path == "" {
		return NewMemoryStore()
	}

	store, err := openBackend(ctx, cfg)
	if err == nil {
		return store
	}

	log.Warn("uuid store unusable, recreating", "backend", cfg.Backend, "path", cfg.Path, "error", err)
	if rmErr := removeFiles(cfg); rmErr != nil {
		log.Warn("removing uuid store failed", "path", cfg.Path, "error", rmErr)
	}

	store, err = openBackend(ctx, cfg)
	if err == nil {
		return store
	}

	log.Warn("uuid store unavailable, device uuids will change on restart",
		"backend", cfg.Backend, "path", cfg.Path, "error", err)
	return NewMemoryStore()
}

func openBackend(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendSQLite:
		return OpenSQLite(ctx, database.Config{
			Path:        cfg.Path,
			WALMode:     cfg.WALMode,
			BusyTimeout: cfg.BusyTimeout,
		})
	case BackendBolt:
		return OpenBolt(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown uuid store backend %q", cfg.Backend)
	}
}

func removeFiles(cfg Config) error {
	if cfg.Backend == BackendSQLite {
		return database.Remove(cfg.Path)
	}
	if err := os.Remove(cfg.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", cfg.Path, err)
	}
	return nil
}
