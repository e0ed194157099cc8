package uuidstore

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Backend names.
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// ErrClosed is returned by Resolve after Close.
var ErrClosed = errors.New("uuidstore: closed")

// Store resolves unique ids to UUIDs.
type Store interface {
	// Resolve returns the UUID stored for uniqueID, generating and
	// persisting one if none exists. An empty uniqueID always yields a
	// new, unstored UUID.
	Resolve(ctx context.Context, uniqueID string) (string, error)

	// Backend names the storage in use.
	Backend() string

	Close() error
}

// Logger is the logging interface used by Open.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MemoryStore keeps UUIDs for the lifetime of the process only.
type MemoryStore struct {
	mu    sync.Mutex
	uuids map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{uuids: make(map[string]string)}
}

// Resolve implements Store.
func (s *MemoryStore) Resolve(_ context.Context, uniqueID string) (string, error) {
	if uniqueID == "" {
		return uuid.NewString(), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.uuids[uniqueID]; ok {
		return id, nil
	}
	id := uuid.NewString()
	s.uuids[uniqueID] = id
	return id, nil
}

// Backend implements Store.
func (s *MemoryStore) Backend() string { return BackendMemory }

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
