package uuidstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var bucketUUIDs = []byte("upnp_uuids")

const (
	boltFileMode    = 0600
	boltDirMode     = 0750
	boltOpenTimeout = time.Second
)

// BoltStore persists UUIDs in a bbolt file.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens or creates the bolt file at path and checks its pages.
func OpenBolt(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), boltDirMode); err != nil {
		return nil, fmt.Errorf("creating uuid store directory: %w", err)
	}

	db, err := bolt.Open(path, boltFileMode, &bolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}

	err = db.View(func(tx *bolt.Tx) error {
		var first error
		for checkErr := range tx.Check() {
			if first == nil {
				first = fmt.Errorf("bolt consistency check: %w", checkErr)
			}
		}
		return first
	})
	if err == nil {
		err = db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(bucketUUIDs)
			return err
		})
	}
	if err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Resolve implements Store.
func (s *BoltStore) Resolve(_ context.Context, uniqueID string) (string, error) {
	if uniqueID == "" {
		return uuid.NewString(), nil
	}

	var id string
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUUIDs)
		if v := b.Get([]byte(uniqueID)); v != nil {
			id = string(v)
			return nil
		}
		id = uuid.NewString()
		return b.Put([]byte(uniqueID), []byte(id))
	})
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return "", ErrClosed
	}
	if err != nil {
		return "", fmt.Errorf("resolving uuid for %q: %w", uniqueID, err)
	}
	return id, nil
}

// Backend implements Store.
func (s *BoltStore) Backend() string { return BackendBolt }

// Close implements Store.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
