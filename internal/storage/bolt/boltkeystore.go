// Package bolt provides the default local entry store, a single bolt file per
// vault installation.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/boltdb/bolt"
	"github.com/rs/zerolog"
	"github.com/tinywideclouds/go-key-vault/pkg/keyvault"
)

const (
	// dbTimeout bounds how long Open waits for the file lock held by another
	// vault context.
	dbTimeout = time.Second
)

var entriesBucket = []byte("accounts")

// Store is a keyvault.Store backed by a bolt database file.
type Store struct {
	db     *bolt.DB
	logger zerolog.Logger
}

// Open opens (or creates) the bolt file at path.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: dbTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt store at %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(entriesBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create entries bucket: %w", err)
	}
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "bolt_store").Str("path", path).Logger(),
	}, nil
}

// Close releases the file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores a new record. Existing ids are rejected.
func (s *Store) Put(ctx context.Context, record keyvault.Record) error {
	id := record.Entry.ID
	if id == "" {
		return fmt.Errorf("record has no entry id")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode entry %s: %w", id, err)
	}

	s.logger.Debug().Str("entry_id", id).Msg("Storing entry")
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		if b.Get([]byte(id)) != nil {
			return fmt.Errorf("entry %s already exists", id)
		}
		return b.Put([]byte(id), data)
	})
	if err != nil {
		s.logger.Error().Err(err).Str("entry_id", id).Msg("Failed to store entry")
		return fmt.Errorf("failed to store entry %s: %w", id, err)
	}
	return nil
}

// Get retrieves a record by id.
func (s *Store) Get(ctx context.Context, id string) (keyvault.Record, error) {
	var record keyvault.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(entriesBucket).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("entry %s: %w", id, keyvault.ErrKeyMissing)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return keyvault.Record{}, err
	}
	return record, nil
}

// List returns every entry ordered by creation time.
func (s *Store) List(ctx context.Context) ([]keyvault.KeyEntry, error) {
	entries := []keyvault.KeyEntry{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(entriesBucket).ForEach(func(k, v []byte) error {
			var record keyvault.Record
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("failed to decode entry %s: %w", k, err)
			}
			entries = append(entries, record.Entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}
