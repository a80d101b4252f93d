// Package inmemory provides a thread-safe in-memory entry store.
package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/tinywideclouds/go-key-vault/pkg/keyvault"
)

// Store is a concrete, thread-safe in-memory implementation of the keyvault.Store interface.
type Store struct {
	sync.RWMutex
	records map[string]keyvault.Record
	order   []string
}

// New creates a new in-memory entry store.
func New() *Store {
	return &Store{records: make(map[string]keyvault.Record)}
}

// Put adds a record to the in-memory map.
func (s *Store) Put(ctx context.Context, record keyvault.Record) error {
	id := record.Entry.ID
	if id == "" {
		return fmt.Errorf("record has no entry id")
	}
	s.Lock()
	defer s.Unlock()
	if _, exists := s.records[id]; exists {
		return fmt.Errorf("entry %s already exists", id)
	}
	s.records[id] = cloneRecord(record)
	s.order = append(s.order, id)
	return nil
}

// Get retrieves a record from the in-memory map.
func (s *Store) Get(ctx context.Context, id string) (keyvault.Record, error) {
	s.RLock()
	defer s.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return keyvault.Record{}, fmt.Errorf("entry %s: %w", id, keyvault.ErrKeyMissing)
	}
	return cloneRecord(record), nil
}

// List returns every entry in insertion order.
func (s *Store) List(ctx context.Context) ([]keyvault.KeyEntry, error) {
	s.RLock()
	defer s.RUnlock()
	entries := make([]keyvault.KeyEntry, 0, len(s.order))
	for _, id := range s.order {
		entries = append(entries, s.records[id].Entry)
	}
	return entries, nil
}

// cloneRecord keeps callers from mutating stored byte slices.
func cloneRecord(r keyvault.Record) keyvault.Record {
	r.Secret = append([]byte(nil), r.Secret...)
	r.Salt = append([]byte(nil), r.Salt...)
	r.PassphraseImage = append([]byte(nil), r.PassphraseImage...)
	return r
}
