// Package firestore provides an entry store implementation using Google Cloud
// Firestore, for vault deployments that share entries across browsers.
package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-key-vault/pkg/keyvault"
)

// Store is a concrete implementation of the keyvault.Store interface using Firestore.
type Store struct {
	client     *firestore.Client
	collection *firestore.CollectionRef
	logger     zerolog.Logger
}

// NewFirestoreStore creates a new Firestore-backed store.
func NewFirestoreStore(client *firestore.Client, collectionName string, logger zerolog.Logger) *Store {
	return &Store{
		client:     client,
		collection: client.Collection(collectionName),
		logger:     logger.With().Str("component", "firestore_store").Str("collection", collectionName).Logger(),
	}
}

// Put creates a document for the record. It fails if the entry already exists.
func (s *Store) Put(ctx context.Context, record keyvault.Record) error {
	id := record.Entry.ID
	if id == "" {
		return fmt.Errorf("record has no entry id")
	}
	s.logger.Debug().Str("entry_id", id).Msg("Storing entry")

	_, err := s.collection.Doc(id).Create(ctx, record)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return fmt.Errorf("entry %s already exists", id)
		}
		s.logger.Error().Err(err).Str("entry_id", id).Msg("Failed to store entry")
		return fmt.Errorf("failed to store entry %s: %w", id, err)
	}
	s.logger.Debug().Str("entry_id", id).Msg("Successfully stored entry")
	return nil
}

// Get retrieves a record from its Firestore document.
func (s *Store) Get(ctx context.Context, id string) (keyvault.Record, error) {
	doc, err := s.collection.Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			s.logger.Debug().Str("entry_id", id).Msg("Entry not found")
			return keyvault.Record{}, fmt.Errorf("entry %s: %w", id, keyvault.ErrKeyMissing)
		}
		s.logger.Warn().Err(err).Str("entry_id", id).Msg("Failed to get entry document")
		return keyvault.Record{}, fmt.Errorf("failed to get entry %s: %w", id, err)
	}

	var record keyvault.Record
	if err := doc.DataTo(&record); err != nil {
		s.logger.Error().Err(err).Str("entry_id", id).Msg("Failed to parse entry document")
		return keyvault.Record{}, fmt.Errorf("failed to parse entry document %s: %w", id, err)
	}
	return record, nil
}

// List returns every entry ordered by creation time.
func (s *Store) List(ctx context.Context) ([]keyvault.KeyEntry, error) {
	iter := s.collection.OrderBy("entry.createdAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	entries := []keyvault.KeyEntry{}
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list entries: %w", err)
		}
		var record keyvault.Record
		if err := doc.DataTo(&record); err != nil {
			return nil, fmt.Errorf("failed to parse entry document %s: %w", doc.Ref.ID, err)
		}
		entries = append(entries, record.Entry)
	}
	return entries, nil
}
