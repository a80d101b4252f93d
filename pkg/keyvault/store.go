package keyvault

import (
	"context"
)

// Store defines the public interface for key entry persistence.
// Any component that can store and retrieve entries (in-memory, bolt, Firestore)
// must implement this interface.
type Store interface {
	// Put persists a new record. Entries are immutable: putting an id that
	// already exists is an error.
	Put(ctx context.Context, record Record) error

	// Get retrieves the full record for an entry id.
	// If no record exists, the returned error wraps ErrKeyMissing.
	Get(ctx context.Context, id string) (Record, error)

	// List returns the public view of every stored entry, oldest first.
	// An empty store returns an empty slice and no error.
	List(ctx context.Context) ([]KeyEntry, error)
}
