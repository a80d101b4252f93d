// Package keystore contains the read-only contract for surfaces that only
// display stored key entries and must never reach key material.
package keystore

import (
	"context"

	"github.com/tinywideclouds/go-key-vault/pkg/keyvault"
)

// Lister is the read-only view of a keyvault.Store.
type Lister interface {
	// List returns the public view of every stored entry.
	List(ctx context.Context) ([]keyvault.KeyEntry, error)
}

// ReadOnly narrows a full store to a Lister so that callers holding it cannot
// type-assert their way back to Get and its secrets.
func ReadOnly(store keyvault.Store) Lister {
	return listerFunc(store.List)
}

type listerFunc func(ctx context.Context) ([]keyvault.KeyEntry, error)

func (f listerFunc) List(ctx context.Context) ([]keyvault.KeyEntry, error) {
	return f(ctx)
}
