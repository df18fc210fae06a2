// Package persist provides the state persistence registry: an optional
// key/value collaborator a composition root consults to seed a state cell's
// initial value across a teardown/recreate boundary. Stores are plain
// get/set collaborators, not part of the reactive graph.
//
// Keys are cell keys (scope path + cell name); values are the cell's JSON
// encoding. Implementations: in-memory (MemStore), Redis (RedisStore) and
// bbolt (BoltStore).
package persist

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no value is stored under a key.
var ErrNotFound = errors.New("persist: key not found")

// Store is the persistence registry contract.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases the store's resources.
	Close() error
}

// IsNotFound checks if err indicates an absent key.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
