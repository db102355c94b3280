// Package ledger defines a transactional key-value port with atomic
// read-modify-write semantics. The nag status ledger and the continuity
// checkpoint are stored through it; a textual export format exists for
// interchange, but the text file is never the unit of concurrency control.
package ledger

import "context"

// Store is the port interface for durable key-value ledgers.
type Store interface {
	// Get retrieves the value for key. ok is false when the key is absent;
	// absence is not an error.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Put stores value under key.
	Put(ctx context.Context, key string, value []byte) error

	// Update performs an atomic read-modify-write: fn receives the current
	// value (nil when absent) and returns the replacement. No concurrent
	// Update on the same key may interleave.
	Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error

	// Delete removes key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error

	// Keys lists all keys with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
