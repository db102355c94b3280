// Package natskv implements the ledger.Store port using NATS JetStream KV.
// It is used as a factory-wide mirror of per-worktree ledgers so external
// enforcement points can consult nag status without filesystem access.
package natskv

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// maxUpdateRetries bounds the optimistic-concurrency retry loop.
const maxUpdateRetries = 8

// Ledger wraps a NATS JetStream KeyValue bucket as a transactional ledger.
type Ledger struct {
	kv jetstream.KeyValue
}

// New creates a NATS KV-backed ledger.
func New(kv jetstream.KeyValue) *Ledger {
	return &Ledger{kv: kv}
}

// Get retrieves the value for key. ok is false when the key is absent.
func (l *Ledger) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := l.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return entry.Value(), true, nil
}

// Put stores value under key.
func (l *Ledger) Put(ctx context.Context, key string, value []byte) error {
	_, err := l.kv.Put(ctx, key, value)
	return err
}

// Update performs an atomic read-modify-write using KV revision CAS,
// retrying on concurrent writers.
func (l *Ledger) Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error {
	for range maxUpdateRetries {
		var current []byte
		var revision uint64

		entry, err := l.kv.Get(ctx, key)
		switch {
		case err == nil:
			current = entry.Value()
			revision = entry.Revision()
		case errors.Is(err, jetstream.ErrKeyNotFound):
		default:
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		if revision == 0 {
			if _, err = l.kv.Create(ctx, key, next); err == nil {
				return nil
			}
			if errors.Is(err, jetstream.ErrKeyExists) {
				continue
			}
			return err
		}

		if _, err = l.kv.Update(ctx, key, next, revision); err == nil {
			return nil
		} else if !errors.Is(err, jetstream.ErrKeyExists) {
			// Revision mismatch surfaces as a wrong-last-sequence error;
			// anything else is fatal.
			var apiErr *jetstream.APIError
			if !errors.As(err, &apiErr) {
				return err
			}
		}
	}
	return fmt.Errorf("natskv: update %s: too many concurrent writers", key)
}

// Delete removes key. Deleting an absent key is a no-op.
func (l *Ledger) Delete(ctx context.Context, key string) error {
	err := l.kv.Delete(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Keys lists all keys with the given prefix.
func (l *Ledger) Keys(ctx context.Context, prefix string) ([]string, error) {
	lister, err := l.kv.ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	var keys []string
	for key := range lister.Keys() {
		if prefix == "" || len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
	}
	return keys, nil
}
