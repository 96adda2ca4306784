// Package kv defines the durable key-value contract shared by the
// workflow store, the quota ledger and the abuse/alert monitor, along
// with its Redis, PostgreSQL and in-memory implementations.
//
// The contract is deliberately weak. A Put followed by a Get or List
// from another process may not observe the write, there is no atomic
// increment or compare-and-swap, and expired keys vanish silently.
// Callers that read-modify-write a key accept lost updates under
// concurrency.
//
// Key prefixes partition the space so that one store can back every
// record type:
//
//	workflow:<id>   quota:<YYYY-MM-DD>   abuse:<client>   alert:<id>
package kv

import (
	"context"
	"time"
)

// Key prefixes.
const (
	PrefixWorkflow = "workflow:"
	PrefixQuota    = "quota:"
	PrefixAbuse    = "abuse:"
	PrefixAlert    = "alert:"
)

// Store is a key-value store with per-key expiry.
type Store interface {
	// Get returns the value for key. The bool is false when the key is
	// absent or expired; that is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put writes value under key. A ttl of zero keeps the key until it
	// is overwritten.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// List returns the live keys that start with prefix, in no
	// particular order.
	List(ctx context.Context, prefix string) ([]string, error)
}
