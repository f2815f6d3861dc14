// Package kv declares the ordered, transactional key-value contract that
// the triple store is built on, and a go.etcd.io/bbolt implementation of
// it. Keys are raw bytes produced by the caller (the Key Codec, in the
// parent package); this package never interprets their structure.
package kv

import "context"

// Pair is one key-value pair returned from a ranged read.
type Pair struct {
	Key   []byte
	Value []byte
}

// Tx is a single transaction's view of the store. All reads within one Tx
// observe all prior writes from that same Tx (read-your-writes).
type Tx interface {
	// Get returns the value stored at key, or nil if it is absent.
	Get(key []byte) ([]byte, error)

	// Set buffers key to be written to value on commit.
	Set(key, value []byte) error

	// Clear buffers key for deletion on commit.
	Clear(key []byte) error

	// AtomicAdd adds delta, interpreted as a two's-complement little-endian
	// 64-bit operand, to the 8-byte little-endian integer stored at key,
	// treating an absent key as zero.
	AtomicAdd(key []byte, delta int64) error

	// Range streams every key in [begin, end) in ascending byte order. The
	// returned sequence may be abandoned early; doing so releases the
	// cursor cleanly.
	Range(begin, end []byte) func(yield func(Pair, error) bool)
}

// Store opens read and read-write transactions against the backing engine.
type Store interface {
	// View runs fn in a read-only, snapshot-isolated transaction. Writes
	// attempted inside fn fail.
	View(ctx context.Context, fn func(Tx) error) error

	// Update runs fn in a read-write transaction, retrying on retryable
	// errors per the Policy passed to Open. fn may be invoked
	// more than once; it must have no side effects outside the Tx.
	Update(ctx context.Context, fn func(Tx) error) error

	// Snapshot opens a read-only, snapshot-isolated transaction whose
	// lifetime is controlled by the caller rather than bound to a single
	// closure, for streaming reads (e.g. a query result sequence) that
	// outlive the call that opened them. The caller must invoke the
	// returned release func exactly once, whether or not it consumed the
	// whole stream.
	Snapshot(ctx context.Context) (Tx, func() error, error)

	// Close releases the underlying file handle.
	Close() error
}
