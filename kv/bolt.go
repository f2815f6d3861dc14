package kv

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// Default payload ceilings for a transaction, key, and value.
const (
	DefaultMaxTxBytes    = 10 << 20 // 10 MiB
	DefaultMaxKeyBytes   = 10 << 10 // 10 KiB
	DefaultMaxValueBytes = 100 << 10
)

// Policy tunes the retry and payload-ceiling behaviour of a [BoltStore].
type Policy struct {
	MaxAttempts   int
	TxTimeout     time.Duration
	MaxTxBytes    int
	MaxKeyBytes   int
	MaxValueBytes int
}

// DefaultPolicy returns sensible defaults for retry attempts, transaction
// deadline, and payload ceilings.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   100,
		TxTimeout:     5 * time.Second,
		MaxTxBytes:    DefaultMaxTxBytes,
		MaxKeyBytes:   DefaultMaxKeyBytes,
		MaxValueBytes: DefaultMaxValueBytes,
	}
}

// BoltStore implements [Store] over a single flat go.etcd.io/bbolt bucket,
// keeping the on-disk key space exactly what the Key Codec produces rather
// than spreading keys across nested bbolt buckets.
type BoltStore struct {
	db     *bbolt.DB
	bucket []byte
	policy Policy
	logger *slog.Logger
}

// rootBucket is the single bucket every key lives in.
var rootBucket = []byte("kv")

// Open opens or creates a bbolt database at path and ensures the root
// bucket exists.
func Open(path string, policy Policy, logger *slog.Logger) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, newKvError(KvFailure, "open bbolt database", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, newKvError(KvFailure, "create root bucket", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &BoltStore{db: db, bucket: rootBucket, policy: policy, logger: logger}, nil
}

func (s *BoltStore) Close() error {
	if err := s.db.Close(); err != nil {
		return newKvError(KvFailure, "close bbolt database", err)
	}
	return nil
}

func (s *BoltStore) View(ctx context.Context, fn func(Tx) error) error {
	return s.run(ctx, false, fn)
}

func (s *BoltStore) Snapshot(ctx context.Context) (Tx, func() error, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	btx, err := s.db.Begin(false)
	if err != nil {
		return nil, nil, newKvError(KvFailure, "begin snapshot", err)
	}

	bucket := btx.Bucket(s.bucket)
	if bucket == nil {
		_ = btx.Rollback()
		return nil, nil, newKvError(KvFailure, "root bucket missing", bbolt.ErrBucketNotFound)
	}

	tx := &boltTx{tx: btx, bucket: bucket, write: false, policy: s.policy, txBudget: s.policy.MaxTxBytes}

	release := func() error {
		if err := btx.Rollback(); err != nil {
			return newKvError(KvFailure, "release snapshot", err)
		}
		return nil
	}

	return tx, release, nil
}

func (s *BoltStore) Update(ctx context.Context, fn func(Tx) error) error {
	return s.run(ctx, true, fn)
}

func (s *BoltStore) run(ctx context.Context, write bool, fn func(Tx) error) error {
	attempts := s.policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		correlationID := uuid.New()

		deadline := time.Now().Add(s.policy.TxTimeout)
		attemptCtx, cancel := context.WithDeadline(ctx, deadline)

		err := s.attempt(attemptCtx, write, fn)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return newKvError(TransactionTooLong, "transaction exceeded caller deadline", err)
		}
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return newKvError(TransactionTooLong, "transaction exceeded wall-clock budget", err)
		}

		if !retryable(err) {
			return err
		}

		s.logger.Warn("kv: retrying transaction",
			slog.String("correlation_id", correlationID.String()),
			slog.Int("attempt", attempt),
			slog.Any("error", err))
	}

	return newKvError(MaxRetriesExceeded, fmt.Sprintf("exhausted %d attempts", attempts), lastErr)
}

func (s *BoltStore) attempt(ctx context.Context, write bool, fn func(Tx) error) error {
	run := s.db.View
	if write {
		run = s.db.Update
	}

	return run(func(btx *bbolt.Tx) error {
		bucket := btx.Bucket(s.bucket)
		if bucket == nil {
			return newKvError(KvFailure, "root bucket missing", bbolt.ErrBucketNotFound)
		}

		tx := &boltTx{
			tx:       btx,
			bucket:   bucket,
			write:    write,
			policy:   s.policy,
			txBudget: s.policy.MaxTxBytes,
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := fn(tx); err != nil {
			return err
		}
		// An attempt that overran its deadline returns the context error so
		// bbolt rolls it back instead of committing it.
		return ctx.Err()
	})
}

// retryable reports whether err represents a transient condition worth
// retrying. bbolt serializes writers itself, so in practice only
// ErrTimeout (lock wait exceeded) and ErrDatabaseNotOpen ever qualify.
func retryable(err error) bool {
	return errors.Is(err, bbolt.ErrTimeout) || errors.Is(err, bbolt.ErrDatabaseNotOpen)
}

type boltTx struct {
	tx       *bbolt.Tx
	bucket   *bbolt.Bucket
	write    bool
	policy   Policy
	txBudget int
}

func (t *boltTx) Get(key []byte) ([]byte, error) {
	v := t.bucket.Get(key)
	if v == nil {
		return nil, nil
	}
	// bbolt's Get returns a slice valid only until the end of the
	// transaction; copy it so callers may retain it afterwards.
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (t *boltTx) Set(key, value []byte) error {
	if err := t.checkPayload(key, value); err != nil {
		return err
	}
	if err := t.bucket.Put(key, value); err != nil {
		return newKvError(KvFailure, "put", err)
	}
	return nil
}

func (t *boltTx) Clear(key []byte) error {
	if err := t.bucket.Delete(key); err != nil {
		return newKvError(KvFailure, "delete", err)
	}
	return nil
}

func (t *boltTx) AtomicAdd(key []byte, delta int64) error {
	current := t.bucket.Get(key)

	var value int64
	if current != nil {
		if len(current) != 8 {
			return newKvError(InternalError, "atomic add target is not an 8-byte counter", nil)
		}
		value = int64(binary.LittleEndian.Uint64(current))
	}

	value += delta

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(value))

	if err := t.checkPayload(key, buf); err != nil {
		return err
	}
	if err := t.bucket.Put(key, buf); err != nil {
		return newKvError(KvFailure, "atomic add", err)
	}
	return nil
}

func (t *boltTx) checkPayload(key, value []byte) error {
	if t.policy.MaxKeyBytes > 0 && len(key) > t.policy.MaxKeyBytes {
		return newKvError(TransactionTooLarge, "key exceeds payload ceiling", nil)
	}
	if t.policy.MaxValueBytes > 0 && len(value) > t.policy.MaxValueBytes {
		return newKvError(TransactionTooLarge, "value exceeds payload ceiling", nil)
	}
	if t.policy.MaxTxBytes > 0 {
		t.txBudget -= len(key) + len(value)
		if t.txBudget < 0 {
			return newKvError(TransactionTooLarge, "transaction exceeds payload ceiling", nil)
		}
	}
	return nil
}

func (t *boltTx) Range(begin, end []byte) func(yield func(Pair, error) bool) {
	return func(yield func(Pair, error) bool) {
		c := t.bucket.Cursor()

		for k, v := c.Seek(begin); k != nil && bytes.Compare(k, end) < 0; k, v = c.Next() {
			key := make([]byte, len(k))
			copy(key, k)
			value := make([]byte, len(v))
			copy(value, v)

			if !yield(Pair{Key: key, Value: value}, nil) {
				return
			}
		}
	}
}
