package kv

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"hawx.me/code/assert"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	store, err := Open(path, DefaultPolicy(), nil)
	assert.Equal(t, nil, err)

	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestSetGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.Update(ctx, func(tx Tx) error {
		return tx.Set([]byte("key"), []byte("value"))
	})
	assert.Equal(t, nil, err)

	err = store.View(ctx, func(tx Tx) error {
		v, err := tx.Get([]byte("key"))
		assert.Equal(t, nil, err)
		assert.Equal(t, "value", string(v))
		return nil
	})
	assert.Equal(t, nil, err)
}

func TestGetMissingIsNil(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.View(ctx, func(tx Tx) error {
		v, err := tx.Get([]byte("missing"))
		assert.Equal(t, nil, err)
		assert.Equal(t, true, v == nil)
		return nil
	})
	assert.Equal(t, nil, err)
}

func TestClear(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_ = store.Update(ctx, func(tx Tx) error {
		return tx.Set([]byte("key"), []byte("value"))
	})

	err := store.Update(ctx, func(tx Tx) error {
		return tx.Clear([]byte("key"))
	})
	assert.Equal(t, nil, err)

	_ = store.View(ctx, func(tx Tx) error {
		v, _ := tx.Get([]byte("key"))
		assert.Equal(t, true, v == nil)
		return nil
	})
}

func TestAtomicAddFromMissing(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.Update(ctx, func(tx Tx) error {
		if err := tx.AtomicAdd([]byte("counter"), 5); err != nil {
			return err
		}
		return tx.AtomicAdd([]byte("counter"), 3)
	})
	assert.Equal(t, nil, err)

	_ = store.View(ctx, func(tx Tx) error {
		v, err := tx.Get([]byte("counter"))
		assert.Equal(t, nil, err)
		assert.Equal(t, 8, int(leUint64(v)))
		return nil
	})
}

func TestRangeScansAscending(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	keys := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	_ = store.Update(ctx, func(tx Tx) error {
		for _, k := range keys {
			if err := tx.Set(k, k); err != nil {
				return err
			}
		}
		return nil
	})

	var seen []string
	_ = store.View(ctx, func(tx Tx) error {
		for pair, err := range tx.Range([]byte("a"), []byte("c")) {
			assert.Equal(t, nil, err)
			seen = append(seen, string(pair.Key))
		}
		return nil
	})

	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestRangeStopsEarly(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_ = store.Update(ctx, func(tx Tx) error {
		for _, k := range []string{"a", "b", "c"} {
			if err := tx.Set([]byte(k), []byte(k)); err != nil {
				return err
			}
		}
		return nil
	})

	var seen int
	_ = store.View(ctx, func(tx Tx) error {
		for range tx.Range([]byte("a"), []byte("z")) {
			seen++
			break
		}
		return nil
	})

	assert.Equal(t, 1, seen)
}

func TestPayloadCeilingOnValue(t *testing.T) {
	store := openTestStore(t)
	store.policy.MaxValueBytes = 4
	ctx := context.Background()

	err := store.Update(ctx, func(tx Tx) error {
		return tx.Set([]byte("key"), []byte("toolong"))
	})

	var kerr *Error
	assert.Equal(t, true, errors.As(err, &kerr))
	assert.Equal(t, TransactionTooLarge, kerr.Kind)
}

func TestSnapshotOutlivesClosure(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_ = store.Update(ctx, func(tx Tx) error {
		return tx.Set([]byte("key"), []byte("value"))
	})

	tx, release, err := store.Snapshot(ctx)
	assert.Equal(t, nil, err)
	defer release()

	v, err := tx.Get([]byte("key"))
	assert.Equal(t, nil, err)
	assert.Equal(t, "value", string(v))
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < len(b); i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
