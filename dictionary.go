package triples

import (
	"encoding/binary"

	"github.com/cormorant-db/triples/kv"
)

// dictionary interns URIs to IDs and resolves IDs back to URIs, scoped to a
// single transaction. It consults the store's long-lived cache for reads,
// but never writes to it directly — callers populate the cache once their
// surrounding transaction has committed (see store.go), so a retried
// attempt's provisional allocations never leak into the long-lived cache.
type dictionary struct {
	codec *codec
	cache *cache
}

// intern returns the ID for uri, allocating one if this is the first time
// it has ever been seen. scratch is a per-attempt map that intern consults
// and populates so that interning the same URI twice within one
// transaction attempt (e.g. across a batch) costs one KV read at most.
func (d *dictionary) intern(tx kv.Tx, scratch map[string]int64, uri string) (int64, error) {
	if uri == "" {
		return 0, newError(InvalidURI, "uri must not be empty", nil)
	}

	if id, ok := d.cache.getID(uri); ok {
		scratch[uri] = id
		return id, nil
	}
	if id, ok := scratch[uri]; ok {
		return id, nil
	}

	u2i := d.codec.u2iKey(uri)
	existing, err := tx.Get(u2i)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		id := decodeID(existing)
		scratch[uri] = id
		return id, nil
	}

	id, err := d.allocateID(tx)
	if err != nil {
		return 0, err
	}

	if err := tx.Set(u2i, encodeID(id)); err != nil {
		return 0, err
	}
	if err := tx.Set(d.codec.i2uKey(id), []byte(uri)); err != nil {
		return 0, err
	}

	scratch[uri] = id
	return id, nil
}

// allocateID ensures the counter key exists, issues an atomic +1, and
// reads the post-increment value back within the same transaction. The KV
// store guarantees read-your-writes, so this observes the new value.
func (d *dictionary) allocateID(tx kv.Tx) (int64, error) {
	counterKey := d.codec.counterKey()

	existing, err := tx.Get(counterKey)
	if err != nil {
		return 0, err
	}
	if existing == nil {
		if err := tx.Set(counterKey, encodeID(0)); err != nil {
			return 0, err
		}
	}

	if err := tx.AtomicAdd(counterKey, 1); err != nil {
		return 0, err
	}

	updated, err := tx.Get(counterKey)
	if err != nil {
		return 0, err
	}
	if updated == nil {
		return 0, newError(InternalError, "counter read absent after atomic add", nil)
	}

	return decodeID(updated), nil
}

// lookupID returns the ID for uri if it has ever been interned.
func (d *dictionary) lookupID(tx kv.Tx, uri string) (int64, bool, error) {
	if uri == "" {
		return 0, false, newError(InvalidURI, "uri must not be empty", nil)
	}

	if id, ok := d.cache.getID(uri); ok {
		return id, true, nil
	}

	existing, err := tx.Get(d.codec.u2iKey(uri))
	if err != nil {
		return 0, false, err
	}
	if existing == nil {
		return 0, false, nil
	}

	return decodeID(existing), true, nil
}

// lookupURI resolves id back to its URI. A missing i2u entry for an ID
// seen in an index is a corrupted store.
func (d *dictionary) lookupURI(tx kv.Tx, id int64) (string, error) {
	if uri, ok := d.cache.getURI(id); ok {
		return uri, nil
	}

	value, err := tx.Get(d.codec.i2uKey(id))
	if err != nil {
		return "", err
	}
	if value == nil {
		return "", newError(DanglingID, "no uri found for id", nil)
	}

	return string(value), nil
}

func encodeID(id int64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(id))
	return buf
}

func decodeID(buf []byte) int64 {
	return int64(binary.LittleEndian.Uint64(buf))
}
