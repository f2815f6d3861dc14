package triples

import "github.com/cormorant-db/triples/kv"

// empty is the value stored at every index entry; indexes are pure key
// sets.
var empty = []byte{}

// indexSet writes and clears the four covering indexes (SPO, PSO, POS,
// OSP) in lockstep, and maintains the triple counter alongside them, all
// within one transaction so partial visibility is impossible.
type indexSet struct {
	codec *codec
}

// contains reports whether the triple (s, p, o) exists, via a single SPO
// point read.
func (ix *indexSet) contains(tx kv.Tx, s, p, o int64) (bool, error) {
	v, err := tx.Get(ix.codec.indexKey(tagSPO, s, p, o))
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

// insert adds (s, p, o) to all four indexes and increments the triple
// counter, unless the triple is already present, in which case it is a
// no-op.
func (ix *indexSet) insert(tx kv.Tx, s, p, o int64) error {
	exists, err := ix.contains(tx, s, p, o)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	for _, tag := range allIndexTags {
		if err := tx.Set(ix.codec.indexKey(tag, s, p, o), empty); err != nil {
			return err
		}
	}

	return tx.AtomicAdd(ix.codec.tripleCountKey(), 1)
}

// delete removes (s, p, o) from all four indexes and decrements the triple
// counter, unless the triple is already absent, in which case it is a
// no-op.
func (ix *indexSet) delete(tx kv.Tx, s, p, o int64) error {
	exists, err := ix.contains(tx, s, p, o)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	for _, tag := range allIndexTags {
		if err := tx.Clear(ix.codec.indexKey(tag, s, p, o)); err != nil {
			return err
		}
	}

	return tx.AtomicAdd(ix.codec.tripleCountKey(), -1)
}
