package triples

import (
	"context"

	"github.com/cormorant-db/triples/kv"
)

// Pattern is a (subject, predicate, object) query pattern. A nil field is
// unbound (a wildcard); a non-nil field must point at a non-empty URI.
type Pattern struct {
	Subject   *string
	Predicate *string
	Object    *string
}

// Bound wraps uri for use as a Pattern field.
func Bound(uri string) *string { return &uri }

// queryEngine selects the optimal covering index for a pattern, builds the
// scan range, and streams decoded, dictionary-resolved triples.
type queryEngine struct {
	codec *codec
	cache *cache
}

// plan is the kind of pattern this is, the index that covers it, and
// whether a post-filter on the decoded object is required (the one gap in
// the 4-index scheme: s bound, p unbound, o bound).
type plan struct {
	tag          indexTag
	prefix       []int64
	postFilterO  bool
	filterObject int64
}

// run streams every triple matching pattern into yield, in the lexicographic
// order of the chosen index's keys. Cancelling ctx stops the scan cleanly
// before the next key is read.
func (q *queryEngine) run(ctx context.Context, tx kv.Tx, pattern Pattern) func(yield func(Triple, error) bool) {
	return func(yield func(Triple, error) bool) {
		var sID, pID, oID int64
		var sBound, pBound, oBound bool

		if pattern.Subject != nil {
			id, ok, err := (&dictionary{codec: q.codec, cache: q.cache}).lookupID(tx, *pattern.Subject)
			if err != nil {
				yield(Triple{}, err)
				return
			}
			if !ok {
				return
			}
			sID, sBound = id, true
		}
		if pattern.Predicate != nil {
			id, ok, err := (&dictionary{codec: q.codec, cache: q.cache}).lookupID(tx, *pattern.Predicate)
			if err != nil {
				yield(Triple{}, err)
				return
			}
			if !ok {
				return
			}
			pID, pBound = id, true
		}
		if pattern.Object != nil {
			id, ok, err := (&dictionary{codec: q.codec, cache: q.cache}).lookupID(tx, *pattern.Object)
			if err != nil {
				yield(Triple{}, err)
				return
			}
			if !ok {
				return
			}
			oID, oBound = id, true
		}

		p := selectPlan(sID, pID, oID, sBound, pBound, oBound)

		begin, end := q.codec.indexRange(p.tag, p.prefix...)
		dict := &dictionary{codec: q.codec, cache: q.cache}

		for pair, rangeErr := range tx.Range(begin, end) {
			if rangeErr != nil {
				if !yield(Triple{}, rangeErr) {
					return
				}
				continue
			}

			select {
			case <-ctx.Done():
				yield(Triple{}, ctx.Err())
				return
			default:
			}

			s, pr, o, err := q.codec.decodeIndexKey(pair.Key, p.tag)
			if err != nil {
				if !yield(Triple{}, err) {
					return
				}
				continue
			}

			if p.postFilterO && o != p.filterObject {
				continue
			}

			triple, err := resolveTriple(tx, dict, s, pr, o)
			if err != nil {
				if !yield(Triple{}, err) {
					return
				}
				continue
			}

			if !yield(triple, nil) {
				return
			}
		}
	}
}

// selectPlan chooses the covering index and scan prefix for a pattern,
// falling back to a post-filtered SPO scan for the one combination (s
// bound, p unbound, o bound) the four-index scheme doesn't cover directly.
func selectPlan(s, p, o int64, sBound, pBound, oBound bool) plan {
	switch {
	case sBound && pBound && oBound:
		return plan{tag: tagSPO, prefix: []int64{s, p, o}}
	case sBound && pBound && !oBound:
		return plan{tag: tagSPO, prefix: []int64{s, p}}
	case sBound && !pBound && oBound:
		return plan{tag: tagSPO, prefix: []int64{s}, postFilterO: true, filterObject: o}
	case sBound && !pBound && !oBound:
		return plan{tag: tagSPO, prefix: []int64{s}}
	case !sBound && pBound && oBound:
		return plan{tag: tagPOS, prefix: []int64{p, o}}
	case !sBound && pBound && !oBound:
		return plan{tag: tagPSO, prefix: []int64{p}}
	case !sBound && !pBound && oBound:
		return plan{tag: tagOSP, prefix: []int64{o}}
	default:
		return plan{tag: tagSPO, prefix: nil}
	}
}

func resolveTriple(tx kv.Tx, dict *dictionary, sID, pID, oID int64) (Triple, error) {
	s, err := dict.lookupURI(tx, sID)
	if err != nil {
		return Triple{}, err
	}
	p, err := dict.lookupURI(tx, pID)
	if err != nil {
		return Triple{}, err
	}
	o, err := dict.lookupURI(tx, oID)
	if err != nil {
		return Triple{}, err
	}
	return Triple{Subject: s, Predicate: p, Object: o}, nil
}
