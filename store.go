package triples

import (
	"context"
	"log/slog"
	"os"

	"github.com/cormorant-db/triples/kv"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchChunkSize is the default chunk size for InsertBatch: small
// enough that a chunk of this many triples, each touching at most three
// dictionary entries and four index entries, comfortably respects the KV
// store's per-transaction payload ceiling.
const DefaultBatchChunkSize = 1000

// DefaultBatchConcurrency bounds how many chunks of an InsertBatch call are
// committed concurrently.
const DefaultBatchConcurrency = 4

// DefaultCacheSize is an unbounded cache, the default when no eviction
// policy is specified.
const DefaultCacheSize = 0

// Option configures a Store at Open time.
type Option func(*options)

type options struct {
	policy           kv.Policy
	logger           *slog.Logger
	cacheMaxEntries  int
	batchChunkSize   int
	batchConcurrency int
}

func defaultOptions() options {
	return options{
		policy:           kv.DefaultPolicy(),
		logger:           slog.New(slog.NewTextHandler(os.Stdout, nil)),
		cacheMaxEntries:  DefaultCacheSize,
		batchChunkSize:   DefaultBatchChunkSize,
		batchConcurrency: DefaultBatchConcurrency,
	}
}

// WithLogger overrides the *slog.Logger used for transaction diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRetryPolicy overrides the retry attempt count, transaction deadline,
// and payload ceilings.
func WithRetryPolicy(p kv.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithCacheSize bounds the in-memory URI<->ID cache to n entries under an
// LRU policy. n <= 0 leaves the cache unbounded.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cacheMaxEntries = n }
}

// WithBatchChunkSize overrides how many triples InsertBatch commits per
// transaction.
func WithBatchChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchChunkSize = n
		}
	}
}

// WithBatchConcurrency overrides how many chunks InsertBatch commits
// concurrently.
func WithBatchConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchConcurrency = n
		}
	}
}

// Store is a concurrency-safe facade over the KV store, the key codec, and
// the in-memory dictionary cache. Every public method opens exactly one
// retryable transaction (mutations) or one snapshot (reads), except
// InsertBatch, which opens one retryable transaction per chunk.
type Store struct {
	kv     kv.Store
	codec  *codec
	cache  *cache
	logger *slog.Logger

	batchChunkSize   int
	batchConcurrency int
}

// Open opens (creating if necessary) a triple store backed by a bbolt
// database at path, isolated within the KV namespace by rootPrefix.
func Open(path, rootPrefix string, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	backing, err := kv.Open(path, o.policy, o.logger)
	if err != nil {
		return nil, wrapKvError(err)
	}

	o.logger.Info("triples: store opened", slog.String("path", path), slog.String("root", rootPrefix))

	return &Store{
		kv:               backing,
		codec:            newCodec(rootPrefix),
		cache:            newCache(o.cacheMaxEntries),
		logger:           o.logger,
		batchChunkSize:   o.batchChunkSize,
		batchConcurrency: o.batchConcurrency,
	}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	s.logger.Info("triples: store closed")
	return s.kv.Close()
}

// Insert adds triple to the store. It is idempotent: inserting a triple
// that is already present is a no-op and does not change Count.
func (s *Store) Insert(ctx context.Context, t Triple) error {
	if err := validateTriple(t); err != nil {
		return err
	}

	scratch, err := s.withWriteTx(ctx, func(tx kv.Tx, scratch map[string]int64) error {
		sID, pID, oID, err := s.internTriple(tx, scratch, t)
		if err != nil {
			return err
		}
		return (&indexSet{codec: s.codec}).insert(tx, sID, pID, oID)
	})
	if err != nil {
		return wrapKvError(err)
	}

	s.commitScratch(scratch)
	return nil
}

// InsertBatch adds triples to the store, splitting the input into chunks
// of at most the configured batch size (default [DefaultBatchChunkSize]),
// each committed in its own retryable transaction. Chunks are committed
// with bounded concurrency. Duplicates within and across chunks are
// no-ops.
func (s *Store) InsertBatch(ctx context.Context, ts []Triple) error {
	for _, t := range ts {
		if err := validateTriple(t); err != nil {
			return err
		}
	}

	chunks := chunkTriples(ts, s.batchChunkSize)

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(s.batchConcurrency)

	for _, chunk := range chunks {
		chunk := chunk
		group.Go(func() error {
			scratch, err := s.withWriteTx(gctx, func(tx kv.Tx, scratch map[string]int64) error {
				idx := &indexSet{codec: s.codec}
				for _, t := range chunk {
					sID, pID, oID, err := s.internTriple(tx, scratch, t)
					if err != nil {
						return err
					}
					if err := idx.insert(tx, sID, pID, oID); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return wrapKvError(err)
			}
			s.commitScratch(scratch)
			return nil
		})
	}

	return group.Wait()
}

// Delete removes triple from the store. It is idempotent: deleting a
// triple that is not present is a no-op and does not change Count.
func (s *Store) Delete(ctx context.Context, t Triple) error {
	if err := validateTriple(t); err != nil {
		return err
	}

	scratch, err := s.withWriteTx(ctx, func(tx kv.Tx, scratch map[string]int64) error {
		dict := &dictionary{codec: s.codec, cache: s.cache}

		sID, sOK, err := dict.lookupID(tx, t.Subject)
		if err != nil {
			return err
		}
		pID, pOK, err := dict.lookupID(tx, t.Predicate)
		if err != nil {
			return err
		}
		oID, oOK, err := dict.lookupID(tx, t.Object)
		if err != nil {
			return err
		}
		if !sOK || !pOK || !oOK {
			// Never interned, so it cannot be present; idempotent no-op.
			return nil
		}

		return (&indexSet{codec: s.codec}).delete(tx, sID, pID, oID)
	})
	if err != nil {
		return wrapKvError(err)
	}

	s.commitScratch(scratch)
	return nil
}

// Contains reports whether triple is currently in the store, via a direct
// SPO point read rather than routing through Query.
func (s *Store) Contains(ctx context.Context, t Triple) (bool, error) {
	if err := validateTriple(t); err != nil {
		return false, err
	}

	var found bool
	err := s.kv.View(ctx, func(tx kv.Tx) error {
		dict := &dictionary{codec: s.codec, cache: s.cache}

		sID, sOK, err := dict.lookupID(tx, t.Subject)
		if err != nil {
			return err
		}
		pID, pOK, err := dict.lookupID(tx, t.Predicate)
		if err != nil {
			return err
		}
		oID, oOK, err := dict.lookupID(tx, t.Object)
		if err != nil {
			return err
		}
		if !sOK || !pOK || !oOK {
			return nil
		}

		found, err = (&indexSet{codec: s.codec}).contains(tx, sID, pID, oID)
		return err
	})
	if err != nil {
		return false, wrapKvError(err)
	}
	return found, nil
}

// Count returns the number of distinct triples currently in the store.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.kv.View(ctx, func(tx kv.Tx) error {
		v, err := tx.Get(s.codec.tripleCountKey())
		if err != nil {
			return err
		}
		if v != nil {
			n = decodeID(v)
		}
		return nil
	})
	if err != nil {
		return 0, wrapKvError(err)
	}
	return n, nil
}

// Query streams every triple matching pattern. The returned sequence opens
// one snapshot read; ranging over part of it and stopping early (or never
// starting) still releases that snapshot cleanly.
func (s *Store) Query(ctx context.Context, pattern Pattern) func(yield func(Triple, error) bool) {
	return func(yield func(Triple, error) bool) {
		tx, release, err := s.kv.Snapshot(ctx)
		if err != nil {
			yield(Triple{}, wrapKvError(err))
			return
		}
		defer release()

		qe := &queryEngine{codec: s.codec, cache: s.cache}
		for t, qerr := range qe.run(ctx, tx, pattern) {
			if qerr != nil {
				if !yield(Triple{}, wrapKvError(qerr)) {
					return
				}
				continue
			}
			if !yield(t, nil) {
				return
			}
		}
	}
}

// Stats is a read-only diagnostic snapshot.
type Stats struct {
	TripleCount int64
	URICount    int64
}

// Stats reports the triple count and the number of distinct interned
// URIs.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.kv.View(ctx, func(tx kv.Tx) error {
		count, err := tx.Get(s.codec.tripleCountKey())
		if err != nil {
			return err
		}
		if count != nil {
			st.TripleCount = decodeID(count)
		}

		uriCount, err := tx.Get(s.codec.counterKey())
		if err != nil {
			return err
		}
		if uriCount != nil {
			st.URICount = decodeID(uriCount)
		}
		return nil
	})
	if err != nil {
		return Stats{}, wrapKvError(err)
	}
	return st, nil
}

// withWriteTx runs fn inside a retried read-write transaction, handing it
// a fresh per-attempt scratch map each time (so a retry re-reads rather
// than trusting a stale allocation). It returns the scratch map from
// whichever attempt ultimately committed, for the caller to fold into the
// long-lived cache.
func (s *Store) withWriteTx(ctx context.Context, fn func(tx kv.Tx, scratch map[string]int64) error) (map[string]int64, error) {
	var scratch map[string]int64

	err := s.kv.Update(ctx, func(tx kv.Tx) error {
		scratch = make(map[string]int64, 4)
		return fn(tx, scratch)
	})

	return scratch, err
}

// commitScratch folds a successful transaction's newly-resolved URI<->ID
// pairs into the long-lived cache, now that they are durable.
func (s *Store) commitScratch(scratch map[string]int64) {
	for uri, id := range scratch {
		s.cache.put(uri, id)
	}
}

func (s *Store) internTriple(tx kv.Tx, scratch map[string]int64, t Triple) (sID, pID, oID int64, err error) {
	dict := &dictionary{codec: s.codec, cache: s.cache}

	sID, err = dict.intern(tx, scratch, t.Subject)
	if err != nil {
		return 0, 0, 0, err
	}
	pID, err = dict.intern(tx, scratch, t.Predicate)
	if err != nil {
		return 0, 0, 0, err
	}
	oID, err = dict.intern(tx, scratch, t.Object)
	if err != nil {
		return 0, 0, 0, err
	}
	return sID, pID, oID, nil
}

func chunkTriples(ts []Triple, size int) [][]Triple {
	if size <= 0 {
		size = DefaultBatchChunkSize
	}
	if len(ts) == 0 {
		return nil
	}

	chunks := make([][]Triple, 0, (len(ts)+size-1)/size)
	for len(ts) > 0 {
		n := size
		if n > len(ts) {
			n = len(ts)
		}
		chunks = append(chunks, ts[:n])
		ts = ts[n:]
	}
	return chunks
}
