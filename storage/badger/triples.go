package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/recall/graph"
	"github.com/poiesic/recall/storage"
)

// TripleStore implements storage.TripleStore for BadgerDB.
//
// Every Write stages its triples under a fresh generation, in as many
// Badger transactions as the batch needs, and then makes them visible by
// committing a single generation marker. Readers only see generations with
// a marker, and per subject only the newest one, so a batch becomes visible
// all at once whatever its size.
type TripleStore struct {
	backend     *Backend
	genSeq      *badger.Sequence
	ownsBackend bool
	now         func() time.Time
}

var _ storage.TripleStore = (*TripleStore)(nil)

// StoreOption configures a TripleStore.
type StoreOption func(*TripleStore)

// WithOwnedBackend makes Close also close the backend.
func WithOwnedBackend() StoreOption {
	return func(s *TripleStore) {
		s.ownsBackend = true
	}
}

// WithClock overrides the time source used for acknowledgements.
func WithClock(now func() time.Time) StoreOption {
	return func(s *TripleStore) {
		s.now = now
	}
}

// NewTripleStore creates a triple store on top of backend.
func NewTripleStore(backend *Backend, opts ...StoreOption) (storage.TripleStore, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	genSeq, err := backend.GetSequence(generationSeq)
	if err != nil {
		return nil, err
	}
	s := &TripleStore{
		backend: backend,
		genSeq:  genSeq,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the generation sequence, closing the backend when it is owned.
func (s *TripleStore) Close() error {
	var err error
	if !s.backend.IsClosed() {
		err = s.genSeq.Release()
	}
	if s.ownsBackend {
		return errors.Join(err, s.backend.Close())
	}
	return err
}

// Write replaces the stored triples of every subject in triples.
func (s *TripleStore) Write(ctx context.Context, triples []graph.Triple) (storage.Ack, error) {
	if err := ctx.Err(); err != nil {
		return storage.Ack{}, err
	}
	if err := storage.CheckTriples(triples); err != nil {
		return storage.Ack{}, err
	}
	if s.backend.IsClosed() {
		return storage.Ack{}, storage.ErrStorageClosed
	}

	set := graph.Normalize(slices.Clone(triples))
	subjects := graph.Subjects(set)
	if len(set) == 0 {
		return storage.Ack{WrittenAt: s.now()}, nil
	}

	gen, err := s.nextGeneration()
	if err != nil {
		return storage.Ack{}, fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
	}
	if err := s.stage(ctx, set, gen); err != nil {
		s.discard(set, gen)
		return storage.Ack{}, err
	}
	err = s.backend.WithTransaction(ctx, func(ctx context.Context, tx *badger.Txn) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return tx.Set(makeGenerationKey(gen), nil)
	})
	if err != nil {
		s.discard(set, gen)
		return storage.Ack{}, err
	}
	s.prune(subjects, gen)

	s.backend.logger.Debug("triples written", "triples", len(set), "subjects", len(subjects), "generation", gen)
	return storage.Ack{
		Triples:   len(set),
		Subjects:  len(subjects),
		WrittenAt: s.now(),
	}, nil
}

// Triples returns every stored triple in sorted order.
func (s *TripleStore) Triples(ctx context.Context) ([]graph.Triple, error) {
	return s.scan(ctx, []byte(triplePrefix))
}

// Subject returns the triples stored for subject.
func (s *TripleStore) Subject(ctx context.Context, subject string) ([]graph.Triple, error) {
	return s.scan(ctx, makeSubjectPrefix(subject))
}

// Count returns the number of stored triples.
func (s *TripleStore) Count(ctx context.Context) (int, error) {
	count := 0
	err := s.visible(ctx, []byte(triplePrefix), false, func([]byte) error {
		count++
		return nil
	})
	return count, err
}

func (s *TripleStore) scan(ctx context.Context, prefix []byte) ([]graph.Triple, error) {
	var triples []graph.Triple
	err := s.visible(ctx, prefix, true, func(val []byte) error {
		t, err := storage.UnmarshalTriple(val)
		if err != nil {
			return err
		}
		triples = append(triples, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return graph.Normalize(triples), nil
}

// visible calls fn with the value of every triple under prefix that belongs
// to the newest committed generation of its subject. Values are nil unless
// values is set. All reads share one snapshot.
func (s *TripleStore) visible(ctx context.Context, prefix []byte, values bool, fn func(val []byte) error) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		committed, err := committedGenerations(tx)
		if err != nil {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = values
		iter := tx.NewIterator(opts)
		defer iter.Close()

		// Keys sort by subject then generation, so the newest committed
		// generation of a subject is the last one seen before the subject changes.
		var (
			subject string
			best    uint64
			pending [][]byte
		)
		flush := func() error {
			for _, val := range pending {
				if err := fn(val); err != nil {
					return err
				}
			}
			pending = pending[:0]
			return nil
		}
		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := iter.Item()
			subj, gen, ok := parseTripleKey(item.Key())
			if !ok || !committed[gen] {
				continue
			}
			if subj != subject {
				if err := flush(); err != nil {
					return err
				}
				subject = subj
			}
			if gen != best {
				pending = pending[:0]
				best = gen
			}
			var val []byte
			if values {
				if val, err = item.ValueCopy(nil); err != nil {
					return fmt.Errorf("key %q: %w", item.Key(), err)
				}
			}
			pending = append(pending, val)
		}
		return flush()
	}, false)
}

// committedGenerations returns the generations whose marker is stored.
func committedGenerations(tx *badger.Txn) (map[uint64]bool, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(generationPrefix)
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)
	defer iter.Close()

	committed := make(map[uint64]bool)
	for iter.Rewind(); iter.Valid(); iter.Next() {
		key := iter.Item().Key()
		if len(key) != len(generationPrefix)+generationSize {
			continue
		}
		committed[binary.BigEndian.Uint64(key[len(generationPrefix):])] = true
	}
	return committed, nil
}

// nextGeneration allocates a generation number. Sequences start at zero,
// which is skipped so every real generation is positive.
func (s *TripleStore) nextGeneration() (uint64, error) {
	gen, err := s.genSeq.Next()
	if err != nil {
		return 0, err
	}
	if gen == 0 {
		return s.genSeq.Next()
	}
	return gen, nil
}

// stage writes triples under gen. A write batch splits the work across as
// many transactions as it needs; nothing staged is visible until the
// generation marker is committed.
func (s *TripleStore) stage(ctx context.Context, triples []graph.Triple, gen uint64) error {
	wb := s.backend.db.NewWriteBatch()
	defer wb.Cancel()

	for _, t := range triples {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := wb.Set(makeTripleKey(t, gen), storage.MarshalTriple(t)); err != nil {
			return fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
	}
	return nil
}

// discard removes the staged triples of a generation that never committed.
// Failures only leave invisible keys behind, so they are logged.
func (s *TripleStore) discard(triples []graph.Triple, gen uint64) {
	keys := make([][]byte, 0, len(triples))
	for _, t := range triples {
		keys = append(keys, makeTripleKey(t, gen))
	}
	if err := s.deleteKeys(keys); err != nil {
		s.backend.logger.Warn("discarding staged triples failed", "generation", gen, "err", err)
	}
}

// prune deletes the triples of subjects written by generations older than gen.
// They are already hidden by gen, so failures are logged.
func (s *TripleStore) prune(subjects []string, gen uint64) {
	var keys [][]byte
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		for _, subject := range subjects {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = makeSubjectPrefix(subject)
			opts.PrefetchValues = false
			iter := tx.NewIterator(opts)
			for iter.Rewind(); iter.Valid(); iter.Next() {
				if _, g, ok := parseTripleKey(iter.Item().Key()); ok && g < gen {
					keys = append(keys, iter.Item().KeyCopy(nil))
				}
			}
			iter.Close()
		}
		return nil
	}, false)
	if err == nil {
		err = s.deleteKeys(keys)
	}
	if err != nil {
		s.backend.logger.Warn("pruning replaced triples failed", "generation", gen, "err", err)
	}
}

func (s *TripleStore) deleteKeys(keys [][]byte) error {
	if len(keys) == 0 {
		return nil
	}
	wb := s.backend.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return err
		}
	}
	return wb.Flush()
}
