package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/recall/graph"
)

// Ack acknowledges a committed write.
type Ack struct {
	// Triples is the number of distinct triples stored.
	Triples int
	// Subjects is the number of distinct subjects the write replaced.
	Subjects int
	// WrittenAt is the commit time.
	WrittenAt time.Time
}

// TripleSink accepts batches of triples from the pipeline.
// Implementations must be thread-safe.
type TripleSink interface {
	// Write stores triples atomically, replacing any triples previously
	// stored for the same subjects. An empty batch is a no-op that still
	// returns an Ack.
	Write(ctx context.Context, triples []graph.Triple) (Ack, error)

	// Close releases resources held by the sink.
	Close() error
}

// TripleStore is a sink that can also be read back.
type TripleStore interface {
	TripleSink

	// Triples returns every stored triple in sorted order.
	Triples(ctx context.Context) ([]graph.Triple, error)

	// Subject returns the triples stored for one subject, sorted.
	Subject(ctx context.Context, subject string) ([]graph.Triple, error)

	// Count returns the number of stored triples.
	Count(ctx context.Context) (int, error)
}

// CheckTriples rejects triples that cannot be stored.
func CheckTriples(triples []graph.Triple) error {
	for i, t := range triples {
		if t.Subject == "" || t.Predicate == "" {
			return fmt.Errorf("%w: triple %d has empty subject or predicate", ErrInvalidTriple, i)
		}
	}
	return nil
}
