package enrich

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"

	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/core"
)

// StageScore is the name of the scoring stage.
const StageScore = "score"

// Score bounds.
const (
	MinPriority = 0.0
	MaxPriority = 5.0
)

// Scorer computes the numeric analysis fields of a record.
// Implementations must be pure and safe for concurrent use.
type Scorer interface {
	Score(record core.Record) (velocity, priority float64, err error)
}

// HeuristicScorer derives inventory velocity and priority from stock status
// and classification label.
//
// Velocity is drawn from [1, 5) for in-stock DetailedSpec records and from
// [0, 1.5) otherwise. The draw is seeded from the record's id and text, so
// the same record always scores the same.
//
// Priority starts at 4 for DetailedSpec and 2 for ProductReview, gains 1 for
// an in-stock ProductReview or an out-of-stock DetailedSpec, and is clamped
// to [0, 5].
type HeuristicScorer struct{}

var _ Scorer = HeuristicScorer{}

// Score implements Scorer. Missing fields read as false or empty.
func (HeuristicScorer) Score(record core.Record) (float64, float64, error) {
	label := ""
	if v, ok := record[core.FieldClassification]; ok {
		s, isString := v.(string)
		if !isString {
			return 0, 0, fmt.Errorf("%w: %s is %T", ErrUnexpectedField, core.FieldClassification, v)
		}
		label = s
	}
	inStock := record.Bool(core.FieldInStock)

	u := unitDraw(record)
	var velocity float64
	if inStock && label == ai.LabelDetailedSpec {
		velocity = u*4.0 + 1.0
	} else {
		velocity = u * 1.5
	}

	priority := 0.0
	switch label {
	case ai.LabelDetailedSpec:
		priority += 4
		if !inStock {
			priority++
		}
	case ai.LabelProductReview:
		priority += 2
		if inStock {
			priority++
		}
	}
	return velocity, clamp(priority, MinPriority, MaxPriority), nil
}

// unitDraw returns a value in [0, 1) that depends only on the record's id
// and text.
func unitDraw(record core.Record) float64 {
	h := fnv.New64a()
	h.Write([]byte(record.ID()))
	h.Write([]byte{0})
	h.Write([]byte(record.Text()))
	seed := h.Sum64()

	// One LCG step to spread nearby hashes
	seed = seed*6364136223846793005 + 1442695040888963407
	return float64(seed>>11) / (1 << 53)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

// ScoringStage adds inventory_velocity and priority_score to every record.
type ScoringStage struct {
	scorer Scorer
	runner *Runner
	logger *slog.Logger
}

var _ Stage = (*ScoringStage)(nil)

// NewScoringStage creates the scoring stage.
func NewScoringStage(scorer Scorer, runner *Runner, logger *slog.Logger) (*ScoringStage, error) {
	if scorer == nil {
		return nil, ErrScorerRequired
	}
	if runner == nil {
		return nil, ErrRunnerRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ScoringStage{
		scorer: scorer,
		runner: runner,
		logger: logger.With("component", "score-stage"),
	}, nil
}

// Name implements Stage.
func (s *ScoringStage) Name() string {
	return StageScore
}

// Apply scores every record of batch.
func (s *ScoringStage) Apply(ctx context.Context, batch core.Batch) (core.Batch, error) {
	if batch.IsEmpty() {
		s.logger.Debug("no records to score", "source", batch.Source)
		return batch.WithRecords([]core.Record{}), nil
	}

	records, err := s.runner.Map(ctx, batch.Records, func(ctx context.Context, record core.Record) (core.Record, error) {
		velocity, priority, err := s.scorer.Score(record)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", record.ID(), err)
		}
		if math.IsNaN(velocity) || math.IsNaN(priority) {
			return nil, fmt.Errorf("record %s: %w: score is NaN", record.ID(), ErrUnexpectedField)
		}
		return record.
			With(core.FieldInventoryVelocity, velocity).
			With(core.FieldPriorityScore, clamp(priority, MinPriority, MaxPriority)), nil
	})
	if err != nil {
		return core.Batch{}, stageError(ctx, err)
	}

	s.logger.Debug("scoring complete", "source", batch.Source, "records", len(records))
	return batch.WithRecords(records), nil
}
