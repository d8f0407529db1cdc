package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/core"
)

// StageClassify is the name of the classification stage.
const StageClassify = "classify"

// ClassificationStage adds llm_classification to every record.
type ClassificationStage struct {
	classifier ai.Classifier
	runner     *Runner
	logger     *slog.Logger
}

var _ Stage = (*ClassificationStage)(nil)

// NewClassificationStage creates the classification stage.
func NewClassificationStage(classifier ai.Classifier, runner *Runner, logger *slog.Logger) (*ClassificationStage, error) {
	if classifier == nil {
		return nil, ErrClassifierRequired
	}
	if runner == nil {
		return nil, ErrRunnerRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ClassificationStage{
		classifier: classifier,
		runner:     runner,
		logger:     logger.With("component", "classify-stage"),
	}, nil
}

// Name implements Stage.
func (s *ClassificationStage) Name() string {
	return StageClassify
}

// Apply classifies raw_text of every record, passing the remaining fields as
// context. A record without text is classified as the empty string would be.
func (s *ClassificationStage) Apply(ctx context.Context, batch core.Batch) (core.Batch, error) {
	if batch.IsEmpty() {
		s.logger.Debug("no records to classify", "source", batch.Source)
		return batch.WithRecords([]core.Record{}), nil
	}

	records, err := s.runner.Map(ctx, batch.Records, s.classify)
	if err != nil {
		return core.Batch{}, stageError(ctx, err)
	}

	s.logger.Debug("classification complete", "source", batch.Source, "records", len(records))
	return batch.WithRecords(records), nil
}

func (s *ClassificationStage) classify(ctx context.Context, record core.Record) (core.Record, error) {
	meta := make(map[string]any, len(record))
	for k, v := range record {
		if k != core.FieldRawText {
			meta[k] = v
		}
	}

	label, err := s.classifier.Classify(ctx, record.Text(), meta)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", record.ID(), err)
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, fmt.Errorf("record %s: %w", record.ID(), ErrEmptyLabel)
	}
	return record.With(core.FieldClassification, label), nil
}

// stageError tags err as a compute failure unless the run's context ended.
func stageError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return err
	}
	return fmt.Errorf("%w: %w", core.ErrStageCompute, err)
}
