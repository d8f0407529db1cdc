package enrich

import (
	"context"

	"github.com/poiesic/recall/core"
)

// Stage is one pure transformation step of the pipeline.
type Stage interface {
	// Name identifies the stage in logs and failure outcomes.
	Name() string

	// Apply derives a new batch from batch. An empty batch yields an empty
	// batch. Failures wrap core.ErrStageCompute unless the context ended.
	Apply(ctx context.Context, batch core.Batch) (core.Batch, error)
}
