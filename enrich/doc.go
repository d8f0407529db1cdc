// Package enrich holds the enrichment stages of the pipeline: classification
// and scoring.
//
// A stage is a pure transform from one batch to a new batch. Records are
// never modified in place; each output record is derived with core.Record.With
// and keeps the id of its input. Work inside a stage is data-parallel over the
// records of the batch and runs on a shared ants worker pool (Runner). A stage
// either succeeds for the whole batch or fails with core.ErrStageCompute.
package enrich
