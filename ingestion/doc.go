// Package ingestion provides the pipeline orchestrator that turns a source
// identifier into persisted graph triples.
//
// An Orchestrator run is a finite state machine:
//
//	Ingesting -> Classifying -> Scoring -> Persisting -> Succeeded
//
// Any state may move to Failed. Each state fully materializes its batch before
// the next begins. Ingesting retries only when the source is unreachable;
// Persisting retries sink failures. Format and empty-source failures are
// permanent and fail the run immediately.
//
// Runs share no mutable state, so one Orchestrator may serve concurrent runs.
// Progress is reported through an optional Observer.
package ingestion
