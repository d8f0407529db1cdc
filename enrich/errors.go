package enrich

import "errors"

var (
	// ErrClassifierRequired is returned when a classifier is not provided.
	ErrClassifierRequired = errors.New("classifier required")

	// ErrScorerRequired is returned when a scorer is not provided.
	ErrScorerRequired = errors.New("scorer required")

	// ErrRunnerRequired is returned when a runner is not provided.
	ErrRunnerRequired = errors.New("runner required")

	// ErrEmptyLabel is returned when a classifier produces an empty label.
	ErrEmptyLabel = errors.New("classifier returned an empty label")

	// ErrUnexpectedField is returned when a field holds a value of the wrong kind.
	ErrUnexpectedField = errors.New("unexpected field value")
)
