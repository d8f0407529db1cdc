package ai

import "context"

// Classifier assigns a label to a piece of text.
// Implementations must be thread-safe for concurrent use.
type Classifier interface {
	// Classify returns the label for text. meta carries the other fields of
	// the record the text came from and may be used as context. For the
	// same inputs the label must be the same.
	// Returns an error if classification could not be performed.
	Classify(ctx context.Context, text string, meta map[string]any) (string, error)
}

// Provider aggregates AI services for convenient initialization and lifecycle management.
type Provider interface {
	// Classifier returns the text classification service.
	// The returned Classifier is safe for concurrent use.
	Classifier() Classifier

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
