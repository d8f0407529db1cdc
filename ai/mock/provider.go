package mock

import "github.com/poiesic/recall/ai"

// MockProvider is a test double for ai.Provider.
type MockProvider struct {
	classifier *MockClassifier
	closed     bool
}

var _ ai.Provider = (*MockProvider)(nil)

// NewMockProvider creates a provider backed by a MockClassifier.
func NewMockProvider() ai.Provider {
	return &MockProvider{classifier: NewMockClassifier()}
}

// Classifier returns the mock classifier.
func (p *MockProvider) Classifier() ai.Classifier {
	return p.classifier
}

// GetMockClassifier returns the concrete mock for assertions.
func (p *MockProvider) GetMockClassifier() *MockClassifier {
	return p.classifier
}

// IsClosed reports whether Close was called.
func (p *MockProvider) IsClosed() bool {
	return p.closed
}

// Close marks the provider closed.
func (p *MockProvider) Close() error {
	p.closed = true
	return nil
}
