package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/poiesic/recall/ai"
)

// Length thresholds used by RuleClassifier, in characters.
const (
	LongReportThreshold   = 100
	DetailedSpecThreshold = 40
)

// RuleClassifier labels text by its length: longer than 100 characters is a
// LongReport, longer than 40 a DetailedSpec, anything else a ProductReview.
type RuleClassifier struct{}

var _ ai.Classifier = RuleClassifier{}

// NewRuleClassifier returns the length-rule classifier.
func NewRuleClassifier() ai.Classifier {
	return RuleClassifier{}
}

// Classify implements ai.Classifier.
func (RuleClassifier) Classify(ctx context.Context, text string, _ map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return classifyByLength(text), nil
}

func classifyByLength(text string) string {
	switch n := utf8.RuneCountInString(text); {
	case n > LongReportThreshold:
		return ai.LabelLongReport
	case n > DetailedSpecThreshold:
		return ai.LabelDetailedSpec
	default:
		return ai.LabelProductReview
	}
}

// MockClassifier is a test double for ai.Classifier.
// It is safe for concurrent use.
type MockClassifier struct {
	mu           sync.RWMutex
	classifyFunc func(ctx context.Context, text string, meta map[string]any) (string, error)
	callCount    atomic.Int64
	texts        []string
}

var _ ai.Classifier = (*MockClassifier)(nil)

// NewMockClassifier creates a mock classifier that behaves like RuleClassifier
// until a function is injected.
// Note: Returns concrete type to allow test assertions.
func NewMockClassifier() *MockClassifier {
	return &MockClassifier{}
}

// WithClassifyFunc injects custom behavior.
func (m *MockClassifier) WithClassifyFunc(fn func(ctx context.Context, text string, meta map[string]any) (string, error)) *MockClassifier {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classifyFunc = fn
	return m
}

// Classify implements ai.Classifier.
func (m *MockClassifier) Classify(ctx context.Context, text string, meta map[string]any) (string, error) {
	m.callCount.Add(1)

	m.mu.Lock()
	m.texts = append(m.texts, text)
	fn := m.classifyFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, text, meta)
	}
	return RuleClassifier{}.Classify(ctx, text, meta)
}

// CallCount returns the number of times Classify was called.
func (m *MockClassifier) CallCount() int {
	return int(m.callCount.Load())
}

// Texts returns the texts Classify received, in call order.
func (m *MockClassifier) Texts() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.texts))
	copy(out, m.texts)
	return out
}

// Reset clears the call count, recorded texts and injected behavior.
func (m *MockClassifier) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount.Store(0)
	m.texts = nil
	m.classifyFunc = nil
}
