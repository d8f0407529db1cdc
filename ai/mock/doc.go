// Package mock provides deterministic implementations of the ai interfaces.
//
// RuleClassifier labels text by length and is the default classifier when no
// model is configured. MockClassifier is a test double with behavior
// injection and call counting.
//
// # Usage in Tests
//
//	mockClassifier := mock.NewMockClassifier().
//	    WithClassifyFunc(func(ctx context.Context, text string, meta map[string]any) (string, error) {
//	        return "", errors.New("model offline")
//	    })
//
//	count := mockClassifier.CallCount()
package mock
