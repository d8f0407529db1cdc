// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package ai provides the text classification capability used by the
// enrichment pipeline.
//
// The package defines abstractions only; the pipeline depends on a Classifier
// and never on a concrete model.
//
//   - Classifier: labels a piece of text, given the rest of its record as context
//   - Provider: aggregates AI services for convenient initialization
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible chat APIs through langchaingo
//   - ai/mock: deterministic rule-based classifier and test doubles
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewProvider, openai.NewClassifier) return
// interface types. Test utility constructors (mock.NewMockClassifier) return
// concrete types so tests can inject behavior and assert on call counts.
//
// # Usage Example
//
//	config := ai.NewConfig(ai.WithClassifierModel("qwen2.5:3b"))
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	label, err := provider.Classifier().Classify(ctx, "Detailed specs for the launch.", nil)
package ai
