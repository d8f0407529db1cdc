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


// Package openai provides the classifier backed by OpenAI-compatible APIs.
//
// It uses the langchaingo library to talk to OpenAI or any compatible
// service (Ollama, LocalAI, vLLM). The model is asked for a JSON object
// {"label": "..."} in JSON mode at temperature 0; answers outside the
// configured label set count as malformed and are retried.
//
// # Usage
//
//	config := ai.NewConfig(
//	    ai.WithClassifierHost("http://localhost:11434"),  // /v1 added automatically
//	    ai.WithClassifierModel("qwen2.5:3b"),
//	)
//
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	label, err := provider.Classifier().Classify(ctx, text, map[string]any{"in_stock": true})
package openai
