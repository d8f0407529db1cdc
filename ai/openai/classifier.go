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


package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/recall/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Classifier implements ai.Classifier using OpenAI-compatible chat APIs.
type Classifier struct {
	client      llms.Model
	labels      []string
	maxAttempts int
	logger      *slog.Logger
}

var _ ai.Classifier = (*Classifier)(nil)

// verdict is the JSON shape the model is asked to produce.
type verdict struct {
	Label string `json:"label"`
}

// newClassifier is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newClassifier(config *ai.Config) (*Classifier, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.ClassifierHost),
		openai.WithToken(config.Token),
		openai.WithModel(config.ClassifierModel),
	)
	if err != nil {
		return nil, err
	}
	return newClassifierWithModel(client, config), nil
}

func newClassifierWithModel(client llms.Model, config *ai.Config) *Classifier {
	return &Classifier{
		client:      client,
		labels:      config.Labels,
		maxAttempts: config.MaxAttempts,
		logger:      slog.Default().With("component", "openai-classifier"),
	}
}

// NewClassifier creates a new classifier using the provided configuration.
//
// Returns ai.Classifier interface to enforce abstraction.
func NewClassifier(config *ai.Config) (ai.Classifier, error) {
	return newClassifier(config)
}

// Classify asks the model for one label out of the configured set.
// Malformed or out-of-set answers are retried up to MaxAttempts times.
func (c *Classifier) Classify(ctx context.Context, text string, meta map[string]any) (string, error) {
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(buildSystemPrompt(c.labels))},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(buildUserPrompt(normalizeText(text), meta))},
		},
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		response, err := c.client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			c.logger.Error("failed to generate content", "attempt", attempt+1, "err", err)
			return "", err
		}
		if len(response.Choices) < 1 {
			lastErr = ErrNoChoices
			c.logger.Warn("no choices returned from model", "attempt", attempt+1)
			continue
		}

		label, err := c.parse(response.Choices[0].Content)
		if err != nil {
			lastErr = err
			c.logger.Warn("error parsing classifier response",
				"attempt", attempt+1,
				"response", response.Choices[0].Content,
				"err", err)
			continue
		}
		return label, nil
	}

	c.logger.Error("failed to classify after retries", "attempts", c.maxAttempts, "err", lastErr)
	return "", lastErr
}

func (c *Classifier) parse(raw string) (string, error) {
	responseText := strings.TrimSpace(raw)
	responseText = strings.TrimPrefix(responseText, "```json")
	responseText = strings.TrimPrefix(responseText, "```")
	responseText = strings.TrimSuffix(responseText, "```")
	responseText = repairJSON(strings.TrimSpace(responseText))

	var v verdict
	if err := json.Unmarshal([]byte(responseText), &v); err != nil {
		return "", err
	}
	label := strings.TrimSpace(v.Label)
	for _, l := range c.labels {
		if strings.EqualFold(l, label) {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLabel, label)
}
