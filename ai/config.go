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


package ai

import (
	"errors"
	"slices"
	"strings"
)

// Config holds configuration for AI service providers.
type Config struct {
	// ClassifierHost is the base URL for the classification service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	ClassifierHost string

	// ClassifierModel is the model identifier to use for classification.
	// Example: "qwen2.5:3b", "gpt-4o-mini"
	ClassifierModel string

	// Token is the API token. Local OpenAI-compatible services accept "none".
	Token string

	// Labels is the closed set of labels the classifier may return.
	// Default: Labels
	Labels []string

	// MaxAttempts bounds how often a malformed model response is retried.
	// Default: 3
	MaxAttempts int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithClassifierHost sets the classifier service host URL.
func WithClassifierHost(host string) ConfigOption {
	return func(c *Config) {
		c.ClassifierHost = host
	}
}

// WithClassifierModel sets the classifier model identifier.
func WithClassifierModel(model string) ConfigOption {
	return func(c *Config) {
		c.ClassifierModel = model
	}
}

// WithToken sets the API token.
func WithToken(token string) ConfigOption {
	return func(c *Config) {
		c.Token = token
	}
}

// WithLabels replaces the label set.
func WithLabels(labels ...string) ConfigOption {
	return func(c *Config) {
		c.Labels = slices.Clone(labels)
	}
}

// WithMaxAttempts sets how many times a malformed response is retried.
func WithMaxAttempts(n int) ConfigOption {
	return func(c *Config) {
		c.MaxAttempts = n
	}
}

// DefaultConfig returns a Config with sensible defaults for local OpenAI-compatible services.
func DefaultConfig() *Config {
	return &Config{
		ClassifierHost:  "http://localhost:11434/v1",
		ClassifierModel: "qwen2.5:3b",
		Token:           "none",
		Labels:          slices.Clone(Labels),
		MaxAttempts:     3,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//   cfg := NewConfig(
//       WithClassifierHost("http://localhost:9100"),
//       WithClassifierModel("gpt-4o-mini"),
//   )
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It automatically adds the /v1 suffix to the host if missing, which is required
// by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	if c.ClassifierHost != "" && !strings.HasSuffix(c.ClassifierHost, "/v1") {
		c.ClassifierHost = strings.TrimSuffix(c.ClassifierHost, "/") + "/v1"
	}
	if c.Token == "" {
		c.Token = "none"
	}
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.ClassifierHost == "" {
		return errors.New("ai config: ClassifierHost is required")
	}
	if c.ClassifierModel == "" {
		return errors.New("ai config: ClassifierModel is required")
	}
	if len(c.Labels) == 0 {
		return errors.New("ai config: at least one label is required")
	}
	if slices.Contains(c.Labels, "") {
		return errors.New("ai config: labels must not be empty")
	}
	if c.MaxAttempts < 1 {
		return errors.New("ai config: MaxAttempts must be at least 1")
	}
	return nil
}
