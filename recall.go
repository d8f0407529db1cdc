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


package recall

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/ai/mock"
	"github.com/poiesic/recall/ai/openai"
	"github.com/poiesic/recall/config"
	"github.com/poiesic/recall/enrich"
	"github.com/poiesic/recall/extract"
	"github.com/poiesic/recall/graph"
	"github.com/poiesic/recall/ingestion"
	"github.com/poiesic/recall/source"
	"github.com/poiesic/recall/storage"
	"github.com/poiesic/recall/storage/badger"
	"github.com/poiesic/recall/storage/sqlite"
)

// Export formats.
const (
	FormatNTriples = "nt"
	FormatTurtle   = "ttl"
)

// ErrUnknownExportFormat is returned by Export for an unsupported format.
var ErrUnknownExportFormat = errors.New("unknown export format")

// Engine wires a triple store, the classification capability, the
// enrichment stages and the orchestrator from one Config.
type Engine struct {
	config       config.Config
	store        storage.TripleStore
	provider     ai.Provider
	runner       *enrich.Runner
	orchestrator *ingestion.Orchestrator
	logger       *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	logger    *slog.Logger
	observer  ingestion.Observer
	provider  ai.Provider
	extractor source.Extractor
	store     storage.TripleStore
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithObserver receives the events of every run.
func WithObserver(observer ingestion.Observer) EngineOption {
	return func(o *engineOptions) {
		o.observer = observer
	}
}

// WithProvider replaces the classifier provider selected by the config.
// The engine takes ownership and closes it.
func WithProvider(provider ai.Provider) EngineOption {
	return func(o *engineOptions) {
		o.provider = provider
	}
}

// WithExtractor replaces the extractor selected by the config.
func WithExtractor(extractor source.Extractor) EngineOption {
	return func(o *engineOptions) {
		o.extractor = extractor
	}
}

// WithStore replaces the store selected by the config.
// The engine takes ownership and closes it.
func WithStore(store storage.TripleStore) EngineOption {
	return func(o *engineOptions) {
		o.store = store
	}
}

// NewEngine builds an engine from cfg. cfg is validated first.
func NewEngine(ctx context.Context, cfg config.Config, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &engineOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	logger := options.logger

	store := options.store
	if store == nil {
		var err error
		if store, err = OpenStore(ctx, cfg.Store, logger); err != nil {
			return nil, err
		}
	}

	provider := options.provider
	if provider == nil {
		var err error
		if provider, err = NewProvider(cfg.Classifier); err != nil {
			store.Close()
			return nil, err
		}
	}

	extractor := options.extractor
	if extractor == nil {
		extractor = NewExtractor(cfg.Extractor, logger)
	}

	workers := cfg.Orchestrator.Workers
	if workers == 0 {
		workers = enrich.DefaultPoolSize()
	}
	runner, err := enrich.NewRunner(workers)
	if err != nil {
		provider.Close()
		store.Close()
		return nil, err
	}

	engine := &Engine{
		config:   cfg,
		store:    store,
		provider: provider,
		runner:   runner,
		logger:   logger.With("component", "engine"),
	}

	classify, err := enrich.NewClassificationStage(provider.Classifier(), runner, logger)
	if err != nil {
		engine.Close()
		return nil, err
	}
	score, err := enrich.NewScoringStage(enrich.HeuristicScorer{}, runner, logger)
	if err != nil {
		engine.Close()
		return nil, err
	}

	orchestrator, err := ingestion.NewOrchestrator(
		source.NewFactory(extractor, logger),
		classify,
		score,
		store,
		ingestion.WithLogger(logger),
		ingestion.WithIngestDelays(cfg.Orchestrator.IngestDelays...),
		ingestion.WithPersistDelays(cfg.Orchestrator.PersistDelays...),
		ingestion.WithStageTimeout(cfg.Orchestrator.StageTimeout),
		ingestion.WithObserver(ingestion.Observers(ingestion.LogObserver(logger), options.observer)),
	)
	if err != nil {
		engine.Close()
		return nil, err
	}
	engine.orchestrator = orchestrator
	return engine, nil
}

// OpenStore opens the triple store described by cfg.
func OpenStore(ctx context.Context, cfg config.Store, logger *slog.Logger) (storage.TripleStore, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		dsn := cfg.Path
		if cfg.InMemory() {
			dsn = sqlite.MemoryDSN
		}
		return sqlite.Open(ctx, dsn, logger)
	case config.DriverBadger, "":
		backend, err := badger.OpenBackendWithLogger(cfg.Path, cfg.InMemory(), logger)
		if err != nil {
			return nil, err
		}
		store, err := badger.NewTripleStore(backend, badger.WithOwnedBackend())
		if err != nil {
			backend.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: store.driver %q", config.ErrInvalidConfig, cfg.Driver)
	}
}

// NewProvider creates the classifier provider described by cfg.
func NewProvider(cfg config.Classifier) (ai.Provider, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		var opts []ai.ConfigOption
		if cfg.Host != "" {
			opts = append(opts, ai.WithClassifierHost(cfg.Host))
		}
		if cfg.Model != "" {
			opts = append(opts, ai.WithClassifierModel(cfg.Model))
		}
		if cfg.Token != "" {
			opts = append(opts, ai.WithToken(cfg.Token))
		}
		if len(cfg.Labels) > 0 {
			opts = append(opts, ai.WithLabels(cfg.Labels...))
		}
		return openai.NewProvider(ai.NewConfig(opts...))
	case config.ProviderMock, "":
		return mock.NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("%w: classifier.provider %q", config.ErrInvalidConfig, cfg.Provider)
	}
}

// NewExtractor creates the extractor described by cfg.
func NewExtractor(cfg config.Extractor, logger *slog.Logger) source.Extractor {
	if cfg.Kind == config.ExtractorMicrodata {
		return extract.NewMicrodataExtractor(extract.MicrodataOptions{
			UserAgent:     cfg.UserAgent,
			Timeout:       cfg.Timeout,
			RatePerSecond: cfg.RatePerSecond,
			Logger:        logger,
		})
	}
	return extract.NewFixtureExtractor()
}

// Run processes one source identifier end to end.
func (e *Engine) Run(ctx context.Context, identifier string) (*ingestion.Outcome, error) {
	return e.orchestrator.Run(ctx, identifier)
}

// Store returns the engine's triple store.
func (e *Engine) Store() storage.TripleStore {
	return e.store
}

// Config returns the configuration the engine was built from.
func (e *Engine) Config() config.Config {
	return e.config
}

// Export writes the persisted graph to w in format (FormatNTriples or
// FormatTurtle).
func (e *Engine) Export(ctx context.Context, w io.Writer, format string) error {
	var write func(io.Writer, []graph.Triple) error
	switch format {
	case FormatNTriples:
		write = graph.WriteNTriples
	case FormatTurtle:
		write = graph.WriteTurtle
	default:
		return fmt.Errorf("%w: %q", ErrUnknownExportFormat, format)
	}

	triples, err := e.store.Triples(ctx)
	if err != nil {
		return err
	}
	return write(w, triples)
}

// Close releases the worker pool, the provider and the store.
func (e *Engine) Close() error {
	if e.runner != nil {
		e.runner.Release()
	}

	// Close AI provider first
	if err := e.provider.Close(); err != nil {
		e.logger.Error("error closing AI provider", "err", err)
	}

	if err := e.store.Close(); err != nil {
		e.logger.Error("error closing triple store", "err", err)
		return err
	}
	return nil
}
