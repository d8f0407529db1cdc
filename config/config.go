package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/poiesic/recall/ingestion"
)

var (
	// ErrUnsupportedFormat is returned for a config file that is neither TOML nor YAML.
	ErrUnsupportedFormat = errors.New("unsupported config format")

	// ErrInvalidConfig is returned when validation fails.
	ErrInvalidConfig = errors.New("invalid config")
)

// Route source types.
const (
	SourceFile = "file"
	SourceURL  = "url"
)

// Store drivers.
const (
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
)

// Classifier providers.
const (
	ProviderMock   = "mock"
	ProviderOpenAI = "openai"
)

// Extractor kinds.
const (
	ExtractorFixture   = "fixture"
	ExtractorMicrodata = "microdata"
)

// Route declares one ingestion endpoint.
type Route struct {
	Endpoint   string `toml:"endpoint" yaml:"endpoint"`
	Title      string `toml:"title" yaml:"title"`
	SourceType string `toml:"source_type" yaml:"source_type"`
}

// Orchestrator configures pipeline runs. Nil delay lists take the defaults;
// an explicit empty list disables retry.
type Orchestrator struct {
	Workers       int             `toml:"workers" yaml:"workers"`
	IngestDelays  []time.Duration `toml:"ingest_delays" yaml:"ingest_delays"`
	PersistDelays []time.Duration `toml:"persist_delays" yaml:"persist_delays"`
	StageTimeout  time.Duration   `toml:"stage_timeout" yaml:"stage_timeout"`
}

// Store selects the triple store. An empty path keeps the store in memory.
type Store struct {
	Driver string `toml:"driver" yaml:"driver"`
	Path   string `toml:"path" yaml:"path"`
}

// InMemory reports whether the store is not persisted.
func (s Store) InMemory() bool {
	return s.Path == ""
}

// Classifier selects the classification capability.
type Classifier struct {
	Provider string   `toml:"provider" yaml:"provider"`
	Host     string   `toml:"host" yaml:"host"`
	Model    string   `toml:"model" yaml:"model"`
	Token    string   `toml:"token" yaml:"token"`
	Labels   []string `toml:"labels" yaml:"labels"`
}

// Extractor selects the structured extraction capability for URL sources.
type Extractor struct {
	Kind          string        `toml:"kind" yaml:"kind"`
	RatePerSecond float64       `toml:"rate_per_second" yaml:"rate_per_second"`
	UserAgent     string        `toml:"user_agent" yaml:"user_agent"`
	Timeout       time.Duration `toml:"timeout" yaml:"timeout"`
}

// Server configures the HTTP front door.
type Server struct {
	Addr string `toml:"addr" yaml:"addr"`
}

// Config is the complete application configuration.
type Config struct {
	Routes       []Route      `toml:"pipeline" yaml:"pipeline"`
	Orchestrator Orchestrator `toml:"orchestrator" yaml:"orchestrator"`
	Store        Store        `toml:"store" yaml:"store"`
	Classifier   Classifier   `toml:"classifier" yaml:"classifier"`
	Extractor    Extractor    `toml:"extractor" yaml:"extractor"`
	Server       Server       `toml:"server" yaml:"server"`
}

// Default returns a configuration with every default applied and no routes.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

// Load reads the file at path, choosing the decoder by extension
// (.toml, .yaml or .yml), applies defaults and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
}

// Parse decodes data in format ("toml", "yaml" or "yml"), applies defaults
// and validates the result.
func Parse(data []byte, format string) (Config, error) {
	var c Config
	switch format {
	case "toml":
		md, err := toml.Decode(string(data), &c)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("%w: unknown keys %v", ErrInvalidConfig, undecoded)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &c); err != nil {
			return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Orchestrator.IngestDelays == nil {
		c.Orchestrator.IngestDelays = slices.Clone(ingestion.DefaultIngestDelays)
	}
	if c.Orchestrator.PersistDelays == nil {
		c.Orchestrator.PersistDelays = slices.Clone(ingestion.DefaultPersistDelays)
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverBadger
	}
	if c.Classifier.Provider == "" {
		c.Classifier.Provider = ProviderMock
	}
	if c.Extractor.Kind == "" {
		c.Extractor.Kind = ExtractorFixture
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	for i := range c.Routes {
		r := &c.Routes[i]
		r.Endpoint = strings.Trim(strings.TrimSpace(r.Endpoint), "/")
		r.SourceType = strings.ToLower(strings.TrimSpace(r.SourceType))
		if r.Title == "" {
			r.Title = r.Endpoint
		}
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	seen := make(map[string]bool, len(c.Routes))
	for i, r := range c.Routes {
		if r.Endpoint == "" {
			return fmt.Errorf("%w: pipeline %d: endpoint is required", ErrInvalidConfig, i)
		}
		if strings.ContainsAny(r.Endpoint, "/{}") {
			return fmt.Errorf("%w: pipeline %q: endpoint must be a single path segment", ErrInvalidConfig, r.Endpoint)
		}
		if seen[r.Endpoint] {
			return fmt.Errorf("%w: pipeline %q: duplicate endpoint", ErrInvalidConfig, r.Endpoint)
		}
		seen[r.Endpoint] = true
		if r.SourceType != SourceFile && r.SourceType != SourceURL {
			return fmt.Errorf("%w: pipeline %q: source_type %q is not %q or %q",
				ErrInvalidConfig, r.Endpoint, r.SourceType, SourceFile, SourceURL)
		}
	}

	if c.Orchestrator.Workers < 0 {
		return fmt.Errorf("%w: orchestrator.workers must not be negative", ErrInvalidConfig)
	}
	if len(c.Orchestrator.PersistDelays) == 0 {
		return fmt.Errorf("%w: orchestrator.persist_delays needs at least one delay", ErrInvalidConfig)
	}
	for _, d := range append(append([]time.Duration{}, c.Orchestrator.IngestDelays...), c.Orchestrator.PersistDelays...) {
		if d < 0 {
			return fmt.Errorf("%w: negative retry delay %s", ErrInvalidConfig, d)
		}
	}
	if c.Orchestrator.StageTimeout < 0 {
		return fmt.Errorf("%w: orchestrator.stage_timeout must not be negative", ErrInvalidConfig)
	}

	switch c.Store.Driver {
	case DriverBadger, DriverSQLite:
	default:
		return fmt.Errorf("%w: store.driver %q", ErrInvalidConfig, c.Store.Driver)
	}
	switch c.Classifier.Provider {
	case ProviderMock, ProviderOpenAI:
	default:
		return fmt.Errorf("%w: classifier.provider %q", ErrInvalidConfig, c.Classifier.Provider)
	}
	switch c.Extractor.Kind {
	case ExtractorFixture, ExtractorMicrodata:
	default:
		return fmt.Errorf("%w: extractor.kind %q", ErrInvalidConfig, c.Extractor.Kind)
	}
	if c.Extractor.RatePerSecond < 0 || c.Extractor.Timeout < 0 {
		return fmt.Errorf("%w: extractor rate and timeout must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Route returns the route for endpoint.
func (c Config) Route(endpoint string) (Route, bool) {
	for _, r := range c.Routes {
		if r.Endpoint == endpoint {
			return r, true
		}
	}
	return Route{}, false
}
