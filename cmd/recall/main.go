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


package main

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/poiesic/recall"
	"github.com/poiesic/recall/config"
	"github.com/poiesic/recall/ingestion"
	"github.com/poiesic/recall/server"
)

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "recall",
		Usage:     "Ingest tabular files and web pages into a schema.org knowledge graph",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a TOML or YAML config file",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Triple store path (overrides store.path; empty keeps the store in memory)",
			},
			&cli.StringFlag{
				Name:  "driver",
				Usage: "Triple store driver, badger or sqlite (overrides store.driver)",
			},
		},
		Before: func(c *cli.Context) error {
			return setupLogger(c, stderr)
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Run the pipeline over one or more files or URLs",
				ArgsUsage: "SOURCE...",
				Action:    runCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "Number of sources processed at once",
						Value: 4,
					},
					&cli.BoolFlag{
						Name:  "progress",
						Usage: "Print one line per stage transition",
					},
				},
			},
			{
				Name:   "serve",
				Usage:  "Serve the configured pipeline routes over HTTP",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address (overrides server.addr)",
					},
				},
			},
			{
				Name:   "export",
				Usage:  "Write the stored graph as N-Triples or Turtle",
				Action: exportCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format, nt or ttl",
						Value:   recall.FormatTurtle,
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file (default stdout)",
					},
				},
			},
			{
				Name:   "routes",
				Usage:  "List the configured pipeline routes",
				Action: routesCommand,
			},
		},
	}
}

// loadConfig reads --config when given and applies the store overrides.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return config.Config{}, err
		}
	}
	if c.IsSet("db") {
		cfg.Store.Path = c.String("db")
	}
	if c.IsSet("driver") {
		cfg.Store.Driver = strings.ToLower(c.String("driver"))
	}
	return cfg, cfg.Validate()
}

func openEngine(c *cli.Context, opts ...recall.EngineOption) (*recall.Engine, config.Config, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, config.Config{}, err
	}
	engine, err := recall.NewEngine(c.Context, cfg, append([]recall.EngineOption{recall.WithLogger(slog.Default())}, opts...)...)
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("open engine: %w", err)
	}
	return engine, cfg, nil
}

func runCommand(c *cli.Context) error {
	sources := c.Args().Slice()
	if len(sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	concurrency := c.Int("concurrency")
	if concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}

	var opts []recall.EngineOption
	if c.Bool("progress") {
		opts = append(opts, recall.WithObserver(ingestion.NewProgressPrinter(c.App.ErrWriter)))
	}
	engine, _, err := openEngine(c, opts...)
	if err != nil {
		return err
	}
	defer engine.Close()

	g, gCtx := errgroup.WithContext(c.Context)
	g.SetLimit(concurrency)

	var mu sync.Mutex
	outcomes := make([]*ingestion.Outcome, len(sources))
	var failed atomic.Int64

	for i, src := range sources {
		g.Go(func() error {
			out, runErr := engine.Run(gCtx, src)
			if runErr != nil {
				failed.Add(1)
			}
			mu.Lock()
			outcomes[i] = out
			mu.Unlock()
			return nil // don't abort the batch on one failed source
		})
	}
	_ = g.Wait()

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tSTATUS\tRECORDS\tTRIPLES\tDETAIL")
	for _, out := range outcomes {
		detail := out.RunID
		if out.Err != nil {
			detail = fmt.Sprintf("%s %s: %v", out.Err.Stage, out.Err.Kind, out.Err.Err)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", out.Source, out.State, out.Records, out.Triples, detail)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d runs failed", n, len(sources))
	}
	return nil
}

func serveCommand(c *cli.Context) error {
	engine, cfg, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	if len(cfg.Routes) == 0 {
		return fmt.Errorf("no pipeline routes configured")
	}
	table, err := server.BuildRoutes(cfg.Routes)
	if err != nil {
		return err
	}
	srv, err := server.New(engine, table, server.WithLogger(slog.Default()))
	if err != nil {
		return err
	}

	addr := cfg.Server.Addr
	if c.IsSet("addr") {
		addr = c.String("addr")
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.ListenAndServe(ctx, addr)
}

func exportCommand(c *cli.Context) error {
	format := strings.ToLower(c.String("format"))
	if format != recall.FormatNTriples && format != recall.FormatTurtle {
		return fmt.Errorf("invalid format %q: must be one of nt, ttl", format)
	}

	engine, _, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	w := c.App.Writer
	if path := c.String("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return engine.Export(c.Context, w, format)
}

func routesCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	table, err := server.BuildRoutes(cfg.Routes)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "METHOD\tPATH\tSOURCE\tTITLE")
	for _, r := range table.Routes() {
		fmt.Fprintf(w, "POST\t%s\t%s\t%s\n", r.Path, r.SourceType, r.Title)
	}
	return w.Flush()
}

func setupLogger(c *cli.Context, w io.Writer) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
