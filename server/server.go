package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/poiesic/recall/config"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/ingestion"
	"github.com/poiesic/recall/source"
)

// DefaultMaxUploadBytes bounds a multipart upload.
const DefaultMaxUploadBytes = 64 << 20

// ErrRunnerRequired is returned when no pipeline runner is provided.
var ErrRunnerRequired = errors.New("pipeline runner required")

// Runner executes a pipeline run. *recall.Engine satisfies it.
type Runner interface {
	Run(ctx context.Context, identifier string) (*ingestion.Outcome, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, identifier string) (*ingestion.Outcome, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, identifier string) (*ingestion.Outcome, error) {
	return f(ctx, identifier)
}

// Server serves the route table over HTTP.
type Server struct {
	table     *Table
	runner    Runner
	tempDir   string
	maxUpload int64
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTempDir sets the parent directory for upload scratch space.
// Default is os.TempDir().
func WithTempDir(dir string) Option {
	return func(s *Server) {
		s.tempDir = dir
	}
}

// WithMaxUploadBytes bounds multipart request bodies.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// New creates a server for table backed by runner.
func New(runner Runner, table *Table, opts ...Option) (*Server, error) {
	if runner == nil {
		return nil, ErrRunnerRequired
	}
	if table == nil {
		table = &Table{byPath: map[string]Route{}}
	}
	s := &Server{
		table:     table,
		runner:    runner,
		maxUpload: DefaultMaxUploadBytes,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")
	return s, nil
}

// Handler builds the router. Routes are mounted once from the table.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/routes", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.table.Routes())
	})

	for _, route := range s.table.Routes() {
		switch route.SourceType {
		case config.SourceFile:
			r.Post(route.Path, s.handleFile(route))
		case config.SourceURL:
			r.Post(route.Path, s.handleURL(route))
		}
	}
	return r
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr, "routes", s.table.Len())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// runResponse is the body of every pipeline response.
type runResponse struct {
	Status   string            `json:"status"`
	RunID    string            `json:"run_id,omitempty"`
	Title    string            `json:"title"`
	Source   string            `json:"source"`
	Records  int               `json:"records,omitempty"`
	Triples  int               `json:"triples,omitempty"`
	Stage    string            `json:"stage,omitempty"`
	Kind     string            `json:"kind,omitempty"`
	Error    string            `json:"error,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type urlRequest struct {
	URL      string            `json:"url"`
	Metadata map[string]string `json:"metadata"`
}

func (s *Server) handleURL(route Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req urlRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			s.badRequest(w, route, "", fmt.Sprintf("invalid JSON body: %v", err))
			return
		}
		req.URL = strings.TrimSpace(req.URL)
		if req.URL == "" {
			s.badRequest(w, route, "", "url is required")
			return
		}
		if source.Classify(req.URL) != source.KindRemote {
			s.badRequest(w, route, req.URL, "url must use http or https")
			return
		}
		s.run(w, r, route, req.URL, req.URL, req.Metadata)
	}
}

func (s *Server) handleFile(route Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
		if err := r.ParseMultipartForm(s.maxUpload); err != nil {
			s.badRequest(w, route, "", fmt.Sprintf("invalid multipart body: %v", err))
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			s.badRequest(w, route, "", "file field is required")
			return
		}
		defer file.Close()

		var metadata map[string]string
		if raw := r.FormValue("metadata"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
				s.badRequest(w, route, header.Filename, fmt.Sprintf("invalid metadata: %v", err))
				return
			}
		}

		dir, err := os.MkdirTemp(s.tempDir, "recall-upload-*")
		if err != nil {
			s.logger.Error("error creating upload dir", "err", err)
			writeJSON(w, http.StatusInternalServerError, runResponse{Status: "failed", Title: route.Title, Error: "upload storage unavailable"})
			return
		}
		defer func() {
			if err := os.RemoveAll(dir); err != nil {
				s.logger.Warn("error removing upload dir", "dir", dir, "err", err)
			}
		}()

		name := uploadName(header.Filename)
		path := filepath.Join(dir, name)
		if err := saveUpload(path, file); err != nil {
			s.logger.Error("error saving upload", "err", err)
			writeJSON(w, http.StatusInternalServerError, runResponse{Status: "failed", Title: route.Title, Source: name, Error: "upload storage unavailable"})
			return
		}

		s.run(w, r, route, path, name, metadata)
	}
}

// run executes the pipeline and writes the outcome. display replaces the
// identifier in the response so temp paths are not exposed.
func (s *Server) run(w http.ResponseWriter, r *http.Request, route Route, identifier, display string, metadata map[string]string) {
	s.logger.Info("pipeline triggered", "endpoint", route.Endpoint, "title", route.Title,
		"source", display, "request_id", middleware.GetReqID(r.Context()))

	out, err := s.runner.Run(r.Context(), identifier)
	resp := runResponse{
		Title:    route.Title,
		Source:   display,
		Metadata: mergeMetadata(out, metadata, identifier, display),
	}
	if out != nil {
		resp.RunID = out.RunID
		resp.Records = out.Records
		resp.Triples = out.Triples
	}
	if err == nil {
		resp.Status = "succeeded"
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp.Status = "failed"
	resp.Error = err.Error()
	kind := core.KindOf(err)
	var stageErr *ingestion.StageError
	if errors.As(err, &stageErr) {
		resp.Stage = stageErr.Stage.String()
		kind = stageErr.Kind
	}
	resp.Kind = string(kind)
	resp.Error = strings.ReplaceAll(resp.Error, identifier, display)
	writeJSON(w, StatusFor(kind), resp)
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(kind core.ErrorKind) int {
	switch kind {
	case core.KindNone:
		return http.StatusOK
	case core.KindSourceFormat, core.KindSourceEmpty:
		return http.StatusUnprocessableEntity
	case core.KindSourceUnreachable, core.KindSinkWriteFailed:
		return http.StatusBadGateway
	case core.KindCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) badRequest(w http.ResponseWriter, route Route, src, msg string) {
	writeJSON(w, http.StatusBadRequest, runResponse{Status: "failed", Title: route.Title, Source: src, Error: msg})
}

func mergeMetadata(out *ingestion.Outcome, request map[string]string, identifier, display string) map[string]string {
	merged := make(map[string]string)
	if out != nil {
		for k, v := range out.Metadata {
			merged[k] = strings.ReplaceAll(v, identifier, display)
		}
	}
	for k, v := range request {
		if _, taken := merged[k]; !taken {
			merged[k] = v
		}
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

// uploadName keeps the client's base name so the extension selects the
// tabular format.
func uploadName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload.csv"
	}
	return name
}

func saveUpload(path string, src io.Reader) error {
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
