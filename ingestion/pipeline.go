package ingestion

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/enrich"
	"github.com/poiesic/recall/graph"
	"github.com/poiesic/recall/source"
	"github.com/poiesic/recall/storage"
)

// HandlerFactory selects the source handler for an identifier.
// *source.Factory satisfies it.
type HandlerFactory interface {
	Handler(identifier string) source.Handler
}

var _ HandlerFactory = (*source.Factory)(nil)

// Outcome is the result of one run. On failure Err is set and State is
// StateFailed.
type Outcome struct {
	RunID    string
	Source   string
	State    State
	Records  int
	Triples  int
	Ack      storage.Ack
	Metadata map[string]string
	Err      *StageError
	Started  time.Time
	Finished time.Time
}

// Succeeded reports whether the run persisted its triples.
func (o *Outcome) Succeeded() bool {
	return o.State == StateSucceeded
}

// Duration returns the wall time of the run.
func (o *Outcome) Duration() time.Duration {
	return o.Finished.Sub(o.Started)
}

// Orchestrator runs sources through ingest, classify, score and persist.
type Orchestrator struct {
	handlers      HandlerFactory
	classify      enrich.Stage
	score         enrich.Stage
	mapper        *graph.Mapper
	sink          storage.TripleSink
	ingestDelays  []time.Duration
	persistDelays []time.Duration
	stageTimeout  time.Duration
	observer      Observer
	newRunID      func() string
	now           func() time.Time
	logger        *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// WithIngestDelays sets the delays between ingest attempts.
// Default is DefaultIngestDelays. No delays disables retry.
func WithIngestDelays(delays ...time.Duration) Option {
	return func(o *Orchestrator) error {
		if err := checkDelays(delays); err != nil {
			return err
		}
		o.ingestDelays = delays
		return nil
	}
}

// WithPersistDelays sets the delays between sink write attempts.
// Default is DefaultPersistDelays. At least one delay is required, so a
// failed write is always retried once.
func WithPersistDelays(delays ...time.Duration) Option {
	return func(o *Orchestrator) error {
		if len(delays) == 0 {
			return fmt.Errorf("%w: persist needs at least one retry", ErrInvalidDelay)
		}
		if err := checkDelays(delays); err != nil {
			return err
		}
		o.persistDelays = delays
		return nil
	}
}

// WithStageTimeout bounds each stage attempt. Zero disables the bound.
func WithStageTimeout(d time.Duration) Option {
	return func(o *Orchestrator) error {
		if d < 0 {
			return fmt.Errorf("%w: stage timeout %s", ErrInvalidDelay, d)
		}
		o.stageTimeout = d
		return nil
	}
}

// WithObserver sets the receiver of run events.
func WithObserver(observer Observer) Option {
	return func(o *Orchestrator) error {
		o.observer = observer
		return nil
	}
}

// WithMapper replaces the graph mapper.
func WithMapper(mapper *graph.Mapper) Option {
	return func(o *Orchestrator) error {
		if mapper != nil {
			o.mapper = mapper
		}
		return nil
	}
}

// WithRunIDs sets the run identifier generator. Default is ULIDs.
func WithRunIDs(fn func() string) Option {
	return func(o *Orchestrator) error {
		if fn != nil {
			o.newRunID = fn
		}
		return nil
	}
}

// WithClock sets the time source used for events and outcomes.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) error {
		if now != nil {
			o.now = now
		}
		return nil
	}
}

func checkDelays(delays []time.Duration) error {
	for _, d := range delays {
		if d < 0 {
			return fmt.Errorf("%w: %s", ErrInvalidDelay, d)
		}
	}
	return nil
}

// NewOrchestrator creates an orchestrator over the given collaborators.
func NewOrchestrator(
	handlers HandlerFactory,
	classify enrich.Stage,
	score enrich.Stage,
	sink storage.TripleSink,
	opts ...Option,
) (*Orchestrator, error) {
	if handlers == nil {
		return nil, ErrHandlerFactoryRequired
	}
	if classify == nil {
		return nil, ErrClassifyStageRequired
	}
	if score == nil {
		return nil, ErrScoreStageRequired
	}
	if sink == nil {
		return nil, ErrSinkRequired
	}

	o := &Orchestrator{
		handlers:      handlers,
		classify:      classify,
		score:         score,
		mapper:        graph.NewMapper(),
		sink:          sink,
		ingestDelays:  DefaultIngestDelays,
		persistDelays: DefaultPersistDelays,
		newRunID:      newULIDSource(),
		now:           time.Now,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	o.logger = o.logger.With("component", "orchestrator")
	return o, nil
}

func (o *Orchestrator) processors() []processor {
	return []processor{
		&ingestProcessor{handlers: o.handlers, delays: o.ingestDelays, timeout: o.stageTimeout},
		&stageProcessor{stage: o.classify, st: StateClassifying, timeout: o.stageTimeout},
		&stageProcessor{stage: o.score, st: StateScoring, timeout: o.stageTimeout},
		&persistProcessor{mapper: o.mapper, sink: o.sink, delays: o.persistDelays, timeout: o.stageTimeout},
	}
}

// Run processes identifier end to end. The returned Outcome is never nil.
// On failure the error is a *StageError naming the failed state and the
// error kind; no triples are written unless the run reaches Persisting.
func (o *Orchestrator) Run(ctx context.Context, identifier string) (*Outcome, error) {
	r := &run{
		id:     o.newRunID(),
		source: identifier,
		o:      o,
	}
	started := o.now()
	o.logger.Info("run started", "run", r.id, "source", identifier)

	for _, p := range o.processors() {
		if err := r.enter(p.state()); err != nil {
			return r.fail(started, err)
		}
		if err := p.process(ctx, r); err != nil {
			return r.fail(started, err)
		}
	}

	if err := r.enter(StateSucceeded); err != nil {
		return r.fail(started, err)
	}
	out := r.outcome(started)
	o.logger.Info("run succeeded", "run", r.id, "source", identifier,
		"records", out.Records, "triples", out.Triples, "duration", out.Duration())
	return out, nil
}

// run is the mutable state of one Run call.
type run struct {
	id       string
	source   string
	state    State
	batch    core.Batch
	metadata map[string]string
	triples  int
	ack      storage.Ack
	failure  *StageError
	o        *Orchestrator
}

func (r *run) enter(next State) error {
	if !CanTransition(r.state, next) {
		return fmt.Errorf("%w: %q to %q", ErrInvalidTransition, r.state, next)
	}
	r.state = next
	r.emit(next, 1, nil)
	return nil
}

func (r *run) emit(state State, attempt int, err error) {
	if r.o.observer == nil {
		return
	}
	r.o.observer.Observe(Event{
		RunID:   r.id,
		Source:  r.source,
		State:   state,
		Records: r.batch.Len(),
		Attempt: attempt,
		Err:     err,
		At:      r.o.now(),
	})
}

func (r *run) fail(started time.Time, err error) (*Outcome, error) {
	r.failure = &StageError{
		RunID: r.id,
		Stage: r.state,
		Kind:  core.KindOf(err),
		Err:   err,
	}
	r.state = StateFailed
	r.emit(StateFailed, 1, r.failure)
	r.o.logger.Warn("run failed", "run", r.id, "source", r.source,
		"stage", r.failure.Stage.String(), "kind", string(r.failure.Kind), "err", err)
	return r.outcome(started), r.failure
}

func (r *run) outcome(started time.Time) *Outcome {
	return &Outcome{
		RunID:    r.id,
		Source:   r.source,
		State:    r.state,
		Records:  r.batch.Len(),
		Triples:  r.triples,
		Ack:      r.ack,
		Metadata: r.metadata,
		Err:      r.failure,
		Started:  started,
		Finished: r.o.now(),
	}
}

// newULIDSource returns a concurrency-safe generator of monotonic ULIDs.
func newULIDSource() func() string {
	var mu sync.Mutex
	entropy := ulid.Monotonic(rand.Reader, 0)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		return ulid.MustNew(ulid.Now(), entropy).String()
	}
}
