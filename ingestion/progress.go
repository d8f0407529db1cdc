package ingestion

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Event reports a state transition or a retry within a run.
// Attempt is 1 for the first try of a state and higher for retries.
type Event struct {
	RunID   string
	Source  string
	State   State
	Records int
	Attempt int
	Err     error
	At      time.Time
}

// Retry reports whether the event announces a retry.
func (e Event) Retry() bool {
	return e.Attempt > 1
}

// Observer receives run events. Observe is called synchronously from the run
// and must be safe for concurrent runs.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(e Event) {
	f(e)
}

type logObserver struct {
	logger *slog.Logger
}

// LogObserver logs events: retries and failures at warn, the rest at info.
func LogObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &logObserver{logger: logger.With("component", "pipeline")}
}

func (o *logObserver) Observe(e Event) {
	attrs := []any{"run", e.RunID, "source", e.Source, "state", e.State.String(), "records", e.Records}
	switch {
	case e.State == StateFailed:
		o.logger.Warn("run failed", append(attrs, "err", e.Err)...)
	case e.Retry():
		o.logger.Warn("retrying stage", append(attrs, "attempt", e.Attempt, "err", e.Err)...)
	default:
		o.logger.Info("stage transition", attrs...)
	}
}

// ProgressPrinter writes one line per event with the time elapsed since the
// run started.
type ProgressPrinter struct {
	writer io.Writer
	starts map[string]time.Time
	mu     sync.Mutex
}

// NewProgressPrinter creates a printer writing to w (typically os.Stderr).
func NewProgressPrinter(w io.Writer) *ProgressPrinter {
	return &ProgressPrinter{
		writer: w,
		starts: make(map[string]time.Time),
	}
}

// Observe implements Observer.
func (p *ProgressPrinter) Observe(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start, ok := p.starts[e.RunID]
	if !ok {
		start = e.At
		p.starts[e.RunID] = start
	}
	elapsed := e.At.Sub(start).Round(time.Millisecond)

	switch {
	case e.State == StateFailed:
		fmt.Fprintf(p.writer, "[%s] %s: %s after %s: %v\n", e.RunID, e.Source, e.State, elapsed, e.Err)
	case e.Retry():
		fmt.Fprintf(p.writer, "[%s] %s: %s attempt %d (%v)\n", e.RunID, e.Source, e.State, e.Attempt, e.Err)
	default:
		fmt.Fprintf(p.writer, "[%s] %s: %s - %d records (%s)\n", e.RunID, e.Source, e.State, e.Records, elapsed)
	}

	if e.State.Terminal() {
		delete(p.starts, e.RunID)
	}
}

// Active returns the number of runs that have not reached a terminal state.
func (p *ProgressPrinter) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.starts)
}

type multiObserver []Observer

func (m multiObserver) Observe(e Event) {
	for _, o := range m {
		o.Observe(e)
	}
}

// Observers combines observers; nil entries are ignored.
func Observers(observers ...Observer) Observer {
	var out multiObserver
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}
