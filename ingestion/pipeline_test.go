package ingestion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/recall/ai/mock"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/enrich"
	"github.com/poiesic/recall/extract"
	"github.com/poiesic/recall/graph"
	"github.com/poiesic/recall/source"
	"github.com/poiesic/recall/storage"
	badgerstore "github.com/poiesic/recall/storage/badger"
)

const scenarioCSV = `id,raw_text,author_name,in_stock
1,The new smartphone has a great camera and long battery life.,Jane Doe,True
2,A quick memo about Q3 inventory status.,John Smith,False
3,Detailed specifications for the upcoming Q1 product launch.,Alice,True
4,Short note about supply chain delay.,Bob,False
`

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newStore(t *testing.T) storage.TripleStore {
	t.Helper()
	store, err := badgerstore.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newStages(t *testing.T) (enrich.Stage, enrich.Stage) {
	t.Helper()
	runner, err := enrich.NewRunner(4)
	require.NoError(t, err)
	t.Cleanup(runner.Release)

	classify, err := enrich.NewClassificationStage(mock.NewRuleClassifier(), runner, nil)
	require.NoError(t, err)
	score, err := enrich.NewScoringStage(enrich.HeuristicScorer{}, runner, nil)
	require.NoError(t, err)
	return classify, score
}

func newOrchestrator(t *testing.T, handlers HandlerFactory, sink storage.TripleSink, opts ...Option) *Orchestrator {
	t.Helper()
	classify, score := newStages(t)
	opts = append([]Option{WithIngestDelays(0, 0, 0), WithPersistDelays(0, 0)}, opts...)
	o, err := NewOrchestrator(handlers, classify, score, sink, opts...)
	require.NoError(t, err)
	return o
}

func defaultHandlers() HandlerFactory {
	return source.NewFactory(extract.NewFixtureExtractor(), nil)
}

// recorder collects events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Observe(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, 0, len(r.events))
	for _, e := range r.events {
		if !e.Retry() {
			out = append(out, e.State)
		}
	}
	return out
}

func (r *recorder) retries() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Retry() {
			n++
		}
	}
	return n
}

// scriptedHandler fails Parse with the queued errors before succeeding.
type scriptedHandler struct {
	errs  []error
	batch core.Batch
	calls atomic.Int32
}

func (h *scriptedHandler) Kind() source.Kind  { return source.KindTabular }
func (h *scriptedHandler) Identifier() string { return h.batch.Source }
func (h *scriptedHandler) Metadata() map[string]string {
	return map[string]string{source.MetaSourceType: "scripted"}
}
func (h *scriptedHandler) Validate(b core.Batch) error { return core.ValidateBatch(b) }
func (h *scriptedHandler) Parse(ctx context.Context) (core.Batch, error) {
	n := int(h.calls.Add(1))
	if n <= len(h.errs) {
		return core.Batch{}, h.errs[n-1]
	}
	return h.batch, nil
}

type staticHandlers struct {
	handler source.Handler
}

func (s staticHandlers) Handler(string) source.Handler {
	return s.handler
}

func oneRecordBatch() core.Batch {
	return core.Batch{
		Source: "scripted",
		Records: []core.Record{core.NewRecord(map[string]any{
			"id": 9, "raw_text": "short review", "in_stock": true,
		})},
	}
}

// flakySink fails the first failures writes.
type flakySink struct {
	storage.TripleStore
	failures int32
	calls    atomic.Int32
}

func (s *flakySink) Write(ctx context.Context, triples []graph.Triple) (storage.Ack, error) {
	if s.calls.Add(1) <= s.failures {
		return storage.Ack{}, errors.New("disk full")
	}
	return s.TripleStore.Write(ctx, triples)
}

// oversizedSink rejects every write as too large for one transaction.
type oversizedSink struct {
	storage.TripleStore
	calls atomic.Int32
}

func (s *oversizedSink) Write(ctx context.Context, triples []graph.Triple) (storage.Ack, error) {
	s.calls.Add(1)
	return storage.Ack{}, fmt.Errorf("%w: %d triples", storage.ErrBatchTooLarge, len(triples))
}

// renumberingStage rewrites every record id.
type renumberingStage struct{}

func (renumberingStage) Name() string { return "renumbering" }
func (renumberingStage) Apply(ctx context.Context, b core.Batch) (core.Batch, error) {
	out := make([]core.Record, len(b.Records))
	for i, rec := range b.Records {
		out[i] = rec.With(core.FieldID, 1000+i)
	}
	return b.WithRecords(out), nil
}

type failingStage struct {
	err error
}

func (s failingStage) Name() string { return "failing" }
func (s failingStage) Apply(ctx context.Context, b core.Batch) (core.Batch, error) {
	return core.Batch{}, s.err
}

type blockingStage struct{}

func (blockingStage) Name() string { return "blocking" }
func (blockingStage) Apply(ctx context.Context, b core.Batch) (core.Batch, error) {
	<-ctx.Done()
	return core.Batch{}, ctx.Err()
}

func TestNewOrchestrator_RequiresCollaborators(t *testing.T) {
	classify, score := newStages(t)
	store := newStore(t)
	handlers := defaultHandlers()

	_, err := NewOrchestrator(nil, classify, score, store)
	assert.ErrorIs(t, err, ErrHandlerFactoryRequired)
	_, err = NewOrchestrator(handlers, nil, score, store)
	assert.ErrorIs(t, err, ErrClassifyStageRequired)
	_, err = NewOrchestrator(handlers, classify, nil, store)
	assert.ErrorIs(t, err, ErrScoreStageRequired)
	_, err = NewOrchestrator(handlers, classify, score, nil)
	assert.ErrorIs(t, err, ErrSinkRequired)

	_, err = NewOrchestrator(handlers, classify, score, store, WithIngestDelays(-time.Second))
	assert.ErrorIs(t, err, ErrInvalidDelay)
	_, err = NewOrchestrator(handlers, classify, score, store, WithStageTimeout(-time.Second))
	assert.ErrorIs(t, err, ErrInvalidDelay)
	_, err = NewOrchestrator(handlers, classify, score, store, WithPersistDelays())
	assert.ErrorIs(t, err, ErrInvalidDelay)
}

func TestNewOrchestrator_DefaultSchedules(t *testing.T) {
	classify, score := newStages(t)
	o, err := NewOrchestrator(defaultHandlers(), classify, score, newStore(t))
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 30 * time.Second}, o.ingestDelays)
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second}, o.persistDelays)
	assert.Zero(t, o.stageTimeout)
}

func TestRun_ScenarioA(t *testing.T) {
	store := newStore(t)
	rec := &recorder{}
	o := newOrchestrator(t, defaultHandlers(), store, WithObserver(rec))
	path := writeCSV(t, scenarioCSV)

	out, err := o.Run(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.True(t, out.Succeeded())
	assert.Nil(t, out.Err)
	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, path, out.Source)
	assert.Equal(t, 4, out.Records)
	assert.Equal(t, 48, out.Triples)
	assert.Equal(t, 48, out.Ack.Triples)
	assert.Equal(t, 12, out.Ack.Subjects)
	assert.Equal(t, string(source.KindTabular), out.Metadata[source.MetaSourceType])
	assert.Equal(t, path, out.Metadata[source.MetaPathOrURL])

	assert.Equal(t, []State{StateIngesting, StateClassifying, StateScoring, StatePersisting, StateSucceeded}, rec.states())

	triples, err := store.Triples(context.Background())
	require.NoError(t, err)

	products, reviews := 0, 0
	for _, tr := range triples {
		if tr.Predicate != graph.RDFType {
			continue
		}
		switch tr.Object {
		case graph.IRI(graph.SchemaProduct):
			products++
		case graph.IRI(graph.SchemaReview):
			reviews++
		}
	}
	assert.Equal(t, 4, products)
	assert.Equal(t, 4, reviews)

	for id := 1; id <= 4; id++ {
		subject, err := store.Subject(context.Background(), graph.ProductIRI(strconv.Itoa(id)))
		require.NoError(t, err)
		for _, tr := range subject {
			if tr.Predicate == graph.AnalysisInventoryVelocity {
				v, ok := tr.Object.Float()
				require.True(t, ok)
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, 5.5)
			}
		}
	}
}

func TestRun_ScenarioB(t *testing.T) {
	store := newStore(t)
	o := newOrchestrator(t, defaultHandlers(), store)

	out, err := o.Run(context.Background(), "https://example.com/ecommerce-report")
	require.NoError(t, err)
	assert.Equal(t, 2, out.Records)
	assert.Equal(t, string(source.KindRemote), out.Metadata[source.MetaSourceType])

	product, err := store.Subject(context.Background(), graph.ProductIRI("101"))
	require.NoError(t, err)
	assert.Contains(t, product, graph.Triple{
		Subject:   graph.ProductIRI("101"),
		Predicate: graph.SchemaAvailability,
		Object:    graph.IRI(graph.SchemaInStock),
	})
}

func TestRun_ScenarioC_Idempotent(t *testing.T) {
	store := newStore(t)
	o := newOrchestrator(t, defaultHandlers(), store)
	path := writeCSV(t, scenarioCSV)

	first, err := o.Run(context.Background(), path)
	require.NoError(t, err)
	once, err := store.Count(context.Background())
	require.NoError(t, err)

	second, err := o.Run(context.Background(), path)
	require.NoError(t, err)
	twice, err := store.Count(context.Background())
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRun_EmptySourceFailsWithoutRetry(t *testing.T) {
	store := newStore(t)
	rec := &recorder{}
	o := newOrchestrator(t, defaultHandlers(), store, WithObserver(rec))

	out, err := o.Run(context.Background(), "https://example.com/nothing-here")
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StateIngesting, stageErr.Stage)
	assert.Equal(t, core.KindSourceEmpty, stageErr.Kind)
	assert.True(t, stageErr.Permanent())
	assert.ErrorIs(t, err, core.ErrSourceEmpty)

	assert.Equal(t, StateFailed, out.State)
	assert.Same(t, stageErr, out.Err)
	assert.Equal(t, 0, rec.retries())
	assert.Equal(t, []State{StateIngesting, StateFailed}, rec.states())

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRun_FormatInvalidFailsWithoutRetry(t *testing.T) {
	h := &scriptedHandler{batch: core.Batch{Source: "scripted", Records: []core.Record{
		core.NewRecord(map[string]any{"id": 1}),
	}}}
	o := newOrchestrator(t, staticHandlers{h}, newStore(t))

	_, err := o.Run(context.Background(), "scripted")
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, core.KindSourceFormat, stageErr.Kind)
	assert.Equal(t, int32(1), h.calls.Load())
}

func TestRun_IngestRetriesUnreachable(t *testing.T) {
	unreachable := errors.Join(core.ErrSourceUnreachable, errors.New("connection refused"))
	h := &scriptedHandler{errs: []error{unreachable, unreachable}, batch: oneRecordBatch()}
	rec := &recorder{}
	o := newOrchestrator(t, staticHandlers{h}, newStore(t), WithObserver(rec))

	out, err := o.Run(context.Background(), "scripted")
	require.NoError(t, err)
	assert.True(t, out.Succeeded())
	assert.Equal(t, int32(3), h.calls.Load())
	assert.Equal(t, 2, rec.retries())
}

func TestRun_IngestGivesUpAfterDelays(t *testing.T) {
	unreachable := errors.Join(core.ErrSourceUnreachable, errors.New("connection refused"))
	h := &scriptedHandler{errs: []error{unreachable, unreachable, unreachable, unreachable, unreachable}, batch: oneRecordBatch()}
	o := newOrchestrator(t, staticHandlers{h}, newStore(t))

	out, err := o.Run(context.Background(), "scripted")
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, core.KindSourceUnreachable, stageErr.Kind)
	assert.False(t, stageErr.Permanent())
	assert.Equal(t, int32(4), h.calls.Load(), "one attempt plus three retries")
	assert.False(t, out.Succeeded())
}

func TestRun_MissingExtractorIsNotRetried(t *testing.T) {
	rec := &recorder{}
	o := newOrchestrator(t, source.NewFactory(nil, nil), newStore(t), WithObserver(rec))

	_, err := o.Run(context.Background(), "https://shop.example/ecommerce-report")
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StateIngesting, se.Stage)
	assert.ErrorIs(t, err, source.ErrExtractorRequired)
	assert.NotEqual(t, core.KindSourceUnreachable, se.Kind)
	assert.Zero(t, rec.retries())
}

func TestRun_MissingFileIsUnreachable(t *testing.T) {
	o := newOrchestrator(t, defaultHandlers(), newStore(t))

	_, err := o.Run(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StateIngesting, stageErr.Stage)
	assert.Equal(t, core.KindSourceUnreachable, stageErr.Kind)
}

func TestRun_PersistRetriesSinkFailures(t *testing.T) {
	sink := &flakySink{TripleStore: newStore(t), failures: 1}
	rec := &recorder{}
	o := newOrchestrator(t, defaultHandlers(), sink, WithObserver(rec))

	out, err := o.Run(context.Background(), writeCSV(t, scenarioCSV))
	require.NoError(t, err)
	assert.True(t, out.Succeeded())
	assert.Equal(t, int32(2), sink.calls.Load())
	assert.Equal(t, 1, rec.retries())
}

func TestRun_PersistFailsAfterRetries(t *testing.T) {
	sink := &flakySink{TripleStore: newStore(t), failures: 10}
	o := newOrchestrator(t, defaultHandlers(), sink)

	out, err := o.Run(context.Background(), writeCSV(t, scenarioCSV))
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StatePersisting, stageErr.Stage)
	assert.Equal(t, core.KindSinkWriteFailed, stageErr.Kind)
	assert.ErrorIs(t, err, core.ErrSinkWriteFailed)
	assert.Equal(t, int32(3), sink.calls.Load())
	assert.Equal(t, 4, out.Records)
	assert.Zero(t, out.Triples)
}

func TestRun_StageComputeError(t *testing.T) {
	_, score := newStages(t)
	store := newStore(t)
	stageErr := errors.Join(core.ErrStageCompute, errors.New("classifier exploded"))
	o, err := NewOrchestrator(defaultHandlers(), failingStage{err: stageErr}, score, store,
		WithIngestDelays(), WithPersistDelays(0))
	require.NoError(t, err)

	_, err = o.Run(context.Background(), writeCSV(t, scenarioCSV))
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StateClassifying, se.Stage)
	assert.Equal(t, core.KindStageCompute, se.Kind)
	assert.True(t, se.Permanent())

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count, "no triples are written when a stage fails")
}

func TestRun_StageMustKeepRecordIDs(t *testing.T) {
	_, score := newStages(t)
	store := newStore(t)
	o, err := NewOrchestrator(defaultHandlers(), renumberingStage{}, score, store, WithIngestDelays())
	require.NoError(t, err)

	_, err = o.Run(context.Background(), writeCSV(t, scenarioCSV))
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StateClassifying, se.Stage)
	assert.Equal(t, core.KindStageCompute, se.Kind)
	assert.Contains(t, se.Error(), `from "1" to "1000"`)
}

func TestRun_OversizedBatchIsNotRetried(t *testing.T) {
	sink := &oversizedSink{TripleStore: newStore(t)}
	o := newOrchestrator(t, defaultHandlers(), sink)

	_, err := o.Run(context.Background(), writeCSV(t, scenarioCSV))
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StatePersisting, se.Stage)
	assert.Equal(t, core.KindSinkWriteFailed, se.Kind)
	assert.ErrorIs(t, err, storage.ErrBatchTooLarge)
	assert.Equal(t, int32(1), sink.calls.Load())
}

func TestRun_LargeSource(t *testing.T) {
	const rows = 12000
	var b strings.Builder
	b.WriteString("id,raw_text,in_stock\n")
	for i := 1; i <= rows; i++ {
		fmt.Fprintf(&b, "%d,Detailed specifications for product number %d in the spring catalogue.,True\n", i, i)
	}
	store := newStore(t)
	o := newOrchestrator(t, defaultHandlers(), store)

	out, err := o.Run(context.Background(), writeCSV(t, b.String()))
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, out.State)
	assert.Equal(t, rows, out.Records)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, out.Triples, count)
	assert.Greater(t, count, rows)
}

func TestRun_StageTimeout(t *testing.T) {
	classify, _ := newStages(t)
	o, err := NewOrchestrator(defaultHandlers(), classify, blockingStage{}, newStore(t),
		WithStageTimeout(20*time.Millisecond))
	require.NoError(t, err)

	_, err = o.Run(context.Background(), writeCSV(t, scenarioCSV))
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StateScoring, se.Stage)
	assert.Equal(t, core.KindStageCompute, se.Kind)
	assert.ErrorIs(t, err, ErrStageTimeout)
}

func TestRun_Canceled(t *testing.T) {
	o := newOrchestrator(t, defaultHandlers(), newStore(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Run(ctx, writeCSV(t, scenarioCSV))
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, core.KindCanceled, se.Kind)
}

func TestRun_ConcurrentRuns(t *testing.T) {
	store := newStore(t)
	o := newOrchestrator(t, defaultHandlers(), store)

	paths := make([]string, 8)
	for i := range paths {
		content := "id,raw_text,in_stock\n"
		for j := 1; j <= 4; j++ {
			content += strconv.Itoa(i*10+j) + ",Row " + strconv.Itoa(j) + " of a concurrent batch,true\n"
		}
		paths[i] = writeCSV(t, content)
	}

	var wg sync.WaitGroup
	ids := make([]string, len(paths))
	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			out, err := o.Run(context.Background(), path)
			assert.NoError(t, err)
			ids[i] = out.RunID
		}(i, path)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, id := range ids {
		assert.False(t, seen[id], "run ids are unique")
		seen[id] = true
	}
	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(paths)*48, count)
}

func TestRun_CustomRunIDsAndClock(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	o := newOrchestrator(t, defaultHandlers(), newStore(t),
		WithRunIDs(func() string { return "run-1" }),
		WithClock(func() time.Time { return fixed }))

	out, err := o.Run(context.Background(), writeCSV(t, scenarioCSV))
	require.NoError(t, err)
	assert.Equal(t, "run-1", out.RunID)
	assert.Equal(t, fixed, out.Started)
	assert.Zero(t, out.Duration())
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition("", StateIngesting))
	assert.True(t, CanTransition(StateIngesting, StateClassifying))
	assert.True(t, CanTransition(StateScoring, StateFailed))
	assert.True(t, CanTransition(StatePersisting, StateSucceeded))

	assert.False(t, CanTransition("", StateScoring))
	assert.False(t, CanTransition(StateIngesting, StateScoring))
	assert.False(t, CanTransition(StateSucceeded, StateIngesting))
	assert.False(t, CanTransition(StateFailed, StateIngesting))

	assert.True(t, StateFailed.Terminal())
	assert.False(t, StatePersisting.Terminal())
}
