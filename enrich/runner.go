package enrich

import (
	"context"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/recall/core"
)

// Runner executes per-record work on a bounded worker pool.
// A single Runner may be shared by concurrent pipeline runs.
type Runner struct {
	pool *ants.Pool
}

// DefaultPoolSize is runtime.NumCPU() / 2, with a minimum of 1.
func DefaultPoolSize() int {
	return max(runtime.NumCPU()/2, 1)
}

// NewRunner creates a Runner with size workers. Sizes below 1 are raised to 1.
func NewRunner(size int) (*Runner, error) {
	pool, err := ants.NewPool(max(size, 1))
	if err != nil {
		return nil, err
	}
	return &Runner{pool: pool}, nil
}

// Size returns the worker capacity.
func (r *Runner) Size() int {
	return r.pool.Cap()
}

// Release stops the workers. The Runner must not be used afterwards.
func (r *Runner) Release() {
	r.pool.Release()
}

// Map applies fn to every record concurrently and returns the results in
// input order. The first error cancels the remaining work and is returned.
func (r *Runner) Map(ctx context.Context, records []core.Record, fn func(ctx context.Context, record core.Record) (core.Record, error)) ([]core.Record, error) {
	out := make([]core.Record, len(records))
	if len(records) == 0 {
		return out, nil
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel(err)
		})
	}

	for i, record := range records {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		err := r.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			result, err := fn(ctx, record)
			if err != nil {
				fail(err)
				return
			}
			out[i] = result
		})
		if err != nil {
			wg.Done()
			fail(err)
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	// The parent context ended before every record ran.
	if err := context.Cause(ctx); err != nil {
		return nil, err
	}
	return out, nil
}
