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


package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/enrich"
	"github.com/poiesic/recall/graph"
	"github.com/poiesic/recall/storage"
)

// processor advances a run through one state.
type processor interface {
	// state is the state the run is in while the processor works.
	state() State

	// process works on the run's batch, replacing it with its result.
	process(ctx context.Context, r *run) error
}

// ingestProcessor parses and validates the source.
type ingestProcessor struct {
	handlers HandlerFactory
	delays   []time.Duration
	timeout  time.Duration
}

func (p *ingestProcessor) state() State {
	return StateIngesting
}

func (p *ingestProcessor) process(ctx context.Context, r *run) error {
	handler := p.handlers.Handler(r.source)
	r.metadata = handler.Metadata()

	policy := RetryPolicy{
		Delays: p.delays,
		Retryable: func(err error) bool {
			return errors.Is(err, core.ErrSourceUnreachable)
		},
		OnRetry: func(attempt int, _ time.Duration, err error) {
			r.emit(StateIngesting, attempt, err)
		},
	}
	return Retry(ctx, policy, func(int) error {
		attemptCtx, cancel := withTimeout(ctx, p.timeout)
		defer cancel()

		batch, err := handler.Parse(attemptCtx)
		if err != nil {
			return timeoutAs(ctx, err, core.ErrSourceUnreachable, p.timeout)
		}
		batch.RunID = r.id
		if err := handler.Validate(batch); err != nil {
			return err
		}
		r.batch = batch
		return nil
	})
}

// stageProcessor applies an enrichment stage to the whole batch.
type stageProcessor struct {
	stage   enrich.Stage
	st      State
	timeout time.Duration
}

func (p *stageProcessor) state() State {
	return p.st
}

func (p *stageProcessor) process(ctx context.Context, r *run) error {
	stageCtx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()

	out, err := p.stage.Apply(stageCtx, r.batch)
	if err != nil {
		return timeoutAs(ctx, err, core.ErrStageCompute, p.timeout)
	}
	if out.Len() != r.batch.Len() {
		return fmt.Errorf("%w: %s returned %d records for %d", core.ErrStageCompute, p.stage.Name(), out.Len(), r.batch.Len())
	}
	for i, rec := range out.Records {
		if want := r.batch.Records[i].ID(); rec.ID() != want {
			return fmt.Errorf("%w: %s changed record %d id from %q to %q", core.ErrStageCompute, p.stage.Name(), i, want, rec.ID())
		}
	}
	r.batch = out
	return nil
}

// persistProcessor maps the batch to triples and writes them to the sink.
type persistProcessor struct {
	mapper  *graph.Mapper
	sink    storage.TripleSink
	delays  []time.Duration
	timeout time.Duration
}

func (p *persistProcessor) state() State {
	return StatePersisting
}

func (p *persistProcessor) process(ctx context.Context, r *run) error {
	triples := p.mapper.Map(r.batch)

	policy := RetryPolicy{
		Delays: p.delays,
		Retryable: func(err error) bool {
			return errors.Is(err, core.ErrSinkWriteFailed) && !errors.Is(err, storage.ErrBatchTooLarge)
		},
		OnRetry: func(attempt int, _ time.Duration, err error) {
			r.emit(StatePersisting, attempt, err)
		},
	}
	return Retry(ctx, policy, func(int) error {
		attemptCtx, cancel := withTimeout(ctx, p.timeout)
		defer cancel()

		ack, err := p.sink.Write(attemptCtx, triples)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			if errors.Is(err, context.DeadlineExceeded) && p.timeout > 0 {
				return fmt.Errorf("%w: %w: %w", core.ErrSinkWriteFailed, ErrStageTimeout, err)
			}
			return fmt.Errorf("%w: %w", core.ErrSinkWriteFailed, err)
		}
		r.triples = len(triples)
		r.ack = ack
		return nil
	})
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// timeoutAs reclassifies a stage deadline into the stage's own error class.
// Cancellation of the parent context is returned unchanged.
func timeoutAs(parent context.Context, err error, class error, d time.Duration) error {
	if d <= 0 || parent.Err() != nil || !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w after %s: %w", class, ErrStageTimeout, d, err)
}
