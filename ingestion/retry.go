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
	"log/slog"
	"time"
)

// Default retry schedules.
var (
	DefaultIngestDelays  = []time.Duration{5 * time.Second, 10 * time.Second, 30 * time.Second}
	DefaultPersistDelays = []time.Duration{1 * time.Second, 5 * time.Second}
)

// RetryPolicy describes how an operation is repeated.
// The operation runs once, then once more after each entry of Delays, for as
// long as Retryable accepts the error.
type RetryPolicy struct {
	Delays    []time.Duration
	Retryable func(error) bool
	// OnRetry is called before sleeping ahead of the given attempt.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// MaxAttempts returns the total number of attempts the policy allows.
func (p RetryPolicy) MaxAttempts() int {
	return len(p.Delays) + 1
}

// Retry runs operation under policy. attempt starts at 1.
// Returns the error from the last attempt if all attempts fail, or the
// context error if ctx ends first.
func Retry(ctx context.Context, policy RetryPolicy, operation func(attempt int) error) error {
	for _, d := range policy.Delays {
		if d < 0 {
			return ErrInvalidDelay
		}
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts(); attempt++ {
		// Check context before attempting
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = operation(attempt)
		if lastErr == nil {
			if attempt > 1 {
				slog.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}

		if attempt == policy.MaxAttempts() {
			break
		}
		if policy.Retryable != nil && !policy.Retryable(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return lastErr
		}

		delay := policy.Delays[attempt-1]
		if policy.OnRetry != nil {
			policy.OnRetry(attempt+1, delay, lastErr)
		}
		if delay == 0 {
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}
