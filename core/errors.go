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


package core

import (
	"context"
	"errors"
)

// Error taxonomy shared by every pipeline stage.
var (
	// ErrSourceUnreachable indicates a network or file I/O failure while reading a source.
	// It is transient and may be retried.
	ErrSourceUnreachable = errors.New("source unreachable")

	// ErrSourceFormatInvalid indicates a source parsed structurally but its records
	// violate the record invariants. Retrying reproduces the same failure.
	ErrSourceFormatInvalid = errors.New("source format invalid")

	// ErrSourceEmpty indicates a source produced zero records.
	ErrSourceEmpty = errors.New("source empty")

	// ErrStageCompute indicates a classification or scoring step failed on its input.
	ErrStageCompute = errors.New("stage compute error")

	// ErrSinkWriteFailed indicates the triple sink rejected or failed a batch write.
	ErrSinkWriteFailed = errors.New("sink write failed")
)

// Record validation errors.
var (
	// ErrInvalidRecord indicates a Record failed validation.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrMissingID indicates the id field is absent or empty.
	ErrMissingID = errors.New("record id is missing")

	// ErrMissingText indicates the raw_text field is absent, empty or not a string.
	ErrMissingText = errors.New("record raw_text is missing")

	// ErrDuplicateID indicates two records in one batch share an id.
	ErrDuplicateID = errors.New("duplicate record id")
)

// ErrorKind names an error class of the taxonomy.
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindSourceUnreachable ErrorKind = "SourceUnreachable"
	KindSourceFormat      ErrorKind = "SourceFormatInvalid"
	KindSourceEmpty       ErrorKind = "SourceEmpty"
	KindStageCompute      ErrorKind = "StageComputeError"
	KindSinkWriteFailed   ErrorKind = "SinkWriteFailed"
	KindCanceled          ErrorKind = "Canceled"
	KindUnknown           ErrorKind = "Unknown"
)

// KindOf classifies err into the taxonomy.
// Context cancellation and deadline expiry are reported as KindCanceled.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrSourceFormatInvalid):
		return KindSourceFormat
	case errors.Is(err, ErrSourceEmpty):
		return KindSourceEmpty
	case errors.Is(err, ErrSourceUnreachable):
		return KindSourceUnreachable
	case errors.Is(err, ErrStageCompute):
		return KindStageCompute
	case errors.Is(err, ErrSinkWriteFailed):
		return KindSinkWriteFailed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindUnknown
	}
}

// IsRetryable reports whether err belongs to a transient class.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSourceUnreachable) || errors.Is(err, ErrSinkWriteFailed)
}
