package ingestion

import (
	"errors"
	"fmt"

	"github.com/poiesic/recall/core"
)

var (
	// ErrHandlerFactoryRequired is returned when no source handler factory is provided.
	ErrHandlerFactoryRequired = errors.New("handler factory required")

	// ErrClassifyStageRequired is returned when the classification stage is not provided.
	ErrClassifyStageRequired = errors.New("classification stage required")

	// ErrScoreStageRequired is returned when the scoring stage is not provided.
	ErrScoreStageRequired = errors.New("scoring stage required")

	// ErrSinkRequired is returned when a triple sink is not provided.
	ErrSinkRequired = errors.New("triple sink required")

	// ErrStageTimeout marks a stage that exceeded its time budget.
	ErrStageTimeout = errors.New("stage timeout")

	// ErrInvalidTransition indicates an illegal state machine move.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidDelay is returned for a negative retry delay.
	ErrInvalidDelay = errors.New("invalid retry delay")
)

// StageError is the failure outcome of a run: the state that failed and the
// error kind of its cause.
type StageError struct {
	RunID string
	Stage State
	Kind  core.ErrorKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Permanent reports whether repeating the run would reproduce the failure.
func (e *StageError) Permanent() bool {
	switch e.Kind {
	case core.KindSourceFormat, core.KindSourceEmpty, core.KindStageCompute:
		return true
	default:
		return false
	}
}
