package animation

import (
	"errors"
	"fmt"
)

// Failure taxonomy. Stage errors unwrap to one of these sentinels and to
// the underlying cause, so both can be matched with errors.Is.
var (
	ErrDetectionInconclusive = errors.New("detection inconclusive")
	ErrExtraction            = errors.New("frame extraction failed")
	ErrSampling              = errors.New("frame sampling failed")
	ErrResize                = errors.New("frame resize failed")
	ErrReassembly            = errors.New("reassembly failed")
	ErrCleanup               = errors.New("workspace cleanup failed")
)

// StageError ties a failure to the pipeline stage and asset it came from.
type StageError struct {
	Stage string
	Asset string
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s: %v", e.Asset, e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v: %v", e.Asset, e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func stageError(stage, asset string, kind, err error) error {
	return &StageError{Stage: stage, Asset: asset, Kind: kind, Err: err}
}

func inconclusive(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDetectionInconclusive, fmt.Sprintf(format, args...))
}
