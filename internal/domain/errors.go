package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when no job definition or run history exists for a name.
	ErrJobNotFound = errors.New("job not found")
	// ErrExecutionNotFound is returned when a job run id is unknown.
	ErrExecutionNotFound = errors.New("job execution not found")
	// ErrDuplicateRun is returned when the instance was already completed with the same parameters.
	ErrDuplicateRun = errors.New("job instance already completed")
	// ErrRunInProgress is returned when a run of the same instance has not finished yet.
	ErrRunInProgress = errors.New("job instance already running")
)

// ValidationError reports an item that failed a validating processor.
type ValidationError struct {
	Item   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Item, e.Reason)
}

// ResourceError reports an item source or sink whose backing resource is unavailable.
type ResourceError struct {
	Resource string
	Err      error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource %s unavailable: %v", e.Resource, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }
