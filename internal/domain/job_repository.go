package domain

import "context"

// JobRepository persists job runs and enforces instance admission.
type JobRepository interface {
	// CreateExecution registers a new run for exec.JobName and exec.InstanceKey.
	// It returns ErrDuplicateRun if the instance already completed and
	// ErrRunInProgress if a run of the instance is still running.
	CreateExecution(ctx context.Context, exec *JobExecution) error
	// UpdateExecution persists the current state of a run.
	UpdateExecution(ctx context.Context, exec *JobExecution) error
	GetExecution(ctx context.Context, jobName, executionID string) (*JobExecution, error)
	// ListExecutions returns runs of a job newest first, with pagination.
	ListExecutions(ctx context.Context, jobName string, page, pageSize int) ([]*JobExecution, error)
	JobNames(ctx context.Context) ([]string, error)
	InstanceCount(ctx context.Context, jobName string) (int, error)
}
