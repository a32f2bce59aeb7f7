package batch

import (
	"context"
	"fmt"
	"log/slog"

	"customer-report/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Step is one stage of a job. Execute records its progress on exec; the
// launcher owns the status transitions.
type Step interface {
	Name() string
	Execute(ctx context.Context, exec *domain.StepExecution) error
}

// RepeatStatus tells a TaskletStep whether to call the tasklet again.
type RepeatStatus int

const (
	Finished RepeatStatus = iota
	Continuable
)

// Tasklet is a single unit of work called until it reports Finished.
type Tasklet interface {
	Execute(ctx context.Context, exec *domain.StepExecution) (RepeatStatus, error)
}

// TaskletFunc adapts a function to Tasklet.
type TaskletFunc func(ctx context.Context, exec *domain.StepExecution) (RepeatStatus, error)

func (f TaskletFunc) Execute(ctx context.Context, exec *domain.StepExecution) (RepeatStatus, error) {
	return f(ctx, exec)
}

// NoopTasklet only logs that it ran.
func NoopTasklet(logger *slog.Logger) Tasklet {
	return TaskletFunc(func(_ context.Context, exec *domain.StepExecution) (RepeatStatus, error) {
		logger.Info("executing tasklet step", "step", exec.Name)
		return Finished, nil
	})
}

// TaskletStep runs a Tasklet.
type TaskletStep struct {
	name    string
	tasklet Tasklet
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewTaskletStep creates a step around tasklet.
func NewTaskletStep(name string, tasklet Tasklet, logger *slog.Logger) *TaskletStep {
	return &TaskletStep{
		name:    name,
		tasklet: tasklet,
		logger:  logger.With("component", "tasklet-step", "step", name),
		tracer:  otel.Tracer("customer-report-batch"),
	}
}

func (s *TaskletStep) Name() string { return s.name }

func (s *TaskletStep) Execute(ctx context.Context, exec *domain.StepExecution) error {
	ctx, span := s.tracer.Start(ctx, "step.tasklet.Execute",
		trace.WithAttributes(attribute.String("step.name", s.name)))
	defer span.End()

	for iteration := 1; ; iteration++ {
		status, err := s.tasklet.Execute(ctx, exec)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "tasklet failed")
			return fmt.Errorf("tasklet iteration %d: %w", iteration, err)
		}
		if status == Finished {
			span.SetAttributes(attribute.Int("tasklet.iterations", iteration))
			return nil
		}
	}
}
