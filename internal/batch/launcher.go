package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"customer-report/internal/domain"
	"customer-report/internal/metrics"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Launcher admits job runs through the repository and executes their steps in
// order, persisting every job and step state transition.
type Launcher struct {
	repo   domain.JobRepository
	locker domain.Locker
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
	wg     sync.WaitGroup
}

// LauncherOption configures a Launcher.
type LauncherOption func(*Launcher)

// WithLocker makes runs of the same job exclusive: every run holds the lock
// named after its job from admission until it ends, and a launch while the
// lock is held fails with domain.ErrLockNotAcquired.
func WithLocker(locker domain.Locker) LauncherOption {
	return func(l *Launcher) { l.locker = locker }
}

// NewLauncher creates a launcher backed by repo.
func NewLauncher(repo domain.JobRepository, logger *slog.Logger, opts ...LauncherOption) *Launcher {
	l := &Launcher{
		repo:   repo,
		logger: logger.With("component", "job-launcher"),
		tracer: otel.Tracer("customer-report-launcher"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run launches job with params and blocks until the run ends. The returned
// error is non-nil only when the run could not be launched, e.g. ErrDuplicateRun;
// step failures are reported through the execution's status.
func (l *Launcher) Run(ctx context.Context, job *Job, params domain.JobParameters) (*domain.JobExecution, error) {
	exec, lock, err := l.admit(ctx, job, params)
	if err != nil {
		return nil, err
	}
	runCtx := context.WithoutCancel(ctx)
	defer l.release(runCtx, lock, job.Name())
	l.execute(runCtx, job, exec)
	return exec, nil
}

// Start admits a run like Run but executes it on its own goroutine. It returns
// a snapshot of the admitted execution.
func (l *Launcher) Start(ctx context.Context, job *Job, params domain.JobParameters) (*domain.JobExecution, error) {
	exec, lock, err := l.admit(ctx, job, params)
	if err != nil {
		return nil, err
	}
	snapshot := exec.Clone()

	runCtx := context.WithoutCancel(ctx)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.release(runCtx, lock, job.Name())
		l.execute(runCtx, job, exec)
	}()
	return snapshot, nil
}

// Wait blocks until every run started with Start has finished.
func (l *Launcher) Wait() {
	l.wg.Wait()
}

// admit reserves the job's lock, if any, and registers the run. The returned
// lock is nil when the launcher has no locker.
func (l *Launcher) admit(ctx context.Context, job *Job, params domain.JobParameters) (_ *domain.JobExecution, _ domain.Lock, err error) {
	ctx, span := l.tracer.Start(ctx, "launcher.Admit", trace.WithAttributes(
		attribute.String("job.name", job.Name()),
	))
	defer span.End()

	var lock domain.Lock
	if l.locker != nil {
		lock, err = l.locker.Lock(ctx, job.Name())
		if err != nil {
			reason := "lock_error"
			if errors.Is(err, domain.ErrLockNotAcquired) {
				reason = "overlap"
			}
			metrics.JobLaunchRejectedTotal.WithLabelValues(job.Name(), reason).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "job lock not acquired")
			l.logger.Warn("job launch rejected, job lock not acquired", "job_name", job.Name(), "error", err)
			return nil, nil, fmt.Errorf("launch job %s: %w", job.Name(), err)
		}
		defer func() {
			if err != nil {
				l.release(context.WithoutCancel(ctx), lock, job.Name())
			}
		}()
	}

	copied := make(domain.JobParameters, len(params))
	for k, v := range params {
		copied[k] = v
	}

	exec := &domain.JobExecution{
		ID:          uuid.NewString(),
		JobName:     job.Name(),
		InstanceKey: copied.Key(),
		Parameters:  copied,
		Status:      domain.BatchStatusNotStarted,
		CreateTime:  l.now(),
	}
	for _, s := range job.steps {
		exec.Steps = append(exec.Steps, &domain.StepExecution{
			Name:   s.Name(),
			Status: domain.BatchStatusNotStarted,
		})
	}
	span.SetAttributes(
		attribute.String("execution.id", exec.ID),
		attribute.String("instance.key", exec.InstanceKey),
	)

	if err := l.repo.CreateExecution(ctx, exec); err != nil {
		reason := "repository_error"
		switch {
		case errors.Is(err, domain.ErrDuplicateRun):
			reason = "duplicate"
		case errors.Is(err, domain.ErrRunInProgress):
			reason = "in_progress"
		}
		metrics.JobLaunchRejectedTotal.WithLabelValues(job.Name(), reason).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "job launch rejected")
		l.logger.Warn("job launch rejected", "job_name", job.Name(), "parameters", exec.InstanceKey, "error", err)
		return nil, nil, fmt.Errorf("launch job %s: %w", job.Name(), err)
	}
	return exec, lock, nil
}

func (l *Launcher) release(ctx context.Context, lock domain.Lock, jobName string) {
	if lock == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := lock.Unlock(ctx); err != nil {
		l.logger.Error("failed to release job lock", "job_name", jobName, "error", err)
	}
}

func (l *Launcher) execute(ctx context.Context, job *Job, exec *domain.JobExecution) {
	ctx, span := l.tracer.Start(ctx, "launcher.Execute", trace.WithAttributes(
		attribute.String("job.name", exec.JobName),
		attribute.String("execution.id", exec.ID),
	))
	defer span.End()

	logger := l.logger.With("job_name", exec.JobName, "execution_id", exec.ID)

	exec.Status = domain.BatchStatusRunning
	exec.StartTime = l.now()
	l.save(ctx, logger, exec)
	logger.Info("job run started", "parameters", exec.InstanceKey)

	var runErr error
	for i, step := range job.steps {
		if err := l.runStep(ctx, logger, step, exec, exec.Steps[i]); err != nil {
			runErr = fmt.Errorf("step %s: %w", step.Name(), err)
			break
		}
	}

	exec.EndTime = l.now()
	if runErr != nil {
		exec.Status = domain.BatchStatusFailed
		exec.Error = runErr.Error()
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "job run failed")
	} else {
		exec.Status = domain.BatchStatusCompleted
		span.SetStatus(codes.Ok, "job run completed")
	}
	metrics.JobRunsTotal.WithLabelValues(exec.JobName, string(exec.Status)).Inc()
	l.save(ctx, logger, exec)

	logger.Info("job run finished", "status", exec.Status, "duration", exec.EndTime.Sub(exec.StartTime))
}

func (l *Launcher) runStep(ctx context.Context, logger *slog.Logger, step Step, exec *domain.JobExecution, se *domain.StepExecution) error {
	logger = logger.With("step", se.Name)

	se.Status = domain.BatchStatusRunning
	se.StartTime = l.now()
	l.save(ctx, logger, exec)
	logger.Info("step started")

	err := safeExecute(ctx, step, se)

	se.EndTime = l.now()
	if err != nil {
		se.Status = domain.BatchStatusFailed
		se.Error = err.Error()
		logger.Error("step failed", "error", err)
	} else {
		se.Status = domain.BatchStatusCompleted
		logger.Info("step completed", "exit_message", se.ExitMessage)
	}
	metrics.StepExecutionsTotal.WithLabelValues(se.Name, string(se.Status)).Inc()
	l.save(ctx, logger, exec)
	return err
}

// safeExecute turns a panicking step into a failed one.
func safeExecute(ctx context.Context, step Step, se *domain.StepExecution) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return step.Execute(ctx, se)
}

// save persists exec. Failures are logged; the run continues.
func (l *Launcher) save(ctx context.Context, logger *slog.Logger, exec *domain.JobExecution) {
	if err := l.repo.UpdateExecution(ctx, exec); err != nil {
		logger.Error("failed to save job execution", "error", err)
	}
}
