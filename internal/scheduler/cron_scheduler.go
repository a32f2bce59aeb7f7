// internal/scheduler/cron_scheduler.go
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"customer-report/internal/batch"
	"customer-report/internal/domain"
	"customer-report/internal/metrics"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// ParamRunID and ParamRunTime make every scheduled run a new job instance.
	ParamRunID   = "run.id"
	ParamRunTime = "run.time"
)

// Launcher runs a job to completion. A launcher built with batch.WithLocker
// refuses to overlap runs of the same job with domain.ErrLockNotAcquired.
type Launcher interface {
	Run(ctx context.Context, job *batch.Job, params domain.JobParameters) (*domain.JobExecution, error)
}

// CronScheduler fires job runs on cron schedules. Job definitions are
// registered once; each tick only builds new parameters.
type CronScheduler struct {
	cron     *cron.Cron
	launcher Launcher
	jobs     map[string]cron.EntryID
	mu       sync.Mutex
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewCronScheduler creates a scheduler firing runs through launcher.
func NewCronScheduler(launcher Launcher, logger *slog.Logger) *CronScheduler {
	return &CronScheduler{
		cron:     cron.New(cron.WithSeconds()),
		launcher: launcher,
		jobs:     make(map[string]cron.EntryID),
		logger:   logger.With("component", "cron-scheduler"),
		tracer:   otel.Tracer("customer-report-scheduler"),
	}
}

// Start runs the scheduler until ctx is done, then waits for running ticks.
func (s *CronScheduler) Start(ctx context.Context) error {
	s.logger.Info("cron scheduler started")
	s.cron.Start()
	<-ctx.Done()
	s.logger.Info("cron scheduler stopping...")
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("cron scheduler stopped")
	return ctx.Err()
}

// AddJob schedules job on spec, replacing any previous schedule for the same job.
func (s *CronScheduler) AddJob(job *batch.Job, spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.jobs[job.Name()]; ok {
		s.cron.Remove(entryID)
	}

	entryID, err := s.cron.AddJob(spec, s.newTick(job))
	if err != nil {
		s.logger.Error("failed to add job to cron", "job_name", job.Name(), "error", err)
		return err
	}

	s.jobs[job.Name()] = entryID
	s.logger.Info("added job to scheduler", "job_name", job.Name(), "schedule", spec)
	return nil
}

// RemoveJob unschedules a job.
func (s *CronScheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.jobs[name]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		s.logger.Info("removed job from scheduler", "job_name", name)
	}
}

func (s *CronScheduler) newTick(job *batch.Job) *tick {
	return &tick{
		job:      job,
		launcher: s.launcher,
		logger:   s.logger.With("job_name", job.Name()),
		tracer:   s.tracer,
		now:      time.Now,
	}
}

// tick is the cron.Job fired for a scheduled batch job. cron runs each
// firing on its own goroutine, so a long run never delays the timer.
type tick struct {
	job      *batch.Job
	launcher Launcher
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NextParameters builds the unique parameters of one scheduled run.
func NextParameters(now time.Time) domain.JobParameters {
	return domain.JobParameters{
		ParamRunID:   uuid.NewString(),
		ParamRunTime: now.UTC().Format(time.RFC3339Nano),
	}
}

// Run is called by the cron library.
func (t *tick) Run() {
	ctx, span := t.tracer.Start(context.Background(), "scheduler.Tick",
		trace.WithAttributes(attribute.String("job.name", t.job.Name())))
	defer span.End()

	params := NextParameters(t.now())
	span.SetAttributes(attribute.String("run.id", params[ParamRunID]))

	exec, err := t.launcher.Run(ctx, t.job, params)
	if errors.Is(err, domain.ErrLockNotAcquired) {
		metrics.SchedulerTicksTotal.WithLabelValues(t.job.Name(), "skipped").Inc()
		span.AddEvent("skipped_tick", trace.WithAttributes(attribute.String("reason", "previous_run_active")))
		t.logger.Warn("skipping tick, previous run still active")
		return
	}
	if err != nil {
		metrics.SchedulerTicksTotal.WithLabelValues(t.job.Name(), "rejected").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "launch rejected")
		t.logger.Error("failed to launch job", "error", err)
		return
	}
	metrics.SchedulerTicksTotal.WithLabelValues(t.job.Name(), "launched").Inc()
	t.logger.Info("exit status", "execution_id", exec.ID, "status", exec.Status)
}
