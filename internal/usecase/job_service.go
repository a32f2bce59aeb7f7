package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"customer-report/internal/batch"
	"customer-report/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Launcher starts job runs in the background.
type Launcher interface {
	Start(ctx context.Context, job *batch.Job, params domain.JobParameters) (*domain.JobExecution, error)
}

// JobSummary describes a registered job and how many instances it has run.
type JobSummary struct {
	Name      string   `json:"name"`
	Steps     []string `json:"steps"`
	Instances int      `json:"instances"`
}

// JobService exposes the registered jobs and their run history.
type JobService struct {
	repo     domain.JobRepository
	launcher Launcher
	jobs     map[string]*batch.Job
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewJobService creates a new JobService for jobs.
func NewJobService(repo domain.JobRepository, launcher Launcher, logger *slog.Logger, jobs ...*batch.Job) *JobService {
	registered := make(map[string]*batch.Job, len(jobs))
	for _, job := range jobs {
		registered[job.Name()] = job
	}
	return &JobService{
		repo:     repo,
		launcher: launcher,
		jobs:     registered,
		logger:   logger.With("component", "job-service"),
		tracer:   otel.Tracer("customer-report-usecase"),
	}
}

// ListJobs lists registered jobs sorted by name.
func (s *JobService) ListJobs(ctx context.Context) ([]JobSummary, error) {
	ctx, span := s.tracer.Start(ctx, "service.ListJobs")
	defer span.End()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)

	summaries := make([]JobSummary, 0, len(names))
	for _, name := range names {
		count, err := s.repo.InstanceCount(ctx, name)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to count job instances")
			return nil, err
		}
		var steps []string
		for _, step := range s.jobs[name].Steps() {
			steps = append(steps, step.Name())
		}
		summaries = append(summaries, JobSummary{Name: name, Steps: steps, Instances: count})
	}
	return summaries, nil
}

// ListRuns lists the runs of a job, newest first.
func (s *JobService) ListRuns(ctx context.Context, jobName string, page, pageSize int) ([]*domain.JobExecution, error) {
	ctx, span := s.tracer.Start(ctx, "service.ListRuns")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.name", jobName),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	)

	if _, ok := s.jobs[jobName]; !ok {
		return nil, domain.ErrJobNotFound
	}
	runs, err := s.repo.ListExecutions(ctx, jobName, page, pageSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list job runs from repository")
	}
	return runs, err
}

// GetRun returns a single run of a job.
func (s *JobService) GetRun(ctx context.Context, jobName, executionID string) (*domain.JobExecution, error) {
	ctx, span := s.tracer.Start(ctx, "service.GetRun")
	defer span.End()
	span.SetAttributes(attribute.String("job.name", jobName), attribute.String("execution.id", executionID))

	if _, ok := s.jobs[jobName]; !ok {
		return nil, domain.ErrJobNotFound
	}
	run, err := s.repo.GetExecution(ctx, jobName, executionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get job run from repository")
	}
	return run, err
}

// Launch starts a run of a registered job with params.
func (s *JobService) Launch(ctx context.Context, jobName string, params domain.JobParameters) (*domain.JobExecution, error) {
	ctx, span := s.tracer.Start(ctx, "service.Launch")
	defer span.End()
	span.SetAttributes(attribute.String("job.name", jobName))

	job, ok := s.jobs[jobName]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	run, err := s.launcher.Start(ctx, job, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to launch job")
		return nil, err
	}
	s.logger.Info("job launched manually", "job_name", jobName, "execution_id", run.ID)
	return run, nil
}

// Summary logs every job known to the repository with its instance count and
// run ids. It is called once at shutdown.
func (s *JobService) Summary(ctx context.Context) error {
	names, err := s.repo.JobNames(ctx)
	if err != nil {
		return fmt.Errorf("list job names: %w", err)
	}
	for _, name := range names {
		count, err := s.repo.InstanceCount(ctx, name)
		if err != nil {
			return fmt.Errorf("count instances of %s: %w", name, err)
		}
		runs, err := s.repo.ListExecutions(ctx, name, 1, 0)
		if err != nil {
			return fmt.Errorf("list runs of %s: %w", name, err)
		}
		ids := make([]string, 0, len(runs))
		for _, run := range runs {
			ids = append(ids, run.ID)
		}
		s.logger.Info("job summary", "job_name", name, "instances", count, "execution_ids", ids)
	}
	return nil
}
