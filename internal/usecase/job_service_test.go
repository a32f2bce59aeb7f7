package usecase

import (
	"context"
	"log/slog"
	"testing"

	"customer-report/internal/batch"
	"customer-report/internal/domain"
	"customer-report/internal/infra/memory"

	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*JobService, *batch.Launcher) {
	t.Helper()
	repo := memory.NewJobRepository()
	launcher := batch.NewLauncher(repo, slog.Default())
	job, err := batch.NewJob("report", batch.NewTaskletStep("taskletStep", batch.NoopTasklet(slog.Default()), slog.Default()))
	require.NoError(t, err)
	return NewJobService(repo, launcher, slog.Default(), job), launcher
}

func TestLaunchAndHistory(t *testing.T) {
	ctx := context.Background()
	svc, launcher := newService(t)

	run, err := svc.Launch(ctx, "report", domain.JobParameters{"run.id": "1"})
	require.NoError(t, err)
	launcher.Wait()

	got, err := svc.GetRun(ctx, "report", run.ID)
	require.NoError(t, err)
	require.Equal(t, domain.BatchStatusCompleted, got.Status)

	_, err = svc.Launch(ctx, "report", domain.JobParameters{"run.id": "1"})
	require.ErrorIs(t, err, domain.ErrDuplicateRun)

	_, err = svc.Launch(ctx, "report", domain.JobParameters{"run.id": "2"})
	require.NoError(t, err)
	launcher.Wait()

	runs, err := svc.ListRuns(ctx, "report", 1, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	jobs, err := svc.ListJobs(ctx)
	require.NoError(t, err)
	require.Equal(t, []JobSummary{{Name: "report", Steps: []string{"taskletStep"}, Instances: 2}}, jobs)

	require.NoError(t, svc.Summary(ctx))
}

func TestUnknownJob(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.Launch(ctx, "missing", domain.JobParameters{"a": "b"})
	require.ErrorIs(t, err, domain.ErrJobNotFound)

	_, err = svc.ListRuns(ctx, "missing", 1, 10)
	require.ErrorIs(t, err, domain.ErrJobNotFound)

	_, err = svc.GetRun(ctx, "missing", "id")
	require.ErrorIs(t, err, domain.ErrJobNotFound)

	_, err = svc.GetRun(ctx, "report", "id")
	require.ErrorIs(t, err, domain.ErrExecutionNotFound)
}
