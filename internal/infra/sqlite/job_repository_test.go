package sqlite

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"customer-report/internal/domain"

	"github.com/stretchr/testify/require"
)

func openRepo(t *testing.T) *JobRepository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "batch.db"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newExec(id, key string, created time.Time) *domain.JobExecution {
	return &domain.JobExecution{
		ID:          id,
		JobName:     "report",
		InstanceKey: key,
		Parameters:  domain.JobParameters{"run.id": key},
		Status:      domain.BatchStatusNotStarted,
		CreateTime:  created,
	}
}

func TestAdmission(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	now := time.Now()

	first := newExec("e1", "a", now)
	require.NoError(t, repo.CreateExecution(ctx, first))
	require.ErrorIs(t, repo.CreateExecution(ctx, newExec("e2", "a", now)), domain.ErrRunInProgress)

	first.Status = domain.BatchStatusFailed
	require.NoError(t, repo.UpdateExecution(ctx, first))

	retry := newExec("e3", "a", now.Add(time.Second))
	require.NoError(t, repo.CreateExecution(ctx, retry))
	retry.Status = domain.BatchStatusCompleted
	require.NoError(t, repo.UpdateExecution(ctx, retry))

	require.ErrorIs(t, repo.CreateExecution(ctx, newExec("e4", "a", now)), domain.ErrDuplicateRun)
	require.NoError(t, repo.CreateExecution(ctx, newExec("e5", "b", now)))

	count, err := repo.InstanceCount(ctx, "report")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	names, err := repo.JobNames(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"report"}, names)
}

func TestGetAndList(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, key := range []string{"a", "b", "c"} {
		exec := newExec("e-"+key, key, base.Add(time.Duration(i)*time.Minute))
		exec.Steps = []*domain.StepExecution{{Name: "chunkStep", Status: domain.BatchStatusNotStarted}}
		require.NoError(t, repo.CreateExecution(ctx, exec))
	}

	got, err := repo.GetExecution(ctx, "report", "e-b")
	require.NoError(t, err)
	require.Equal(t, "b", got.InstanceKey)
	require.Len(t, got.Steps, 1)

	_, err = repo.GetExecution(ctx, "report", "missing")
	require.ErrorIs(t, err, domain.ErrExecutionNotFound)

	page, err := repo.ListExecutions(ctx, "report", 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "e-c", page[0].ID)
	require.Equal(t, "e-b", page[1].ID)

	all, err := repo.ListExecutions(ctx, "report", 1, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestUpdateUnknownExecution(t *testing.T) {
	repo := openRepo(t)
	err := repo.UpdateExecution(context.Background(), newExec("nope", "a", time.Now()))
	require.ErrorIs(t, err, domain.ErrExecutionNotFound)
}
