package memory

import (
	"context"
	"testing"
	"time"

	"customer-report/internal/domain"

	"github.com/stretchr/testify/require"
)

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

func TestCreateExecutionAdmission(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository()
	now := time.Now()

	first := newExec("e1", "a", now)
	require.NoError(t, repo.CreateExecution(ctx, first))

	// Still not finished.
	err := repo.CreateExecution(ctx, newExec("e2", "a", now))
	require.ErrorIs(t, err, domain.ErrRunInProgress)

	first.Status = domain.BatchStatusCompleted
	require.NoError(t, repo.UpdateExecution(ctx, first))

	err = repo.CreateExecution(ctx, newExec("e3", "a", now))
	require.ErrorIs(t, err, domain.ErrDuplicateRun)

	require.NoError(t, repo.CreateExecution(ctx, newExec("e4", "b", now)))

	count, err := repo.InstanceCount(ctx, "report")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestFailedInstanceCanRestart(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository()

	first := newExec("e1", "a", time.Now())
	require.NoError(t, repo.CreateExecution(ctx, first))
	first.Status = domain.BatchStatusFailed
	require.NoError(t, repo.UpdateExecution(ctx, first))

	require.NoError(t, repo.CreateExecution(ctx, newExec("e2", "a", time.Now())))

	count, err := repo.InstanceCount(ctx, "report")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestStoredExecutionsAreCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository()

	exec := newExec("e1", "a", time.Now())
	require.NoError(t, repo.CreateExecution(ctx, exec))
	exec.Status = domain.BatchStatusRunning

	got, err := repo.GetExecution(ctx, "report", "e1")
	require.NoError(t, err)
	require.Equal(t, domain.BatchStatusNotStarted, got.Status)

	_, err = repo.GetExecution(ctx, "other", "e1")
	require.ErrorIs(t, err, domain.ErrExecutionNotFound)
}

func TestListExecutionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, key := range []string{"a", "b", "c"} {
		require.NoError(t, repo.CreateExecution(ctx, newExec("e-"+key, key, base.Add(time.Duration(i)*time.Minute))))
	}

	page1, err := repo.ListExecutions(ctx, "report", 1, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.Equal(t, "e-c", page1[0].ID)
	require.Equal(t, "e-b", page1[1].ID)

	page2, err := repo.ListExecutions(ctx, "report", 2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	require.Equal(t, "e-a", page2[0].ID)

	names, err := repo.JobNames(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"report"}, names)
}

func TestLocker(t *testing.T) {
	ctx := context.Background()
	locker := NewLocker()

	l1, err := locker.Lock(ctx, "report")
	require.NoError(t, err)

	_, err = locker.Lock(ctx, "report")
	require.ErrorIs(t, err, domain.ErrLockNotAcquired)

	require.NoError(t, l1.Unlock(ctx))
	require.NoError(t, l1.Unlock(ctx))

	l2, err := locker.Lock(ctx, "report")
	require.NoError(t, err)
	require.NoError(t, l2.Unlock(ctx))
}
