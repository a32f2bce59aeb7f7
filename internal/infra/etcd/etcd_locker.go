package etcd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"customer-report/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// LockPrefix is the etcd root of job run locks: /batch/locks/{job}.
	LockPrefix = "/batch/locks/"
	// LockSessionTTL bounds how long a lock outlives a crashed holder, in seconds.
	LockSessionTTL = 10
	// lockAttemptTimeout caps a single TryLock round trip.
	lockAttemptTimeout = 2 * time.Second
)

// jobLock is a held job run lock. Its session lease keeps the key alive for
// as long as the run lasts.
type jobLock struct {
	mutex   *concurrency.Mutex
	session *concurrency.Session
	jobName string
	once    sync.Once
	err     error
}

// Unlock releases the lock and revokes its lease. Further calls return the
// result of the first.
func (l *jobLock) Unlock(ctx context.Context) error {
	l.once.Do(func() {
		if err := l.mutex.Unlock(ctx); err != nil {
			l.err = fmt.Errorf("failed to unlock job %s: %w", l.jobName, err)
		}
		// Closing the session revokes the lease, which deletes the key even if
		// Unlock failed.
		if err := l.session.Close(); err != nil && l.err == nil {
			l.err = fmt.Errorf("failed to close lock session of job %s: %w", l.jobName, err)
		}
	})
	return l.err
}

type etcdLocker struct {
	client *clientv3.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// NewEtcdLocker creates a domain.Locker whose job locks are shared by every
// process using the same cluster.
func NewEtcdLocker(client *clientv3.Client, logger *slog.Logger) domain.Locker {
	return &etcdLocker{
		client: client,
		logger: logger.With("component", "etcd-locker"),
		tracer: otel.Tracer("customer-report-etcd-locker"),
	}
}

// Lock takes the run lock of a job without waiting for its holder. It returns
// domain.ErrLockNotAcquired while another run holds the lock and ctx's error
// if ctx ends first.
func (l *etcdLocker) Lock(ctx context.Context, jobName string) (domain.Lock, error) {
	ctx, span := l.tracer.Start(ctx, "locker.etcd.Lock",
		trace.WithAttributes(attribute.String("job.name", jobName)))
	defer span.End()

	// The session outlives ctx: its lease must stay alive for the whole run.
	session, err := concurrency.NewSession(l.client, concurrency.WithTTL(LockSessionTTL))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create lock session")
		return nil, fmt.Errorf("failed to create etcd session for job %s: %w", jobName, err)
	}

	mutex := concurrency.NewMutex(session, LockPrefix+jobName)
	tryCtx, cancel := context.WithTimeout(ctx, lockAttemptTimeout)
	defer cancel()

	err = mutex.TryLock(tryCtx)
	if err == nil {
		return &jobLock{mutex: mutex, session: session, jobName: jobName}, nil
	}
	_ = session.Close()

	switch {
	case errors.Is(err, concurrency.ErrLocked):
		span.AddEvent("lock_held_elsewhere")
		l.logger.Debug("job lock held by another run", "job_name", jobName)
		return nil, domain.ErrLockNotAcquired
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to acquire job lock")
		return nil, fmt.Errorf("failed to acquire etcd lock for job %s: %w", jobName, err)
	}
}
