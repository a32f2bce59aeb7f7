// internal/domain/locker.go
package domain

import (
	"context"
	"errors"
)

// ErrLockNotAcquired is returned when a lock cannot be acquired, for example,
// if a run of the same job still holds it.
var ErrLockNotAcquired = errors.New("lock not acquired")

// Lock represents an acquired lock.
type Lock interface {
	// Unlock releases the lock.
	Unlock(ctx context.Context) error
}

// Locker guards against overlapping runs of the same job.
type Locker interface {
	// Lock attempts to acquire a lock for the given name without blocking.
	// If the lock is already held, it must return ErrLockNotAcquired.
	Lock(ctx context.Context, name string) (Lock, error)
}
