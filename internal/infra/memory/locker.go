package memory

import (
	"context"
	"sync"

	"customer-report/internal/domain"
)

// Locker is a process-local domain.Locker.
type Locker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

var _ domain.Locker = (*Locker)(nil)

func NewLocker() *Locker {
	return &Locker{held: make(map[string]struct{})}
}

func (l *Locker) Lock(_ context.Context, name string) (domain.Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[name]; ok {
		return nil, domain.ErrLockNotAcquired
	}
	l.held[name] = struct{}{}
	return &lock{locker: l, name: name}, nil
}

type lock struct {
	locker *Locker
	name   string
	once   sync.Once
}

func (k *lock) Unlock(_ context.Context) error {
	k.once.Do(func() {
		k.locker.mu.Lock()
		delete(k.locker.held, k.name)
		k.locker.mu.Unlock()
	})
	return nil
}
