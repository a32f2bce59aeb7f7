// Package memory provides process-local implementations of the domain
// repository and locker interfaces.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"customer-report/internal/domain"
)

type instance struct {
	key        string
	executions []string
}

// JobRepository keeps job runs in memory. Stored executions are copies, so
// callers may keep mutating their own value.
type JobRepository struct {
	mu         sync.RWMutex
	instances  map[string][]*instance // job name -> instances in creation order
	executions map[string]*domain.JobExecution
}

var _ domain.JobRepository = (*JobRepository)(nil)

// NewJobRepository creates an empty repository.
func NewJobRepository() *JobRepository {
	return &JobRepository{
		instances:  make(map[string][]*instance),
		executions: make(map[string]*domain.JobExecution),
	}
}

func (r *JobRepository) CreateExecution(_ context.Context, exec *domain.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.executions[exec.ID]; ok {
		return fmt.Errorf("job execution %s already exists", exec.ID)
	}

	inst := r.findInstance(exec.JobName, exec.InstanceKey)
	if inst != nil {
		for _, id := range inst.executions {
			prev := r.executions[id]
			if prev.Status == domain.BatchStatusCompleted {
				return domain.ErrDuplicateRun
			}
			if !prev.Status.IsTerminal() {
				return domain.ErrRunInProgress
			}
		}
	} else {
		inst = &instance{key: exec.InstanceKey}
		r.instances[exec.JobName] = append(r.instances[exec.JobName], inst)
	}

	inst.executions = append(inst.executions, exec.ID)
	r.executions[exec.ID] = exec.Clone()
	return nil
}

func (r *JobRepository) UpdateExecution(_ context.Context, exec *domain.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.executions[exec.ID]; !ok {
		return fmt.Errorf("update %s: %w", exec.ID, domain.ErrExecutionNotFound)
	}
	r.executions[exec.ID] = exec.Clone()
	return nil
}

func (r *JobRepository) GetExecution(_ context.Context, jobName, executionID string) (*domain.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exec, ok := r.executions[executionID]
	if !ok || exec.JobName != jobName {
		return nil, domain.ErrExecutionNotFound
	}
	return exec.Clone(), nil
}

func (r *JobRepository) ListExecutions(_ context.Context, jobName string, page, pageSize int) ([]*domain.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []*domain.JobExecution
	for _, inst := range r.instances[jobName] {
		for _, id := range inst.executions {
			all = append(all, r.executions[id])
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreateTime.After(all[j].CreateTime)
	})

	start, end := pageBounds(len(all), page, pageSize)
	out := make([]*domain.JobExecution, 0, end-start)
	for _, e := range all[start:end] {
		out = append(out, e.Clone())
	}
	return out, nil
}

func (r *JobRepository) JobNames(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.instances))
	for name := range r.instances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (r *JobRepository) InstanceCount(_ context.Context, jobName string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instances[jobName]), nil
}

func (r *JobRepository) findInstance(jobName, key string) *instance {
	for _, inst := range r.instances[jobName] {
		if inst.key == key {
			return inst
		}
	}
	return nil
}

// pageBounds converts 1-based page numbers into slice bounds.
func pageBounds(n, page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = n
	}
	start := (page - 1) * pageSize
	if start > n {
		start = n
	}
	end := start + pageSize
	if end > n {
		end = n
	}
	return start, end
}
