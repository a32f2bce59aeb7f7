package domain

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// BatchStatus is the lifecycle state shared by job runs and step executions.
type BatchStatus string

const (
	BatchStatusNotStarted BatchStatus = "not_started"
	BatchStatusRunning    BatchStatus = "running"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed
}

// JobParameters identify a job instance. Runs with equal parameters are the same instance.
type JobParameters map[string]string

// Key returns the canonical identity of the parameter set. Keys and values
// are quoted, so distinct sets never share a key.
func (p JobParameters) Key() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(strconv.Quote(k))
		b.WriteByte('=')
		b.WriteString(strconv.Quote(p[k]))
	}
	return b.String()
}

// StepExecution records the outcome of one step of a job run.
type StepExecution struct {
	Name        string      `json:"name"`
	Status      BatchStatus `json:"status"`
	StartTime   time.Time   `json:"start_time,omitempty"`
	EndTime     time.Time   `json:"end_time,omitempty"`
	ReadCount   int         `json:"read_count"`
	FilterCount int         `json:"filter_count"`
	WriteCount  int         `json:"write_count"`
	CommitCount int         `json:"commit_count"`
	ExitMessage string      `json:"exit_message,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// JobExecution is a single run of a job definition.
type JobExecution struct {
	ID          string           `json:"id"`
	JobName     string           `json:"job_name"`
	InstanceKey string           `json:"instance_key"`
	Parameters  JobParameters    `json:"parameters"`
	Status      BatchStatus      `json:"status"`
	CreateTime  time.Time        `json:"create_time"`
	StartTime   time.Time        `json:"start_time,omitempty"`
	EndTime     time.Time        `json:"end_time,omitempty"`
	Steps       []*StepExecution `json:"steps"`
	Error       string           `json:"error,omitempty"`
}

// Step returns the execution of the named step, or nil.
func (e *JobExecution) Step(name string) *StepExecution {
	for _, s := range e.Steps {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Clone returns a deep copy safe to hand to other goroutines.
func (e *JobExecution) Clone() *JobExecution {
	c := *e
	c.Parameters = make(JobParameters, len(e.Parameters))
	for k, v := range e.Parameters {
		c.Parameters[k] = v
	}
	c.Steps = make([]*StepExecution, len(e.Steps))
	for i, s := range e.Steps {
		sc := *s
		c.Steps[i] = &sc
	}
	return &c
}
