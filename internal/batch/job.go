package batch

import (
	"errors"
	"fmt"
)

// Job is an immutable, ordered sequence of steps. Build it once at startup
// and launch it with fresh parameters for every run.
type Job struct {
	name  string
	steps []Step
}

// NewJob validates and builds a job definition.
func NewJob(name string, steps ...Step) (*Job, error) {
	if name == "" {
		return nil, errors.New("job name cannot be empty")
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("job %s has no steps", name)
	}
	seen := make(map[string]struct{}, len(steps))
	for _, s := range steps {
		if s == nil {
			return nil, fmt.Errorf("job %s has a nil step", name)
		}
		if _, dup := seen[s.Name()]; dup {
			return nil, fmt.Errorf("job %s declares step %q twice", name, s.Name())
		}
		seen[s.Name()] = struct{}{}
	}
	return &Job{name: name, steps: append([]Step(nil), steps...)}, nil
}

func (j *Job) Name() string { return j.name }

// Steps returns the steps in execution order.
func (j *Job) Steps() []Step {
	return append([]Step(nil), j.steps...)
}
