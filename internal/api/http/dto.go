package http

import (
	"time"

	"customer-report/internal/domain"
)

// LaunchRunRequest is the body of POST /jobs/{name}/runs.
type LaunchRunRequest struct {
	Parameters map[string]string `json:"parameters" validate:"required,min=1,dive,keys,required,endkeys,required"`
}

// ToParameters converts the request to job parameters.
func (r *LaunchRunRequest) ToParameters() domain.JobParameters {
	params := make(domain.JobParameters, len(r.Parameters))
	for k, v := range r.Parameters {
		params[k] = v
	}
	return params
}

// StepResponse is the API view of a step execution.
type StepResponse struct {
	Name        string             `json:"name"`
	Status      domain.BatchStatus `json:"status"`
	ReadCount   int                `json:"read_count"`
	FilterCount int                `json:"filter_count"`
	WriteCount  int                `json:"write_count"`
	CommitCount int                `json:"commit_count"`
	ExitMessage string             `json:"exit_message,omitempty"`
	Error       string             `json:"error,omitempty"`
	Duration    string             `json:"duration,omitempty"`
}

// RunResponse is the API view of a job run.
type RunResponse struct {
	ID         string               `json:"id"`
	JobName    string               `json:"job_name"`
	Parameters domain.JobParameters `json:"parameters"`
	Status     domain.BatchStatus   `json:"status"`
	CreateTime time.Time            `json:"create_time"`
	StartTime  *time.Time           `json:"start_time,omitempty"`
	EndTime    *time.Time           `json:"end_time,omitempty"`
	Steps      []StepResponse       `json:"steps"`
	Error      string               `json:"error,omitempty"`
}

// NewRunResponse converts a job execution to its API view.
func NewRunResponse(exec *domain.JobExecution) RunResponse {
	resp := RunResponse{
		ID:         exec.ID,
		JobName:    exec.JobName,
		Parameters: exec.Parameters,
		Status:     exec.Status,
		CreateTime: exec.CreateTime,
		StartTime:  optionalTime(exec.StartTime),
		EndTime:    optionalTime(exec.EndTime),
		Steps:      make([]StepResponse, 0, len(exec.Steps)),
		Error:      exec.Error,
	}
	for _, s := range exec.Steps {
		step := StepResponse{
			Name:        s.Name,
			Status:      s.Status,
			ReadCount:   s.ReadCount,
			FilterCount: s.FilterCount,
			WriteCount:  s.WriteCount,
			CommitCount: s.CommitCount,
			ExitMessage: s.ExitMessage,
			Error:       s.Error,
		}
		if !s.StartTime.IsZero() && !s.EndTime.IsZero() {
			step.Duration = s.EndTime.Sub(s.StartTime).String()
		}
		resp.Steps = append(resp.Steps, step)
	}
	return resp
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
