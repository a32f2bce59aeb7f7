// Package shell runs a preliminary shell command as a tasklet.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"customer-report/internal/batch"
	"customer-report/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultTimeout = 30 * time.Second

// Tasklet implements batch.Tasklet by running a command through bash.
type Tasklet struct {
	command string
	timeout time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer
}

var _ batch.Tasklet = (*Tasklet)(nil)

// NewTasklet creates a tasklet for command. A non-positive timeout means DefaultTimeout.
func NewTasklet(command string, timeout time.Duration, logger *slog.Logger) *Tasklet {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Tasklet{
		command: command,
		timeout: timeout,
		logger:  logger.With("component", "shell-tasklet"),
		tracer:  otel.Tracer("customer-report-shell-tasklet"),
	}
}

// Execute runs the command once. Its combined output is kept as the step's exit message.
func (t *Tasklet) Execute(ctx context.Context, stepExec *domain.StepExecution) (batch.RepeatStatus, error) {
	ctx, span := t.tracer.Start(ctx, "tasklet.shell.Execute",
		trace.WithAttributes(
			attribute.String("step.name", stepExec.Name),
			attribute.String("shell.command", t.command),
		))
	defer span.End()

	t.logger.Info("executing shell command", "command", t.command, "step", stepExec.Name)

	execCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "bash", "-c", t.command)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	output := stdout.String()
	errOutput := stderr.String()

	if output != "" {
		span.SetAttributes(attribute.String("shell.stdout", output))
	}
	if errOutput != "" {
		span.SetAttributes(attribute.String("shell.stderr", errOutput))
		if output != "" {
			output = fmt.Sprintf("[STDERR]:\n%s\n[STDOUT]:\n%s", errOutput, output)
		} else {
			output = fmt.Sprintf("[STDERR]:\n%s", errOutput)
		}
	}
	stepExec.ExitMessage = output

	if err != nil {
		span.SetStatus(codes.Error, "shell command failed")
		span.RecordError(err)
		return batch.Finished, fmt.Errorf("shell command failed: %w", err)
	}

	t.logger.Info("shell command executed successfully", "step", stepExec.Name)
	return batch.Finished, nil
}
