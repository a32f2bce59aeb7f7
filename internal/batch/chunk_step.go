package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"customer-report/internal/domain"
	"customer-report/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RetryPolicy controls how often a failed chunk write is retried.
// The zero value disables retries.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// ChunkOption configures a ChunkStep.
type ChunkOption func(*chunkOptions)

type chunkOptions struct {
	retry RetryPolicy
}

// WithRetry retries failed chunk writes according to p.
func WithRetry(p RetryPolicy) ChunkOption {
	return func(o *chunkOptions) { o.retry = p }
}

// ChunkStep reads items one at a time, passes each through the processor and
// hands survivors to the writer in chunks of at most chunkSize items. Reader
// and writer are created per execution and closed on every exit path.
type ChunkStep[T any] struct {
	name      string
	chunkSize int
	newReader func(ctx context.Context) (ItemReader[T], error)
	processor ItemProcessor[T]
	newWriter func(ctx context.Context) (ItemWriter[T], error)
	opts      chunkOptions
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewChunkStep creates a chunk-oriented step. A nil processor passes items through.
func NewChunkStep[T any](
	name string,
	chunkSize int,
	newReader func(ctx context.Context) (ItemReader[T], error),
	processor ItemProcessor[T],
	newWriter func(ctx context.Context) (ItemWriter[T], error),
	logger *slog.Logger,
	opts ...ChunkOption,
) (*ChunkStep[T], error) {
	if chunkSize < 1 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if newReader == nil || newWriter == nil {
		return nil, fmt.Errorf("chunk step %s needs a reader and a writer", name)
	}
	s := &ChunkStep[T]{
		name:      name,
		chunkSize: chunkSize,
		newReader: newReader,
		processor: processor,
		newWriter: newWriter,
		logger:    logger.With("component", "chunk-step", "step", name),
		tracer:    otel.Tracer("customer-report-batch"),
	}
	for _, opt := range opts {
		opt(&s.opts)
	}
	return s, nil
}

func (s *ChunkStep[T]) Name() string { return s.name }

func (s *ChunkStep[T]) Execute(ctx context.Context, exec *domain.StepExecution) (err error) {
	ctx, span := s.tracer.Start(ctx, "step.chunk.Execute", trace.WithAttributes(
		attribute.String("step.name", s.name),
		attribute.Int("chunk.max_size", s.chunkSize),
	))
	defer func() {
		span.SetAttributes(
			attribute.Int("items.read", exec.ReadCount),
			attribute.Int("items.filtered", exec.FilterCount),
			attribute.Int("items.written", exec.WriteCount),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "chunk step failed")
		}
		span.End()
	}()

	reader, err := s.newReader(ctx)
	if err != nil {
		return fmt.Errorf("open reader: %w", err)
	}
	defer func() {
		if c, ok := reader.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil {
				s.logger.Warn("failed to close reader", "error", cerr)
			}
		}
	}()

	writer, err := s.newWriter(ctx)
	if err != nil {
		return fmt.Errorf("open writer: %w", err)
	}
	defer func() {
		if c, ok := writer.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close writer: %w", cerr)
			}
		}
	}()

	chunk := make([]T, 0, s.chunkSize)
	for {
		item, rerr := reader.Read(ctx)
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return fmt.Errorf("read item %d: %w", exec.ReadCount+1, rerr)
		}
		exec.ReadCount++
		metrics.ItemsTotal.WithLabelValues(s.name, "read").Inc()

		res := Kept(item)
		if s.processor != nil {
			res, err = s.processor.Process(ctx, item)
			if err != nil {
				return fmt.Errorf("process item %d: %w", exec.ReadCount, err)
			}
		}
		if res.Dropped {
			exec.FilterCount++
			metrics.ItemsTotal.WithLabelValues(s.name, "filtered").Inc()
			s.logger.Debug("item dropped", "item", exec.ReadCount, "reason", res.Reason)
			continue
		}

		chunk = append(chunk, res.Item)
		if len(chunk) == s.chunkSize {
			if err := s.commit(ctx, writer, exec, chunk); err != nil {
				return err
			}
			chunk = make([]T, 0, s.chunkSize)
		}
	}

	// The final chunk may be short; an empty one is never written.
	if len(chunk) > 0 {
		if err := s.commit(ctx, writer, exec, chunk); err != nil {
			return err
		}
	}

	exec.ExitMessage = fmt.Sprintf("read=%d filtered=%d written=%d commits=%d",
		exec.ReadCount, exec.FilterCount, exec.WriteCount, exec.CommitCount)
	s.logger.Info("chunk step finished",
		"read", exec.ReadCount, "filtered", exec.FilterCount,
		"written", exec.WriteCount, "commits", exec.CommitCount)
	return nil
}

// commit hands one chunk to the writer. A chunk counts as committed only once
// Write returns without error.
func (s *ChunkStep[T]) commit(ctx context.Context, writer ItemWriter[T], exec *domain.StepExecution, chunk []T) error {
	ctx, span := s.tracer.Start(ctx, "step.chunk.Write", trace.WithAttributes(
		attribute.String("step.name", s.name),
		attribute.Int("chunk.size", len(chunk)),
		attribute.Int("chunk.index", exec.CommitCount+1),
	))
	defer span.End()

	var err error
	for attempt := 0; attempt <= s.opts.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			s.logger.Warn("retrying chunk write", "attempt", attempt, "error", err)
			time.Sleep(s.opts.retry.Backoff)
		}
		if err = writer.Write(ctx, chunk); err == nil {
			break
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chunk write failed")
		return fmt.Errorf("write chunk %d: %w", exec.CommitCount+1, err)
	}

	exec.WriteCount += len(chunk)
	exec.CommitCount++
	metrics.ItemsTotal.WithLabelValues(s.name, "written").Add(float64(len(chunk)))
	metrics.ChunkSize.WithLabelValues(s.name).Observe(float64(len(chunk)))
	return nil
}
