// Package batch implements chunk-oriented job execution: item readers,
// processors and writers, tasklet and chunk steps, job definitions and the
// launcher that runs them while tracking job and step state.
package batch

import (
	"context"
	"io"
)

// ItemReader produces items one at a time. It returns io.EOF once the input
// is exhausted and on every call after that.
type ItemReader[T any] interface {
	Read(ctx context.Context) (T, error)
}

// ItemWriter receives one chunk per call. A returned error fails the step.
type ItemWriter[T any] interface {
	Write(ctx context.Context, items []T) error
}

// ItemProcessor transforms a single item. A non-nil error is fatal to the step;
// items are excluded from the chunk by returning Dropped.
type ItemProcessor[T any] interface {
	Process(ctx context.Context, item T) (Result[T], error)
}

// Result is the outcome of processing one item: either kept (possibly modified)
// or dropped with a reason.
type Result[T any] struct {
	Item    T
	Dropped bool
	Reason  string
}

// Kept returns a result that passes item on.
func Kept[T any](item T) Result[T] {
	return Result[T]{Item: item}
}

// Dropped returns a result excluding the item from its chunk.
func Dropped[T any](reason string) Result[T] {
	return Result[T]{Dropped: true, Reason: reason}
}

// ReaderFunc adapts a function to ItemReader.
type ReaderFunc[T any] func(ctx context.Context) (T, error)

func (f ReaderFunc[T]) Read(ctx context.Context) (T, error) { return f(ctx) }

// WriterFunc adapts a function to ItemWriter.
type WriterFunc[T any] func(ctx context.Context, items []T) error

func (f WriterFunc[T]) Write(ctx context.Context, items []T) error { return f(ctx, items) }

// SliceReader reads items from an in-memory slice.
type SliceReader[T any] struct {
	items []T
	pos   int
}

// NewSliceReader returns a reader over a copy of items.
func NewSliceReader[T any](items []T) *SliceReader[T] {
	return &SliceReader[T]{items: append([]T(nil), items...)}
}

func (r *SliceReader[T]) Read(_ context.Context) (T, error) {
	var zero T
	if r.pos >= len(r.items) {
		return zero, io.EOF
	}
	item := r.items[r.pos]
	r.pos++
	return item, nil
}
