package customer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"customer-report/internal/domain"
)

// LineWriter appends one human-readable line per customer. Output is flushed
// at the end of every Write and on Close.
type LineWriter struct {
	buf    *bufio.Writer
	closer io.Closer
	count  int
	logger *slog.Logger
}

// NewLineWriter writes to w. Close flushes but does not close w.
func NewLineWriter(w io.Writer, logger *slog.Logger) *LineWriter {
	return &LineWriter{
		buf:    bufio.NewWriter(w),
		logger: logger.With("component", "customer-writer"),
	}
}

// OpenLineWriter appends to the file at path, creating it when missing. If
// the file cannot be opened it falls back to stdout.
func OpenLineWriter(path string, logger *slog.Logger) *LineWriter {
	if path == "" {
		return NewLineWriter(os.Stdout, logger)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		logger.Warn("cannot open report output, writing to stdout", "file", path, "error", err)
		return NewLineWriter(os.Stdout, logger)
	}
	w := NewLineWriter(f, logger)
	w.closer = f
	return w
}

func (w *LineWriter) Write(_ context.Context, items []domain.Customer) error {
	for _, c := range items {
		if _, err := fmt.Fprintln(w.buf, c.String()); err != nil {
			return err
		}
		w.count++
		w.logger.Debug("customer written", "count", w.count, "customer_id", c.ID)
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush report output: %w", err)
	}
	return nil
}

// Count returns the number of lines written so far.
func (w *LineWriter) Count() int { return w.count }

func (w *LineWriter) Close() error {
	err := w.buf.Flush()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
