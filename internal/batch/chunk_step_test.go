package batch_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"customer-report/internal/batch"
	"customer-report/internal/domain"

	"github.com/stretchr/testify/require"
)

// recordingWriter captures every chunk it is handed.
type recordingWriter struct {
	chunks [][]int
	failOn int // 1-based chunk index to fail, 0 = never
	fails  int // remaining failures before succeeding
	closed bool
}

func (w *recordingWriter) Write(_ context.Context, items []int) error {
	if w.failOn == len(w.chunks)+1 && w.fails > 0 {
		w.fails--
		return errors.New("sink unavailable")
	}
	w.chunks = append(w.chunks, items)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

type closingReader struct {
	*batch.SliceReader[int]
	closed bool
}

func (r *closingReader) Close() error {
	r.closed = true
	return nil
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func newStep(t *testing.T, items []int, size int, proc batch.ItemProcessor[int], w *recordingWriter, opts ...batch.ChunkOption) *batch.ChunkStep[int] {
	t.Helper()
	step, err := batch.NewChunkStep[int]("chunk", size,
		func(context.Context) (batch.ItemReader[int], error) { return batch.NewSliceReader(items), nil },
		proc,
		func(context.Context) (batch.ItemWriter[int], error) { return w, nil },
		slog.Default(), opts...)
	require.NoError(t, err)
	return step
}

func TestChunkStepChunkBounds(t *testing.T) {
	tests := []struct {
		name  string
		items int
		size  int
		want  []int
	}{
		{name: "exact multiple", items: 40, size: 20, want: []int{20, 20}},
		{name: "short final chunk", items: 45, size: 20, want: []int{20, 20, 5}},
		{name: "smaller than one chunk", items: 3, size: 20, want: []int{3}},
		{name: "empty input", items: 0, size: 20, want: nil},
		{name: "chunk of one", items: 3, size: 1, want: []int{1, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &recordingWriter{}
			exec := &domain.StepExecution{Name: "chunk"}
			require.NoError(t, newStep(t, seq(tt.items), tt.size, nil, w).Execute(context.Background(), exec))

			var sizes []int
			for _, c := range w.chunks {
				require.GreaterOrEqual(t, len(c), 1)
				require.LessOrEqual(t, len(c), tt.size)
				sizes = append(sizes, len(c))
			}
			require.Equal(t, tt.want, sizes)
			require.Equal(t, tt.items, exec.ReadCount)
			require.Equal(t, tt.items, exec.WriteCount)
			require.Equal(t, len(tt.want), exec.CommitCount)
			require.True(t, w.closed)
		})
	}
}

func TestChunkStepDeliversOnlySurvivors(t *testing.T) {
	even := &batch.FilterFunc[int]{Name: "even", Predicate: func(n int) bool { return n%2 == 0 }}
	w := &recordingWriter{}
	exec := &domain.StepExecution{Name: "chunk"}

	require.NoError(t, newStep(t, seq(25), 4, even, w).Execute(context.Background(), exec))

	var got []int
	for _, c := range w.chunks {
		got = append(got, c...)
	}
	require.Equal(t, []int{0, 2, 4, 6, 8, 10, 12, 14, 16, 18, 20, 22, 24}, got)
	require.Equal(t, 25, exec.ReadCount)
	require.Equal(t, 12, exec.FilterCount)
	require.Equal(t, 13, exec.WriteCount)
	require.Equal(t, 4, exec.CommitCount)
}

func TestChunkStepWriterFailureIsFatal(t *testing.T) {
	w := &recordingWriter{failOn: 2, fails: 1}
	exec := &domain.StepExecution{Name: "chunk"}

	err := newStep(t, seq(50), 10, nil, w).Execute(context.Background(), exec)
	require.ErrorContains(t, err, "write chunk 2")
	require.Len(t, w.chunks, 1)
	require.Equal(t, 1, exec.CommitCount)
	require.Equal(t, 10, exec.WriteCount)
	require.True(t, w.closed)
}

func TestChunkStepRetriesWhenConfigured(t *testing.T) {
	w := &recordingWriter{failOn: 1, fails: 2}
	exec := &domain.StepExecution{Name: "chunk"}

	step := newStep(t, seq(5), 10, nil, w, batch.WithRetry(batch.RetryPolicy{MaxRetries: 2}))
	require.NoError(t, step.Execute(context.Background(), exec))
	require.Len(t, w.chunks, 1)
	require.Equal(t, 5, exec.WriteCount)
}

func TestChunkStepProcessorErrorIsFatal(t *testing.T) {
	strict := &batch.Validating[int]{Validate: func(n int) error {
		if n == 3 {
			return errors.New("three is not allowed")
		}
		return nil
	}}
	w := &recordingWriter{}
	exec := &domain.StepExecution{Name: "chunk"}

	err := newStep(t, seq(10), 2, strict, w).Execute(context.Background(), exec)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, 4, exec.ReadCount)
	require.Len(t, w.chunks, 1)
}

func TestChunkStepClosesReaderOnReadError(t *testing.T) {
	r := &closingReader{SliceReader: batch.NewSliceReader([]int{1})}
	boom := errors.New("disk gone")
	calls := 0
	failing := batch.ReaderFunc[int](func(ctx context.Context) (int, error) {
		calls++
		if calls > 1 {
			return 0, boom
		}
		return r.Read(ctx)
	})
	w := &recordingWriter{}

	step, err := batch.NewChunkStep[int]("chunk", 5,
		func(context.Context) (batch.ItemReader[int], error) {
			return struct {
				batch.ItemReader[int]
				*closingReader
			}{failing, r}, nil
		},
		nil,
		func(context.Context) (batch.ItemWriter[int], error) { return w, nil },
		slog.Default())
	require.NoError(t, err)

	err = step.Execute(context.Background(), &domain.StepExecution{Name: "chunk"})
	require.ErrorIs(t, err, boom)
	require.True(t, r.closed)
	require.True(t, w.closed)
	require.Empty(t, w.chunks)
}

func TestChunkStepReaderOpenFailure(t *testing.T) {
	boom := errors.New("missing")
	step, err := batch.NewChunkStep[int]("chunk", 5,
		func(context.Context) (batch.ItemReader[int], error) { return nil, boom },
		nil,
		func(context.Context) (batch.ItemWriter[int], error) { return &recordingWriter{}, nil },
		slog.Default())
	require.NoError(t, err)
	require.ErrorIs(t, step.Execute(context.Background(), &domain.StepExecution{}), boom)
}

func TestNewChunkStepRejectsBadSize(t *testing.T) {
	_, err := batch.NewChunkStep[int]("chunk", 0,
		func(context.Context) (batch.ItemReader[int], error) { return nil, nil },
		nil,
		func(context.Context) (batch.ItemWriter[int], error) { return nil, nil },
		slog.Default())
	require.Error(t, err)
}
