package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"customer-report/internal/batch"
	"customer-report/internal/domain"
	"customer-report/internal/infra/memory"
	"customer-report/internal/usecase"

	"github.com/stretchr/testify/require"
)

type testServer struct {
	mux      *http.ServeMux
	launcher *batch.Launcher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.Default()
	return newTestServerWith(t, batch.NewTaskletStep("taskletStep", batch.NoopTasklet(logger), logger))
}

func newTestServerWith(t *testing.T, steps ...batch.Step) *testServer {
	t.Helper()
	logger := slog.Default()
	repo := memory.NewJobRepository()
	launcher := batch.NewLauncher(repo, logger, batch.WithLocker(memory.NewLocker()))
	job, err := batch.NewJob("report", steps...)
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewJobHandler(usecase.NewJobService(repo, launcher, logger, job), logger).RegisterRoutes(mux)
	return &testServer{mux: mux, launcher: launcher}
}

func (s *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func TestLaunchRun(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(http.MethodPost, "/jobs/report/runs", `{"parameters":{"run.id":"42"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var launched RunResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&launched))
	require.Equal(t, "report", launched.JobName)
	srv.launcher.Wait()

	rec = srv.do(http.MethodGet, "/jobs/report/runs/"+launched.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got RunResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Equal(t, domain.BatchStatusCompleted, got.Status)
	require.Len(t, got.Steps, 1)
	require.Equal(t, domain.BatchStatusCompleted, got.Steps[0].Status)

	rec = srv.do(http.MethodPost, "/jobs/report/runs", `{"parameters":{"run.id":"42"}}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = srv.do(http.MethodGet, "/jobs/report/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []RunResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&runs))
	require.Len(t, runs, 1)
}

func TestLaunchRunWhileAnotherRunHoldsJobLock(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	gate := batch.NewTaskletStep("gate", batch.TaskletFunc(func(context.Context, *domain.StepExecution) (batch.RepeatStatus, error) {
		entered <- struct{}{}
		<-release
		return batch.Finished, nil
	}), slog.Default())
	srv := newTestServerWith(t, gate)

	rec := srv.do(http.MethodPost, "/jobs/report/runs", `{"parameters":{"run.id":"1"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	<-entered

	rec = srv.do(http.MethodPost, "/jobs/report/runs", `{"parameters":{"run.id":"2"}}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	close(release)
	srv.launcher.Wait()

	rec = srv.do(http.MethodPost, "/jobs/report/runs", `{"parameters":{"run.id":"2"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	srv.launcher.Wait()
}

func TestListJobs(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(http.MethodGet, "/jobs/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []usecase.JobSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&jobs))
	require.Len(t, jobs, 1)
	require.Equal(t, "report", jobs[0].Name)
	require.Zero(t, jobs[0].Instances)
}

func TestLaunchRunValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{`},
		{"no parameters", `{}`},
		{"empty parameters", `{"parameters":{}}`},
		{"empty value", `{"parameters":{"run.id":""}}`},
		{"empty key", `{"parameters":{"":"c"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(http.MethodPost, "/jobs/report/runs", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestNotFound(t *testing.T) {
	srv := newTestServer(t)

	require.Equal(t, http.StatusNotFound, srv.do(http.MethodGet, "/jobs/missing/runs", "").Code)
	require.Equal(t, http.StatusNotFound, srv.do(http.MethodGet, "/jobs/report/runs/nope", "").Code)
	require.Equal(t, http.StatusNotFound, srv.do(http.MethodPost, "/jobs/missing/runs", `{"parameters":{"a":"b"}}`).Code)
	require.Equal(t, http.StatusNotFound, srv.do(http.MethodGet, "/jobs/report/history", "").Code)
	require.Equal(t, http.StatusMethodNotAllowed, srv.do(http.MethodDelete, "/jobs/report", "").Code)
}
