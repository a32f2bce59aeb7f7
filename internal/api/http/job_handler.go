// internal/api/http/job_handler.go
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"customer-report/internal/domain"
	"customer-report/internal/metrics"
	"customer-report/internal/usecase"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// JobHandler serves the admin API for jobs and their runs.
type JobHandler struct {
	service  *usecase.JobService
	logger   *slog.Logger
	validate *validator.Validate
	tracer   trace.Tracer
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(service *usecase.JobService, logger *slog.Logger) *JobHandler {
	return &JobHandler{
		service:  service,
		logger:   logger.With("component", "job-handler"),
		validate: validator.New(),
		tracer:   otel.Tracer("customer-report-api"),
	}
}

type instrumentedResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *instrumentedResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// RegisterRoutes registers job routes on mux.
func (h *JobHandler) RegisterRoutes(mux *http.ServeMux) {
	baseHandler := http.HandlerFunc(h.handleJobs)

	instrumentedHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := routeTemplate(r.URL.Path)

		ctx, span := h.tracer.Start(r.Context(), "HTTP "+r.Method+" "+path, trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		))
		defer span.End()

		r = r.WithContext(ctx)

		iw := &instrumentedResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		baseHandler.ServeHTTP(iw, r)

		metrics.HttpRequestsTotal.WithLabelValues(path, r.Method, strconv.Itoa(iw.statusCode)).Inc()

		span.SetAttributes(attribute.Int("http.status_code", iw.statusCode))
		if iw.statusCode >= 500 {
			span.SetStatus(codes.Error, "Server Error")
		}
	})

	mux.Handle("/jobs/", instrumentedHandler)
}

// routeTemplate maps a request path to a low-cardinality metric label.
func routeTemplate(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	switch len(parts) {
	case 1:
		return "/jobs/"
	case 2:
		return "/jobs/{name}"
	case 3:
		return "/jobs/{name}/runs"
	default:
		return "/jobs/{name}/runs/{id}"
	}
}

// handleJobs dispatches everything under /jobs/.
func (h *JobHandler) handleJobs(w http.ResponseWriter, r *http.Request) {
	// e.g. /jobs/customerReportJob/runs/<id> -> ["jobs", "customerReportJob", "runs", "<id>"]
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	if len(pathParts) < 1 || pathParts[0] != "jobs" || len(pathParts) > 4 {
		http.NotFound(w, r)
		return
	}

	var jobName, action, runID string
	if len(pathParts) > 1 {
		jobName = pathParts[1]
	}
	if len(pathParts) > 2 {
		action = pathParts[2]
	}
	if len(pathParts) > 3 {
		runID = pathParts[3]
	}
	if action != "" && action != "runs" {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		switch {
		case jobName == "":
			h.handleListJobs(w, r)
		case action == "runs" && runID == "":
			h.handleListRuns(w, r, jobName)
		case action == "runs":
			h.handleGetRun(w, r, jobName, runID)
		default:
			http.NotFound(w, r)
		}
	case http.MethodPost:
		if jobName != "" && action == "runs" && runID == "" {
			h.handleLaunchRun(w, r, jobName)
		} else {
			http.NotFound(w, r)
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *JobHandler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.ListJobs")
	defer span.End()

	jobs, err := h.service.ListJobs(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to list jobs from service")
		span.RecordError(err)
		h.logger.Error("error listing jobs", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, jobs)
}

// handleListRuns handles GET /jobs/{name}/runs?page=&pageSize=
func (h *JobHandler) handleListRuns(w http.ResponseWriter, r *http.Request, name string) {
	ctx, span := h.tracer.Start(r.Context(), "handler.ListRuns")
	defer span.End()
	span.SetAttributes(attribute.String("job.name", name))

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20 // default and max page size
	}
	span.SetAttributes(attribute.Int("page", page), attribute.Int("page_size", pageSize))

	runs, err := h.service.ListRuns(ctx, name, page, pageSize)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to list runs from service")
		span.RecordError(err)
		h.writeServiceError(w, "error listing job runs", name, err)
		return
	}

	resp := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, NewRunResponse(run))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *JobHandler) handleGetRun(w http.ResponseWriter, r *http.Request, name, id string) {
	ctx, span := h.tracer.Start(r.Context(), "handler.GetRun")
	defer span.End()
	span.SetAttributes(attribute.String("job.name", name), attribute.String("execution.id", id))

	run, err := h.service.GetRun(ctx, name, id)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to get run from service")
		span.RecordError(err)
		h.writeServiceError(w, "error getting job run", name, err)
		return
	}

	writeJSON(w, http.StatusOK, NewRunResponse(run))
}

// handleLaunchRun handles POST /jobs/{name}/runs.
func (h *JobHandler) handleLaunchRun(w http.ResponseWriter, r *http.Request, name string) {
	ctx, span := h.tracer.Start(r.Context(), "handler.LaunchRun")
	defer span.End()
	span.SetAttributes(attribute.String("job.name", name))

	var req LaunchRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		span.SetStatus(codes.Error, "Failed to decode request body")
		span.RecordError(err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		span.SetStatus(codes.Error, "Validation failed")
		span.RecordError(err)
		var validationErrors []string
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) {
			for _, fe := range fieldErrors {
				validationErrors = append(validationErrors,
					"Field '"+fe.Namespace()+"' failed on the '"+fe.Tag()+"' tag.",
				)
			}
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "Validation failed",
			"details": validationErrors,
		})
		return
	}

	run, err := h.service.Launch(ctx, name, req.ToParameters())
	if err != nil {
		span.SetStatus(codes.Error, "Failed to launch job")
		span.RecordError(err)
		h.writeServiceError(w, "error launching job", name, err)
		return
	}

	writeJSON(w, http.StatusAccepted, NewRunResponse(run))
}

func (h *JobHandler) writeServiceError(w http.ResponseWriter, msg, name string, err error) {
	switch {
	case errors.Is(err, domain.ErrJobNotFound), errors.Is(err, domain.ErrExecutionNotFound):
		h.logger.Warn(msg, "job_name", name, "error", err)
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrDuplicateRun), errors.Is(err, domain.ErrRunInProgress),
		errors.Is(err, domain.ErrLockNotAcquired):
		h.logger.Warn(msg, "job_name", name, "error", err)
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error(msg, "job_name", name, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
