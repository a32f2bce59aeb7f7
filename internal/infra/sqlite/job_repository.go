// Package sqlite stores job runs in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"customer-report/internal/domain"

	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const schema = `
CREATE TABLE IF NOT EXISTS job_instances (
	job_name     TEXT NOT NULL,
	instance_key TEXT NOT NULL,
	completed    INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL,
	PRIMARY KEY (job_name, instance_key)
);
CREATE TABLE IF NOT EXISTS job_executions (
	id           TEXT PRIMARY KEY,
	job_name     TEXT NOT NULL,
	instance_key TEXT NOT NULL,
	status       TEXT NOT NULL,
	body         TEXT NOT NULL,
	created_at   DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_job_executions_instance ON job_executions (job_name, instance_key);
`

// JobRepository implements domain.JobRepository on SQLite.
type JobRepository struct {
	db     *sql.DB
	logger *slog.Logger
	tracer trace.Tracer
}

var _ domain.JobRepository = (*JobRepository)(nil)

// Open opens (creating if needed) the database at path and ensures the schema.
func Open(path string, logger *slog.Logger) (*JobRepository, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	// A single connection serialises admission transactions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &JobRepository{
		db:     db,
		logger: logger.With("component", "sqlite-job-repo"),
		tracer: otel.Tracer("customer-report-sqlite-repo"),
	}, nil
}

func (r *JobRepository) Close() error {
	return r.db.Close()
}

func (r *JobRepository) CreateExecution(ctx context.Context, exec *domain.JobExecution) (err error) {
	ctx, span := r.tracer.Start(ctx, "repo.sqlite.CreateExecution")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.name", exec.JobName),
		attribute.String("execution.id", exec.ID),
	)

	body, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("failed to marshal job execution %s: %w", exec.ID, err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			if !errors.Is(err, domain.ErrDuplicateRun) && !errors.Is(err, domain.ErrRunInProgress) {
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to create job execution")
			}
		}
	}()

	var completed bool
	err = tx.QueryRowContext(ctx,
		`SELECT completed FROM job_instances WHERE job_name = ? AND instance_key = ?`,
		exec.JobName, exec.InstanceKey).Scan(&completed)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO job_instances (job_name, instance_key, completed, created_at) VALUES (?, ?, 0, ?)`,
			exec.JobName, exec.InstanceKey, exec.CreateTime.UTC()); err != nil {
			return fmt.Errorf("failed to insert job instance: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to query job instance: %w", err)
	case completed:
		return domain.ErrDuplicateRun
	default:
		var active int
		if err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM job_executions WHERE job_name = ? AND instance_key = ? AND status NOT IN (?, ?)`,
			exec.JobName, exec.InstanceKey, domain.BatchStatusCompleted, domain.BatchStatusFailed).Scan(&active); err != nil {
			return fmt.Errorf("failed to query running executions: %w", err)
		}
		if active > 0 {
			return domain.ErrRunInProgress
		}
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO job_executions (id, job_name, instance_key, status, body, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.JobName, exec.InstanceKey, exec.Status, string(body), exec.CreateTime.UTC()); err != nil {
		return fmt.Errorf("failed to insert job execution %s: %w", exec.ID, err)
	}
	return tx.Commit()
}

func (r *JobRepository) UpdateExecution(ctx context.Context, exec *domain.JobExecution) error {
	ctx, span := r.tracer.Start(ctx, "repo.sqlite.UpdateExecution")
	defer span.End()
	span.SetAttributes(attribute.String("execution.id", exec.ID), attribute.String("status", string(exec.Status)))

	body, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("failed to marshal job execution %s: %w", exec.ID, err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE job_executions SET status = ?, body = ? WHERE id = ?`,
		exec.Status, string(body), exec.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to update job execution")
		return fmt.Errorf("failed to update job execution %s: %w", exec.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update %s: %w", exec.ID, domain.ErrExecutionNotFound)
	}
	if exec.Status == domain.BatchStatusCompleted {
		if _, err := tx.ExecContext(ctx,
			`UPDATE job_instances SET completed = 1 WHERE job_name = ? AND instance_key = ?`,
			exec.JobName, exec.InstanceKey); err != nil {
			return fmt.Errorf("failed to mark job instance completed: %w", err)
		}
	}
	return tx.Commit()
}

func (r *JobRepository) GetExecution(ctx context.Context, jobName, executionID string) (*domain.JobExecution, error) {
	ctx, span := r.tracer.Start(ctx, "repo.sqlite.GetExecution")
	defer span.End()

	var body string
	err := r.db.QueryRowContext(ctx, `SELECT body FROM job_executions WHERE id = ? AND job_name = ?`,
		executionID, jobName).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrExecutionNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get job execution %s/%s: %w", jobName, executionID, err)
	}

	var exec domain.JobExecution
	if err := json.Unmarshal([]byte(body), &exec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job execution %s: %w", executionID, err)
	}
	return &exec, nil
}

func (r *JobRepository) ListExecutions(ctx context.Context, jobName string, page, pageSize int) ([]*domain.JobExecution, error) {
	ctx, span := r.tracer.Start(ctx, "repo.sqlite.ListExecutions")
	defer span.End()

	if page < 1 {
		page = 1
	}
	limit := -1
	offset := 0
	if pageSize > 0 {
		limit = pageSize
		offset = (page - 1) * pageSize
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT body FROM job_executions WHERE job_name = ? ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		jobName, limit, offset)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list job executions for %s: %w", jobName, err)
	}
	defer rows.Close()

	var execs []*domain.JobExecution
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var exec domain.JobExecution
		if err := json.Unmarshal([]byte(body), &exec); err != nil {
			r.logger.Warn("failed to unmarshal job execution", "job_name", jobName, "error", err)
			continue
		}
		execs = append(execs, &exec)
	}
	return execs, rows.Err()
}

func (r *JobRepository) JobNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT job_name FROM job_instances ORDER BY job_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list job names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *JobRepository) InstanceCount(ctx context.Context, jobName string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM job_instances WHERE job_name = ?`, jobName).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count job instances for %s: %w", jobName, err)
	}
	return n, nil
}
