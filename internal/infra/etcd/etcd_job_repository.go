// internal/infra/etcd/etcd_job_repository.go
package etcd

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"

	"customer-report/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// InstanceDir holds one key per job instance: /batch/instances/{job}/{hash(params)}.
	InstanceDir = "/batch/instances/"
	// ExecutionDir holds every run: /batch/executions/{job}/{executionID}.
	ExecutionDir = "/batch/executions/"
)

// instanceRecord is the admission state of one job instance.
type instanceRecord struct {
	JobName     string             `json:"job_name"`
	Key         string             `json:"key"`
	ExecutionID string             `json:"execution_id"`
	Status      domain.BatchStatus `json:"status"`
	Completed   bool               `json:"completed"`
}

type etcdJobRepository struct {
	client *clientv3.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// NewEtcdJobRepository creates a job repository backed by etcd.
func NewEtcdJobRepository(client *clientv3.Client, logger *slog.Logger) domain.JobRepository {
	return &etcdJobRepository{
		client: client,
		logger: logger.With("component", "etcd-job-repo"),
		tracer: otel.Tracer("customer-report-etcd-repo"),
	}
}

func instancePath(jobName, instanceKey string) string {
	sum := sha256.Sum256([]byte(instanceKey))
	return path.Join(InstanceDir, jobName, hex.EncodeToString(sum[:]))
}

func executionPath(jobName, executionID string) string {
	return path.Join(ExecutionDir, jobName, executionID)
}

// CreateExecution admits a new run. The instance key and the execution are
// written in one transaction guarded by the instance key's revision, so two
// concurrent launches of the same instance cannot both succeed.
func (r *etcdJobRepository) CreateExecution(ctx context.Context, exec *domain.JobExecution) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.CreateExecution")
	defer span.End()

	instKey := instancePath(exec.JobName, exec.InstanceKey)
	span.SetAttributes(
		attribute.String("job.name", exec.JobName),
		attribute.String("execution.id", exec.ID),
		attribute.String("etcd.key", instKey),
	)

	resp, err := r.client.Get(ctx, instKey)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get job instance from etcd")
		return fmt.Errorf("failed to get job instance %s from etcd: %w", exec.InstanceKey, err)
	}

	var guard clientv3.Cmp
	if len(resp.Kvs) == 0 {
		guard = clientv3.Compare(clientv3.CreateRevision(instKey), "=", 0)
	} else {
		var inst instanceRecord
		if err := json.Unmarshal(resp.Kvs[0].Value, &inst); err != nil {
			return fmt.Errorf("failed to unmarshal job instance %s: %w", instKey, err)
		}
		if inst.Completed {
			return domain.ErrDuplicateRun
		}
		if !inst.Status.IsTerminal() {
			return domain.ErrRunInProgress
		}
		guard = clientv3.Compare(clientv3.ModRevision(instKey), "=", resp.Kvs[0].ModRevision)
	}

	instJSON, err := json.Marshal(instanceRecord{
		JobName:     exec.JobName,
		Key:         exec.InstanceKey,
		ExecutionID: exec.ID,
		Status:      exec.Status,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal job instance: %w", err)
	}
	execJSON, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("failed to marshal job execution %s: %w", exec.ID, err)
	}

	txn, err := r.client.Txn(ctx).
		If(guard).
		Then(
			clientv3.OpPut(instKey, string(instJSON)),
			clientv3.OpPut(executionPath(exec.JobName, exec.ID), string(execJSON)),
		).
		Commit()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to commit job execution to etcd")
		return fmt.Errorf("failed to create job execution %s in etcd: %w", exec.ID, err)
	}
	if !txn.Succeeded {
		// Another launcher admitted a run of this instance in between.
		return domain.ErrRunInProgress
	}
	return nil
}

func (r *etcdJobRepository) UpdateExecution(ctx context.Context, exec *domain.JobExecution) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.UpdateExecution")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.name", exec.JobName),
		attribute.String("execution.id", exec.ID),
		attribute.String("status", string(exec.Status)),
	)

	execJSON, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("failed to marshal job execution %s: %w", exec.ID, err)
	}
	if _, err := r.client.Put(ctx, executionPath(exec.JobName, exec.ID), string(execJSON)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put job execution to etcd")
		return fmt.Errorf("failed to save job execution %s to etcd: %w", exec.ID, err)
	}

	instKey := instancePath(exec.JobName, exec.InstanceKey)
	resp, err := r.client.Get(ctx, instKey)
	if err != nil {
		return fmt.Errorf("failed to get job instance %s from etcd: %w", exec.InstanceKey, err)
	}
	if len(resp.Kvs) == 0 {
		return fmt.Errorf("job instance for execution %s: %w", exec.ID, domain.ErrExecutionNotFound)
	}
	var inst instanceRecord
	if err := json.Unmarshal(resp.Kvs[0].Value, &inst); err != nil {
		return fmt.Errorf("failed to unmarshal job instance %s: %w", instKey, err)
	}
	if inst.ExecutionID != exec.ID {
		return nil
	}
	inst.Status = exec.Status
	inst.Completed = inst.Completed || exec.Status == domain.BatchStatusCompleted

	instJSON, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("failed to marshal job instance: %w", err)
	}
	if _, err := r.client.Put(ctx, instKey, string(instJSON)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put job instance to etcd")
		return fmt.Errorf("failed to save job instance %s to etcd: %w", exec.InstanceKey, err)
	}
	return nil
}

func (r *etcdJobRepository) GetExecution(ctx context.Context, jobName, executionID string) (*domain.JobExecution, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.GetExecution")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.name", jobName),
		attribute.String("execution.id", executionID),
	)

	resp, err := r.client.Get(ctx, executionPath(jobName, executionID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get job execution from etcd")
		return nil, fmt.Errorf("failed to get job execution %s/%s from etcd: %w", jobName, executionID, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, domain.ErrExecutionNotFound
	}

	var exec domain.JobExecution
	if err := json.Unmarshal(resp.Kvs[0].Value, &exec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job execution %s/%s: %w", jobName, executionID, err)
	}
	return &exec, nil
}

// ListExecutions returns runs newest first.
func (r *etcdJobRepository) ListExecutions(ctx context.Context, jobName string, page, pageSize int) ([]*domain.JobExecution, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.ListExecutions")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.name", jobName),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	)

	prefix := path.Join(ExecutionDir, jobName) + "/"
	resp, err := r.client.Get(ctx, prefix,
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByCreateRevision, clientv3.SortDescend),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list job executions from etcd")
		return nil, fmt.Errorf("failed to list job executions for %s from etcd: %w", jobName, err)
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = len(resp.Kvs)
	}
	startIdx := (page - 1) * pageSize
	endIdx := startIdx + pageSize

	execs := make([]*domain.JobExecution, 0, pageSize)
	for i, kv := range resp.Kvs {
		if i < startIdx {
			continue
		}
		if i >= endIdx {
			break
		}
		var exec domain.JobExecution
		if err := json.Unmarshal(kv.Value, &exec); err != nil {
			r.logger.Warn("failed to unmarshal job execution from etcd", "key", string(kv.Key), "error", err)
			continue
		}
		execs = append(execs, &exec)
	}
	span.SetAttributes(attribute.Int("records_returned", len(execs)))
	return execs, nil
}

func (r *etcdJobRepository) JobNames(ctx context.Context) ([]string, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.JobNames")
	defer span.End()

	resp, err := r.client.Get(ctx, InstanceDir, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list job instances from etcd")
		return nil, fmt.Errorf("failed to list job instances from etcd: %w", err)
	}

	seen := make(map[string]struct{})
	for _, kv := range resp.Kvs {
		if name := jobNameFromKey(string(kv.Key)); name != "" {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (r *etcdJobRepository) InstanceCount(ctx context.Context, jobName string) (int, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.InstanceCount")
	defer span.End()
	span.SetAttributes(attribute.String("job.name", jobName))

	resp, err := r.client.Get(ctx, path.Join(InstanceDir, jobName)+"/", clientv3.WithPrefix(), clientv3.WithCountOnly())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to count job instances in etcd")
		return 0, fmt.Errorf("failed to count job instances for %s in etcd: %w", jobName, err)
	}
	return int(resp.Count), nil
}

// jobNameFromKey extracts {job} from /batch/instances/{job}/{hash}.
func jobNameFromKey(key string) string {
	rest := strings.TrimPrefix(key, InstanceDir)
	if rest == key {
		return ""
	}
	name, _, ok := strings.Cut(rest, "/")
	if !ok {
		return ""
	}
	return name
}
