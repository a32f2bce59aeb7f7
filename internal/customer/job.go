package customer

import (
	"context"
	"log/slog"
	"time"

	"customer-report/internal/batch"
	"customer-report/internal/domain"
)

const (
	JobName         = "customerReportJob"
	TaskletStepName = "taskletStep"
	ChunkStepName   = "chunkStep"
)

// JobConfig parameterises the customer report job.
type JobConfig struct {
	DataFile         string
	OutputFile       string
	ChunkSize        int
	TransactionLimit int
	// Tasklet runs as the first step. Defaults to batch.NoopTasklet.
	Tasklet batch.Tasklet
	// Now is the clock used by the birthday filter. Defaults to time.Now.
	Now func() time.Time
}

// NewReportJob builds the two-step report job: a tasklet followed by the
// chunked read, filter, validate and write step.
func NewReportJob(cfg JobConfig, logger *slog.Logger) (*batch.Job, error) {
	if cfg.Tasklet == nil {
		cfg.Tasklet = batch.NoopTasklet(logger)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TransactionLimit == 0 {
		cfg.TransactionLimit = DefaultTransactionLimit
	}

	tasklet := batch.NewTaskletStep(TaskletStepName, cfg.Tasklet, logger)

	processor := batch.NewComposite[domain.Customer](
		NewBirthdayFilter(cfg.Now),
		NewTransactionValidator(cfg.TransactionLimit),
	)
	chunk, err := batch.NewChunkStep[domain.Customer](ChunkStepName, cfg.ChunkSize,
		func(context.Context) (batch.ItemReader[domain.Customer], error) {
			return NewFileReader(cfg.DataFile, logger), nil
		},
		processor,
		func(context.Context) (batch.ItemWriter[domain.Customer], error) {
			return OpenLineWriter(cfg.OutputFile, logger), nil
		},
		logger,
	)
	if err != nil {
		return nil, err
	}

	return batch.NewJob(JobName, tasklet, chunk)
}
