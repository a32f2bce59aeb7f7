// cmd/batch/main.go
package main

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	http_api "customer-report/internal/api/http"
	"customer-report/internal/batch"
	"customer-report/internal/config"
	"customer-report/internal/customer"
	"customer-report/internal/domain"
	"customer-report/internal/infra/etcd"
	"customer-report/internal/infra/memory"
	"customer-report/internal/infra/shell"
	"customer-report/internal/infra/sqlite"
	"customer-report/internal/scheduler"
	"customer-report/internal/tracing"
	"customer-report/internal/usecase"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	// 1. Initialize logger and load configuration
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	var spanOut io.Writer
	if cfg.TraceSpans {
		spanOut = os.Stderr
	}
	tracerShutdown, err := tracing.InitTracer("customer-report", spanOut)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tracerShutdown(context.Background()); err != nil {
			log.Printf("failed to shutdown tracer: %v", err)
		}
	}()

	// 2. Create root context for lifecycle management
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupGracefulShutdown(cancel)

	// 3. Seed the data file
	if cfg.SeedOnStart {
		customers := customer.Generate(cfg.SeedCount, time.Now(), rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
		if err := customer.SaveCustomers(cfg.DataFile, customers); err != nil {
			log.Fatalf("Failed to seed %s: %v", cfg.DataFile, err)
		}
		logger.Info("seeded customer data", "file", cfg.DataFile, "count", len(customers))
	}

	// 4. Job repository and locker
	repo, locker, closeStore, err := openStore(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open %s job repository: %v", cfg.Repository, err)
	}
	defer closeStore()

	// 5. Job definition, built once
	var tasklet batch.Tasklet
	if cfg.TaskletCommand != "" {
		tasklet = shell.NewTasklet(cfg.TaskletCommand, cfg.TaskletTimeout, logger)
	}
	job, err := customer.NewReportJob(customer.JobConfig{
		DataFile:         cfg.DataFile,
		OutputFile:       cfg.OutputFile,
		ChunkSize:        cfg.ChunkSize,
		TransactionLimit: cfg.TransactionLimit,
		Tasklet:          tasklet,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to build job: %v", err)
	}

	// Forbid applies to scheduled and manual runs alike.
	var launcherOpts []batch.LauncherOption
	if cfg.OverlapPolicy == config.OverlapForbid {
		launcherOpts = append(launcherOpts, batch.WithLocker(locker))
	}
	launcher := batch.NewLauncher(repo, logger, launcherOpts...)
	jobService := usecase.NewJobService(repo, launcher, logger, job)
	cronScheduler := scheduler.NewCronScheduler(launcher, logger)
	if err := cronScheduler.AddJob(job, cfg.Schedule()); err != nil {
		log.Fatalf("Failed to schedule job: %v", err)
	}

	// 6. Routes and metrics endpoint
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	http_api.NewJobHandler(jobService, logger).RegisterRoutes(mux)
	server := &http.Server{
		Addr:    cfg.HttpListenAddr,
		Handler: mux,
	}

	// 7. Run scheduler and HTTP server until shutdown
	g, ctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		if err := cronScheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("starting HTTP API server", "addr", cfg.HttpListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("application stopped with error", "error", err)
	}
	logger.Info("shutting down application gracefully...")

	launcher.Wait()
	if err := jobService.Summary(context.Background()); err != nil {
		logger.Error("failed to summarise job runs", "error", err)
	}
	logger.Info("application shut down")
}

// openStore builds the configured job repository and the locker guarding overlapping runs.
func openStore(cfg *config.Config, logger *slog.Logger) (domain.JobRepository, domain.Locker, func(), error) {
	switch cfg.Repository {
	case "etcd":
		client, err := etcd.NewClient(cfg.EtcdEndpoints, cfg.EtcdTimeout)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("connected to etcd", "endpoints", cfg.EtcdEndpoints)
		closeFn := func() { client.Close() }
		return etcd.NewEtcdJobRepository(client, logger), etcd.NewEtcdLocker(client, logger), closeFn, nil
	case "sqlite":
		repo, err := sqlite.Open(cfg.SqlitePath, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		closeFn := func() { repo.Close() }
		return repo, memory.NewLocker(), closeFn, nil
	default:
		return memory.NewJobRepository(), memory.NewLocker(), func() {}, nil
	}
}

func setupGracefulShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("received signal, initiating graceful shutdown", "signal", sig.String())
		cancel()
	}()
}
