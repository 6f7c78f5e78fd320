package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/abrpack/internal/api/handler"
	"github.com/hszk-dev/abrpack/internal/config"
	"github.com/hszk-dev/abrpack/internal/domain/repository"
	"github.com/hszk-dev/abrpack/internal/infrastructure/cache"
	"github.com/hszk-dev/abrpack/internal/infrastructure/postgres"
	"github.com/hszk-dev/abrpack/internal/infrastructure/queue"
	"github.com/hszk-dev/abrpack/internal/infrastructure/storage"
	"github.com/hszk-dev/abrpack/internal/locator"
	"github.com/hszk-dev/abrpack/internal/transcoder"
	"github.com/hszk-dev/abrpack/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Pipeline.OutputRoot, 0o755); err != nil {
		return fmt.Errorf("failed to create output root: %w", err)
	}

	// Initialize infrastructure clients
	pgClient, err := postgres.NewClient(ctx, postgres.DefaultClientConfig(cfg.Database.DSN()))
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pgClient.Close()
	logger.Info("connected to PostgreSQL")

	storageClient, err := storage.NewClient(ctx, storage.ClientConfig{
		Endpoint:  cfg.MinIO.Endpoint,
		AccessKey: cfg.MinIO.AccessKey,
		SecretKey: cfg.MinIO.SecretKey,
		Bucket:    cfg.MinIO.Bucket,
		UseSSL:    cfg.MinIO.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to MinIO: %w", err)
	}
	logger.Info("connected to MinIO", slog.String("bucket", storageClient.Bucket()))

	queueClient, err := queue.NewClient(ctx, queue.DefaultClientConfig(cfg.RabbitMQ.URL()))
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer queueClient.Close()
	logger.Info("connected to RabbitMQ")

	// Redis is only used to invalidate cached job status
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	jobCache := cache.NewRedisJobCache(redisClient)
	if err := jobCache.Ping(ctx); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("connected to Redis")

	ffmpegCfg := transcoder.DefaultFFmpegConfig()
	ffmpegCfg.FFmpegPath = cfg.Pipeline.FFmpegPath
	ffmpegCfg.FFprobePath = cfg.Pipeline.FFprobePath

	pipelineCfg := usecase.DefaultPipelineConfig()
	pipelineCfg.OutputRoot = cfg.Pipeline.OutputRoot
	pipelineCfg.ConcurrencyLimit = cfg.Pipeline.Concurrency
	pipelineCfg.ThumbnailOffsetSeconds = cfg.Pipeline.ThumbnailOffset
	pipelineCfg.AudioBitrateKbps = ffmpegCfg.AudioBitrateKbps

	pipeline := usecase.NewPipeline(
		transcoder.NewFFmpegTranscoder(ffmpegCfg),
		locator.New(cfg.Pipeline.PublicBaseURL),
		pipelineCfg,
	)

	transcodeSvc := usecase.NewTranscodeService(
		postgres.NewJobRepository(pgClient.Pool()),
		storageClient,
		pipeline,
		jobCache,
		usecase.TranscodeServiceConfig{
			MaxRetries: cfg.Worker.MaxRetries,
			JobTimeout: cfg.Pipeline.JobTimeout,
		},
	)

	health := handler.NewHealthHandler(map[string]handler.Checker{
		"postgres": pgClient,
		"minio":    storageClient,
		"rabbitmq": queueClient,
		"redis":    jobCache,
	}, logger)

	ops := chi.NewRouter()
	ops.Get("/health", health.Live)
	ops.Get("/ready", health.Ready)
	ops.Handle("/metrics", promhttp.Handler())

	opsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
		Handler:           ops,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("starting ops server", slog.Int("port", cfg.Worker.MetricsPort))
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server error", slog.String("error", err.Error()))
		}
	}()
	defer opsSrv.Close()

	// In-flight jobs run on their own context. It is cancelled only once
	// the shutdown timeout expires.
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting worker, consuming transcode tasks",
			slog.Int("concurrency", cfg.Pipeline.Concurrency),
		)
		errCh <- queueClient.ConsumeTranscodeTasks(ctx, func(_ context.Context, task repository.TranscodeTask) error {
			logger.Info("processing task",
				slog.String("job_id", task.JobID.String()),
				slog.Int("retry_count", task.RetryCount),
			)

			if err := transcodeSvc.ProcessTask(jobCtx, task); err != nil {
				logger.Error("task processing failed",
					slog.String("job_id", task.JobID.String()),
					slog.Int("retry_count", task.RetryCount),
					slog.String("error", err.Error()),
				)
				return err
			}
			return nil
		})
	}()

	// Wait for shutdown signal or error
	select {
	case err := <-errCh:
		if ctx.Err() == nil {
			return fmt.Errorf("consumer error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down worker")

		select {
		case <-errCh:
			logger.Info("in-flight task completed")
		case <-time.After(cfg.Worker.ShutdownTimeout):
			logger.Warn("shutdown timeout exceeded, interrupting in-flight task")
			cancelJobs()
			<-errCh
		}
	}

	logger.Info("worker stopped")
	return nil
}
