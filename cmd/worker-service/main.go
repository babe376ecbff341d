package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/media-transcoder/internal/bootstrap"
	"github.com/cuongbtq/media-transcoder/internal/config"
	"github.com/cuongbtq/media-transcoder/internal/jobs"
	"github.com/cuongbtq/media-transcoder/internal/transcode"
	"github.com/cuongbtq/media-transcoder/internal/worker"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := bootstrap.Logger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	workerID := cfg.Worker.ID
	if workerID == "" {
		workerID = defaultWorkerID()
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("worker_id", workerID),
	)

	if _, err := exec.LookPath(cfg.Transcode.FFmpegPath); err != nil {
		return fmt.Errorf("ffmpeg not found at %q: %w", cfg.Transcode.FFmpegPath, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, store, err := bootstrap.Database(ctx, &cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established", slog.String("driver", dbClient.Driver()))

	rabbitClient, err := bootstrap.RabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	appLogger.Info("RabbitMQ connection established")

	blobs, err := bootstrap.BlobStore(ctx, &cfg.Blob, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}

	cache, closeCache, err := bootstrap.ProgressCache(ctx, &cfg.Redis, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize progress cache: %w", err)
	}
	defer closeCache()

	encoder := transcode.NewEncoder(cfg.Transcode.FFmpegPath, cfg.Transcode.FFprobePath, appLogger.Logger)
	queue := worker.NewAMQPQueue(rabbitClient, workerID)

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:                appLogger.Logger,
		Queue:                 queue,
		Jobs:                  jobs.NewMachine(store, cache, appLogger.Logger),
		Blobs:                 blobs,
		Runner:                transcode.NewOrchestrator(encoder, cfg.Transcode.WorkDir, appLogger.Logger),
		WorkerID:              workerID,
		WorkDir:               cfg.Transcode.WorkDir,
		PollWait:              cfg.Worker.PollWait,
		IdleInterval:          cfg.Worker.IdleInterval,
		ErrorBackoff:          cfg.Worker.ErrorBackoff,
		ProgressFlushInterval: cfg.Worker.ProgressFlushInterval,
		MaxInputSize:          cfg.Transcode.MaxInputSize,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return workerInstance.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		// hand prefetched but unstarted messages back to the broker
		if err := queue.Close(); err != nil {
			appLogger.Warn("Failed to stop consuming", slog.Any("error", err))
		}
		return nil
	})

	appLogger.Info("Worker service started successfully")

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			appLogger.Error("Worker error", slog.Any("error", err))
			return err
		}
	case <-ctx.Done():
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("current_job_id", workerInstance.Current()),
			slog.Duration("timeout", cfg.Worker.ShutdownTimeout),
		)

		select {
		case err := <-done:
			if err != nil {
				return err
			}
			appLogger.Info("Worker stopped gracefully")
		case <-time.After(cfg.Worker.ShutdownTimeout):
			// the unacknowledged message is redelivered to another worker
			appLogger.Warn("Worker shutdown timeout exceeded, forcing exit",
				slog.String("current_job_id", workerInstance.Current()),
			)
		}
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}
