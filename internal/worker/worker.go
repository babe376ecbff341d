package worker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cuongbtq/media-transcoder/internal/blob"
	"github.com/cuongbtq/media-transcoder/internal/domain"
	"github.com/cuongbtq/media-transcoder/internal/transcode"
)

// JobMachine is the state machine surface the worker drives
type JobMachine interface {
	Claim(ctx context.Context, id, workerID string) (*domain.Job, error)
	Complete(ctx context.Context, job *domain.Job, outputRef string) error
	Fail(ctx context.Context, job *domain.Job, message string) error
	PublishProgress(ctx context.Context, job *domain.Job, percent int, detail domain.ProgressDetail)
	PersistProgress(ctx context.Context, job *domain.Job) error
}

// Runner produces the final artifact of a job
type Runner interface {
	Run(ctx context.Context, jobID, input string, opts domain.Options, report transcode.ReportFunc) (string, error)
}

// Config holds worker configuration
type Config struct {
	Logger                *slog.Logger
	Queue                 Queue
	Jobs                  JobMachine
	Blobs                 blob.Store
	Runner                Runner
	WorkerID              string
	WorkDir               string
	PollWait              time.Duration
	IdleInterval          time.Duration
	ErrorBackoff          time.Duration
	ProgressFlushInterval time.Duration
	MaxInputSize          int64
}

// Worker processes one job at a time from the queue
type Worker struct {
	logger        *slog.Logger
	queue         Queue
	jobs          JobMachine
	blobs         blob.Store
	runner        Runner
	workerID      string
	workDir       string
	pollWait      time.Duration
	idleInterval  time.Duration
	errorBackoff  time.Duration
	flushInterval time.Duration
	maxInputSize  int64

	// current is the message being processed; written only by the loop
	current atomic.Pointer[domain.JobMessage]
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	w := &Worker{
		logger:        cfg.Logger.With(slog.String("worker_id", cfg.WorkerID)),
		queue:         cfg.Queue,
		jobs:          cfg.Jobs,
		blobs:         cfg.Blobs,
		runner:        cfg.Runner,
		workerID:      cfg.WorkerID,
		workDir:       cfg.WorkDir,
		pollWait:      cfg.PollWait,
		idleInterval:  cfg.IdleInterval,
		errorBackoff:  cfg.ErrorBackoff,
		flushInterval: cfg.ProgressFlushInterval,
		maxInputSize:  cfg.MaxInputSize,
	}

	if w.pollWait <= 0 {
		w.pollWait = 20 * time.Second
	}
	if w.idleInterval <= 0 {
		w.idleInterval = time.Second
	}
	if w.errorBackoff <= 0 {
		w.errorBackoff = 5 * time.Second
	}
	if w.flushInterval <= 0 {
		w.flushInterval = 2 * time.Second
	}
	if w.maxInputSize <= 0 {
		w.maxInputSize = domain.DefaultMaxInputSize
	}

	return w
}

// Run polls the queue until ctx is canceled. A job already started when ctx is
// canceled runs to completion before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.Duration("poll_wait", w.pollWait),
		slog.Duration("idle_interval", w.idleInterval),
		slog.String("work_dir", w.workDir),
	)

	for {
		if ctx.Err() != nil {
			w.logger.Info("Worker stopped")
			return nil
		}

		delivery, err := w.queue.Receive(ctx, w.pollWait)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("Failed to receive from queue",
				slog.Any("error", err),
				slog.Duration("retry_after", w.errorBackoff),
			)
			w.sleep(ctx, w.errorBackoff)
			continue
		}

		if delivery == nil {
			w.sleep(ctx, w.idleInterval)
			continue
		}

		// detached so a shutdown signal does not abort the job mid-encode
		w.handle(context.WithoutCancel(ctx), delivery)
	}
}

// Current returns the id of the job in progress, or "" when idle
func (w *Worker) Current() string {
	if msg := w.current.Load(); msg != nil {
		return msg.JobID
	}
	return ""
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
