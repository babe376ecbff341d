package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cuongbtq/media-transcoder/internal/domain"
)

// progressReporter publishes every update to the cache and writes the store
// at most once per interval, or whenever the stage or iteration changes
type progressReporter struct {
	ctx      context.Context
	jobs     JobMachine
	job      *domain.Job
	interval time.Duration
	cancel   context.CancelCauseFunc
	logger   *slog.Logger
	now      func() time.Time

	lastFlush     time.Time
	lastStage     string
	lastIteration int
}

func newProgressReporter(ctx context.Context, jobs JobMachine, job *domain.Job, interval time.Duration, cancel context.CancelCauseFunc, logger *slog.Logger) *progressReporter {
	return &progressReporter{
		ctx:       ctx,
		jobs:      jobs,
		job:       job,
		interval:  interval,
		cancel:    cancel,
		logger:    logger,
		now:       time.Now,
		lastFlush: time.Now(),
		lastStage: job.ProgressDetail.Stage,
	}
}

func (r *progressReporter) report(percent int, detail domain.ProgressDetail) {
	r.jobs.PublishProgress(r.ctx, r.job, percent, detail)

	now := r.now()
	if now.Sub(r.lastFlush) < r.interval && detail.Stage == r.lastStage && detail.Iteration == r.lastIteration {
		return
	}
	r.lastFlush = now
	r.lastStage = detail.Stage
	r.lastIteration = detail.Iteration

	if err := r.jobs.PersistProgress(r.ctx, r.job); err != nil {
		if errors.Is(err, domain.ErrLeaseLost) {
			r.logger.Warn("Lease lost while transcoding", slog.Any("error", err))
			r.cancel(err)
			return
		}
		r.logger.Warn("Failed to persist progress", slog.Int("progress", percent), slog.Any("error", err))
	}
}
