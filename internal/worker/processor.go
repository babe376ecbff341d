package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cuongbtq/media-transcoder/internal/blob"
	"github.com/cuongbtq/media-transcoder/internal/domain"
	"github.com/cuongbtq/media-transcoder/internal/transcode"
	"github.com/dustin/go-humanize"
)

// ErrJobFailed marks a delivery whose job was moved to failed
var ErrJobFailed = errors.New("job failed")

// handle processes one delivery and settles it with the queue
func (w *Worker) handle(ctx context.Context, d Delivery) {
	msg, err := domain.ParseJobMessage(d.Body())
	if err != nil {
		w.logger.Error("Rejecting malformed message",
			slog.Any("error", err),
			slog.Int("body_size", len(d.Body())),
		)
		w.settle(d, "", err)
		return
	}

	w.current.Store(&msg)
	defer w.current.Store(nil)

	start := time.Now()
	err = w.processJob(ctx, msg)
	if err == nil {
		w.logger.Info("Job completed successfully",
			slog.String("job_id", msg.JobID),
			slog.Duration("duration", time.Since(start)),
		)
	}
	w.settle(d, msg.JobID, err)
}

// settle acknowledges the delivery or hands it back based on the outcome
func (w *Worker) settle(d Delivery, jobID string, err error) {
	var settleErr error
	switch {
	case err == nil,
		errors.Is(err, domain.ErrJobTerminal),
		errors.Is(err, domain.ErrLeaseLost):
		settleErr = d.Ack()
	case shouldRequeue(err):
		w.logger.Warn("Requeueing job after transient failure",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		settleErr = d.Reject(true)
	default:
		settleErr = d.Reject(false)
	}

	if settleErr != nil {
		w.logger.Error("Failed to settle message",
			slog.String("job_id", jobID),
			slog.Any("error", settleErr),
		)
	}
}

// shouldRequeue determines if a failed delivery should go back on the queue
func shouldRequeue(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrInvalidMessage) || errors.Is(err, ErrJobFailed) {
		return false
	}
	return domain.IsRetryable(err)
}

// processJob runs one job from claim to a terminal state
func (w *Worker) processJob(ctx context.Context, msg domain.JobMessage) error {
	logger := w.logger.With(slog.String("job_id", msg.JobID))

	job, err := w.jobs.Claim(ctx, msg.JobID, w.workerID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrJobTerminal):
			logger.Info("Skipping job already finished", slog.Any("error", err))
			return err
		case errors.Is(err, domain.ErrLeaseLost):
			logger.Warn("Job claimed by another worker", slog.Any("error", err))
			return err
		case errors.Is(err, domain.ErrJobNotFound):
			logger.Error("Job record missing for message", slog.Any("error", err))
			return err
		}
		return domain.NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
	}

	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	reporter := newProgressReporter(ctx, w.jobs, job, w.flushInterval, cancel, logger)

	input, err := w.fetchInput(jobCtx, job, logger)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) || errors.Is(err, blob.ErrInvalidRef) || errors.Is(err, domain.ErrInputTooLarge) {
			return w.failJob(ctx, job, err, logger)
		}
		return domain.NewRetryableError(fmt.Errorf("failed to fetch input: %w", err))
	}
	defer removeFile(input, logger)

	logger.Info("Transcoding job",
		slog.String("resolution", job.TargetResolution),
		slog.String("format", string(job.TargetFormat)),
		slog.String("preset", string(job.QualityPreset)),
		slog.Int("repeat_count", job.RepeatCount),
	)

	final, err := w.runner.Run(jobCtx, job.ID, input, job.Options(), reporter.report)
	if err != nil {
		if cause := context.Cause(jobCtx); errors.Is(cause, domain.ErrLeaseLost) {
			logger.Warn("Abandoning job after lease loss", slog.Any("error", cause))
			return cause
		}
		return w.failJob(ctx, job, err, logger)
	}
	defer removeFile(final, logger)

	// last check before the upload so a superseded run does not overwrite the output
	if err := w.jobs.PersistProgress(ctx, job); err != nil {
		if errors.Is(err, domain.ErrLeaseLost) {
			return err
		}
		return domain.NewRetryableError(fmt.Errorf("failed to persist progress: %w", err))
	}

	ref, err := w.uploadOutput(ctx, job, final, logger)
	if err != nil {
		return domain.NewRetryableError(fmt.Errorf("failed to upload output: %w", err))
	}

	if err := w.jobs.Complete(ctx, job, ref); err != nil {
		if errors.Is(err, domain.ErrLeaseLost) || errors.Is(err, domain.ErrInvalidTransition) {
			return err
		}
		return domain.NewRetryableError(fmt.Errorf("failed to complete job: %w", err))
	}

	return nil
}

// failJob records a user-facing failure on the job
func (w *Worker) failJob(ctx context.Context, job *domain.Job, cause error, logger *slog.Logger) error {
	message := failureMessage(cause)

	attrs := []any{slog.String("message", message), slog.Any("error", cause)}
	var engineErr *transcode.EngineError
	if errors.As(cause, &engineErr) {
		attrs = append(attrs,
			slog.String("category", string(engineErr.Category)),
			slog.String("detail", engineErr.Detail),
		)
	}
	logger.Error("Job failed", attrs...)

	if err := w.jobs.Fail(ctx, job, message); err != nil {
		if errors.Is(err, domain.ErrLeaseLost) || errors.Is(err, domain.ErrInvalidTransition) {
			return err
		}
		return domain.NewRetryableError(fmt.Errorf("failed to record job failure: %w", err))
	}

	return fmt.Errorf("%w: %s", ErrJobFailed, message)
}

// failureMessage picks the text stored on a failed job
func failureMessage(err error) string {
	var engineErr *transcode.EngineError
	switch {
	case errors.As(err, &engineErr):
		return engineErr.Message
	case errors.Is(err, domain.ErrInputTooLarge):
		return err.Error()
	case errors.Is(err, blob.ErrNotFound), errors.Is(err, blob.ErrInvalidRef):
		return "Source file not found in storage."
	}
	return "Transcoding failed: " + err.Error()
}

// fetchInput copies the source blob into the work directory
func (w *Worker) fetchInput(ctx context.Context, job *domain.Job, logger *slog.Logger) (string, error) {
	obj, err := w.blobs.Stat(ctx, job.SourceRef)
	if err != nil {
		return "", err
	}
	if err := domain.CheckInputSize(obj.Size, w.maxInputSize); err != nil {
		return "", err
	}

	if err := os.MkdirAll(w.workDir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}

	rc, err := w.blobs.Download(ctx, job.SourceRef)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	path := filepath.Join(w.workDir, job.ID+"-input"+filepath.Ext(job.SourceRef))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create input file: %w", err)
	}

	n, err := io.Copy(f, rc)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		removeFile(path, logger)
		return "", fmt.Errorf("download %s: %w", job.SourceRef, err)
	}

	logger.Info("Input downloaded",
		slog.String("source_ref", job.SourceRef),
		slog.String("size", humanize.IBytes(uint64(n))),
	)

	return path, nil
}

// uploadOutput stores the final artifact under the processed category
func (w *Worker) uploadOutput(ctx context.Context, job *domain.Job, path string, logger *slog.Logger) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	obj, err := w.blobs.Upload(ctx, blob.Ref(blob.CategoryProcessed, job.OutputName()), f, blob.UploadOptions{
		ContentType: job.TargetFormat.ContentType(),
		Size:        info.Size(),
	})
	if err != nil {
		return "", err
	}

	logger.Info("Output uploaded",
		slog.String("output_ref", obj.Ref),
		slog.String("size", humanize.IBytes(uint64(info.Size()))),
	)

	return obj.Ref, nil
}

func removeFile(path string, logger *slog.Logger) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("Could not remove file",
			slog.String("path", path),
			slog.Any("error", err),
		)
	}
}
