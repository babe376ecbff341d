package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/media-transcoder/internal/domain"
	"github.com/cuongbtq/media-transcoder/internal/progress"
	"github.com/cuongbtq/media-transcoder/internal/storage"
	"github.com/google/uuid"
)

// Store is the part of the Job Store the state machine writes through
type Store interface {
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	UpdateJobIf(ctx context.Context, id string, cond storage.Condition, update storage.JobUpdate) (bool, error)
}

// Machine enforces the job lifecycle. Every write goes through a conditional
// update so that only the current lease holder can move a job forward.
type Machine struct {
	store  Store
	cache  progress.Cache
	logger *slog.Logger
	now    func() time.Time
}

func NewMachine(store Store, cache progress.Cache, logger *slog.Logger) *Machine {
	if cache == nil {
		cache = progress.NopCache{}
	}
	return &Machine{
		store:  store,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// Claim takes ownership of a job for workerID under a fresh lease.
// A pending job moves to processing; a job already processing is re-claimed
// from scratch (redelivery after a crashed or timed-out attempt). Terminal jobs
// are returned together with domain.ErrJobTerminal.
func (m *Machine) Claim(ctx context.Context, id, workerID string) (*domain.Job, error) {
	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case domain.StatusCompleted, domain.StatusFailed:
		return job, fmt.Errorf("%w: %s is %s", domain.ErrJobTerminal, id, job.Status)
	case domain.StatusPending:
		if _, err := domain.CheckTransition(job.Status, domain.StatusProcessing, domain.TransitionFields{}); err != nil {
			return nil, err
		}
	case domain.StatusProcessing:
		m.logger.Warn("Re-claiming job left in processing",
			slog.String("job_id", id),
			slog.String("previous_worker_id", job.WorkerID),
			slog.Int("attempts", job.Attempts),
		)
	}

	now := m.now()
	lease := uuid.NewString()
	status := domain.StatusProcessing
	zero := 0
	detail := domain.ProgressDetail{Stage: "starting", Message: "Starting transcoding"}

	ok, err := m.store.UpdateJobIf(ctx, id,
		storage.Condition{Status: job.Status, LeaseID: &job.LeaseID},
		storage.JobUpdate{
			Status:            &status,
			Progress:          &zero,
			ProgressDetail:    &detail,
			WorkerID:          &workerID,
			LeaseID:           &lease,
			StartedAt:         &now,
			IncrementAttempts: true,
			UpdatedAt:         now,
		},
	)
	if err != nil {
		return nil, err
	}
	if !ok {
		// another worker claimed it between our read and write
		return nil, fmt.Errorf("%w: %s claimed concurrently", domain.ErrLeaseLost, id)
	}

	job.Status = status
	job.Progress = zero
	job.ProgressDetail = detail
	job.WorkerID = workerID
	job.LeaseID = lease
	job.StartedAt = &now
	job.Attempts++
	job.UpdatedAt = now

	m.cache.Set(ctx, job.Snapshot())

	m.logger.Info("Job claimed",
		slog.String("job_id", id),
		slog.String("worker_id", workerID),
		slog.Int("attempt", job.Attempts),
	)

	return job, nil
}

// Complete moves a claimed job to completed
func (m *Machine) Complete(ctx context.Context, job *domain.Job, outputRef string) error {
	return m.Transition(ctx, job, domain.StatusCompleted, domain.TransitionFields{
		OutputRef: outputRef,
		Progress:  100,
	})
}

// Fail moves a claimed job to failed with a user-facing message
func (m *Machine) Fail(ctx context.Context, job *domain.Job, message string) error {
	return m.Transition(ctx, job, domain.StatusFailed, domain.TransitionFields{
		ErrorMessage: message,
		Progress:     job.Progress,
	})
}

// Transition applies next to the stored job on behalf of the lease held in job.
// A repeated completion is accepted without writing. Illegal transitions return
// domain.ErrInvalidTransition and a superseded lease returns domain.ErrLeaseLost;
// neither touches the record.
func (m *Machine) Transition(ctx context.Context, job *domain.Job, next domain.Status, fields domain.TransitionFields) error {
	current, err := m.store.GetJob(ctx, job.ID)
	if err != nil {
		return err
	}

	noop, err := domain.CheckTransition(current.Status, next, fields)
	if err != nil {
		return err
	}
	if noop {
		m.logger.Debug("Ignoring repeated completion",
			slog.String("job_id", job.ID),
		)
		*job = *current
		return nil
	}

	if current.LeaseID != job.LeaseID {
		return fmt.Errorf("%w: %s", domain.ErrLeaseLost, job.ID)
	}

	now := m.now()
	update := storage.JobUpdate{Status: &next, UpdatedAt: now}

	if next.IsTerminal() {
		update.CompletedAt = &now
		if current.StartedAt != nil {
			seconds := int(now.Sub(*current.StartedAt).Round(time.Second) / time.Second)
			fields.ProcessingSeconds = seconds
			update.ProcessingSeconds = &seconds
		}
		update.Progress = &fields.Progress
	}

	switch next {
	case domain.StatusCompleted:
		update.OutputRef = &fields.OutputRef
		detail := domain.ProgressDetail{Stage: "done", Message: "Transcoding complete!"}
		update.ProgressDetail = &detail
	case domain.StatusFailed:
		update.ErrorMessage = &fields.ErrorMessage
	case domain.StatusProcessing:
		update.StartedAt = &now
	}

	lease := job.LeaseID
	ok, err := m.store.UpdateJobIf(ctx, job.ID,
		storage.Condition{Status: current.Status, LeaseID: &lease},
		update,
	)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrLeaseLost, job.ID)
	}

	job.Status = next
	job.UpdatedAt = now
	if update.Progress != nil {
		job.Progress = *update.Progress
	}
	if update.ProgressDetail != nil {
		job.ProgressDetail = *update.ProgressDetail
	}
	if update.OutputRef != nil {
		job.OutputRef = update.OutputRef
	}
	if update.ErrorMessage != nil {
		job.ErrorMessage = update.ErrorMessage
	}
	if update.ProcessingSeconds != nil {
		job.ProcessingSeconds = update.ProcessingSeconds
	}
	if update.CompletedAt != nil {
		job.CompletedAt = update.CompletedAt
	}
	if update.StartedAt != nil {
		job.StartedAt = update.StartedAt
	}

	m.cache.Set(ctx, job.Snapshot())

	m.logger.Info("Job transitioned",
		slog.String("job_id", job.ID),
		slog.String("from", string(current.Status)),
		slog.String("to", string(next)),
		slog.Int("processing_seconds", fields.ProcessingSeconds),
	)

	return nil
}

// PublishProgress updates the in-memory job and the Progress Cache only
func (m *Machine) PublishProgress(ctx context.Context, job *domain.Job, percent int, detail domain.ProgressDetail) {
	job.Progress = percent
	job.ProgressDetail = detail
	job.UpdatedAt = m.now()
	m.cache.Set(ctx, job.Snapshot())
}

// PersistProgress writes the job's current progress to the store while the lease holds
func (m *Machine) PersistProgress(ctx context.Context, job *domain.Job) error {
	progressValue := job.Progress
	detail := job.ProgressDetail
	lease := job.LeaseID

	ok, err := m.store.UpdateJobIf(ctx, job.ID,
		storage.Condition{Status: domain.StatusProcessing, LeaseID: &lease},
		storage.JobUpdate{
			Progress:       &progressValue,
			ProgressDetail: &detail,
			UpdatedAt:      m.now(),
		},
	)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrLeaseLost, job.ID)
	}
	return nil
}
