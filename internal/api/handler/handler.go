package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/media-transcoder/internal/blob"
	"github.com/cuongbtq/media-transcoder/internal/domain"
	"github.com/cuongbtq/media-transcoder/internal/storage"
)

// JobStore is the part of the Job Store the API reads and writes
type JobStore interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error)
	UpdateJobIf(ctx context.Context, id string, cond storage.Condition, update storage.JobUpdate) (bool, error)
	CountByStatus(ctx context.Context) (map[domain.Status]int, error)
}

// Publisher enqueues job messages
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// ProgressReader serves the live progress of a job
type ProgressReader interface {
	GetProgress(ctx context.Context, jobID string) (domain.ProgressSnapshot, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger         *slog.Logger
	Store          JobStore
	Blobs          blob.Store
	Publisher      Publisher
	Progress       ProgressReader
	MaxInputSize   int64
	DownloadURLTTL time.Duration
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger         *slog.Logger
	store          JobStore
	blobs          blob.Store
	publisher      Publisher
	progress       ProgressReader
	maxInputSize   int64
	downloadURLTTL time.Duration
	now            func() time.Time
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	h := &JobHandler{
		logger:         deps.Logger,
		store:          deps.Store,
		blobs:          deps.Blobs,
		publisher:      deps.Publisher,
		progress:       deps.Progress,
		maxInputSize:   deps.MaxInputSize,
		downloadURLTTL: deps.DownloadURLTTL,
		now:            time.Now,
	}

	if h.maxInputSize <= 0 {
		h.maxInputSize = domain.DefaultMaxInputSize
	}
	if h.downloadURLTTL <= 0 {
		h.downloadURLTTL = time.Hour
	}

	return h
}
