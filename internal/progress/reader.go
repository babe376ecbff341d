package progress

import (
	"context"

	"github.com/cuongbtq/media-transcoder/internal/domain"
)

// JobGetter is the slice of the Job Store the read path needs
type JobGetter interface {
	GetJob(ctx context.Context, id string) (*domain.Job, error)
}

// Reader serves getProgress: cache first, Job Store on a miss
type Reader struct {
	cache Cache
	store JobGetter
}

func NewReader(cache Cache, store JobGetter) *Reader {
	if cache == nil {
		cache = NopCache{}
	}
	return &Reader{cache: cache, store: store}
}

// GetProgress returns the freshest known snapshot of a job.
// A miss falls back to the store and fills the cache unless a newer entry
// was written in the meantime.
func (r *Reader) GetProgress(ctx context.Context, jobID string) (domain.ProgressSnapshot, error) {
	if snapshot, ok := r.cache.Get(ctx, jobID); ok {
		return snapshot, nil
	}

	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return domain.ProgressSnapshot{}, err
	}

	snapshot := job.Snapshot()
	r.cache.Fill(ctx, snapshot)
	return snapshot, nil
}
