package progress

import (
	"context"

	"github.com/cuongbtq/media-transcoder/internal/domain"
)

// KeyPrefix namespaces progress entries in the shared cache
const KeyPrefix = "videotranscoder:job:progress:"

// Cache holds short-lived progress snapshots for polling clients.
// It is best-effort: failures are logged by the implementation and never returned,
// so a cache outage can not fail a job.
type Cache interface {
	Get(ctx context.Context, jobID string) (domain.ProgressSnapshot, bool)
	Set(ctx context.Context, snapshot domain.ProgressSnapshot)
	// Fill writes snapshot only when the job has no entry yet
	Fill(ctx context.Context, snapshot domain.ProgressSnapshot)
	Delete(ctx context.Context, jobID string)
}

// Key returns the cache key of a job's progress entry
func Key(jobID string) string {
	return KeyPrefix + jobID
}

// NopCache is used when no cache is configured; every read misses
type NopCache struct{}

func (NopCache) Get(context.Context, string) (domain.ProgressSnapshot, bool) {
	return domain.ProgressSnapshot{}, false
}

func (NopCache) Set(context.Context, domain.ProgressSnapshot) {}

func (NopCache) Fill(context.Context, domain.ProgressSnapshot) {}

func (NopCache) Delete(context.Context, string) {}
