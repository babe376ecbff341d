package jobs

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/media-transcoder/internal/domain"
	"github.com/cuongbtq/media-transcoder/internal/storage"
	"github.com/cuongbtq/media-transcoder/shared/database"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCache struct {
	mu   sync.Mutex
	sets []domain.ProgressSnapshot
}

func (c *recordingCache) Get(ctx context.Context, jobID string) (domain.ProgressSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.sets) - 1; i >= 0; i-- {
		if c.sets[i].JobID == jobID {
			return c.sets[i], true
		}
	}
	return domain.ProgressSnapshot{}, false
}

func (c *recordingCache) Set(ctx context.Context, snapshot domain.ProgressSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets = append(c.sets, snapshot)
}

func (c *recordingCache) Fill(ctx context.Context, snapshot domain.ProgressSnapshot) {}

func (c *recordingCache) Delete(ctx context.Context, jobID string) {}

func (c *recordingCache) last() domain.ProgressSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets[len(c.sets)-1]
}

type fixture struct {
	store   *storage.Storage
	cache   *recordingCache
	machine *Machine
	clock   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := database.NewClient(&database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "jobs.db"),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	store := storage.NewStorage(client)
	require.NoError(t, store.Migrate(context.Background()))

	f := &fixture{
		store: store,
		cache: &recordingCache{},
		clock: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.machine = NewMachine(store, f.cache, logger)
	f.machine.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) createJob(t *testing.T) *domain.Job {
	t.Helper()
	job := domain.NewJob(uuid.NewString(), "user-1", "original/in.mov", "in.mov", domain.Options{
		TargetResolution: "640x360",
		TargetFormat:     domain.FormatMP4,
		RepeatCount:      1,
	}, f.clock)
	require.NoError(t, f.store.CreateJob(context.Background(), job))
	return job
}

func TestMachine_Claim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.createJob(t)

	job, err := f.machine.Claim(ctx, created.ID, "worker-a")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, job.Status)
	assert.NotEmpty(t, job.LeaseID)
	assert.Equal(t, 1, job.Attempts)

	stored, err := f.store.GetJob(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, stored.Status)
	assert.Equal(t, job.LeaseID, stored.LeaseID)
	assert.Equal(t, "worker-a", stored.WorkerID)
	require.NotNil(t, stored.StartedAt)

	assert.Equal(t, domain.StatusProcessing, f.cache.last().Status)
}

func TestMachine_Reclaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.createJob(t)

	first, err := f.machine.Claim(ctx, created.ID, "worker-a")
	require.NoError(t, err)
	f.machine.PublishProgress(ctx, first, 60, domain.ProgressDetail{Stage: "encoding"})
	require.NoError(t, f.machine.PersistProgress(ctx, first))

	second, err := f.machine.Claim(ctx, created.ID, "worker-b")
	require.NoError(t, err)
	assert.NotEqual(t, first.LeaseID, second.LeaseID)
	assert.Equal(t, 0, second.Progress)
	assert.Equal(t, 2, second.Attempts)

	t.Run("old lease can no longer write progress", func(t *testing.T) {
		err := f.machine.PersistProgress(ctx, first)
		assert.ErrorIs(t, err, domain.ErrLeaseLost)
	})

	t.Run("old lease can no longer complete", func(t *testing.T) {
		err := f.machine.Complete(ctx, first, "processed/out.mp4")
		assert.ErrorIs(t, err, domain.ErrLeaseLost)

		stored, err := f.store.GetJob(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusProcessing, stored.Status)
		assert.Nil(t, stored.OutputRef)
	})

	t.Run("current lease completes", func(t *testing.T) {
		require.NoError(t, f.machine.Complete(ctx, second, "processed/out.mp4"))
	})
}

func TestMachine_ClaimTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.createJob(t)

	job, err := f.machine.Claim(ctx, created.ID, "worker-a")
	require.NoError(t, err)
	require.NoError(t, f.machine.Fail(ctx, job, "Input file may be corrupted"))

	got, err := f.machine.Claim(ctx, created.ID, "worker-b")
	assert.ErrorIs(t, err, domain.ErrJobTerminal)
	require.NotNil(t, got)
	assert.Equal(t, domain.StatusFailed, got.Status)
}

func TestMachine_ClaimMissing(t *testing.T) {
	f := newFixture(t)

	_, err := f.machine.Claim(context.Background(), uuid.NewString(), "worker-a")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestMachine_Complete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.createJob(t)

	job, err := f.machine.Claim(ctx, created.ID, "worker-a")
	require.NoError(t, err)

	f.clock = f.clock.Add(42 * time.Second)
	require.NoError(t, f.machine.Complete(ctx, job, "processed/out.mp4"))

	stored, err := f.store.GetJob(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	assert.Equal(t, 100, stored.Progress)
	require.NotNil(t, stored.OutputRef)
	assert.Equal(t, "processed/out.mp4", *stored.OutputRef)
	require.NotNil(t, stored.ProcessingSeconds)
	assert.Equal(t, 42, *stored.ProcessingSeconds)
	require.NotNil(t, stored.CompletedAt)

	snap := f.cache.last()
	assert.Equal(t, domain.StatusCompleted, snap.Status)
	assert.Equal(t, 100, snap.Percent)
	assert.Equal(t, "Transcoding complete!", snap.Message)

	t.Run("repeated completion is a no-op", func(t *testing.T) {
		f.clock = f.clock.Add(time.Minute)
		require.NoError(t, f.machine.Complete(ctx, job, "processed/other.mp4"))

		again, err := f.store.GetJob(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "processed/out.mp4", *again.OutputRef)
		assert.Equal(t, 42, *again.ProcessingSeconds)
	})

	t.Run("completed job can not fail", func(t *testing.T) {
		err := f.machine.Fail(ctx, job, "late failure")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)

		again, err := f.store.GetJob(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, again.Status)
		assert.Nil(t, again.ErrorMessage)
	})
}

func TestMachine_TransitionGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("pending job can not complete", func(t *testing.T) {
		created := f.createJob(t)
		err := f.machine.Complete(ctx, created, "processed/out.mp4")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("failure needs a message", func(t *testing.T) {
		created := f.createJob(t)
		job, err := f.machine.Claim(ctx, created.ID, "worker-a")
		require.NoError(t, err)

		err = f.machine.Fail(ctx, job, "")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("completion needs full progress", func(t *testing.T) {
		created := f.createJob(t)
		job, err := f.machine.Claim(ctx, created.ID, "worker-a")
		require.NoError(t, err)

		err = f.machine.Transition(ctx, job, domain.StatusCompleted, domain.TransitionFields{OutputRef: "processed/x.mp4", Progress: 99})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("failed job records message", func(t *testing.T) {
		created := f.createJob(t)
		job, err := f.machine.Claim(ctx, created.ID, "worker-a")
		require.NoError(t, err)
		f.machine.PublishProgress(ctx, job, 35, domain.ProgressDetail{Stage: "encoding"})

		require.NoError(t, f.machine.Fail(ctx, job, "Processing failed due to insufficient disk space."))

		stored, err := f.store.GetJob(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, stored.Status)
		assert.Equal(t, 35, stored.Progress)
		require.NotNil(t, stored.ErrorMessage)
		assert.Equal(t, "Processing failed due to insufficient disk space.", *stored.ErrorMessage)
		assert.Equal(t, "Processing failed due to insufficient disk space.", f.cache.last().Message)
	})
}
