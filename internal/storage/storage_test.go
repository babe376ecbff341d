package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuongbtq/media-transcoder/internal/domain"
	"github.com/cuongbtq/media-transcoder/shared/database"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	client, err := database.NewClient(&database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "jobs.db"),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	s := NewStorage(client)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func newTestJob(owner string, createdAt time.Time) *domain.Job {
	return domain.NewJob(uuid.NewString(), owner, "original/"+owner+".mov", "clip.mov", domain.Options{
		TargetResolution: "640x360",
		TargetFormat:     domain.FormatMP4,
		RepeatCount:      2,
	}, createdAt)
}

func TestStorage_CreateAndGetJob(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	job := newTestJob("user-1", time.Now())
	require.NoError(t, s.CreateJob(ctx, job))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)

	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, "user-1", got.OwnerID)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, domain.FormatMP4, got.TargetFormat)
	assert.Equal(t, domain.PresetMedium, got.QualityPreset)
	assert.Equal(t, 2, got.RepeatCount)
	assert.Equal(t, 0, got.Progress)
	assert.Nil(t, got.OutputRef)
	assert.Nil(t, got.ErrorMessage)
	assert.Nil(t, got.StartedAt)
	assert.Empty(t, got.LeaseID)
	assert.WithinDuration(t, job.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestStorage_GetJob_NotFound(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.GetJob(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestStorage_UpdateJob(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	job := newTestJob("user-1", time.Now())
	require.NoError(t, s.CreateJob(ctx, job))

	status := domain.StatusProcessing
	progress := 40
	detail := domain.ProgressDetail{Stage: "encoding", Iteration: 1, Iterations: 2, KBPS: 900.5}
	worker := "worker-a"
	started := time.Now()

	require.NoError(t, s.UpdateJob(ctx, job.ID, JobUpdate{
		Status:            &status,
		Progress:          &progress,
		ProgressDetail:    &detail,
		WorkerID:          &worker,
		StartedAt:         &started,
		IncrementAttempts: true,
	}))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, got.Status)
	assert.Equal(t, 40, got.Progress)
	assert.Equal(t, detail, got.ProgressDetail)
	assert.Equal(t, "worker-a", got.WorkerID)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.StartedAt)
	assert.WithinDuration(t, started, *got.StartedAt, time.Millisecond)

	err = s.UpdateJob(ctx, uuid.NewString(), JobUpdate{Progress: &progress})
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestStorage_UpdateJobIf(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	job := newTestJob("user-1", time.Now())
	require.NoError(t, s.CreateJob(ctx, job))

	lease := "lease-1"
	processing := domain.StatusProcessing

	tests := []struct {
		name   string
		cond   Condition
		wantOK bool
	}{
		{name: "status mismatch", cond: Condition{Status: domain.StatusFailed}, wantOK: false},
		{name: "lease mismatch", cond: Condition{Status: domain.StatusPending, LeaseID: &lease}, wantOK: false},
		{name: "status and empty lease match", cond: Condition{Status: domain.StatusPending, LeaseID: new(string)}, wantOK: true},
		{name: "already claimed", cond: Condition{Status: domain.StatusPending}, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := s.UpdateJobIf(ctx, job.ID, tt.cond, JobUpdate{Status: &processing, LeaseID: &lease})
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
		})
	}

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, got.Status)
	assert.Equal(t, lease, got.LeaseID)
}

func TestStorage_ListJobs(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	var ownerJobs []*domain.Job
	for i := 0; i < 5; i++ {
		job := newTestJob("user-1", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.CreateJob(ctx, job))
		ownerJobs = append(ownerJobs, job)
	}
	require.NoError(t, s.CreateJob(ctx, newTestJob("user-2", base)))

	t.Run("owner scoped newest first", func(t *testing.T) {
		jobs, err := s.ListJobs(ctx, JobFilter{OwnerID: "user-1"})
		require.NoError(t, err)
		require.Len(t, jobs, 5)
		assert.Equal(t, ownerJobs[4].ID, jobs[0].ID)
		assert.Equal(t, ownerJobs[0].ID, jobs[4].ID)
	})

	t.Run("all owners", func(t *testing.T) {
		jobs, err := s.ListJobs(ctx, JobFilter{})
		require.NoError(t, err)
		assert.Len(t, jobs, 6)
	})

	t.Run("paged with cursor", func(t *testing.T) {
		page, err := s.ListJobs(ctx, JobFilter{OwnerID: "user-1", PageSize: 2})
		require.NoError(t, err)
		require.Len(t, page, 3, "one extra row signals another page")

		last := page[1]
		next, err := s.ListJobs(ctx, JobFilter{
			OwnerID:  "user-1",
			PageSize: 2,
			Cursor:   &JobCursor{CreatedAt: last.CreatedAt, JobID: last.ID},
		})
		require.NoError(t, err)
		require.Len(t, next, 3)
		assert.Equal(t, ownerJobs[2].ID, next[0].ID)
		assert.Equal(t, ownerJobs[1].ID, next[1].ID)
	})

	t.Run("status filter", func(t *testing.T) {
		jobs, err := s.ListJobs(ctx, JobFilter{Status: domain.StatusCompleted})
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})
}

func TestStorage_CountByStatus(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateJob(ctx, newTestJob(fmt.Sprintf("user-%d", i), time.Now())))
	}

	job := newTestJob("user-9", time.Now())
	require.NoError(t, s.CreateJob(ctx, job))
	failed := domain.StatusFailed
	require.NoError(t, s.UpdateJob(ctx, job.ID, JobUpdate{Status: &failed}))

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[domain.Status]int{
		domain.StatusPending:    3,
		domain.StatusProcessing: 0,
		domain.StatusCompleted:  0,
		domain.StatusFailed:     1,
	}, counts)
}
