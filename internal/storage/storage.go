package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/media-transcoder/internal/domain"
	"github.com/cuongbtq/media-transcoder/shared/database"
	"github.com/jmoiron/sqlx"
)

// schema is portable between PostgreSQL and SQLite; statements run one at a time
var schema = []string{
	`CREATE TABLE IF NOT EXISTS transcode_jobs (
		id                 TEXT PRIMARY KEY,
		owner_id           TEXT NOT NULL,
		source_ref         TEXT NOT NULL,
		original_filename  TEXT NOT NULL DEFAULT '',
		target_resolution  TEXT NOT NULL,
		target_format      TEXT NOT NULL,
		quality_preset     TEXT NOT NULL,
		bitrate            TEXT NOT NULL,
		repeat_count       INTEGER NOT NULL DEFAULT 1,
		status             TEXT NOT NULL,
		progress           INTEGER NOT NULL DEFAULT 0,
		progress_detail    TEXT NOT NULL DEFAULT '{}',
		output_ref         TEXT,
		error_message      TEXT,
		processing_seconds INTEGER,
		attempts           INTEGER NOT NULL DEFAULT 0,
		worker_id          TEXT NOT NULL DEFAULT '',
		lease_id           TEXT NOT NULL DEFAULT '',
		created_at         TIMESTAMP NOT NULL,
		started_at         TIMESTAMP,
		completed_at       TIMESTAMP,
		updated_at         TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transcode_jobs_owner_created ON transcode_jobs (owner_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_transcode_jobs_status ON transcode_jobs (status)`,
}

const jobColumns = `
	id, owner_id, source_ref, original_filename,
	target_resolution, target_format, quality_preset, bitrate, repeat_count,
	status, progress, progress_detail, output_ref, error_message, processing_seconds,
	attempts, worker_id, lease_id, created_at, started_at, completed_at, updated_at`

// Storage is the Job Store, the single source of truth for job state
type Storage struct {
	db *sqlx.DB
}

func NewStorage(client *database.Client) *Storage {
	return &Storage{
		db: client.GetDB(),
	}
}

// Migrate creates the jobs table and its indexes
func (s *Storage) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

func (s *Storage) CreateJob(ctx context.Context, job *domain.Job) error {
	query := s.db.Rebind(`
		INSERT INTO transcode_jobs (
			id, owner_id, source_ref, original_filename,
			target_resolution, target_format, quality_preset, bitrate, repeat_count,
			status, progress, progress_detail, attempts, created_at, updated_at
		) VALUES (
			?, ?, ?, ?,
			?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?
		)
	`)

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.ID,
		job.OwnerID,
		job.SourceRef,
		job.OriginalFilename,
		job.TargetResolution,
		job.TargetFormat,
		job.QualityPreset,
		job.Bitrate,
		job.RepeatCount,
		job.Status,
		job.Progress,
		job.ProgressDetail,
		job.Attempts,
		job.CreatedAt.UTC(),
		job.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

func (s *Storage) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	query := s.db.Rebind(`SELECT ` + jobColumns + ` FROM transcode_jobs WHERE id = ?`)

	err := s.db.GetContext(ctx, &job, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

type JobFilter struct {
	OwnerID  string // empty lists every owner
	Status   domain.Status
	PageSize int
	Cursor   *JobCursor
}

type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListJobs returns jobs newest first. It fetches one extra row so callers can tell whether more pages exist.
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM transcode_jobs WHERE 1=1`
	args := []interface{}{}

	// Filters
	if filter.OwnerID != "" {
		query += " AND owner_id = ?"
		args = append(args, filter.OwnerID)
	}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	if filter.Cursor != nil {
		query += " AND (created_at < ? OR (created_at = ? AND id < ?))"
		createdAt := filter.Cursor.CreatedAt.UTC()
		args = append(args, createdAt, createdAt, filter.Cursor.JobID)
	}

	query += " ORDER BY created_at DESC, id DESC"

	if filter.PageSize > 0 {
		query += " LIMIT ?"
		args = append(args, filter.PageSize+1)
	}

	jobs := []domain.Job{}
	err := s.db.SelectContext(ctx, &jobs, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// JobUpdate names the columns to write; nil fields are left untouched
type JobUpdate struct {
	Status            *domain.Status
	Progress          *int
	ProgressDetail    *domain.ProgressDetail
	OutputRef         *string
	ErrorMessage      *string
	ProcessingSeconds *int
	WorkerID          *string
	LeaseID           *string
	StartedAt         *time.Time
	CompletedAt       *time.Time
	IncrementAttempts bool
	UpdatedAt         time.Time
}

// Condition guards a conditional update; zero fields are not checked
type Condition struct {
	Status  domain.Status
	LeaseID *string
}

// UpdateJob writes the update unconditionally
func (s *Storage) UpdateJob(ctx context.Context, id string, update JobUpdate) error {
	ok, err := s.UpdateJobIf(ctx, id, Condition{}, update)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	return nil
}

// UpdateJobIf writes the update only while the row still matches cond.
// It reports whether a row was changed.
func (s *Storage) UpdateJobIf(ctx context.Context, id string, cond Condition, update JobUpdate) (bool, error) {
	sets := []string{}
	args := []interface{}{}

	set := func(column string, value interface{}) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if update.Status != nil {
		set("status", *update.Status)
	}
	if update.Progress != nil {
		set("progress", *update.Progress)
	}
	if update.ProgressDetail != nil {
		set("progress_detail", *update.ProgressDetail)
	}
	if update.OutputRef != nil {
		set("output_ref", *update.OutputRef)
	}
	if update.ErrorMessage != nil {
		set("error_message", *update.ErrorMessage)
	}
	if update.ProcessingSeconds != nil {
		set("processing_seconds", *update.ProcessingSeconds)
	}
	if update.WorkerID != nil {
		set("worker_id", *update.WorkerID)
	}
	if update.LeaseID != nil {
		set("lease_id", *update.LeaseID)
	}
	if update.StartedAt != nil {
		set("started_at", update.StartedAt.UTC())
	}
	if update.CompletedAt != nil {
		set("completed_at", update.CompletedAt.UTC())
	}
	if update.IncrementAttempts {
		sets = append(sets, "attempts = attempts + 1")
	}

	updatedAt := update.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	set("updated_at", updatedAt.UTC())

	query := "UPDATE transcode_jobs SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, id)

	if cond.Status != "" {
		query += " AND status = ?"
		args = append(args, cond.Status)
	}
	if cond.LeaseID != nil {
		query += " AND lease_id = ?"
		args = append(args, *cond.LeaseID)
	}

	result, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return false, fmt.Errorf("failed to update job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// CountByStatus returns the number of jobs per status; every status is present
func (s *Storage) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	var rows []struct {
		Status domain.Status `db:"status"`
		Count  int           `db:"count"`
	}

	err := s.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM transcode_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	counts := make(map[domain.Status]int, len(domain.Statuses))
	for _, status := range domain.Statuses {
		counts[status] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}

	return counts, nil
}
