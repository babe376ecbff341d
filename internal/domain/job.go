package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Job is one user-requested conversion task
type Job struct {
	ID                string         `db:"id" json:"id"`
	OwnerID           string         `db:"owner_id" json:"owner_id"`
	SourceRef         string         `db:"source_ref" json:"source_ref"`
	OriginalFilename  string         `db:"original_filename" json:"original_filename"`
	TargetResolution  string         `db:"target_resolution" json:"target_resolution"`
	TargetFormat      Format         `db:"target_format" json:"target_format"`
	QualityPreset     Preset         `db:"quality_preset" json:"quality_preset"`
	Bitrate           Bitrate        `db:"bitrate" json:"bitrate"`
	RepeatCount       int            `db:"repeat_count" json:"repeat_count"`
	Status            Status         `db:"status" json:"status"`
	Progress          int            `db:"progress" json:"progress"`
	ProgressDetail    ProgressDetail `db:"progress_detail" json:"progress_detail"`
	OutputRef         *string        `db:"output_ref" json:"output_ref,omitempty"`
	ErrorMessage      *string        `db:"error_message" json:"error_message,omitempty"`
	ProcessingSeconds *int           `db:"processing_seconds" json:"processing_seconds,omitempty"`
	Attempts          int            `db:"attempts" json:"attempts"`
	WorkerID          string         `db:"worker_id" json:"-"`
	LeaseID           string         `db:"lease_id" json:"-"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	StartedAt         *time.Time     `db:"started_at" json:"started_at,omitempty"`
	CompletedAt       *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// NewJob builds a pending job from validated options
func NewJob(id, ownerID, sourceRef, originalFilename string, opts Options, now time.Time) *Job {
	opts = opts.WithDefaults()
	return &Job{
		ID:               id,
		OwnerID:          ownerID,
		SourceRef:        sourceRef,
		OriginalFilename: originalFilename,
		TargetResolution: opts.TargetResolution,
		TargetFormat:     opts.TargetFormat,
		QualityPreset:    opts.QualityPreset,
		Bitrate:          opts.Bitrate,
		RepeatCount:      opts.RepeatCount,
		Status:           StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Options returns the immutable conversion parameters of the job
func (j *Job) Options() Options {
	return Options{
		TargetResolution: j.TargetResolution,
		TargetFormat:     j.TargetFormat,
		QualityPreset:    j.QualityPreset,
		Bitrate:          j.Bitrate,
		RepeatCount:      j.RepeatCount,
	}
}

// OutputName is the deterministic processed-blob name; redelivered attempts overwrite it
func (j *Job) OutputName() string {
	return fmt.Sprintf("transcoded_%s_%s.%s", j.ID, j.TargetResolution, j.TargetFormat.Extension())
}

// DownloadFilename is the name offered to the user when downloading the result
func (j *Job) DownloadFilename() string {
	base := strings.TrimSuffix(j.OriginalFilename, filepath.Ext(j.OriginalFilename))
	if base == "" {
		base = j.ID
	}
	suffix := ""
	if j.RepeatCount > 1 {
		suffix = fmt.Sprintf("_%dx", j.RepeatCount)
	}
	return fmt.Sprintf("transcoded_%s_%s%s.%s", base, j.TargetResolution, suffix, j.TargetFormat.Extension())
}

// Snapshot projects the job into the cheap form served to pollers
func (j *Job) Snapshot() ProgressSnapshot {
	return ProgressSnapshot{
		JobID:     j.ID,
		OwnerID:   j.OwnerID,
		Status:    j.Status,
		Percent:   j.Progress,
		Message:   statusMessage(j.Status, j.ProgressDetail.Message, j.ErrorMessage),
		Detail:    j.ProgressDetail,
		UpdatedAt: j.UpdatedAt,
	}
}

func statusMessage(status Status, detail string, errMsg *string) string {
	switch status {
	case StatusPending:
		return "Waiting to start"
	case StatusCompleted:
		return "Transcoding complete!"
	case StatusFailed:
		if errMsg != nil && *errMsg != "" {
			return *errMsg
		}
		return "Transcoding failed"
	default:
		if detail != "" {
			return detail
		}
		return "Processing..."
	}
}

// ProgressDetail is the free-form live detail of a running job
type ProgressDetail struct {
	Stage      string  `json:"stage,omitempty"`
	Message    string  `json:"message,omitempty"`
	Timemark   string  `json:"timemark,omitempty"`
	KBPS       float64 `json:"kbps,omitempty"`
	FPS        float64 `json:"fps,omitempty"`
	Iteration  int     `json:"iteration,omitempty"`
	Iterations int     `json:"iterations,omitempty"`
}

// Value stores the detail as a JSON document
func (d ProgressDetail) Value() (driver.Value, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal progress detail: %w", err)
	}
	return string(data), nil
}

// Scan reads the JSON document written by Value
func (d *ProgressDetail) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*d = ProgressDetail{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported progress detail type %T", src)
	}

	if len(data) == 0 {
		*d = ProgressDetail{}
		return nil
	}
	return json.Unmarshal(data, d)
}

// ProgressSnapshot is the ephemeral projection of a job's live status
type ProgressSnapshot struct {
	JobID     string         `json:"job_id"`
	OwnerID   string         `json:"owner_id,omitempty"`
	Status    Status         `json:"status"`
	Percent   int            `json:"progress"`
	Message   string         `json:"message"`
	Detail    ProgressDetail `json:"detail"`
	UpdatedAt time.Time      `json:"updated_at"`
}
