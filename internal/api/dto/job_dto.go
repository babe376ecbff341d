package dto

import (
	"time"

	"github.com/cuongbtq/media-transcoder/internal/domain"
)

type UploadResponse struct {
	SourceRef        string `json:"source_ref"`
	OriginalFilename string `json:"original_filename"`
	Size             int64  `json:"size"`
	SizeHuman        string `json:"size_human"`
}

type CreateJobRequest struct {
	SourceRef        string `json:"source_ref" binding:"required"`
	OriginalFilename string `json:"original_filename"`
	TargetResolution string `json:"target_resolution" binding:"required"`
	TargetFormat     string `json:"target_format" binding:"required"`
	QualityPreset    string `json:"quality_preset"`
	Bitrate          string `json:"bitrate"`
	RepeatCount      int    `json:"repeat_count"`
}

// Options returns the request's conversion parameters with defaults applied
func (r CreateJobRequest) Options() domain.Options {
	return domain.Options{
		TargetResolution: r.TargetResolution,
		TargetFormat:     domain.Format(r.TargetFormat),
		QualityPreset:    domain.Preset(r.QualityPreset),
		Bitrate:          domain.Bitrate(r.Bitrate),
		RepeatCount:      r.RepeatCount,
	}.WithDefaults()
}

type ListJobsRequest struct {
	OwnerID  string `form:"owner_id"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID             string                `json:"job_id"`
	OwnerID           string                `json:"owner_id"`
	SourceRef         string                `json:"source_ref"`
	OriginalFilename  string                `json:"original_filename,omitempty"`
	TargetResolution  string                `json:"target_resolution"`
	TargetFormat      string                `json:"target_format"`
	QualityPreset     string                `json:"quality_preset"`
	Bitrate           string                `json:"bitrate"`
	RepeatCount       int                   `json:"repeat_count"`
	Status            string                `json:"status"`
	Progress          int                   `json:"progress"`
	ProgressDetail    domain.ProgressDetail `json:"progress_detail"`
	OutputRef         string                `json:"output_ref,omitempty"`
	ErrorMessage      string                `json:"error_message,omitempty"`
	ProcessingSeconds *int                  `json:"processing_seconds,omitempty"`
	Attempts          int                   `json:"attempts"`
	CreatedAt         string                `json:"created_at"`
	StartedAt         string                `json:"started_at,omitempty"`
	CompletedAt       string                `json:"completed_at,omitempty"`
	UpdatedAt         string                `json:"updated_at"`
}

// NewJobDTO converts a job record into its API representation
func NewJobDTO(job *domain.Job) JobDTO {
	d := JobDTO{
		JobID:             job.ID,
		OwnerID:           job.OwnerID,
		SourceRef:         job.SourceRef,
		OriginalFilename:  job.OriginalFilename,
		TargetResolution:  job.TargetResolution,
		TargetFormat:      string(job.TargetFormat),
		QualityPreset:     string(job.QualityPreset),
		Bitrate:           string(job.Bitrate),
		RepeatCount:       job.RepeatCount,
		Status:            string(job.Status),
		Progress:          job.Progress,
		ProgressDetail:    job.ProgressDetail,
		ProcessingSeconds: job.ProcessingSeconds,
		Attempts:          job.Attempts,
		CreatedAt:         job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         job.UpdatedAt.Format(time.RFC3339),
	}
	if job.OutputRef != nil {
		d.OutputRef = *job.OutputRef
	}
	if job.ErrorMessage != nil {
		d.ErrorMessage = *job.ErrorMessage
	}
	if job.StartedAt != nil {
		d.StartedAt = job.StartedAt.Format(time.RFC3339)
	}
	if job.CompletedAt != nil {
		d.CompletedAt = job.CompletedAt.Format(time.RFC3339)
	}
	return d
}

type StartJobResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type ProgressResponse struct {
	JobID     string                `json:"job_id"`
	Status    string                `json:"status"`
	Progress  int                   `json:"progress"`
	Message   string                `json:"message"`
	Detail    domain.ProgressDetail `json:"detail"`
	UpdatedAt string                `json:"updated_at,omitempty"`
}

// NewProgressResponse converts a progress snapshot into its API representation
func NewProgressResponse(s domain.ProgressSnapshot) ProgressResponse {
	r := ProgressResponse{
		JobID:    s.JobID,
		Status:   string(s.Status),
		Progress: s.Percent,
		Message:  s.Message,
		Detail:   s.Detail,
	}
	if !s.UpdatedAt.IsZero() {
		r.UpdatedAt = s.UpdatedAt.Format(time.RFC3339)
	}
	return r
}

type DownloadResponse struct {
	JobID       string `json:"job_id"`
	DownloadURL string `json:"download_url"`
	Filename    string `json:"filename"`
	ExpiresAt   string `json:"expires_at"`
}

type StatsResponse struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}
