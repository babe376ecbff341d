package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// JobMessage is the queue envelope for one job; the job record stays authoritative
type JobMessage struct {
	JobID            string  `json:"job_id"`
	OwnerID          string  `json:"owner_id"`
	SourceRef        string  `json:"source_ref"`
	TargetResolution string  `json:"target_resolution"`
	TargetFormat     Format  `json:"target_format"`
	QualityPreset    Preset  `json:"quality_preset"`
	Bitrate          Bitrate `json:"bitrate"`
	RepeatCount      int     `json:"repeat_count"`
}

// NewJobMessage snapshots a job into a queue message
func NewJobMessage(job *Job) JobMessage {
	return JobMessage{
		JobID:            job.ID,
		OwnerID:          job.OwnerID,
		SourceRef:        job.SourceRef,
		TargetResolution: job.TargetResolution,
		TargetFormat:     job.TargetFormat,
		QualityPreset:    job.QualityPreset,
		Bitrate:          job.Bitrate,
		RepeatCount:      job.RepeatCount,
	}
}

// ParseJobMessage decodes a queue body and checks the job id is a UUID
func ParseJobMessage(body []byte) (JobMessage, error) {
	var msg JobMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return JobMessage{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	if _, err := uuid.Parse(msg.JobID); err != nil {
		return JobMessage{}, fmt.Errorf("%w: job_id %q is not a UUID", ErrInvalidMessage, msg.JobID)
	}

	return msg, nil
}
