package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/media-transcoder/internal/api/dto"
	"github.com/cuongbtq/media-transcoder/internal/blob"
	"github.com/cuongbtq/media-transcoder/internal/domain"
	"github.com/cuongbtq/media-transcoder/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	stageQueued = "queued"
)

// CreateJob handles POST /api/v1/jobs
// Creates a pending job for a previously uploaded source file
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	opts := req.Options()
	if err := opts.Validate(); err != nil {
		h.validationError(c, err)
		return
	}

	category, name, err := blob.SplitRef(req.SourceRef)
	if err != nil || category != blob.CategoryOriginal {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "source_ref must reference an uploaded file",
			"field": "source_ref",
		})
		return
	}

	if !h.checkSource(c, req.SourceRef) {
		return
	}

	filename := req.OriginalFilename
	if filename == "" {
		filename = name
	}

	job := domain.NewJob(uuid.NewString(), userID(c), req.SourceRef, filename, opts, h.now())
	if err := h.store.CreateJob(c.Request.Context(), job); err != nil {
		h.logger.Error("Failed to create job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	h.logger.Info("Job created",
		slog.String("job_id", job.ID),
		slog.String("owner_id", job.OwnerID),
		slog.String("resolution", job.TargetResolution),
		slog.String("format", string(job.TargetFormat)),
		slog.Int("repeat_count", job.RepeatCount),
	)

	c.JSON(http.StatusCreated, dto.NewJobDTO(job))
}

// StartJob handles POST /api/v1/jobs/:job_id/start
// Queues a pending job for the workers
func (h *JobHandler) StartJob(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}

	if job.Status != domain.StatusPending {
		c.JSON(http.StatusConflict, gin.H{
			"error":  fmt.Sprintf("Job is %s; only pending jobs can be started", job.Status),
			"status": job.Status,
		})
		return
	}

	if job.ProgressDetail.Stage == stageQueued {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "Job is already queued",
			"status": job.Status,
		})
		return
	}

	// the source may have been replaced since the job was created
	if !h.checkSource(c, job.SourceRef) {
		return
	}

	ctx := c.Request.Context()
	queued := domain.ProgressDetail{Stage: stageQueued, Message: "Queued for transcoding"}
	ok, err := h.setPendingDetail(c, job, queued)
	if err != nil {
		h.logger.Error("Failed to update job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to update job",
		})
		return
	}
	if !ok {
		c.JSON(http.StatusConflict, gin.H{
			"error": "Job is no longer pending",
		})
		return
	}

	body, err := json.Marshal(domain.NewJobMessage(job))
	if err == nil {
		err = h.publisher.PublishWithRetry(ctx, body, "application/json")
	}
	if err != nil {
		h.logger.Error("Failed to publish job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		// let the caller start it again
		if _, err := h.setPendingDetail(c, job, domain.ProgressDetail{}); err != nil {
			h.logger.Warn("Failed to clear queued marker",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Failed to queue job",
		})
		return
	}

	h.logger.Info("Job queued", slog.String("job_id", job.ID))

	c.JSON(http.StatusAccepted, dto.StartJobResponse{
		JobID:   job.ID,
		Status:  string(job.Status),
		Message: queued.Message,
	})
}

// GetJob handles GET /api/v1/jobs/:job_id
// Retrieves detailed information about a specific job
func (h *JobHandler) GetJob(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// GetProgress handles GET /api/v1/jobs/:job_id/progress
// Served from the Progress Cache; the Job Store is read only on a cache miss
func (h *JobHandler) GetProgress(c *gin.Context) {
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}

	snapshot, err := h.progress.GetProgress(c.Request.Context(), jobID)
	if err != nil && !errors.Is(err, domain.ErrJobNotFound) {
		h.logger.Error("Failed to get progress",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get progress",
		})
		return
	}

	if err != nil || !canAccess(c, snapshot.OwnerID) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job not found",
		})
		return
	}

	c.JSON(http.StatusOK, dto.NewProgressResponse(snapshot))
}

// GetDownloadURL handles GET /api/v1/jobs/:job_id/download
// Returns a time-limited URL for the transcoded file
func (h *JobHandler) GetDownloadURL(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}

	if job.Status != domain.StatusCompleted || job.OutputRef == nil {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "Job is not completed yet",
			"status": job.Status,
		})
		return
	}

	filename := job.DownloadFilename()
	url, err := h.blobs.SignedURL(c.Request.Context(), *job.OutputRef, h.downloadURLTTL, filename)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Output file not found",
			})
			return
		}
		h.logger.Error("Failed to sign download URL",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create download URL",
		})
		return
	}

	c.JSON(http.StatusOK, dto.DownloadResponse{
		JobID:       job.ID,
		DownloadURL: url,
		Filename:    filename,
		ExpiresAt:   h.now().Add(h.downloadURLTTL).UTC().Format(time.RFC3339),
	})
}

// ListJobs handles GET /api/v1/jobs
// Lists the caller's jobs newest first; admins may list every owner
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}

	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	status := domain.Status(req.Status)
	if status != "" && !validStatus(status) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid status %q", req.Status),
		})
		return
	}

	owner := userID(c)
	if isAdmin(c) {
		owner = req.OwnerID
	} else if req.OwnerID != "" && req.OwnerID != owner {
		c.JSON(http.StatusForbidden, gin.H{
			"error": "Only admins can list other users' jobs",
		})
		return
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	jobs, err := h.store.ListJobs(c.Request.Context(), storage.JobFilter{
		OwnerID:  owner,
		Status:   status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i := range jobs {
		jobResponse[i] = dto.NewJobDTO(&jobs[i])
	}

	var nextCursor string
	if hasMore {
		lastJob := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: lastJob.CreatedAt,
			JobID:     lastJob.ID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}

// GetStats handles GET /api/v1/stats
// Admin only
func (h *JobHandler) GetStats(c *gin.Context) {
	if !isAdmin(c) {
		c.JSON(http.StatusForbidden, gin.H{
			"error": "Only admins can view job statistics",
		})
		return
	}

	counts, err := h.store.CountByStatus(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to count jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get stats",
		})
		return
	}

	resp := dto.StatsResponse{ByStatus: make(map[string]int, len(counts))}
	for status, n := range counts {
		resp.ByStatus[string(status)] = n
		resp.Total += n
	}

	c.JSON(http.StatusOK, resp)
}

// loadJob resolves :job_id for the caller, writing the error response itself.
// Jobs owned by someone else are reported as missing.
func (h *JobHandler) loadJob(c *gin.Context) (*domain.Job, bool) {
	jobID, ok := jobIDParam(c)
	if !ok {
		return nil, false
	}

	job, err := h.store.GetJob(c.Request.Context(), jobID)
	if err != nil && !errors.Is(err, domain.ErrJobNotFound) {
		h.logger.Error("Failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return nil, false
	}

	if err != nil || !canAccess(c, job.OwnerID) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job not found",
		})
		return nil, false
	}

	return job, true
}

// jobIDParam reads :job_id, answering 400 when it is not a UUID
func jobIDParam(c *gin.Context) (string, bool) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return "", false
	}
	return jobID, true
}

// checkSource verifies an uploaded source exists and is within the size limit
func (h *JobHandler) checkSource(c *gin.Context, ref string) bool {
	obj, err := h.blobs.Stat(c.Request.Context(), ref)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) || errors.Is(err, blob.ErrInvalidRef) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Source file not found",
				"field": "source_ref",
			})
			return false
		}
		h.logger.Error("Failed to stat source file",
			slog.String("source_ref", ref),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to check source file",
		})
		return false
	}

	if err := domain.CheckInputSize(obj.Size, h.maxInputSize); err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": err.Error(),
		})
		return false
	}

	return true
}

// setPendingDetail records detail on a job that is still pending and unclaimed
func (h *JobHandler) setPendingDetail(c *gin.Context, job *domain.Job, detail domain.ProgressDetail) (bool, error) {
	unclaimed := ""
	ok, err := h.store.UpdateJobIf(c.Request.Context(), job.ID,
		storage.Condition{Status: domain.StatusPending, LeaseID: &unclaimed},
		storage.JobUpdate{ProgressDetail: &detail, UpdatedAt: h.now()},
	)
	if err != nil || !ok {
		return false, err
	}

	job.ProgressDetail = detail
	return true, nil
}

func (h *JobHandler) validationError(c *gin.Context, err error) {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
			"field": ve.Field,
		})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"error": err.Error(),
	})
}

func validStatus(s domain.Status) bool {
	for _, status := range domain.Statuses {
		if s == status {
			return true
		}
	}
	return false
}
