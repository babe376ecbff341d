package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cuongbtq/media-transcoder/internal/api/dto"
	"github.com/cuongbtq/media-transcoder/internal/blob"
	"github.com/cuongbtq/media-transcoder/internal/domain"
	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// multipart framing allowance on top of the file itself
const uploadOverhead = 1 << 20

var extensionPattern = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)

// UploadFile handles POST /api/v1/uploads
// Stores a source file in the "original" namespace and returns its reference
func (h *JobHandler) UploadFile(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxInputSize+uploadOverhead)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": domain.CheckInputSize(tooLarge.Limit, h.maxInputSize).Error(),
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "file is required",
		})
		return
	}

	if err := domain.CheckInputSize(fileHeader.Size, h.maxInputSize); err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": err.Error(),
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.logger.Error("Failed to open uploaded file", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to read uploaded file",
		})
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !extensionPattern.MatchString(ext) {
		ext = ""
	}
	ref := blob.Ref(blob.CategoryOriginal, uuid.NewString()+ext)

	obj, err := h.blobs.Upload(c.Request.Context(), ref, file, blob.UploadOptions{
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
	})
	if err != nil {
		h.logger.Error("Failed to store uploaded file",
			slog.String("source_ref", ref),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to store file",
		})
		return
	}

	h.logger.Info("File uploaded",
		slog.String("source_ref", obj.Ref),
		slog.String("filename", fileHeader.Filename),
		slog.String("size", humanize.IBytes(uint64(obj.Size))),
		slog.String("user_id", userID(c)),
	)

	c.JSON(http.StatusCreated, dto.UploadResponse{
		SourceRef:        obj.Ref,
		OriginalFilename: filepath.Base(fileHeader.Filename),
		Size:             obj.Size,
		SizeHuman:        humanize.IBytes(uint64(obj.Size)),
	})
}
