package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fetchq/fetchq/internal/app"
)

// DownloadHandler handles download-related HTTP requests
type DownloadHandler struct {
	scheduler *app.Scheduler
	logger    *zap.Logger
}

// NewDownloadHandler creates a new download handler
func NewDownloadHandler(scheduler *app.Scheduler, logger *zap.Logger) *DownloadHandler {
	return &DownloadHandler{
		scheduler: scheduler,
		logger:    logger,
	}
}

// AddDownloadRequest represents a request to add a download
type AddDownloadRequest struct {
	Source  string `json:"source" binding:"required"`
	Format  string `json:"format,omitempty"`
	Quality string `json:"quality,omitempty"`
}

// AddDownload handles POST /api/v1/downloads
//
// Enqueueing a source that is already live in the queue with the same format
// and quality returns the existing job with 200 instead of creating a second
// one.
func (h *DownloadHandler) AddDownload(c *gin.Context) {
	var req AddDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, existing, err := h.scheduler.Enqueue(req.Source, req.Format, req.Quality)
	if err != nil {
		writeError(c, err)
		return
	}

	if existing {
		c.JSON(http.StatusOK, job)
		return
	}
	c.JSON(http.StatusCreated, job)
}

// GetDownload handles GET /api/v1/downloads/:id
func (h *DownloadHandler) GetDownload(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	job, err := h.scheduler.Get(id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// ListDownloads handles GET /api/v1/downloads
//
// Pages are zero-based. The optional status filter narrows the items and
// total_count but never the aggregate stats.
func (h *DownloadHandler) ListDownloads(c *gin.Context) {
	page := intQuery(c, "page", 0)
	pageSize := intQuery(c, "page_size", 50)

	snapshot, err := h.scheduler.Query(page, pageSize, c.Query("status"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// GetStats handles GET /api/v1/downloads/stats
func (h *DownloadHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.Stats())
}

// CancelDownload handles POST /api/v1/downloads/:id/cancel
//
// Cancelling a job that already reached a terminal state is a no-op, not an
// error.
func (h *DownloadHandler) CancelDownload(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	cancelled, err := h.scheduler.Cancel(id)
	if err != nil {
		writeError(c, err)
		return
	}

	result := "noop"
	if cancelled {
		result = "cancelled"
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// RetryDownload handles POST /api/v1/downloads/:id/retry
func (h *DownloadHandler) RetryDownload(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	job, err := h.scheduler.Retry(id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

// CancelAll handles POST /api/v1/downloads/cancel-all
//
// Best effort: every cancellable job is attempted and individual failures are
// reported alongside the count of successful cancellations.
func (h *DownloadHandler) CancelAll(c *gin.Context) {
	cancelled, errs := h.scheduler.CancelAll()

	messages := make([]string, 0, len(errs))
	for _, err := range errs {
		h.logger.Warn("Cancel-all partial failure", zap.Error(err))
		messages = append(messages, err.Error())
	}

	c.JSON(http.StatusOK, gin.H{
		"cancelled": cancelled,
		"errors":    messages,
	})
}

// ClearCompleted handles POST /api/v1/downloads/clear-completed
func (h *DownloadHandler) ClearCompleted(c *gin.Context) {
	removed := h.scheduler.ClearCompleted()
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
