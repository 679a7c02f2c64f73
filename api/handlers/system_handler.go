package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fetchq/fetchq/internal/app"
	"github.com/fetchq/fetchq/internal/infrastructure"
)

// SystemHandler handles engine status and maintenance requests
type SystemHandler struct {
	scheduler   *app.Scheduler
	checker     *infrastructure.BinaryChecker
	downloadDir string
	logger      *zap.Logger
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(scheduler *app.Scheduler, checker *infrastructure.BinaryChecker, downloadDir string, logger *zap.Logger) *SystemHandler {
	return &SystemHandler{
		scheduler:   scheduler,
		checker:     checker,
		downloadDir: downloadDir,
		logger:      logger,
	}
}

// GetStatus handles GET /api/v1/system/status
func (h *SystemHandler) GetStatus(c *gin.Context) {
	response := gin.H{
		"version": appVersion,
		"queue": gin.H{
			"running":        h.scheduler.IsRunning(),
			"max_concurrent": h.scheduler.GetMaxConcurrent(),
		},
	}

	if usage, err := infrastructure.DiskUsage(h.downloadDir); err != nil {
		h.logger.Warn("Failed to read disk usage", zap.String("path", h.downloadDir), zap.Error(err))
	} else {
		response["disk"] = usage
	}

	c.JSON(http.StatusOK, response)
}

// GetDependencies handles GET /api/v1/system/dependencies
func (h *SystemHandler) GetDependencies(c *gin.Context) {
	c.JSON(http.StatusOK, h.checker.Check(c.Request.Context()))
}

// UpdateDependencies handles POST /api/v1/system/update
//
// Runs the downloader's self-update and returns its output. Slow by nature;
// bounded only by the request context.
func (h *SystemHandler) UpdateDependencies(c *gin.Context) {
	output, err := h.checker.Update(c.Request.Context())
	if err != nil {
		h.logger.Error("Dependency update failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "output": output})
		return
	}

	c.JSON(http.StatusOK, gin.H{"output": output})
}

// GetConcurrency handles GET /api/v1/system/concurrency
func (h *SystemHandler) GetConcurrency(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"limit": h.scheduler.GetMaxConcurrent()})
}

// ConcurrencyRequest carries the new parallel download limit
type ConcurrencyRequest struct {
	Limit int `json:"limit" binding:"required"`
}

// SetConcurrency handles PUT /api/v1/system/concurrency
//
// Takes effect immediately: raising the limit admits waiting jobs, lowering
// it lets running jobs finish without admitting new ones.
func (h *SystemHandler) SetConcurrency(c *gin.Context) {
	var req ConcurrencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.scheduler.SetMaxConcurrent(req.Limit); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"limit": h.scheduler.GetMaxConcurrent()})
}
