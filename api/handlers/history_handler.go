package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fetchq/fetchq/internal/app"
	"github.com/fetchq/fetchq/internal/domain"
)

// HistoryHandler handles download history requests
type HistoryHandler struct {
	store     domain.HistoryStore
	scheduler *app.Scheduler
	logger    *zap.Logger
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(store domain.HistoryStore, scheduler *app.Scheduler, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{
		store:     store,
		scheduler: scheduler,
		logger:    logger,
	}
}

// ListHistory handles GET /api/v1/history
//
// Pages are one-based and most-recent-first. A search narrows by title
// substring.
func (h *HistoryHandler) ListHistory(c *gin.Context) {
	page := intQuery(c, "page", 1)
	pageSize := intQuery(c, "page_size", 50)
	search := c.Query("search")

	items, total, err := h.store.Query(page, pageSize, search)
	if err != nil {
		h.logger.Error("Failed to query history", zap.Error(err))
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"total_count": total,
	})
}

// CheckDuplicate handles GET /api/v1/history/duplicate
//
// Answers "was this source downloaded before, or is it being downloaded right
// now" so clients can warn before enqueueing the same thing twice.
func (h *HistoryHandler) CheckDuplicate(c *gin.Context) {
	source := strings.TrimSpace(c.Query("source"))
	if source == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'source' is required"})
		return
	}

	inHistory, err := h.store.HasSource(source)
	if err != nil {
		h.logger.Error("Failed to check history for source", zap.Error(err))
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"in_history": inHistory,
		"in_queue":   h.scheduler.HasLiveSource(source),
	})
}

// DeleteHistory handles DELETE /api/v1/history/:id
func (h *HistoryHandler) DeleteHistory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.store.Delete(id); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "history entry deleted"})
}
