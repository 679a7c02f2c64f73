package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fetchq/fetchq/internal/domain"
)

// LogHandler handles engine log queries
type LogHandler struct {
	store  domain.LogStore
	logger *zap.Logger
}

// NewLogHandler creates a new log handler
func NewLogHandler(store domain.LogStore, logger *zap.Logger) *LogHandler {
	return &LogHandler{
		store:  store,
		logger: logger,
	}
}

// ListLogs handles GET /api/v1/logs
//
// Pages are one-based and most-recent-first. level, category, search and
// since (epoch millis) filters combine.
func (h *LogHandler) ListLogs(c *gin.Context) {
	query := domain.LogQuery{
		Page:     intQuery(c, "page", 1),
		PageSize: intQuery(c, "page_size", 50),
		Category: c.Query("category"),
		Search:   c.Query("search"),
	}

	if level := c.Query("level"); level != "" {
		normalized := strings.ToUpper(level)
		if !domain.ValidLevel(normalized) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid level: " + level})
			return
		}
		query.Level = normalized
	}

	if since := c.Query("since"); since != "" {
		millis, err := strconv.ParseInt(since, 10, 64)
		if err != nil || millis < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since timestamp"})
			return
		}
		query.Since = millis
	}

	items, total, err := h.store.Query(query)
	if err != nil {
		h.logger.Error("Failed to query logs", zap.Error(err))
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"total_count": total,
	})
}

// GetStats handles GET /api/v1/logs/stats
func (h *LogHandler) GetStats(c *gin.Context) {
	stats, err := h.store.Stats()
	if err != nil {
		h.logger.Error("Failed to get log stats", zap.Error(err))
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// ClearLogs handles DELETE /api/v1/logs
//
// With a category query parameter only that category is cleared; without one
// the whole log is.
func (h *LogHandler) ClearLogs(c *gin.Context) {
	removed, err := h.store.Clear(c.Query("category"))
	if err != nil {
		h.logger.Error("Failed to clear logs", zap.Error(err))
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
