package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fetchq/fetchq/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// backlogSize is how many recent entries a new client receives before the
// live feed takes over.
const backlogSize = 50

// LogWebSocketHandler streams engine log entries to WebSocket clients
type LogWebSocketHandler struct {
	store  domain.LogStore
	logger *zap.Logger
}

// NewLogWebSocketHandler creates a new WebSocket handler
func NewLogWebSocketHandler(store domain.LogStore, logger *zap.Logger) *LogWebSocketHandler {
	return &LogWebSocketHandler{
		store:  store,
		logger: logger,
	}
}

// HandleWebSocket handles GET /api/v1/logs/ws
//
// Each client first receives a chronological backlog of recent entries, then
// every new entry as it is appended. Entries carried by both the backlog and
// the live feed are sent once; ids decide.
func (h *LogWebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Info("WebSocket client connected",
		zap.String("remote_addr", c.Request.RemoteAddr))

	// Subscribe before reading the backlog so nothing appended in between
	// is lost.
	feed, unsubscribe := h.store.Subscribe()
	defer unsubscribe()

	var lastSent uint64

	backlog, _, err := h.store.Query(domain.LogQuery{Page: 1, PageSize: backlogSize})
	if err != nil {
		h.logger.Error("Failed to read log backlog", zap.Error(err))
	} else {
		// Query returns most-recent-first; replay oldest-first.
		for i := len(backlog) - 1; i >= 0; i-- {
			if !h.send(conn, backlog[i]) {
				return
			}
			lastSent = backlog[i].ID
		}
	}

	// Read messages from client (close and ping/pong handling)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case entry, ok := <-feed:
			if !ok {
				return
			}
			if entry.ID <= lastSent {
				continue
			}
			if !h.send(conn, entry) {
				return
			}
			lastSent = entry.ID

		case <-ticker.C:
			// Send ping to keep connection alive
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}

func (h *LogWebSocketHandler) send(conn *websocket.Conn, entry domain.LogEntry) bool {
	data, err := json.Marshal(entry)
	if err != nil {
		h.logger.Error("Failed to marshal log entry", zap.Error(err))
		return true
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return false
	}
	return true
}
