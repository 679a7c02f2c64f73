//go:build integration
// +build integration

package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetchq/fetchq/internal/domain"
)

func TestDownloadWorkflow_SuccessRecordsHistory(t *testing.T) {
	engine, cleanup := setupTestEngine(t)
	defer cleanup()

	source := "https://example.com/talks/keynote"
	engine.runner.script(source, fakeScript{
		lines: []string{
			"[download] Destination: /downloads/Big Talk [x1].mp4",
			"[download] 100% of 10.00MiB in 00:05",
		},
		outcome: domain.ExitOutcome{Kind: domain.OutcomeSuccess},
	})

	code, job := doJSON(t, http.MethodPost, engine.server.URL+"/api/v1/downloads", map[string]string{
		"source": source,
	})
	require.Equal(t, http.StatusCreated, code)
	id := jobID(t, job)

	finished := waitForJobStatus(t, engine.server.URL, id, "completed")
	assert.Equal(t, "Big Talk [x1].mp4", finished["title"])
	assert.Equal(t, float64(100), finished["progress"])

	code, page := doJSON(t, http.MethodGet, engine.server.URL+"/api/v1/history", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, float64(1), page["total_count"])
	entry := page["items"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "Big Talk [x1].mp4", entry["title"])
	assert.Equal(t, source, entry["source"])
	assert.Equal(t, float64(id), entry["job_id"])

	// Completed means in history, no longer live in the queue
	code, dup := doJSON(t, http.MethodGet,
		engine.server.URL+"/api/v1/history/duplicate?source="+url.QueryEscape(source), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, dup["in_history"])
	assert.Equal(t, false, dup["in_queue"])

	historyID := uint64(entry["id"].(float64))
	code, _ = doJSON(t, http.MethodDelete,
		fmt.Sprintf("%s/api/v1/history/%d", engine.server.URL, historyID), nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = doJSON(t, http.MethodDelete,
		fmt.Sprintf("%s/api/v1/history/%d", engine.server.URL, historyID), nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDownloadWorkflow_HistorySearch(t *testing.T) {
	engine, cleanup := setupTestEngine(t)
	defer cleanup()

	titles := map[string]string{
		"https://example.com/v/go":   "Concurrency Patterns.mp4",
		"https://example.com/v/rust": "Borrow Checker Deep Dive.mp4",
	}
	for source, title := range titles {
		engine.runner.script(source, fakeScript{
			lines: []string{"[download] Destination: /downloads/" + title},
		})
		code, job := doJSON(t, http.MethodPost, engine.server.URL+"/api/v1/downloads", map[string]string{
			"source": source,
		})
		require.Equal(t, http.StatusCreated, code)
		waitForJobStatus(t, engine.server.URL, jobID(t, job), "completed")
	}

	code, page := doJSON(t, http.MethodGet,
		engine.server.URL+"/api/v1/history?search="+url.QueryEscape("Borrow"), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), page["total_count"])
	entry := page["items"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "Borrow Checker Deep Dive.mp4", entry["title"])
}

func TestDownloadWorkflow_FailureAndRetry(t *testing.T) {
	engine, cleanup := setupTestEngine(t)
	defer cleanup()

	source := "https://example.com/v/gone"
	engine.runner.script(source, fakeScript{
		lines:   []string{"ERROR: [generic] gone: Video unavailable"},
		outcome: domain.ExitOutcome{Kind: domain.OutcomeFailure, ExitCode: 1},
	})

	code, job := doJSON(t, http.MethodPost, engine.server.URL+"/api/v1/downloads", map[string]string{
		"source": source,
	})
	require.Equal(t, http.StatusCreated, code)
	id := jobID(t, job)

	failed := waitForJobStatus(t, engine.server.URL, id, "failed")
	errMsg, _ := failed["error_message"].(string)
	assert.Contains(t, errMsg, "Video unavailable")

	// Failures do not reach history
	code, page := doJSON(t, http.MethodGet, engine.server.URL+"/api/v1/history", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), page["total_count"])

	// Retry spawns a fresh job; the source script now succeeds
	engine.runner.script(source, fakeScript{})
	code, retried := doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/v1/downloads/%d/retry", engine.server.URL, id), nil)
	require.Equal(t, http.StatusCreated, code)
	newID := jobID(t, retried)
	assert.NotEqual(t, id, newID)

	waitForJobStatus(t, engine.server.URL, newID, "completed")

	// The failed original left the queue when it was retried
	code, _ = doJSON(t, http.MethodGet,
		fmt.Sprintf("%s/api/v1/downloads/%d", engine.server.URL, id), nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDownloadWorkflow_CancelActive(t *testing.T) {
	engine, cleanup := setupTestEngine(t)
	defer cleanup()

	source := "https://example.com/v/slow"
	engine.runner.script(source, fakeScript{hold: true})

	code, job := doJSON(t, http.MethodPost, engine.server.URL+"/api/v1/downloads", map[string]string{
		"source": source,
	})
	require.Equal(t, http.StatusCreated, code)
	id := jobID(t, job)

	waitForJobStatus(t, engine.server.URL, id, "downloading")

	code, result := doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/v1/downloads/%d/cancel", engine.server.URL, id), nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "cancelled", result["result"])

	waitForJobStatus(t, engine.server.URL, id, "cancelled")

	// Cancelling again is a no-op
	code, result = doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/v1/downloads/%d/cancel", engine.server.URL, id), nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "noop", result["result"])

	code, page := doJSON(t, http.MethodGet, engine.server.URL+"/api/v1/history", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), page["total_count"])
}

func TestDownloadWorkflow_LogsCaptureLifecycle(t *testing.T) {
	engine, cleanup := setupTestEngine(t)
	defer cleanup()

	code, job := doJSON(t, http.MethodPost, engine.server.URL+"/api/v1/downloads", map[string]string{
		"source": "https://example.com/v/logged",
	})
	require.Equal(t, http.StatusCreated, code)
	waitForJobStatus(t, engine.server.URL, jobID(t, job), "completed")

	// Appends are buffered; poll until the queue events land
	deadline := time.Now().Add(3 * time.Second)
	var page map[string]interface{}
	for {
		code, page = doJSON(t, http.MethodGet, engine.server.URL+"/api/v1/logs?category=queue", nil)
		require.Equal(t, http.StatusOK, code)
		if page["total_count"].(float64) >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("queue log entries never appeared: %v", page)
		}
		time.Sleep(5 * time.Millisecond)
	}
	entry := page["items"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "queue", entry["category"])

	code, stats := doJSON(t, http.MethodGet, engine.server.URL+"/api/v1/logs/stats", nil)
	require.Equal(t, http.StatusOK, code)
	assert.GreaterOrEqual(t, stats["total"].(float64), float64(1))

	code, cleared := doJSON(t, http.MethodDelete, engine.server.URL+"/api/v1/logs", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.GreaterOrEqual(t, cleared["removed"].(float64), float64(1))
}

func TestLogStream_WebSocket(t *testing.T) {
	engine, cleanup := setupTestEngine(t)
	defer cleanup()

	wsURL := "ws" + strings.TrimPrefix(engine.server.URL, "http") + "/api/v1/logs/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	code, _ := doJSON(t, http.MethodPost, engine.server.URL+"/api/v1/downloads", map[string]string{
		"source": "https://example.com/v/streamed",
	})
	require.Equal(t, http.StatusCreated, code)

	// The enqueue event must arrive over the live feed
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "feed closed before the enqueue entry arrived")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &entry))
		if entry["category"] == "queue" && strings.Contains(entry["message"].(string), "Enqueued") {
			return
		}
	}
}
