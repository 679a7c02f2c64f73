package infrastructure

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fetchq/fetchq/internal/domain"
)

func setupLogStore(t *testing.T) (*SQLiteLogStore, func()) {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "logstore-test-*")
	require.NoError(t, err)

	store, err := NewSQLiteLogStore(filepath.Join(tmpDir, "logs.db"), zap.NewNop())
	require.NoError(t, err)

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}
	return store, cleanup
}

func TestLogAppend_RoundTrip(t *testing.T) {
	store, cleanup := setupLogStore(t)
	defer cleanup()

	store.Append(domain.LevelInfo, domain.CategoryQueue, "job enqueued", "")
	store.Append(domain.LevelError, domain.CategoryDownload, "download failed", "ERROR: no formats found")

	entries, total, err := store.Query(domain.LogQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, entries, 2)

	// Most recent first
	assert.Equal(t, "download failed", entries[0].Message)
	assert.Equal(t, domain.LevelError, entries[0].Level)
	assert.Equal(t, "ERROR: no formats found", entries[0].Details)
	assert.Equal(t, uint64(2), entries[0].ID)
	assert.Equal(t, "job enqueued", entries[1].Message)
	assert.Equal(t, uint64(1), entries[1].ID)
	assert.NotZero(t, entries[0].Timestamp)
}

func TestLogQuery_Filters(t *testing.T) {
	store, cleanup := setupLogStore(t)
	defer cleanup()

	store.Append(domain.LevelInfo, domain.CategoryQueue, "job enqueued", "")
	store.Append(domain.LevelError, domain.CategoryDownload, "download failed", "")
	store.Append(domain.LevelWarn, domain.CategoryDownload, "slow network", "")

	entries, total, err := store.Query(domain.LogQuery{Level: "error"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, entries, 1)
	assert.Equal(t, "download failed", entries[0].Message)

	entries, total, err = store.Query(domain.LogQuery{Category: domain.CategoryDownload})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, entries, 2)

	entries, total, err = store.Query(domain.LogQuery{Search: "network"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, entries, 1)
	assert.Equal(t, "slow network", entries[0].Message)
}

func TestLogQuery_SinceFilter(t *testing.T) {
	store, cleanup := setupLogStore(t)
	defer cleanup()

	store.Append(domain.LevelInfo, domain.CategorySystem, "first", "")
	_, _, err := store.Query(domain.LogQuery{})
	require.NoError(t, err)

	cutoff := time.Now().UnixMilli() + 60_000
	entries, total, err := store.Query(domain.LogQuery{Since: cutoff})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Empty(t, entries)
}

func TestLogQuery_Pagination(t *testing.T) {
	store, cleanup := setupLogStore(t)
	defer cleanup()

	for i := 0; i < 5; i++ {
		store.Append(domain.LevelInfo, domain.CategorySystem, fmt.Sprintf("message %d", i), "")
	}

	entries, total, err := store.Query(domain.LogQuery{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, entries, 2)

	entries, _, err = store.Query(domain.LogQuery{Page: 4, PageSize: 2})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLogStats(t *testing.T) {
	store, cleanup := setupLogStore(t)
	defer cleanup()

	store.Append(domain.LevelError, domain.CategoryDownload, "boom", "")
	store.Append(domain.LevelError, domain.CategoryDownload, "boom again", "")
	store.Append(domain.LevelWarn, domain.CategorySystem, "careful", "")
	store.Append(domain.LevelInfo, domain.CategoryQueue, "fine", "")

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(2), stats.Errors)
	assert.Equal(t, int64(1), stats.Warnings)
	assert.Equal(t, int64(1), stats.Info)
}

func TestLogClear(t *testing.T) {
	store, cleanup := setupLogStore(t)
	defer cleanup()

	store.Append(domain.LevelInfo, domain.CategoryQueue, "one", "")
	store.Append(domain.LevelInfo, domain.CategoryDownload, "two", "")
	store.Append(domain.LevelInfo, domain.CategoryDownload, "three", "")

	deleted, err := store.Clear(domain.CategoryDownload)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, total, err := store.Query(domain.LogQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	deleted, err = store.Clear("")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, total, err = store.Query(domain.LogQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestLogIDs_MonotonicAcrossReopen(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "logstore-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)
	dbPath := filepath.Join(tmpDir, "logs.db")

	store, err := NewSQLiteLogStore(dbPath, zap.NewNop())
	require.NoError(t, err)
	store.Append(domain.LevelInfo, domain.CategorySystem, "before restart", "")
	store.Append(domain.LevelInfo, domain.CategorySystem, "still before", "")
	require.NoError(t, store.Close())

	store, err = NewSQLiteLogStore(dbPath, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()
	store.Append(domain.LevelInfo, domain.CategorySystem, "after restart", "")

	entries, total, err := store.Query(domain.LogQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(3), entries[0].ID)
	assert.Equal(t, "after restart", entries[0].Message)
}

func TestLogSubscribe_ReceivesLiveEntries(t *testing.T) {
	store, cleanup := setupLogStore(t)
	defer cleanup()

	feed, unsubscribe := store.Subscribe()

	store.Append(domain.LevelInfo, domain.CategoryQueue, "live entry", "")

	select {
	case entry := <-feed:
		assert.Equal(t, "live entry", entry.Message)
		assert.Equal(t, domain.CategoryQueue, entry.Category)
	case <-time.After(time.Second):
		t.Fatal("expected a live entry on the feed")
	}

	unsubscribe()
	_, open := <-feed
	assert.False(t, open, "unsubscribe should close the feed")
}

func TestLogSubscribe_DropsOldestWhenSlow(t *testing.T) {
	store, cleanup := setupLogStore(t)
	defer cleanup()

	feed, unsubscribe := store.Subscribe()
	defer unsubscribe()

	for i := 0; i < subscriberBuffer+10; i++ {
		store.Append(domain.LevelInfo, domain.CategorySystem, fmt.Sprintf("message %d", i), "")
	}

	// The ten oldest entries were dropped; delivery resumes at message 10
	entry := <-feed
	assert.Equal(t, "message 10", entry.Message)
	assert.Len(t, feed, subscriberBuffer-1)
}

func TestLogUnsubscribe_Idempotent(t *testing.T) {
	store, cleanup := setupLogStore(t)
	defer cleanup()

	_, unsubscribe := store.Subscribe()
	unsubscribe()
	assert.NotPanics(t, func() { unsubscribe() })
}

func TestLogCleanup_ExpiresOldEntries(t *testing.T) {
	store, cleanup := setupLogStore(t)
	defer cleanup()

	old := time.Now().AddDate(0, 0, -60).UnixMilli()
	recent := time.Now().UnixMilli()
	seedLogRows(t, store,
		domain.LogEntry{ID: 1, Timestamp: old, Level: domain.LevelInfo, Category: "system", Message: "ancient"},
		domain.LogEntry{ID: 2, Timestamp: old, Level: domain.LevelInfo, Category: "system", Message: "ancient too"},
		domain.LogEntry{ID: 3, Timestamp: recent, Level: domain.LevelInfo, Category: "system", Message: "fresh"},
	)

	deleted, err := store.Cleanup(30, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	entries, total, err := store.Query(domain.LogQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, entries, 1)
	assert.Equal(t, "fresh", entries[0].Message)
}

func TestLogCleanup_TrimsBeyondMaxEntries(t *testing.T) {
	store, cleanup := setupLogStore(t)
	defer cleanup()

	now := time.Now().UnixMilli()
	rows := make([]domain.LogEntry, 5)
	for i := range rows {
		rows[i] = domain.LogEntry{
			ID:        uint64(i + 1),
			Timestamp: now,
			Level:     domain.LevelInfo,
			Category:  "system",
			Message:   fmt.Sprintf("message %d", i+1),
		}
	}
	seedLogRows(t, store, rows...)

	deleted, err := store.Cleanup(0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	entries, total, err := store.Query(domain.LogQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, entries, 2)
	assert.Equal(t, "message 5", entries[0].Message)
	assert.Equal(t, "message 4", entries[1].Message)
}

// seedLogRows bypasses Append so tests can control ids and timestamps.
func seedLogRows(t *testing.T, store *SQLiteLogStore, rows ...domain.LogEntry) {
	t.Helper()
	require.NoError(t, store.db.Create(&rows).Error)
}
