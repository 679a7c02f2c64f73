package domain

// QueueStats holds aggregate counts over the whole live queue, regardless of
// any status filter applied to the page items.
type QueueStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// QueueSnapshot is a derived page of the live queue: the requested items plus
// aggregate counts, all computed atomically at query time.
type QueueSnapshot struct {
	Items    []Job      `json:"items"`
	Stats    QueueStats `json:"stats"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
	// TotalCount counts jobs matching the query's status filter and drives
	// pagination; Stats.Total counts everything.
	TotalCount int `json:"total_count"`
}

// HistoryStore persists completed downloads across restarts.
type HistoryStore interface {
	// Record inserts the entry, or updates it if the same job id was
	// already recorded.
	Record(entry *HistoryEntry) error

	// Query returns a page of entries most-recent-first with the total
	// match count. A non-empty search does a case-insensitive substring
	// match on title.
	Query(page, pageSize int, search string) ([]HistoryEntry, int64, error)

	// Delete removes one entry by its history id. Returns ErrNotFound if
	// absent.
	Delete(id uint64) error

	// HasSource reports whether any entry was recorded for the source URL.
	HasSource(source string) (bool, error)

	// Close releases the underlying database.
	Close() error
}

// LogStore is the durable, append-only engine event log with a live tail.
type LogStore interface {
	// Append records one entry. It never blocks on disk I/O and never
	// fails; write errors surface through the operational logger.
	Append(level LogLevel, category, message, details string)

	// Query returns a page of entries most-recent-first with the total
	// match count.
	Query(q LogQuery) ([]LogEntry, int64, error)

	// Stats summarizes the full unfiltered log.
	Stats() (*LogStats, error)

	// Clear deletes all entries, or only those in the given category when
	// it is non-empty. Returns the number of deleted entries.
	Clear(category string) (int64, error)

	// Subscribe registers a live feed delivering every entry in append
	// order. The feed is bounded: a slow consumer loses the oldest
	// undelivered entries rather than blocking producers. The returned
	// func unsubscribes and closes the channel.
	Subscribe() (<-chan LogEntry, func())

	// Cleanup enforces retention: entries older than maxAgeDays are
	// deleted, then the oldest entries beyond maxEntries. Returns the
	// number of deleted entries.
	Cleanup(maxAgeDays int, maxEntries int64) (int64, error)

	// Close flushes buffered appends and releases the database.
	Close() error
}
