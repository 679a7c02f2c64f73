package infrastructure

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fetchq/fetchq/internal/domain"
)

// subscriberBuffer bounds each live-feed channel. A consumer that falls
// further behind loses its oldest undelivered entries.
const subscriberBuffer = 200

type logSubscriber struct {
	ch   chan domain.LogEntry
	once sync.Once
}

func (l *logSubscriber) shutdown() {
	l.once.Do(func() { close(l.ch) })
}

// SQLiteLogStore implements LogStore using SQLite. Appends are buffered in
// memory and persisted by a background writer, so producers never wait on
// disk; reads flush the buffer first and therefore always see every
// preceding append.
type SQLiteLogStore struct {
	db     *gorm.DB
	log    *zap.Logger
	nextID atomic.Uint64

	mu      sync.Mutex
	buffer  []domain.LogEntry
	flushMu sync.Mutex
	flushCh chan struct{}
	quit    chan struct{}
	wg      sync.WaitGroup

	subMu sync.RWMutex
	subs  map[string]*logSubscriber
}

// NewSQLiteLogStore opens (or creates) the log database and starts the
// background writer. The id counter is seeded from the newest stored entry
// so ids stay monotonic across restarts.
func NewSQLiteLogStore(dbPath string, log *zap.Logger) (*SQLiteLogStore, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open log database: %w", err)
	}

	if err := db.AutoMigrate(&domain.LogEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate log database: %w", err)
	}

	store := &SQLiteLogStore{
		db:      db,
		log:     log,
		flushCh: make(chan struct{}, 1),
		quit:    make(chan struct{}),
		subs:    make(map[string]*logSubscriber),
	}

	var last domain.LogEntry
	if err := db.Order("id DESC").First(&last).Error; err == nil {
		store.nextID.Store(last.ID)
	} else if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("failed to seed log id counter: %w", err)
	}

	store.wg.Add(1)
	go store.writeLoop()
	return store, nil
}

// Append records one entry and fans it out to live subscribers. It never
// blocks on disk I/O; persistence failures surface through the operational
// logger.
func (s *SQLiteLogStore) Append(level domain.LogLevel, category, message, details string) {
	entry := domain.LogEntry{
		ID:        s.nextID.Add(1),
		Timestamp: time.Now().UnixMilli(),
		Level:     level,
		Category:  category,
		Message:   message,
		Details:   details,
	}

	s.mu.Lock()
	s.buffer = append(s.buffer, entry)
	s.mu.Unlock()

	select {
	case s.flushCh <- struct{}{}:
	default:
	}

	s.broadcast(entry)
}

// Query returns a page of entries most-recent-first with the total match count
func (s *SQLiteLogStore) Query(q domain.LogQuery) ([]domain.LogEntry, int64, error) {
	s.flush()

	page, pageSize := clampPage(q.Page, q.PageSize)
	query := s.db.Model(&domain.LogEntry{})
	if q.Level != "" {
		query = query.Where("level = ?", strings.ToUpper(q.Level))
	}
	if q.Category != "" {
		query = query.Where("category = ?", q.Category)
	}
	if q.Search != "" {
		query = query.Where(`message LIKE ? ESCAPE '\'`, "%"+escapeLike(q.Search)+"%")
	}
	if q.Since > 0 {
		query = query.Where("timestamp >= ?", q.Since)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, storeErr("failed to count log entries", err)
	}

	var entries []domain.LogEntry
	err := query.Order("timestamp DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error
	if err != nil {
		return nil, 0, storeErr("failed to query logs", err)
	}
	return entries, total, nil
}

// Stats summarizes the full unfiltered log
func (s *SQLiteLogStore) Stats() (*domain.LogStats, error) {
	s.flush()

	stats := &domain.LogStats{}
	if err := s.db.Model(&domain.LogEntry{}).Count(&stats.Total).Error; err != nil {
		return nil, storeErr("failed to count log entries", err)
	}

	levelCounts := []struct {
		Level domain.LogLevel
		Count int64
	}{}
	if err := s.db.Model(&domain.LogEntry{}).
		Select("level, count(*) as count").
		Group("level").
		Scan(&levelCounts).Error; err != nil {
		return nil, storeErr("failed to aggregate log stats", err)
	}

	for _, lc := range levelCounts {
		switch lc.Level {
		case domain.LevelError:
			stats.Errors = lc.Count
		case domain.LevelWarn:
			stats.Warnings = lc.Count
		case domain.LevelInfo:
			stats.Info = lc.Count
		}
	}
	return stats, nil
}

// Clear deletes all entries, or only the given category when non-empty
func (s *SQLiteLogStore) Clear(category string) (int64, error) {
	s.flush()

	query := s.db.Where("1 = 1")
	if category != "" {
		query = s.db.Where("category = ?", category)
	}
	res := query.Delete(&domain.LogEntry{})
	if res.Error != nil {
		return 0, storeErr("failed to clear logs", res.Error)
	}
	return res.RowsAffected, nil
}

// Subscribe registers a live feed. The returned func unsubscribes and
// closes the channel; calling it more than once is harmless.
func (s *SQLiteLogStore) Subscribe() (<-chan domain.LogEntry, func()) {
	id := uuid.New().String()
	sub := &logSubscriber{ch: make(chan domain.LogEntry, subscriberBuffer)}

	s.subMu.Lock()
	s.subs[id] = sub
	s.subMu.Unlock()

	unsubscribe := func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
		sub.shutdown()
	}
	return sub.ch, unsubscribe
}

// Cleanup deletes entries older than maxAgeDays, then the oldest entries
// beyond maxEntries. Either bound is skipped when zero.
func (s *SQLiteLogStore) Cleanup(maxAgeDays int, maxEntries int64) (int64, error) {
	s.flush()

	var deleted int64
	if maxAgeDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -maxAgeDays).UnixMilli()
		res := s.db.Where("timestamp < ?", cutoff).Delete(&domain.LogEntry{})
		if res.Error != nil {
			return deleted, storeErr("failed to expire old log entries", res.Error)
		}
		deleted += res.RowsAffected
	}

	if maxEntries > 0 {
		// The maxEntries-th newest id is the oldest one to keep
		var ids []uint64
		err := s.db.Model(&domain.LogEntry{}).
			Order("id DESC").
			Offset(int(maxEntries - 1)).
			Limit(1).
			Pluck("id", &ids).Error
		if err != nil {
			return deleted, storeErr("failed to find retention threshold", err)
		}
		if len(ids) == 1 {
			res := s.db.Where("id < ?", ids[0]).Delete(&domain.LogEntry{})
			if res.Error != nil {
				return deleted, storeErr("failed to trim log entries", res.Error)
			}
			deleted += res.RowsAffected
		}
	}
	return deleted, nil
}

// Close flushes buffered appends, stops the writer, and closes the database.
// Live subscribers see their channels closed.
func (s *SQLiteLogStore) Close() error {
	close(s.quit)
	s.wg.Wait()

	s.subMu.Lock()
	for id, sub := range s.subs {
		delete(s.subs, id)
		sub.shutdown()
	}
	s.subMu.Unlock()

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLiteLogStore) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.flushCh:
			s.flush()
		case <-s.quit:
			s.flush()
			return
		}
	}
}

// flush persists everything buffered so far. flushMu serializes the writer
// goroutine with reader-triggered flushes: when a reader's flush returns,
// every entry appended before the call is committed.
func (s *SQLiteLogStore) flush() {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	batch := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	if err := s.db.Create(&batch).Error; err != nil {
		s.log.Error("failed to persist log entries",
			zap.Int("count", len(batch)),
			zap.Error(err))
	}
}

func (s *SQLiteLogStore) broadcast(entry domain.LogEntry) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, sub := range s.subs {
		deliver(sub.ch, entry)
	}
}

// deliver sends to a subscriber, dropping its oldest queued entries while
// the buffer is full.
func deliver(ch chan domain.LogEntry, entry domain.LogEntry) {
	for {
		select {
		case ch <- entry:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
