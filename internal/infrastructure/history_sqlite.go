package infrastructure

import (
	"fmt"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/fetchq/fetchq/internal/domain"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// storeErr keeps the store-availability class on the error chain while
// preserving the cause text.
func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}

// clampPage normalizes pagination arguments to page >= 1 and a bounded size.
func clampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// escapeLike escapes LIKE wildcards in user-supplied search text.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// SQLiteHistoryStore implements HistoryStore using SQLite
type SQLiteHistoryStore struct {
	db *gorm.DB
}

// NewSQLiteHistoryStore opens (or creates) the history database
func NewSQLiteHistoryStore(dbPath string) (*SQLiteHistoryStore, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if err := db.AutoMigrate(&domain.HistoryEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}

	return &SQLiteHistoryStore{db: db}, nil
}

// Record inserts the entry, updating the existing row when the same job
// was already recorded
func (s *SQLiteHistoryStore) Record(entry *domain.HistoryEntry) error {
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "source", "format", "quality", "file_size_bytes", "downloaded_at"}),
	}).Create(entry).Error
	if err != nil {
		return storeErr("failed to record history entry", err)
	}
	return nil
}

// Query returns a page of entries most-recent-first with the total match count
func (s *SQLiteHistoryStore) Query(page, pageSize int, search string) ([]domain.HistoryEntry, int64, error) {
	page, pageSize = clampPage(page, pageSize)

	query := s.db.Model(&domain.HistoryEntry{})
	if search != "" {
		query = query.Where(`title LIKE ? ESCAPE '\'`, "%"+escapeLike(search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, storeErr("failed to count history entries", err)
	}

	var entries []domain.HistoryEntry
	err := query.Order("downloaded_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error
	if err != nil {
		return nil, 0, storeErr("failed to query history", err)
	}
	return entries, total, nil
}

// Delete removes one entry by its history id
func (s *SQLiteHistoryStore) Delete(id uint64) error {
	res := s.db.Delete(&domain.HistoryEntry{}, "id = ?", id)
	if res.Error != nil {
		return storeErr("failed to delete history entry", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// HasSource reports whether any entry was recorded for the source URL
func (s *SQLiteHistoryStore) HasSource(source string) (bool, error) {
	var count int64
	err := s.db.Model(&domain.HistoryEntry{}).Where("source = ?", source).Count(&count).Error
	if err != nil {
		return false, storeErr("failed to check history for source", err)
	}
	return count > 0, nil
}

// Close closes the database connection
func (s *SQLiteHistoryStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
