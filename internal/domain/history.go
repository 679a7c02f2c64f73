package domain

import "time"

// HistoryEntry is the durable record of a completed download. Entries are
// never mutated after creation; the only write after Record is Delete.
type HistoryEntry struct {
	ID            uint64 `json:"id" gorm:"primaryKey;autoIncrement"`
	JobID         uint64 `json:"job_id" gorm:"uniqueIndex;not null"`
	Title         string `json:"title" gorm:"not null;index"`
	Source        string `json:"source" gorm:"not null;index"`
	Format        string `json:"format"`
	Quality       string `json:"quality"`
	FileSizeBytes *int64 `json:"file_size_bytes,omitempty"`
	DownloadedAt  int64  `json:"downloaded_at" gorm:"not null;index"` // epoch seconds
}

// TableName specifies the table name for GORM
func (HistoryEntry) TableName() string {
	return "history"
}

// HistoryEntryFromJob builds the durable record for a job that reached
// Completed. Jobs that never announced a destination fall back to the source
// URL as title so history search still finds them.
func HistoryEntryFromJob(job *Job) *HistoryEntry {
	entry := &HistoryEntry{
		JobID:        job.ID,
		Title:        job.Title,
		Source:       job.Source,
		Format:       job.Format,
		Quality:      job.Quality,
		DownloadedAt: time.Now().Unix(),
	}
	if entry.Title == "" {
		entry.Title = job.Source
	}
	if job.TotalBytes > 0 {
		size := job.TotalBytes
		entry.FileSizeBytes = &size
	}
	if job.FinishedAt != nil {
		entry.DownloadedAt = job.FinishedAt.Unix()
	}
	return entry
}
