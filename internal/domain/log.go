package domain

// LogLevel is the severity of a log entry.
type LogLevel string

const (
	LevelError LogLevel = "ERROR"
	LevelWarn  LogLevel = "WARN"
	LevelInfo  LogLevel = "INFO"
	LevelDebug LogLevel = "DEBUG"
)

// ValidLevel reports whether s is a known log level.
func ValidLevel(s string) bool {
	switch LogLevel(s) {
	case LevelError, LevelWarn, LevelInfo, LevelDebug:
		return true
	}
	return false
}

// Log categories used by the engine itself. The category field is free-form;
// these are the tags the engine's own components write under.
const (
	CategoryDownload = "download"
	CategoryQueue    = "queue"
	CategoryHistory  = "history"
	CategorySystem   = "system"
)

// LogEntry is one immutable observability record. IDs increase monotonically
// and stay stable across restarts.
type LogEntry struct {
	ID        uint64   `json:"id" gorm:"primaryKey"`
	Timestamp int64    `json:"timestamp" gorm:"not null;index"` // epoch millis
	Level     LogLevel `json:"level" gorm:"not null;index;type:text"`
	Category  string   `json:"category" gorm:"not null;index"`
	Message   string   `json:"message" gorm:"not null"`
	// Details carries an optional multi-line diagnostic block, e.g. the
	// captured output tail of a failed process.
	Details string `json:"details,omitempty" gorm:"type:text"`
}

// TableName specifies the table name for GORM
func (LogEntry) TableName() string {
	return "logs"
}

// LogStats summarizes the full unfiltered log.
type LogStats struct {
	Total    int64 `json:"total"`
	Errors   int64 `json:"errors"`
	Warnings int64 `json:"warnings"`
	Info     int64 `json:"info"`
}

// LogQuery selects a page of log entries, most recent first. Zero values
// leave the corresponding filter off.
type LogQuery struct {
	Page     int
	PageSize int
	Level    string
	Category string
	Search   string
	Since    int64 // epoch millis
}
