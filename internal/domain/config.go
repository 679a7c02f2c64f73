package domain

import (
	"path/filepath"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Download     DownloadConfig     `mapstructure:"download"`
	Binaries     BinaryConfig       `mapstructure:"binaries"`
	Store        StoreConfig        `mapstructure:"store"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DownloadConfig contains download-related configuration
type DownloadConfig struct {
	Dir                string        `mapstructure:"dir"`
	OutputTemplate     string        `mapstructure:"output_template"`
	ConcurrentLimit    int           `mapstructure:"concurrent_limit"`
	CookiesFromBrowser string        `mapstructure:"cookies_from_browser"`
	CheckInterval      time.Duration `mapstructure:"check_interval"`
	CancelGrace        time.Duration `mapstructure:"cancel_grace"`
}

// BinaryConfig locates the external downloader and transcoder binaries
type BinaryConfig struct {
	YTDLP        string        `mapstructure:"ytdlp"`
	FFmpeg       string        `mapstructure:"ffmpeg"`
	CheckTimeout time.Duration `mapstructure:"check_timeout"`
}

// StoreConfig contains persistence-related configuration
type StoreConfig struct {
	Dir             string        `mapstructure:"dir"`
	LogMaxAgeDays   int           `mapstructure:"log_max_age_days"`
	LogMaxEntries   int64         `mapstructure:"log_max_entries"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// HistoryPath returns the history database location.
func (s StoreConfig) HistoryPath() string {
	return filepath.Join(s.Dir, "history.db")
}

// LogsPath returns the log database location.
func (s StoreConfig) LogsPath() string {
	return filepath.Join(s.Dir, "logs.db")
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Sound   bool   `mapstructure:"sound"`
	Method  string `mapstructure:"method"` // osascript, notify-send, etc.
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8090,
		},
		Download: DownloadConfig{
			Dir:                "$HOME/Downloads/fetchq",
			OutputTemplate:     "%(title)s [%(id)s].%(ext)s",
			ConcurrentLimit:    3,
			CookiesFromBrowser: "",
			CheckInterval:      10 * time.Second,
			CancelGrace:        5 * time.Second,
		},
		Binaries: BinaryConfig{
			YTDLP:        "yt-dlp",
			FFmpeg:       "ffmpeg",
			CheckTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Dir:             "$HOME/.fetchq",
			LogMaxAgeDays:   30,
			LogMaxEntries:   10000,
			CleanupInterval: 6 * time.Hour,
		},
		Notification: NotificationConfig{
			Enabled: false,
			Sound:   false,
			Method:  "notify-send",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
		},
	}
}
