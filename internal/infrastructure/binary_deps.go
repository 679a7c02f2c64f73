package infrastructure

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/fetchq/fetchq/internal/domain"
)

// DependencyReport describes the external binaries the engine shells out to.
type DependencyReport struct {
	YTDLPInstalled  bool   `json:"ytdlp_installed"`
	YTDLPVersion    string `json:"ytdlp_version,omitempty"`
	YTDLPPath       string `json:"ytdlp_path,omitempty"`
	FFmpegInstalled bool   `json:"ffmpeg_installed"`
	FFmpegVersion   string `json:"ffmpeg_version,omitempty"`
	FFmpegPath      string `json:"ffmpeg_path,omitempty"`
}

// BinaryChecker probes yt-dlp and ffmpeg availability and drives yt-dlp's
// self-updater.
type BinaryChecker struct {
	ytdlp   string
	ffmpeg  string
	timeout time.Duration
}

// NewBinaryChecker creates a checker from the binary configuration.
func NewBinaryChecker(config *domain.Config) *BinaryChecker {
	return &BinaryChecker{
		ytdlp:   config.Binaries.YTDLP,
		ffmpeg:  config.Binaries.FFmpeg,
		timeout: config.Binaries.CheckTimeout,
	}
}

// Check probes both binaries and reports versions. A missing or broken
// binary is reported in the result, never as an error.
func (c *BinaryChecker) Check(ctx context.Context) DependencyReport {
	report := DependencyReport{}

	if path, err := exec.LookPath(c.ytdlp); err == nil {
		report.YTDLPPath = path
		if version, err := c.binaryVersion(ctx, c.ytdlp, "--version"); err == nil {
			report.YTDLPInstalled = true
			report.YTDLPVersion = version
		}
	}

	if path, err := exec.LookPath(c.ffmpeg); err == nil {
		report.FFmpegPath = path
		if version, err := c.binaryVersion(ctx, c.ffmpeg, "-version"); err == nil {
			report.FFmpegInstalled = true
			// ffmpeg prints a banner; only the first line names the version
			if i := strings.IndexByte(version, '\n'); i >= 0 {
				version = version[:i]
			}
			report.FFmpegVersion = strings.TrimSpace(version)
		}
	}

	return report
}

func (c *BinaryChecker) binaryVersion(ctx context.Context, binary, flag string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, binary, flag).Output()
	if err != nil {
		return "", fmt.Errorf("failed to run %s %s: %w", binary, flag, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Update runs yt-dlp's self-updater and returns its report text.
func (c *BinaryChecker) Update(ctx context.Context) (string, error) {
	path, err := exec.LookPath(c.ytdlp)
	if err != nil {
		return "", fmt.Errorf("%s not found on PATH", c.ytdlp)
	}

	out, err := exec.CommandContext(ctx, path, "--update").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("update failed: %s", strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}
