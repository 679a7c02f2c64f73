package infrastructure

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fetchq/fetchq/internal/domain"
)

// YTDLPRunner starts one yt-dlp process per job and supervises it. The
// runner itself writes nothing to disk; all file output is the process's own,
// landing in the configured download directory.
type YTDLPRunner struct {
	binary             string
	ffmpegPath         string
	outputDir          string
	outputTemplate     string
	cookiesFromBrowser string
	cancelGrace        time.Duration
	log                *zap.Logger
}

// NewYTDLPRunner creates a runner from the download and binary configuration.
func NewYTDLPRunner(config *domain.Config, log *zap.Logger) *YTDLPRunner {
	return &YTDLPRunner{
		binary:             config.Binaries.YTDLP,
		ffmpegPath:         config.Binaries.FFmpeg,
		outputDir:          config.Download.Dir,
		outputTemplate:     config.Download.OutputTemplate,
		cookiesFromBrowser: config.Download.CookiesFromBrowser,
		cancelGrace:        config.Download.CancelGrace,
		log:                log,
	}
}

// Start launches yt-dlp for the job. Spawn failures are reported through the
// returned handle's outcome so the caller supervises every job the same way.
func (r *YTDLPRunner) Start(job *domain.Job) domain.ProcessHandle {
	if _, err := exec.LookPath(r.binary); err != nil {
		r.log.Warn("downloader binary missing", zap.String("binary", r.binary))
		return spawnFailed(fmt.Sprintf("%s binary not found on PATH", r.binary), r.cancelGrace)
	}
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return spawnFailed(fmt.Sprintf("failed to create download directory: %v", err), r.cancelGrace)
	}

	args := r.buildArgs(job)
	r.log.Info("starting download process",
		zap.Uint64("job_id", job.ID),
		zap.String("command", ShellEscapeCommand(r.binary, args...)))

	h, err := launch(exec.Command(r.binary, args...), r.cancelGrace)
	if err != nil {
		return spawnFailed(err.Error(), r.cancelGrace)
	}
	return h
}

// buildArgs derives the yt-dlp invocation from the job's request fields. An
// explicit format selector wins over the quality label.
func (r *YTDLPRunner) buildArgs(job *domain.Job) []string {
	args := []string{
		"--newline",
		"--no-playlist",
		"--restrict-filenames",
		"-P", r.outputDir,
		"-o", r.outputTemplate,
	}

	if job.Format != "" {
		args = append(args, "-f", job.Format)
	} else {
		args = append(args, "-f", formatForQuality(job.Quality))
	}
	if r.cookiesFromBrowser != "" {
		args = append(args, "--cookies-from-browser", r.cookiesFromBrowser)
	}
	if r.ffmpegPath != "" && r.ffmpegPath != "ffmpeg" {
		args = append(args, "--ffmpeg-location", r.ffmpegPath)
	}

	return append(args, job.Source)
}

// formatForQuality maps a user-facing quality label to a yt-dlp format
// expression.
func formatForQuality(quality string) string {
	switch strings.ToLower(strings.TrimSpace(quality)) {
	case "", "best":
		return "bv*+ba/b"
	case "2160p", "2160", "4k":
		return "bv*[height<=2160]+ba/b[height<=2160]"
	case "1440p", "1440":
		return "bv*[height<=1440]+ba/b[height<=1440]"
	case "1080p", "1080", "hd":
		return "bv*[height<=1080]+ba/b[height<=1080]"
	case "720p", "720":
		return "bv*[height<=720]+ba/b[height<=720]"
	case "480p", "480":
		return "bv*[height<=480]+ba/b[height<=480]"
	case "audio":
		return "ba/b"
	default:
		return "bv*+ba/b"
	}
}

// launch starts the prepared command and returns its supervising handle.
func launch(cmd *exec.Cmd, grace time.Duration) (*processHandle, error) {
	h := &processHandle{
		lines: make(chan string, 256),
		done:  make(chan struct{}),
		grace: grace,
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to set up stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to set up stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	h.cmd = cmd
	go h.supervise(stdout, stderr)
	return h, nil
}

// spawnFailed builds a handle for a process that never started: the line
// stream is already closed and the outcome reports the spawn error.
func spawnFailed(reason string, grace time.Duration) *processHandle {
	h := &processHandle{
		lines:   make(chan string),
		done:    make(chan struct{}),
		grace:   grace,
		outcome: domain.ExitOutcome{Kind: domain.OutcomeSpawnError, Reason: reason},
	}
	close(h.lines)
	close(h.done)
	return h
}

// processHandle supervises one spawned process.
type processHandle struct {
	cmd   *exec.Cmd
	lines chan string
	done  chan struct{}
	grace time.Duration

	mu        sync.Mutex
	cancelled bool

	// outcome is written once before done is closed.
	outcome domain.ExitOutcome
}

func (h *processHandle) Lines() <-chan string {
	return h.lines
}

func (h *processHandle) Wait() domain.ExitOutcome {
	<-h.done
	return h.outcome
}

// Cancel terminates the process and blocks until it is gone. A second call,
// or a call after exit, returns without side effects.
func (h *processHandle) Cancel() {
	select {
	case <-h.done:
		return
	default:
	}

	h.mu.Lock()
	already := h.cancelled
	h.cancelled = true
	cmd := h.cmd
	h.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}
	if already {
		<-h.done
		return
	}

	_ = terminateProcess(cmd.Process)
	select {
	case <-h.done:
	case <-time.After(h.grace):
		_ = cmd.Process.Kill()
		<-h.done
	}
}

// supervise drains both output streams, waits for exit, and publishes the
// outcome. The line channel closes strictly before done, so consumers always
// observe the full output before the exit report.
func (h *processHandle) supervise(stdout, stderr io.Reader) {
	var wg sync.WaitGroup
	wg.Add(2)
	go h.scan(stdout, &wg)
	go h.scan(stderr, &wg)
	wg.Wait()

	err := h.cmd.Wait()
	close(h.lines)

	h.mu.Lock()
	cancelled := h.cancelled
	h.mu.Unlock()

	switch {
	case cancelled:
		h.outcome = domain.ExitOutcome{Kind: domain.OutcomeKilled}
	case err == nil:
		h.outcome = domain.ExitOutcome{Kind: domain.OutcomeSuccess}
	default:
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		h.outcome = domain.ExitOutcome{Kind: domain.OutcomeFailure, ExitCode: code}
	}
	close(h.done)
}

func (h *processHandle) scan(r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	scanner.Split(splitByNewlineOrCR)
	for scanner.Scan() {
		h.lines <- scanner.Text()
	}
}

// splitByNewlineOrCR treats both \n and bare \r as line boundaries, so
// in-place progress updates arrive as separate lines.
func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}
