package domain

import (
	"strings"
	"time"
)

// JobStatus represents the lifecycle state of a download job
type JobStatus string

const (
	StatusPending     JobStatus = "pending"
	StatusDownloading JobStatus = "downloading"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
	StatusCancelled   JobStatus = "cancelled"
)

// progressTolerance bounds how far a reported percent may move backward and
// still be applied. Larger regressions (per-stream resets, fragment restarts)
// are treated as noise and the prior value is kept.
const progressTolerance = 1.0

// Job represents one requested download tracked by the scheduler.
//
// A job moves Pending -> Downloading -> exactly one of
// {Completed, Failed, Cancelled}. Terminal states are sinks: the transition
// methods refuse any further change, and retry clones a fresh Pending job
// instead of mutating the old one.
type Job struct {
	ID           uint64     `json:"id"`
	Source       string     `json:"source"`
	Format       string     `json:"format"`
	Quality      string     `json:"quality"`
	Status       JobStatus  `json:"status"`
	Stage        Stage      `json:"stage,omitempty"`
	Title        string     `json:"title,omitempty"`
	Progress     float64    `json:"progress"`
	Speed        string     `json:"speed,omitempty"`
	ETA          string     `json:"eta,omitempty"`
	TotalBytes   int64      `json:"total_bytes,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`

	// QueuePosition is derived at query time: 1-based next-in-line order
	// among Pending jobs. Zero for any non-Pending job.
	QueuePosition int `json:"queue_position,omitempty"`
}

// NewJob creates a new pending job. IDs are assigned by the scheduler and
// increase monotonically within a process lifetime.
func NewJob(id uint64, source, format, quality string) *Job {
	return &Job{
		ID:        id,
		Source:    source,
		Format:    format,
		Quality:   quality,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
}

// Start transitions the job from Pending to Downloading. Returns false if the
// job is not Pending.
func (j *Job) Start() bool {
	if j.Status != StatusPending {
		return false
	}
	j.Status = StatusDownloading
	now := time.Now()
	j.StartedAt = &now
	return true
}

// ApplyProgress folds a progress event into the job. Only Downloading jobs
// accept updates; percent regressions beyond progressTolerance keep the prior
// value.
func (j *Job) ApplyProgress(ev ProgressEvent) {
	if j.Status != StatusDownloading {
		return
	}
	if ev.HasPercent {
		if ev.Percent >= j.Progress || j.Progress-ev.Percent <= progressTolerance {
			j.Progress = ev.Percent
		}
	}
	if ev.Speed != "" {
		j.Speed = ev.Speed
	}
	if ev.ETA != "" {
		j.ETA = ev.ETA
	}
	if ev.Title != "" {
		j.Title = ev.Title
	}
	if ev.Stage != "" {
		j.Stage = ev.Stage
	}
	if ev.TotalBytes > 0 {
		j.TotalBytes = ev.TotalBytes
	}
}

// Complete transitions the job from Downloading to Completed. A successful
// exit is authoritative, so percent is forced to 100 even if the final
// progress line was missed. Returns false if the job is not Downloading.
func (j *Job) Complete() bool {
	if j.Status != StatusDownloading {
		return false
	}
	j.Status = StatusCompleted
	j.Progress = 100
	j.clearTransient()
	now := time.Now()
	j.FinishedAt = &now
	return true
}

// Fail transitions the job from Downloading to Failed and records the
// diagnostic text. Returns false if the job is not Downloading.
func (j *Job) Fail(message string) bool {
	if j.Status != StatusDownloading {
		return false
	}
	j.Status = StatusFailed
	j.ErrorMessage = message
	j.clearTransient()
	now := time.Now()
	j.FinishedAt = &now
	return true
}

// Cancel transitions a Pending or Downloading job to Cancelled. Returns false
// if the job is already terminal, which callers report as a no-op rather than
// an error.
func (j *Job) Cancel() bool {
	if j.Status != StatusPending && j.Status != StatusDownloading {
		return false
	}
	j.Status = StatusCancelled
	j.clearTransient()
	now := time.Now()
	j.FinishedAt = &now
	return true
}

func (j *Job) clearTransient() {
	j.Speed = ""
	j.ETA = ""
}

// CloneForRetry creates a new pending job from this job's request fields.
// The receiver is left untouched.
func (j *Job) CloneForRetry(id uint64) *Job {
	return NewJob(id, j.Source, j.Format, j.Quality)
}

// MatchesRequest reports whether the job was created from the given
// (source, format, quality) tuple. Used for live duplicate detection.
func (j *Job) MatchesRequest(source, format, quality string) bool {
	return j.Source == source && j.Format == format && j.Quality == quality
}

// IsTerminal reports whether the job reached Completed, Failed, or Cancelled.
func (j *Job) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed || j.Status == StatusCancelled
}

// IsPending reports whether the job is waiting for a slot.
func (j *Job) IsPending() bool {
	return j.Status == StatusPending
}

// IsActive reports whether the job currently occupies a concurrency slot.
func (j *Job) IsActive() bool {
	return j.Status == StatusDownloading
}

// DisplayName returns the resolved title, falling back to the source URL.
func (j *Job) DisplayName() string {
	if j.Title != "" {
		return j.Title
	}
	return j.Source
}

// ErrorSummary returns the first line of the error message, for list views
// that cannot show the full diagnostic block.
func (j *Job) ErrorSummary() string {
	if j.ErrorMessage == "" {
		return ""
	}
	if i := strings.IndexByte(j.ErrorMessage, '\n'); i >= 0 {
		return j.ErrorMessage[:i]
	}
	return j.ErrorMessage
}

// ParseStatus validates a status filter string.
func ParseStatus(s string) (JobStatus, bool) {
	switch JobStatus(s) {
	case StatusPending, StatusDownloading, StatusCompleted, StatusFailed, StatusCancelled:
		return JobStatus(s), true
	}
	return "", false
}
