package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewJob(t *testing.T) {
	job := NewJob(7, "https://youtu.be/abc123", "bestvideo+bestaudio", "1080p")

	assert.Equal(t, uint64(7), job.ID)
	assert.Equal(t, "https://youtu.be/abc123", job.Source)
	assert.Equal(t, "bestvideo+bestaudio", job.Format)
	assert.Equal(t, "1080p", job.Quality)
	assert.Equal(t, StatusPending, job.Status)
	assert.Zero(t, job.Progress)
	assert.False(t, job.CreatedAt.IsZero())
	assert.Nil(t, job.StartedAt)
	assert.Nil(t, job.FinishedAt)
}

func TestJob_Start(t *testing.T) {
	job := NewJob(1, "https://youtu.be/abc", "best", "720p")

	assert.True(t, job.Start())
	assert.Equal(t, StatusDownloading, job.Status)
	assert.NotNil(t, job.StartedAt)

	// Already downloading
	assert.False(t, job.Start())
}

func TestJob_Complete(t *testing.T) {
	job := NewJob(1, "https://youtu.be/abc", "best", "720p")
	job.Start()
	job.ApplyProgress(ProgressEvent{Kind: EventProgress, Percent: 97.3, HasPercent: true, Speed: "2.1MiB/s", ETA: "00:03"})

	assert.True(t, job.Complete())
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, 100.0, job.Progress)
	assert.Empty(t, job.Speed)
	assert.Empty(t, job.ETA)
	assert.NotNil(t, job.FinishedAt)
}

func TestJob_Complete_RequiresDownloading(t *testing.T) {
	job := NewJob(1, "https://youtu.be/abc", "best", "720p")

	// Pending never jumps straight to Completed
	assert.False(t, job.Complete())
	assert.Equal(t, StatusPending, job.Status)
}

func TestJob_Fail(t *testing.T) {
	job := NewJob(1, "https://youtu.be/abc", "best", "720p")
	job.Start()

	assert.True(t, job.Fail("ERROR: unable to download video data\nHTTP Error 403: Forbidden"))
	assert.Equal(t, StatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "403")
	assert.Equal(t, "ERROR: unable to download video data", job.ErrorSummary())
	assert.NotNil(t, job.FinishedAt)
}

func TestJob_Cancel(t *testing.T) {
	pending := NewJob(1, "https://youtu.be/abc", "best", "720p")
	assert.True(t, pending.Cancel())
	assert.Equal(t, StatusCancelled, pending.Status)
	assert.NotNil(t, pending.FinishedAt)

	downloading := NewJob(2, "https://youtu.be/def", "best", "720p")
	downloading.Start()
	assert.True(t, downloading.Cancel())
	assert.Equal(t, StatusCancelled, downloading.Status)
}

func TestJob_Cancel_Idempotent(t *testing.T) {
	job := NewJob(1, "https://youtu.be/abc", "best", "720p")
	job.Start()

	assert.True(t, job.Cancel())
	finished := job.FinishedAt

	// Second cancel is a no-op, state unchanged
	assert.False(t, job.Cancel())
	assert.Equal(t, StatusCancelled, job.Status)
	assert.Equal(t, finished, job.FinishedAt)
}

func TestJob_TerminalStatesAreSinks(t *testing.T) {
	for _, terminal := range []JobStatus{StatusCompleted, StatusFailed, StatusCancelled} {
		job := NewJob(1, "https://youtu.be/abc", "best", "720p")
		job.Status = terminal

		assert.False(t, job.Start(), "Start out of %s", terminal)
		assert.False(t, job.Complete(), "Complete out of %s", terminal)
		assert.False(t, job.Fail("x"), "Fail out of %s", terminal)
		assert.False(t, job.Cancel(), "Cancel out of %s", terminal)
		assert.Equal(t, terminal, job.Status)
	}
}

func TestJob_ApplyProgress(t *testing.T) {
	job := NewJob(1, "https://youtu.be/abc", "best", "720p")
	job.Start()

	job.ApplyProgress(ProgressEvent{Kind: EventProgress, Percent: 12.5, HasPercent: true, Speed: "1.00MiB/s", ETA: "01:23", TotalBytes: 10550000})
	assert.Equal(t, 12.5, job.Progress)
	assert.Equal(t, "1.00MiB/s", job.Speed)
	assert.Equal(t, "01:23", job.ETA)
	assert.Equal(t, int64(10550000), job.TotalBytes)

	job.ApplyProgress(ProgressEvent{Kind: EventProgress, Title: "My Video.mp4", Stage: StageDownloading})
	assert.Equal(t, "My Video.mp4", job.Title)
	assert.Equal(t, StageDownloading, job.Stage)
	// Fields missing from the event keep their last value
	assert.Equal(t, 12.5, job.Progress)
	assert.Equal(t, "1.00MiB/s", job.Speed)
}

func TestJob_ApplyProgress_MonotonicPercent(t *testing.T) {
	job := NewJob(1, "https://youtu.be/abc", "best", "720p")
	job.Start()

	job.ApplyProgress(ProgressEvent{Kind: EventProgress, Percent: 80, HasPercent: true})
	assert.Equal(t, 80.0, job.Progress)

	// Small regression within tolerance is applied
	job.ApplyProgress(ProgressEvent{Kind: EventProgress, Percent: 79.5, HasPercent: true})
	assert.Equal(t, 79.5, job.Progress)

	// Large regression (second stream restarting at zero) keeps prior value
	job.ApplyProgress(ProgressEvent{Kind: EventProgress, Percent: 0.3, HasPercent: true})
	assert.Equal(t, 79.5, job.Progress)

	job.ApplyProgress(ProgressEvent{Kind: EventProgress, Percent: 95, HasPercent: true})
	assert.Equal(t, 95.0, job.Progress)
}

func TestJob_ApplyProgress_IgnoredUnlessDownloading(t *testing.T) {
	job := NewJob(1, "https://youtu.be/abc", "best", "720p")

	job.ApplyProgress(ProgressEvent{Kind: EventProgress, Percent: 50, HasPercent: true})
	assert.Zero(t, job.Progress)

	job.Start()
	job.ApplyProgress(ProgressEvent{Kind: EventProgress, Percent: 50, HasPercent: true})
	job.Cancel()

	job.ApplyProgress(ProgressEvent{Kind: EventProgress, Percent: 99, HasPercent: true})
	assert.Equal(t, 50.0, job.Progress)
}

func TestJob_CloneForRetry(t *testing.T) {
	job := NewJob(3, "https://youtu.be/abc", "137+140", "1080p")
	job.Start()
	job.Fail("ERROR: network unreachable")

	clone := job.CloneForRetry(9)

	assert.Equal(t, uint64(9), clone.ID)
	assert.Equal(t, job.Source, clone.Source)
	assert.Equal(t, job.Format, clone.Format)
	assert.Equal(t, job.Quality, clone.Quality)
	assert.Equal(t, StatusPending, clone.Status)
	assert.Empty(t, clone.ErrorMessage)
	assert.Nil(t, clone.StartedAt)

	// Source job untouched
	assert.Equal(t, StatusFailed, job.Status)
	assert.NotEmpty(t, job.ErrorMessage)
}

func TestJob_MatchesRequest(t *testing.T) {
	job := NewJob(1, "https://youtu.be/abc", "best", "720p")

	assert.True(t, job.MatchesRequest("https://youtu.be/abc", "best", "720p"))
	assert.False(t, job.MatchesRequest("https://youtu.be/abc", "best", "1080p"))
	assert.False(t, job.MatchesRequest("https://youtu.be/xyz", "best", "720p"))
}

func TestJob_Predicates(t *testing.T) {
	job := NewJob(1, "https://youtu.be/abc", "best", "720p")
	assert.True(t, job.IsPending())
	assert.False(t, job.IsActive())
	assert.False(t, job.IsTerminal())

	job.Start()
	assert.True(t, job.IsActive())
	assert.False(t, job.IsTerminal())

	job.Complete()
	assert.True(t, job.IsTerminal())
	assert.False(t, job.IsActive())
	assert.False(t, job.IsPending())
}

func TestParseStatus(t *testing.T) {
	status, ok := ParseStatus("downloading")
	assert.True(t, ok)
	assert.Equal(t, StatusDownloading, status)

	_, ok = ParseStatus("exploded")
	assert.False(t, ok)

	_, ok = ParseStatus("")
	assert.False(t, ok)
}
