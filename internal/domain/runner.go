package domain

// OutcomeKind classifies how an external download process ended.
type OutcomeKind string

const (
	// OutcomeSuccess: the process exited with status 0.
	OutcomeSuccess OutcomeKind = "success"
	// OutcomeFailure: the process exited with a nonzero status.
	OutcomeFailure OutcomeKind = "failure"
	// OutcomeKilled: the process was terminated by Cancel.
	OutcomeKilled OutcomeKind = "killed"
	// OutcomeSpawnError: the process could not be started at all.
	OutcomeSpawnError OutcomeKind = "spawn_error"
)

// ExitOutcome is the runner's final report for one process.
type ExitOutcome struct {
	Kind     OutcomeKind
	ExitCode int
	// Reason holds the spawn failure description when Kind is
	// OutcomeSpawnError, e.g. "binary not found".
	Reason string
}

// ProcessHandle supervises one running external process.
type ProcessHandle interface {
	// Lines streams the process's merged stdout/stderr output. The channel
	// is closed when the process exits; for a spawn failure it is closed
	// immediately with no lines delivered.
	Lines() <-chan string

	// Wait blocks until the process has exited and returns its outcome.
	Wait() ExitOutcome

	// Cancel terminates the process and returns once it is no longer
	// running, forcing a kill after a bounded grace period. Cancelling an
	// exited or already-cancelled process is a no-op.
	Cancel()
}

// ProcessRunner spawns one external downloader process per job. It has no
// knowledge of the output format; parsing is the caller's concern.
type ProcessRunner interface {
	// Start launches the process for the job and returns immediately. Spawn
	// failures are reported through the handle's outcome, never as a
	// panic or a nil handle, so every started job is supervised the same
	// way.
	Start(job *Job) ProcessHandle
}
