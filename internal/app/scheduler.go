package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fetchq/fetchq/internal/domain"
	"github.com/fetchq/fetchq/internal/infrastructure"
)

// Scheduler owns the live job queue. All mutation goes through its
// operations; the job map is guarded by a single mutex and every job handed
// out to callers is a copy.
type Scheduler struct {
	runner   domain.ProcessRunner
	history  domain.HistoryStore
	logs     domain.LogStore
	notifier *infrastructure.NotificationService
	logger   *zap.Logger

	checkInterval time.Duration

	mu      sync.RWMutex
	jobs    map[uint64]*domain.Job
	handles map[uint64]domain.ProcessHandle
	nextID  uint64
	limit   int
	active  int
	running bool

	kick     chan struct{}
	stopChan chan struct{}
	workerWg sync.WaitGroup
}

// NewScheduler creates a scheduler with the configured concurrency limit.
func NewScheduler(
	runner domain.ProcessRunner,
	history domain.HistoryStore,
	logs domain.LogStore,
	notifier *infrastructure.NotificationService,
	config *domain.Config,
	logger *zap.Logger,
) *Scheduler {
	limit := config.Download.ConcurrentLimit
	if limit < 1 {
		limit = 1
	}
	return &Scheduler{
		runner:        runner,
		history:       history,
		logs:          logs,
		notifier:      notifier,
		logger:        logger,
		checkInterval: config.Download.CheckInterval,
		jobs:          make(map[uint64]*domain.Job),
		handles:       make(map[uint64]domain.ProcessHandle),
		limit:         limit,
		kick:          make(chan struct{}, 1),
		stopChan:      make(chan struct{}),
	}
}

// Start starts the admission loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	// A previous Stop closed stopChan; a restarted loop needs a fresh one.
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	s.logs.Append(domain.LevelInfo, domain.CategoryQueue, "Queue processor started", "")

	s.workerWg.Add(1)
	go s.processQueue(ctx)

	return nil
}

// Stop stops admission, cancels every running process, and waits for all
// workers to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler not running")
	}
	s.running = false
	handles := make([]domain.ProcessHandle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	close(s.stopChan)

	var cancelWg sync.WaitGroup
	for _, h := range handles {
		cancelWg.Add(1)
		go func(h domain.ProcessHandle) {
			defer cancelWg.Done()
			h.Cancel()
		}(h)
	}
	cancelWg.Wait()
	s.workerWg.Wait()

	s.logs.Append(domain.LevelInfo, domain.CategoryQueue, "Queue processor stopped", "")
	return nil
}

// IsRunning returns whether the admission loop is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Enqueue creates a new Pending job. If a live job already matches the same
// source/format/quality it is returned instead, with duplicate set.
func (s *Scheduler) Enqueue(source, format, quality string) (domain.Job, bool, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return domain.Job{}, false, fmt.Errorf("%w: source must not be empty", domain.ErrInvalidRequest)
	}

	s.mu.Lock()
	for _, job := range s.jobs {
		if !job.IsTerminal() && job.MatchesRequest(source, format, quality) {
			existing := s.snapshotJobLocked(job)
			s.mu.Unlock()
			return existing, true, nil
		}
	}

	s.nextID++
	job := domain.NewJob(s.nextID, source, format, quality)
	s.jobs[job.ID] = job
	created := s.snapshotJobLocked(job)
	s.mu.Unlock()

	s.logger.Info("job enqueued",
		zap.Uint64("job_id", created.ID),
		zap.String("source", source))
	s.logs.Append(domain.LevelInfo, domain.CategoryQueue,
		fmt.Sprintf("Enqueued download #%d for %s", created.ID, source), "")

	s.kickAdmission()
	return created, false, nil
}

// Get returns a copy of one job
func (s *Scheduler) Get(id uint64) (domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, fmt.Errorf("%w: job %d", domain.ErrNotFound, id)
	}
	return s.snapshotJobLocked(job), nil
}

// Query returns one page of the live queue, oldest first, plus aggregate
// counts over the whole queue. Pages are 0-based; out-of-range pages return
// an empty item list, never an error.
func (s *Scheduler) Query(page, pageSize int, statusFilter string) (*domain.QueueSnapshot, error) {
	var filter domain.JobStatus
	if statusFilter != "" {
		parsed, ok := domain.ParseStatus(statusFilter)
		if !ok {
			return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidRequest, statusFilter)
		}
		filter = parsed
	}
	if page < 0 {
		page = 0
	}
	if pageSize < 1 {
		pageSize = 50
	} else if pageSize > 200 {
		pageSize = 200
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*domain.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		all = append(all, job)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	snapshot := &domain.QueueSnapshot{
		Items:    []domain.Job{},
		Stats:    s.statsLocked(),
		Page:     page,
		PageSize: pageSize,
	}

	matched := make([]*domain.Job, 0, len(all))
	for _, job := range all {
		if filter != "" && job.Status != filter {
			continue
		}
		matched = append(matched, job)
	}
	snapshot.TotalCount = len(matched)

	start := page * pageSize
	if start >= len(matched) {
		return snapshot, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	for _, job := range matched[start:end] {
		snapshot.Items = append(snapshot.Items, s.snapshotJobLocked(job))
	}
	return snapshot, nil
}

// Stats returns aggregate counts over the whole live queue
func (s *Scheduler) Stats() domain.QueueStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statsLocked()
}

// Cancel cancels one job. A Pending job goes straight to Cancelled; a
// Downloading job has its process terminated before Cancel returns. Returns
// false without error when the job is already terminal.
func (s *Scheduler) Cancel(id uint64) (bool, error) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return false, fmt.Errorf("%w: job %d", domain.ErrNotFound, id)
	}
	if !job.Cancel() {
		s.mu.Unlock()
		return false, nil
	}
	handle := s.handles[id]
	source := job.Source
	s.mu.Unlock()

	if handle != nil {
		handle.Cancel()
	}

	s.logger.Info("job cancelled", zap.Uint64("job_id", id))
	s.logs.Append(domain.LevelInfo, domain.CategoryDownload,
		fmt.Sprintf("Cancelled download #%d for %s", id, source), "")
	return true, nil
}

// CancelAll cancels every Pending and Downloading job. Best-effort: one
// stubborn process does not block cancelling the rest.
func (s *Scheduler) CancelAll() (int, []error) {
	s.mu.RLock()
	ids := make([]uint64, 0, len(s.jobs))
	for id, job := range s.jobs {
		if !job.IsTerminal() {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	cancelled := 0
	var errs []error
	for _, id := range ids {
		applied, err := s.Cancel(id)
		if err != nil {
			errs = append(errs, fmt.Errorf("job %d: %w", id, err))
			continue
		}
		if applied {
			cancelled++
		}
	}
	return cancelled, errs
}

// Retry clones a terminal job into a new Pending one and removes the old
// job from the live queue. Retrying a live job is an invalid request.
func (s *Scheduler) Retry(id uint64) (domain.Job, error) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return domain.Job{}, fmt.Errorf("%w: job %d", domain.ErrNotFound, id)
	}
	if !job.IsTerminal() {
		s.mu.Unlock()
		return domain.Job{}, fmt.Errorf("%w: job %d is still active", domain.ErrInvalidRequest, id)
	}

	s.nextID++
	clone := job.CloneForRetry(s.nextID)
	s.jobs[clone.ID] = clone
	delete(s.jobs, id)
	created := s.snapshotJobLocked(clone)
	s.mu.Unlock()

	s.logger.Info("job retried",
		zap.Uint64("job_id", id),
		zap.Uint64("new_job_id", created.ID))
	s.logs.Append(domain.LevelInfo, domain.CategoryQueue,
		fmt.Sprintf("Retrying download #%d as #%d", id, created.ID), "")

	s.kickAdmission()
	return created, nil
}

// ClearCompleted removes Completed jobs from the live queue. Failed and
// Cancelled jobs stay visible until retried or the process restarts.
func (s *Scheduler) ClearCompleted() int {
	s.mu.Lock()
	removed := 0
	for id, job := range s.jobs {
		if job.Status == domain.StatusCompleted {
			delete(s.jobs, id)
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		s.logs.Append(domain.LevelInfo, domain.CategoryQueue,
			fmt.Sprintf("Cleared %d completed downloads", removed), "")
	}
	return removed
}

// HasLiveSource reports whether any Pending or Downloading job has the
// given source URL.
func (s *Scheduler) HasLiveSource(source string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.jobs {
		if !job.IsTerminal() && job.Source == source {
			return true
		}
	}
	return false
}

// SetMaxConcurrent changes the admission limit at runtime. Lowering it never
// interrupts running jobs; the pool drains down naturally.
func (s *Scheduler) SetMaxConcurrent(limit int) error {
	if limit < 1 {
		return fmt.Errorf("%w: concurrency limit must be >= 1", domain.ErrInvalidRequest)
	}
	s.mu.Lock()
	s.limit = limit
	s.mu.Unlock()

	s.logs.Append(domain.LevelInfo, domain.CategorySystem,
		fmt.Sprintf("Concurrency limit set to %d", limit), "")
	s.kickAdmission()
	return nil
}

// GetMaxConcurrent returns the current admission limit
func (s *Scheduler) GetMaxConcurrent() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.limit
}

// kickAdmission nudges the admission loop without blocking
func (s *Scheduler) kickAdmission() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// processQueue admits pending jobs whenever capacity frees up. The ticker is
// a safety net; kicks from enqueue/retry/finish drive admission immediately.
func (s *Scheduler) processQueue(ctx context.Context) {
	defer s.workerWg.Done()

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-s.kick:
			s.admit(ctx)
		case <-ticker.C:
			s.admit(ctx)
		}
	}
}

// admit starts the oldest Pending jobs until the limit is reached
func (s *Scheduler) admit(ctx context.Context) {
	for {
		s.mu.Lock()
		if !s.running || s.active >= s.limit {
			s.mu.Unlock()
			return
		}
		job := s.nextPendingLocked()
		if job == nil {
			s.mu.Unlock()
			return
		}
		job.Start()
		s.active++
		s.mu.Unlock()

		s.workerWg.Add(1)
		go s.runJob(ctx, job)
	}
}

func (s *Scheduler) nextPendingLocked() *domain.Job {
	var next *domain.Job
	for _, job := range s.jobs {
		if job.Status != domain.StatusPending {
			continue
		}
		if next == nil || job.ID < next.ID {
			next = job
		}
	}
	return next
}

// runJob supervises one spawned process from start to terminal state.
func (s *Scheduler) runJob(ctx context.Context, job *domain.Job) {
	defer s.workerWg.Done()
	defer func() {
		s.mu.Lock()
		s.active--
		delete(s.handles, job.ID)
		s.mu.Unlock()
		s.kickAdmission()
	}()

	s.logger.Info("starting download",
		zap.Uint64("job_id", job.ID),
		zap.String("source", job.Source))
	s.logs.Append(domain.LevelInfo, domain.CategoryDownload,
		fmt.Sprintf("Starting download #%d for %s", job.ID, job.Source), "")

	handle := s.runner.Start(job)

	s.mu.Lock()
	s.handles[job.ID] = handle
	// Cancel or Stop may have landed between admission and spawn; a handle
	// registered after Stop's snapshot would otherwise outlive it.
	cancelledEarly := job.IsTerminal() || !s.running
	s.mu.Unlock()
	if cancelledEarly {
		handle.Cancel()
	}

	parser := infrastructure.NewProgressParser()
	for line := range handle.Lines() {
		event := parser.ParseLine(line)
		if event == nil {
			continue
		}
		s.applyEvent(job, parser, event)
	}

	outcome := handle.Wait()
	s.finishJob(job, parser, outcome)
}

// applyEvent folds one parsed event into the job under the queue lock.
func (s *Scheduler) applyEvent(job *domain.Job, parser *infrastructure.ProgressParser, event *domain.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch event.Kind {
	case domain.EventProgress:
		job.ApplyProgress(*event)
	case domain.EventSuccess:
		// e.g. "has already been downloaded": authoritative even before exit
		job.ApplyProgress(*event)
		job.Complete()
	case domain.EventError:
		job.Fail(parser.ErrorDetail())
	}
}

// finishJob maps the exit outcome onto the job and performs the terminal
// side effects: history record, log entries, notification.
func (s *Scheduler) finishJob(job *domain.Job, parser *infrastructure.ProgressParser, outcome domain.ExitOutcome) {
	s.mu.Lock()
	switch outcome.Kind {
	case domain.OutcomeSuccess:
		job.Complete()
	case domain.OutcomeFailure:
		message := fmt.Sprintf("process exited with status %d", outcome.ExitCode)
		if detail := parser.DiagnosticTail(); detail != "" {
			message = fmt.Sprintf("%s\n%s", message, detail)
		}
		if parser.SawError() {
			message = parser.ErrorDetail()
		}
		job.Fail(message)
	case domain.OutcomeKilled:
		job.Cancel()
	case domain.OutcomeSpawnError:
		job.Fail(outcome.Reason)
	}
	if job.Status == domain.StatusFailed && parser.SawError() {
		// the marker failed the job mid-stream; fold in detail lines that
		// arrived after it
		job.ErrorMessage = parser.ErrorDetail()
	}
	finished := s.snapshotJobLocked(job)
	s.mu.Unlock()

	switch finished.Status {
	case domain.StatusCompleted:
		s.recordHistory(&finished)
		s.logger.Info("download completed",
			zap.Uint64("job_id", finished.ID),
			zap.String("title", finished.Title))
		s.logs.Append(domain.LevelInfo, domain.CategoryDownload,
			fmt.Sprintf("Completed download #%d: %s", finished.ID, finished.DisplayName()), "")
		s.notifier.NotifyDownloadCompleted(&finished)
	case domain.StatusFailed:
		s.logger.Warn("download failed",
			zap.Uint64("job_id", finished.ID),
			zap.String("error", finished.ErrorSummary()))
		s.logs.Append(domain.LevelError, domain.CategoryDownload,
			fmt.Sprintf("Download #%d failed: %s", finished.ID, finished.ErrorSummary()),
			finished.ErrorMessage)
		s.notifier.NotifyDownloadFailed(&finished)
	case domain.StatusCancelled:
		s.logger.Info("download cancelled", zap.Uint64("job_id", finished.ID))
	}
}

// recordHistory persists a completed job. A store failure never touches the
// job's state; it is reported through the log instead.
func (s *Scheduler) recordHistory(job *domain.Job) {
	entry := domain.HistoryEntryFromJob(job)
	if err := s.history.Record(entry); err != nil {
		s.logger.Error("failed to record history entry",
			zap.Uint64("job_id", job.ID),
			zap.Error(err))
		s.logs.Append(domain.LevelError, domain.CategoryHistory,
			fmt.Sprintf("Failed to record history entry for download #%d", job.ID),
			err.Error())
	}
}

func (s *Scheduler) statsLocked() domain.QueueStats {
	stats := domain.QueueStats{Total: len(s.jobs)}
	for _, job := range s.jobs {
		switch job.Status {
		case domain.StatusPending:
			stats.Pending++
		case domain.StatusDownloading:
			stats.Active++
		case domain.StatusCompleted:
			stats.Completed++
		case domain.StatusFailed:
			stats.Failed++
		case domain.StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

// snapshotJobLocked copies a job for callers, deriving its queue position.
func (s *Scheduler) snapshotJobLocked(job *domain.Job) domain.Job {
	copied := *job
	if job.Status == domain.StatusPending {
		position := 1
		for _, other := range s.jobs {
			if other.Status == domain.StatusPending && other.ID < job.ID {
				position++
			}
		}
		copied.QueuePosition = position
	}
	return copied
}
