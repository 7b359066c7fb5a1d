package shadow

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// wikiFreshnessSeconds is the age threshold below which an existing
// CodebaseUnderstanding record is reused rather than regenerated (§4.10:
// "e.g., 24 hours").
const wikiFreshnessSeconds = 24 * 60 * 60

// JobKind identifies a background service kind.
type JobKind string

const (
	JobIndexing JobKind = "indexing"
	JobWiki     JobKind = "wiki"
)

// JobRecord tracks one background job's lifecycle. Failures are recorded
// but never propagate as task failure.
type JobRecord struct {
	Kind      JobKind
	TaskID    string
	Started   bool
	Completed bool
	Failed    bool
	Blocking  bool
	Error     string
	StartedAt int64
	EndedAt   int64
}

// Indexer chunks and embeds a repository workspace into a vector namespace.
// Implemented by the index package against qdrant.
type Indexer interface {
	IndexRepository(ctx context.Context, repoFullName, workspacePath string) error
}

// WikiGenerator traverses a workspace and produces a hierarchical summary.
type WikiGenerator interface {
	GenerateWiki(ctx context.Context, repoFullName, workspacePath string) (CodebaseUnderstanding, error)
}

// BackgroundServiceManager starts per-task background jobs (repository
// indexing, codebase wiki generation) on first initialization, tracks
// completion/failure, and exposes readiness used to gate message sending.
type BackgroundServiceManager struct {
	store   Store
	lock    RepositoryLock
	indexer Indexer
	wiki    WikiGenerator
	logger  *slog.Logger

	mu   sync.Mutex
	jobs map[string]map[JobKind]*JobRecord // taskID -> kind -> record
}

func NewBackgroundServiceManager(store Store, lock RepositoryLock, indexer Indexer, wiki WikiGenerator, logger *slog.Logger) *BackgroundServiceManager {
	if logger == nil {
		logger = nopLogger
	}
	return &BackgroundServiceManager{
		store:   store,
		lock:    lock,
		indexer: indexer,
		wiki:    wiki,
		logger:  logger,
		jobs:    make(map[string]map[JobKind]*JobRecord),
	}
}

// StartForTask spawns the indexing and wiki jobs for a task's repository,
// blocking is set on the indexing job only — the wiki job never gates
// message acceptance. Safe to call once per task; repeated calls for the
// same task are no-ops once jobs are recorded.
func (b *BackgroundServiceManager) StartForTask(ctx context.Context, taskID, repoFullName, workspacePath string) {
	b.mu.Lock()
	if _, exists := b.jobs[taskID]; exists {
		b.mu.Unlock()
		return
	}
	b.jobs[taskID] = map[JobKind]*JobRecord{
		JobIndexing: {Kind: JobIndexing, TaskID: taskID, Blocking: true},
		JobWiki:     {Kind: JobWiki, TaskID: taskID, Blocking: false},
	}
	b.mu.Unlock()

	go b.runIndexing(ctx, taskID, repoFullName, workspacePath)
	go b.runWiki(ctx, taskID, repoFullName, workspacePath)
}

func (b *BackgroundServiceManager) runIndexing(ctx context.Context, taskID, repoFullName, workspacePath string) {
	rec := b.record(taskID, JobIndexing)
	rec.Started = true
	rec.StartedAt = NowUnix()

	if b.indexer == nil {
		rec.Completed = true
		rec.EndedAt = NowUnix()
		return
	}

	acquired, release, err := b.lock.TryLock(ctx, repoFullName)
	if err != nil || !acquired {
		// Another process is already indexing this repository; treat as
		// completed for this task since the namespace is shared.
		b.logger.Info("indexing lock held elsewhere, skipping", "repo", repoFullName, "task_id", taskID)
		rec.Completed = true
		rec.EndedAt = NowUnix()
		return
	}
	defer release()

	if err := b.indexer.IndexRepository(ctx, repoFullName, workspacePath); err != nil {
		bjErr := &BackgroundJobError{Job: string(JobIndexing), Cause: err}
		b.logger.Error("indexing job failed", "task_id", taskID, "error", bjErr)
		rec.Failed = true
		rec.Error = bjErr.Error()
	} else {
		rec.Completed = true
	}
	rec.EndedAt = NowUnix()
}

func (b *BackgroundServiceManager) runWiki(ctx context.Context, taskID, repoFullName, workspacePath string) {
	rec := b.record(taskID, JobWiki)
	rec.Started = true
	rec.StartedAt = NowUnix()

	if b.wiki == nil {
		rec.Completed = true
		rec.EndedAt = NowUnix()
		return
	}

	if existing, err := b.store.GetCodebaseUnderstanding(ctx, repoFullName); err == nil && existing.IsFresh(NowUnix(), wikiFreshnessSeconds) {
		rec.Completed = true
		rec.EndedAt = NowUnix()
		return
	}

	understanding, err := b.wiki.GenerateWiki(ctx, repoFullName, workspacePath)
	if err != nil {
		bjErr := &BackgroundJobError{Job: string(JobWiki), Cause: err}
		b.logger.Error("wiki job failed", "task_id", taskID, "error", bjErr)
		rec.Failed = true
		rec.Error = bjErr.Error()
		rec.EndedAt = NowUnix()
		return
	}

	if err := b.store.SaveCodebaseUnderstanding(ctx, understanding); err != nil {
		bjErr := &BackgroundJobError{Job: string(JobWiki), Cause: err}
		rec.Failed = true
		rec.Error = bjErr.Error()
	} else {
		rec.Completed = true
	}
	rec.EndedAt = NowUnix()
}

func (b *BackgroundServiceManager) record(taskID string, kind JobKind) *JobRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.jobs[taskID][kind]
}

// Ready reports whether taskID may accept user messages: true once every
// blocking job for the task has either completed or failed. Non-blocking
// jobs never gate readiness.
func (b *BackgroundServiceManager) Ready(taskID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	kinds, ok := b.jobs[taskID]
	if !ok {
		return true
	}
	for _, rec := range kinds {
		if rec.Blocking && !rec.Completed && !rec.Failed {
			return false
		}
	}
	return true
}

// Status returns a snapshot of every job record for taskID.
func (b *BackgroundServiceManager) Status(taskID string) []JobRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	kinds := b.jobs[taskID]
	out := make([]JobRecord, 0, len(kinds))
	for _, rec := range kinds {
		out = append(out, *rec)
	}
	return out
}

// awaitReady blocks until Ready(taskID) or ctx is cancelled, polling at a
// fixed interval.
func (b *BackgroundServiceManager) awaitReady(ctx context.Context, taskID string, pollEvery time.Duration) error {
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()
	for {
		if b.Ready(taskID) {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
