package shadow

import (
	"context"
	"hash/fnv"
	"sync"
)

// RepositoryLock is an advisory lock keyed by repository full name,
// preventing concurrent indexing of the same repo. TryLock returns
// (false, nil, nil) without blocking if another holder currently has the
// lock; release is only valid to call when acquired is true.
type RepositoryLock interface {
	TryLock(ctx context.Context, repoFullName string) (acquired bool, release func(), err error)
}

// LockKey hashes a repository full name to the int64 key Postgres advisory
// locks require (pg_try_advisory_lock takes a bigint).
func LockKey(repoFullName string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(repoFullName))
	return int64(h.Sum64())
}

// inProcessLock is the only RepositoryLock implementation in this module.
// It only prevents concurrent indexing within this one process, not across
// a fleet of them; there is no Postgres advisory-lock implementation.
type inProcessLock struct {
	mu      sync.Mutex
	holders map[string]struct{}
}

// NewInProcessRepositoryLock returns the single-process fallback
// RepositoryLock.
func NewInProcessRepositoryLock() RepositoryLock {
	return &inProcessLock{holders: make(map[string]struct{})}
}

func (l *inProcessLock) TryLock(_ context.Context, repoFullName string) (bool, func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.holders[repoFullName]; held {
		return false, nil, nil
	}
	l.holders[repoFullName] = struct{}{}
	release := func() {
		l.mu.Lock()
		delete(l.holders, repoFullName)
		l.mu.Unlock()
	}
	return true, release, nil
}
