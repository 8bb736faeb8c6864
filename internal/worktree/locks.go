package worktree

import "sync"

// RepoLocks serializes git operations per repository root. Concurrent
// "git worktree add" and merge commands on one repository contend for the
// same lock files under .git, while different repositories are independent.
type RepoLocks struct {
	mu    sync.Mutex             // Guards the locks map itself
	locks map[string]*sync.Mutex // Per-root mutexes
}

// NewRepoLocks creates an empty lock set.
func NewRepoLocks() *RepoLocks {
	return &RepoLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for root, creating it on first use.
func (r *RepoLocks) Lock(root string) {
	r.mu.Lock()
	l, ok := r.locks[root]
	if !ok {
		l = &sync.Mutex{}
		r.locks[root] = l
	}
	r.mu.Unlock()

	// Acquire outside the map lock so other roots are not held up
	l.Lock()
}

// Unlock releases the mutex for root.
func (r *RepoLocks) Unlock(root string) {
	r.mu.Lock()
	l, ok := r.locks[root]
	r.mu.Unlock()

	if ok {
		l.Unlock()
	}
}
