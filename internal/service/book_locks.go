package service

import "sync"

// bookLocks serializes read-modify-write sequences on one book's queue.
// Two concurrent requests for the same title must not both observe the
// same free copy or compute overlapping queue positions. The guard is an
// injected, per-process object owned by the reservation service; nothing
// else may take these locks.
type bookLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newBookLocks() *bookLocks {
	return &bookLocks{locks: make(map[int64]*sync.Mutex)}
}

// Lock acquires the mutex for bookID and returns its unlock function.
// Locks are created lazily and kept for the process lifetime; the number
// of distinct titles is small enough that no eviction is needed.
func (l *bookLocks) Lock(bookID int64) func() {
	l.mu.Lock()
	m, ok := l.locks[bookID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[bookID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
