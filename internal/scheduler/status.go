package scheduler

import (
	"sync"
	"time"
)

// Status is the scheduler's visible state snapshot. Zero time values and
// empty strings read as "not yet" / null. Running is not stored here; it is
// derived from task liveness by whoever serves the snapshot.
type Status struct {
	Started         bool
	DBLocation      string
	LastLoopAt      time.Time
	LastEvent       string
	LastError       string
	NextIterationAt time.Time
}

// Board guards the status snapshot for many readers and the single writer
// (the scheduler loop). Writers hold the lock for microseconds.
type Board struct {
	mu     sync.RWMutex
	status Status
}

// NewBoard creates a status board carrying the store location for
// diagnostics.
func NewBoard(dbLocation string) *Board {
	return &Board{status: Status{DBLocation: dbLocation}}
}

// Update applies fn to the status under the write lock.
func (b *Board) Update(fn func(*Status)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.status)
}

// Snapshot returns a copy of the current status.
func (b *Board) Snapshot() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}
