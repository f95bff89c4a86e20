// Package export layers asynchronous persistence outside the decision core:
// Redis snapshots of analytics and ledgers, and a Postgres audit trail of
// decisions. Nothing here sits on the per-message hot path; every write is
// fire-and-forget behind a bounded semaphore.
package export

import (
	"sync/atomic"
)

// Semaphore bounds the number of in-flight export goroutines so a slow sink
// cannot accumulate writers without limit. Writes beyond capacity are
// dropped and counted; snapshots are periodic, so a dropped one is replaced
// by the next.
type Semaphore struct {
	sem     chan struct{}
	dropped atomic.Int64
}

// NewSemaphore creates a semaphore with the given capacity.
func NewSemaphore(capacity int) *Semaphore {
	if capacity <= 0 {
		capacity = 16
	}
	return &Semaphore{sem: make(chan struct{}, capacity)}
}

// TryAcquire attempts to take a slot without blocking. Returns false (and
// counts a drop) when at capacity.
func (s *Semaphore) TryAcquire() bool {
	select {
	case s.sem <- struct{}{}:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Release returns a slot. Must follow a successful TryAcquire.
func (s *Semaphore) Release() {
	select {
	case <-s.sem:
	default:
	}
}

// DroppedCount reports writes dropped due to backpressure.
func (s *Semaphore) DroppedCount() int64 {
	return s.dropped.Load()
}

// InUse reports slots currently held.
func (s *Semaphore) InUse() int {
	return len(s.sem)
}
