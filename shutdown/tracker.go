// Package shutdown stops NErase in order. The first SIGINT or SIGTERM
// cancels the Manager's context; requests already inside the API are let
// finish, then cleanup handlers run by priority. A second signal exits
// immediately.
package shutdown

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrTrackerClosed is returned for operations started after shutdown began.
	ErrTrackerClosed = errors.New("shutdown: operation tracker is closed")

	// ErrWaitTimeout means operations were still running when Wait gave up.
	ErrWaitTimeout = errors.New("shutdown: operations did not complete in time")
)

// OperationTracker counts running operations so their dependencies are not
// torn down underneath them.
//
//	if !tracker.Start() {
//	    http.Error(w, "shutting down", http.StatusServiceUnavailable)
//	    return
//	}
//	defer tracker.Done()
type OperationTracker struct {
	mu     sync.Mutex
	active int64
	closed bool

	// idle is closed whenever active is zero and replaced on the next Start.
	idle chan struct{}
}

// NewOperationTracker returns an open tracker with nothing running.
func NewOperationTracker() *OperationTracker {
	idle := make(chan struct{})
	close(idle)
	return &OperationTracker{idle: idle}
}

// Start admits an operation, or returns false once Close has been called.
// Every true must be paired with one Done.
func (t *OperationTracker) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}
	if t.active == 0 {
		t.idle = make(chan struct{})
	}
	t.active++
	return true
}

// Done releases an operation admitted by Start.
func (t *OperationTracker) Done() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active == 0 {
		panic("shutdown: Done called without a matching Start")
	}
	t.active--
	if t.active == 0 {
		close(t.idle)
	}
}

// Wait blocks until nothing is running or timeout elapses.
func (t *OperationTracker) Wait(timeout time.Duration) error {
	t.mu.Lock()
	idle := t.idle
	t.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-idle:
		return nil
	case <-timer.C:
		return ErrWaitTimeout
	}
}

// Close stops admitting operations. Running ones are unaffected.
func (t *OperationTracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// ActiveCount is the number of operations running now.
func (t *OperationTracker) ActiveCount() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}
