package shutdown

import "sync"

// SignalCounter implements "first signal graceful, Nth signal forced".
// onForce fires once, when the count first reaches forceAfter.
type SignalCounter struct {
	mu         sync.Mutex
	count      int
	forceAfter int
	forced     bool
	onForce    func()
}

// NewSignalCounter returns a counter that calls onForce (may be nil) when
// forceAfter signals have been seen.
func NewSignalCounter(forceAfter int, onForce func()) *SignalCounter {
	if forceAfter < 1 {
		forceAfter = 1
	}
	return &SignalCounter{forceAfter: forceAfter, onForce: onForce}
}

// Increment records a signal and returns the new count.
func (s *SignalCounter) Increment() int {
	s.mu.Lock()
	s.count++
	count := s.count
	fire := count >= s.forceAfter && !s.forced && s.onForce != nil
	if fire {
		s.forced = true
	}
	onForce := s.onForce
	s.mu.Unlock()

	if fire {
		onForce()
	}
	return count
}

// Count returns how many signals have been recorded.
func (s *SignalCounter) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Reset clears the count so the force callback can fire again.
func (s *SignalCounter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count = 0
	s.forced = false
}
