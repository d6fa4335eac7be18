package db

import (
	"sync"
	"time"
)

const (
	// DefaultChannelCapacity bounds how many writes may be queued.
	DefaultChannelCapacity = 100

	// DefaultDrainTimeout caps how long shutdown waits for queued writes.
	DefaultDrainTimeout = 10 * time.Second
)

// QueuedWrite is a value waiting to be written.
type QueuedWrite[T any] struct {
	Value    T
	QueuedAt time.Time
}

// WriteHandler applies one queued write.
type WriteHandler[T any] func(QueuedWrite[T]) error

// AsyncWriterConfig configures an AsyncWriter.
type AsyncWriterConfig[T any] struct {
	// ChannelCapacity is the queue size. Zero uses DefaultChannelCapacity.
	ChannelCapacity int

	// OnError is called with writes the handler rejected. Optional.
	OnError func(QueuedWrite[T], error)
}

type writerState int

const (
	writerIdle writerState = iota
	writerRunning
	writerStopped
)

// AsyncWriter applies writes on one background goroutine in the order they
// were queued. Write never blocks: a full queue refuses the value and the
// caller decides what to do with it. Stop closes the queue and waits until
// everything already queued has been handled.
type AsyncWriter[T any] struct {
	queue   chan QueuedWrite[T]
	handle  WriteHandler[T]
	onError func(QueuedWrite[T], error)

	mu    sync.Mutex
	state writerState
	done  chan struct{}
}

// NewAsyncWriter returns an idle writer with the default queue size.
func NewAsyncWriter[T any](handle WriteHandler[T]) *AsyncWriter[T] {
	return NewAsyncWriterWithConfig(handle, AsyncWriterConfig[T]{})
}

// NewAsyncWriterWithConfig returns an idle writer.
func NewAsyncWriterWithConfig[T any](handle WriteHandler[T], config AsyncWriterConfig[T]) *AsyncWriter[T] {
	capacity := config.ChannelCapacity
	if capacity <= 0 {
		capacity = DefaultChannelCapacity
	}
	return &AsyncWriter[T]{
		queue:   make(chan QueuedWrite[T], capacity),
		handle:  handle,
		onError: config.OnError,
	}
}

// Start launches the background goroutine. It does nothing on a writer that
// is already running or has been stopped.
func (w *AsyncWriter[T]) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != writerIdle {
		return
	}
	w.state = writerRunning
	w.done = make(chan struct{})
	go w.run(w.done)
}

func (w *AsyncWriter[T]) run(done chan<- struct{}) {
	defer close(done)
	for op := range w.queue {
		if err := w.handle(op); err != nil && w.onError != nil {
			w.onError(op, err)
		}
	}
}

// Write queues v. It reports false when the queue is full or the writer is
// stopped. Values queued before Start are handled once it runs.
func (w *AsyncWriter[T]) Write(v T) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == writerStopped {
		return false
	}
	select {
	case w.queue <- QueuedWrite[T]{Value: v, QueuedAt: time.Now()}:
		return true
	default:
		return false
	}
}

// Pending is the number of queued writes not yet picked up.
func (w *AsyncWriter[T]) Pending() int {
	return len(w.queue)
}

// Running reports whether the writer has been started and not stopped.
func (w *AsyncWriter[T]) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == writerRunning
}

// Stop refuses further writes and, if the writer was started, waits for
// the queue to drain. It is safe to call more than once.
func (w *AsyncWriter[T]) Stop() {
	w.mu.Lock()
	if w.state != writerStopped {
		w.state = writerStopped
		close(w.queue)
	}
	done := w.done
	w.mu.Unlock()

	if done != nil {
		<-done
	}
}

// StopWithTimeout is Stop bounded by timeout. It reports whether the queue
// drained in time; on false the drain continues in the background.
func (w *AsyncWriter[T]) StopWithTimeout(timeout time.Duration) bool {
	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-stopped:
		return true
	case <-timer.C:
		return false
	}
}
