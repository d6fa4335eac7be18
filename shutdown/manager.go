package shutdown

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"nerase/core"
	"nerase/logging"

	"go.uber.org/zap"
)

// DefaultTimeout bounds the whole shutdown sequence.
const DefaultTimeout = 30 * time.Second

// Manager owns the process lifetime: it turns OS signals into context
// cancellation, tracks in-flight requests, and runs cleanup handlers.
//
//	mgr := shutdown.NewManager(logger)
//	mgr.Register("http", shutdown.PriorityHTTPServer, shutdown.HTTPServer(srv))
//	mgr.Start()
//	<-mgr.Context().Done()
//	err := mgr.Shutdown()
type Manager struct {
	logger    *logging.Logger
	timeout   time.Duration
	forceExit func()

	mu       sync.Mutex
	started  bool
	shutdown bool
	received os.Signal

	ctx    context.Context
	cancel context.CancelFunc

	tracker  *OperationTracker
	registry *Registry
	signals  *SignalCounter
	sigChan  chan os.Signal
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout sets the budget for draining requests and running cleanup.
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// WithForceExit replaces the os.Exit call made on the second signal.
func WithForceExit(fn func()) ManagerOption {
	return func(m *Manager) {
		if fn != nil {
			m.forceExit = fn
		}
	}
}

// NewManager returns a Manager with a live context. Signals are not watched
// until Start is called.
func NewManager(logger *logging.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		logger:   logger.Named("shutdown"),
		timeout:  DefaultTimeout,
		ctx:      ctx,
		cancel:   cancel,
		tracker:  NewOperationTracker(),
		registry: NewRegistry(),
		sigChan:  make(chan os.Signal, 2),
		forceExit: func() {
			os.Exit(core.ExitCodeError)
		},
	}
	for _, opt := range opts {
		opt(m)
	}

	m.signals = NewSignalCounter(2, func() {
		m.logger.Warn("Received second signal, forcing exit")
		_ = m.logger.Sync()
		m.forceExit()
	})
	return m
}

// Context is cancelled when shutdown begins.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Register adds a cleanup handler; see the Priority constants.
func (m *Manager) Register(name string, priority int, fn CleanupFunc) {
	m.registry.Register(name, priority, fn)
	m.logger.Debug("Registered shutdown handler",
		zap.String("name", name),
		zap.Int("priority", priority),
	)
}

// Start watches SIGINT and SIGTERM. Calling it again is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range m.sigChan {
			m.handleSignal(sig)
		}
	}()
	m.logger.Debug("Listening for shutdown signals")
}

func (m *Manager) handleSignal(sig os.Signal) {
	if m.signals.Increment() == 1 {
		m.mu.Lock()
		m.received = sig
		m.mu.Unlock()
		m.logger.Info("Received shutdown signal, stopping gracefully",
			zap.String("signal", sig.String()),
		)
		m.cancel()
	}
}

// Trigger begins shutdown without a signal, e.g. when the service manager
// asks the process to stop or the HTTP server dies.
func (m *Manager) Trigger(reason string) {
	if m.ctx.Err() == nil {
		m.logger.Info("Shutdown requested", zap.String("reason", reason))
	}
	m.cancel()
}

// Wait blocks until the context is cancelled.
func (m *Manager) Wait() {
	<-m.ctx.Done()
}

// Shutdown rejects new operations, waits for running ones, then runs cleanup
// handlers with whatever is left of the timeout (at least one second).
// Only the first call does any work.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	started := m.started
	m.mu.Unlock()

	m.cancel()
	if started {
		signal.Stop(m.sigChan)
	}

	begin := time.Now()
	m.logger.Info("Shutting down",
		zap.Duration("timeout", m.timeout),
		zap.Int("handlers", m.registry.Count()),
	)

	m.tracker.Close()
	if active := m.tracker.ActiveCount(); active > 0 {
		m.logger.Info("Waiting for in-flight operations", zap.Int64("active", active))
	}
	if err := m.tracker.Wait(m.timeout); err != nil {
		m.logger.Warn("In-flight operations did not finish",
			zap.Int64("remaining", m.tracker.ActiveCount()),
			zap.Duration("waited", time.Since(begin)),
		)
	}

	remaining := m.timeout - time.Since(begin)
	if remaining < time.Second {
		remaining = time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), remaining)
	defer cancel()

	m.logger.Debug("Running cleanup handlers", zap.Strings("handlers", m.registry.Names()))
	errs := m.registry.Run(ctx)
	for _, err := range errs {
		m.logger.Error("Cleanup handler failed", zap.Error(err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown: %d cleanup handlers failed: %w", len(errs), errors.Join(errs...))
	}
	m.logger.Info("Shutdown complete", zap.Duration("duration", time.Since(begin)))
	return nil
}

// WrapOperation runs fn as a tracked operation. It returns ErrTrackerClosed
// without calling fn once shutdown has begun.
func (m *Manager) WrapOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	if !m.tracker.Start() {
		m.logger.Debug("Operation rejected during shutdown", zap.String("operation", name))
		return ErrTrackerClosed
	}
	defer m.tracker.Done()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// Middleware tracks every request through next and answers 503 once
// shutdown has begun.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.tracker.Start() {
			w.Header().Set("Connection", "close")
			http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
			return
		}
		defer m.tracker.Done()
		next.ServeHTTP(w, r)
	})
}

// ActiveOperations returns the number of tracked operations in flight.
func (m *Manager) ActiveOperations() int64 {
	return m.tracker.ActiveCount()
}

// IsShuttingDown reports whether Shutdown has been called.
func (m *Manager) IsShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown
}

// ExitCode is the process exit code implied by the first shutdown signal,
// or ExitCodeSuccess when shutdown was triggered without one.
func (m *Manager) ExitCode() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return core.ExitCodeForSignal(m.received)
}

// RegisteredHandlers lists cleanup handler names in execution order.
func (m *Manager) RegisteredHandlers() []string {
	return m.registry.Names()
}
