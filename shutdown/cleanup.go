package shutdown

import (
	"context"
	"errors"
	"io"
	"net/http"
	"syscall"

	"nerase/logging"
)

// HTTPServer stops srv gracefully, closing idle connections and waiting for
// active ones until ctx expires.
func HTTPServer(srv *http.Server) CleanupFunc {
	return func(ctx context.Context) error {
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Closer adapts an io.Closer such as the history database.
func Closer(c io.Closer) CleanupFunc {
	return func(context.Context) error {
		return c.Close()
	}
}

// Func adapts a cleanup step that cannot fail.
func Func(fn func()) CleanupFunc {
	return func(context.Context) error {
		fn()
		return nil
	}
}

// Bounded runs fn in the background and gives up when ctx expires, for
// cleanup steps that do not take a context themselves.
func Bounded(fn func() error) CleanupFunc {
	return func(ctx context.Context) error {
		done := make(chan error, 1)
		go func() { done <- fn() }()
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SyncLogger flushes the logger. Sync on a terminal returns EINVAL or ENOTTY
// on Linux, which is not worth failing shutdown over.
func SyncLogger(logger *logging.Logger) CleanupFunc {
	return func(context.Context) error {
		err := logger.Sync()
		if err == nil || errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
			return nil
		}
		return err
	}
}
