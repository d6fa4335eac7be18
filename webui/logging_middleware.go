package webui

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"nerase/logging"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader carries the id that ties a response to its log line.
const RequestIDHeader = "X-Request-ID"

// LoggingMiddleware writes one structured line per request. 5xx responses
// log at error, 4xx at warn, everything else at debug.
type LoggingMiddleware struct {
	logger *logging.Logger
	skip   map[string]struct{}
}

// LoggingMiddlewareConfig configures NewLoggingMiddlewareWithConfig.
type LoggingMiddlewareConfig struct {
	Logger *logging.Logger

	// SkipPaths are polled endpoints such as /health that would flood the log.
	SkipPaths []string
}

// NewLoggingMiddlewareWithConfig builds the middleware. A nil Logger discards.
func NewLoggingMiddlewareWithConfig(config LoggingMiddlewareConfig) *LoggingMiddleware {
	logger := config.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	skip := make(map[string]struct{}, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = struct{}{}
	}
	return &LoggingMiddleware{logger: logger, skip: skip}
}

// Handler wraps next. Every response gets an X-Request-ID, reusing the
// caller's when it sent one.
func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		if _, ok := m.skip[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		fields := []zap.Field{
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.Int64("bytes", rec.bytes),
			zap.String("remote_addr", clientIP(r)),
		}
		if r.URL.RawQuery != "" {
			fields = append(fields, zap.String("query", r.URL.RawQuery))
		}
		m.log(rec, fields)
	})
}

func (m *LoggingMiddleware) log(rec *statusRecorder, fields []zap.Field) {
	switch {
	case rec.hijacked:
		m.logger.Debug("connection upgraded", fields...)
	case rec.status >= http.StatusInternalServerError:
		m.logger.Error("request failed", fields...)
	case rec.status >= http.StatusBadRequest:
		m.logger.Warn("request rejected", fields...)
	default:
		m.logger.Debug("request", fields...)
	}
}

// statusRecorder remembers the status and body size written through it.
// Hijack and Flush pass through so /ws upgrades survive the middleware.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int64
	wroteHeader bool
	hijacked    bool
}

func (w *statusRecorder) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

func (w *statusRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("webui: %T does not support hijacking", w.ResponseWriter)
	}
	conn, rw, err := h.Hijack()
	if err != nil {
		return nil, nil, err
	}
	w.hijacked = true
	w.status = http.StatusSwitchingProtocols
	return conn, rw, nil
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then
// RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
