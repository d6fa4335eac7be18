// Package webui serves the NErase page, its JSON API and the websocket
// stream of display state.
//
// server.go contains the Server organism that wires together:
//   - StaticAssetHandler for the embedded page
//   - LoggingMiddleware for request logging
//   - the API handlers in api.go, driving a Lifecycle
//   - WebSocketBroadcaster for pushing DisplayState snapshots
//   - ThumbnailCache for sample previews
package webui

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"nerase/blobstore"
	"nerase/core"
	"nerase/lifecycle"
	"nerase/logging"

	"go.uber.org/zap"
)

// ServerConfig configures the Server.
type ServerConfig struct {
	// Host to bind to (default: "localhost")
	Host string

	// Port to listen on (default: 8080)
	Port int

	// ReadTimeout for HTTP requests including the upload body (default: 60s)
	ReadTimeout time.Duration

	// WriteTimeout for HTTP responses (default: 60s)
	WriteTimeout time.Duration

	// IdleTimeout for keep-alive connections (default: 120s)
	IdleTimeout time.Duration

	// MaxUploadBytes is the largest accepted upload (default: 10 MiB)
	MaxUploadBytes int64

	// HistoryDefaultLimit and HistoryMaxLimit bound /api/history (default: 20, 100)
	HistoryDefaultLimit int
	HistoryMaxLimit     int

	// StaticConfig for the embedded assets
	StaticConfig StaticAssetConfig

	// Broadcaster configures the websocket stream
	Broadcaster BroadcasterConfig

	// LogSkipPaths are paths excluded from request logging
	LogSkipPaths []string
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:                "localhost",
		Port:                8080,
		ReadTimeout:         60 * time.Second,
		WriteTimeout:        60 * time.Second,
		IdleTimeout:         120 * time.Second,
		MaxUploadBytes:      10 * 1024 * 1024,
		HistoryDefaultLimit: 20,
		HistoryMaxLimit:     100,
		StaticConfig:        DefaultStaticAssetConfig(),
		Broadcaster:         DefaultBroadcasterConfig(),
		LogSkipPaths:        []string{"/health", "/api/state"},
	}
}

// ServerConfigFromCore maps application config onto ServerConfig.
func ServerConfigFromCore(cfg *core.Config) ServerConfig {
	c := DefaultServerConfig()
	c.Host = cfg.Host
	c.Port = cfg.Port
	c.MaxUploadBytes = cfg.MaxFileSize
	c.StaticConfig.EnableCache = !cfg.DevMode
	return c
}

// Dependencies are the collaborators of a Server. Lifecycle and Blobs are
// required; the rest are optional.
type Dependencies struct {
	Lifecycle  Lifecycle
	Blobs      *blobstore.Store
	History    HistoryReader
	Stats      StatsReader
	Health     Pinger
	Thumbnails *ThumbnailCache
	Logger     *logging.Logger

	// RequestGate wraps the API routes, e.g. shutdown.Manager.Middleware.
	// The websocket route is never gated.
	RequestGate func(http.Handler) http.Handler
}

// Server is the HTTP organism.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	config     ServerConfig
	logger     *logging.Logger

	lifecycle   Lifecycle
	blobs       *blobstore.Store
	history     HistoryReader
	stats       StatsReader
	health      Pinger
	thumbnails  *ThumbnailCache
	gate        func(http.Handler) http.Handler
	static      *StaticAssetHandler
	loggingMw   *LoggingMiddleware
	broadcaster *WebSocketBroadcaster
	unsubscribe func()
}

// NewServer wires routes and subscribes the websocket stream to the
// lifecycle. Nothing listens until Start or Serve is called.
func NewServer(config ServerConfig, deps Dependencies) (*Server, error) {
	if deps.Lifecycle == nil {
		return nil, errors.New("webui: lifecycle is required")
	}
	if deps.Blobs == nil {
		return nil, errors.New("webui: blob store is required")
	}

	defaults := DefaultServerConfig()
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = defaults.MaxUploadBytes
	}
	if config.HistoryDefaultLimit <= 0 {
		config.HistoryDefaultLimit = defaults.HistoryDefaultLimit
	}
	if config.HistoryMaxLimit <= 0 {
		config.HistoryMaxLimit = defaults.HistoryMaxLimit
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("webui")

	gate := deps.RequestGate
	if gate == nil {
		gate = func(h http.Handler) http.Handler { return h }
	}

	bcfg := config.Broadcaster
	bcfg.Logger = logger
	broadcaster := NewWebSocketBroadcaster(deps.Lifecycle.DisplayState, bcfg)

	s := &Server{
		mux:         http.NewServeMux(),
		config:      config,
		logger:      logger,
		lifecycle:   deps.Lifecycle,
		blobs:       deps.Blobs,
		history:     deps.History,
		stats:       deps.Stats,
		health:      deps.Health,
		thumbnails:  deps.Thumbnails,
		gate:        gate,
		static:      NewStaticAssetHandler(config.StaticConfig),
		loggingMw:   NewLoggingMiddlewareWithConfig(LoggingMiddlewareConfig{Logger: logger, SkipPaths: config.LogSkipPaths}),
		broadcaster: broadcaster,
	}
	s.setupRoutes()
	s.unsubscribe = deps.Lifecycle.Subscribe(func(state lifecycle.DisplayState) {
		broadcaster.PublishState(state)
	})

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.loggingMw.Handler(s.mux),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	api := func(pattern string, fn http.HandlerFunc) {
		s.mux.Handle(pattern, s.gate(fn))
	}

	s.mux.HandleFunc("GET /health", s.HandleHealth)
	s.mux.HandleFunc("GET /version", s.HandleVersion)

	s.static.RegisterRoutes(s.mux)
	s.mux.HandleFunc("GET /{$}", s.static.ServeIndex)

	api("GET /api/state", s.HandleState)
	api("POST /api/upload", s.HandleUpload)
	api("GET /api/samples", s.HandleSamples)
	api("POST /api/samples/{id}", s.HandleSelectSample)
	api("GET /api/samples/{id}/thumbnail", s.HandleSampleThumbnail)
	api("POST /api/reset", s.HandleReset)
	api("GET /api/download", s.HandleDownload)
	api("GET /api/history", s.HandleHistory)
	api("GET /api/stats", s.HandleStats)
	api("GET "+s.blobs.Prefix()+"{id}", s.HandleBlob)

	s.mux.HandleFunc("GET /ws", s.broadcaster.HandleConnection)
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Broadcaster returns the websocket broadcaster.
func (s *Server) Broadcaster() *WebSocketBroadcaster {
	return s.broadcaster
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("webui: listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until Shutdown. The websocket stream is closed when
// ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.broadcaster.Start(ctx)

	s.logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("webui: serve: %w", err)
	}
	return nil
}

// Shutdown stops the websocket stream and gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.unsubscribe()
	s.broadcaster.Close()

	if err := s.httpServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("webui: shutdown: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}
