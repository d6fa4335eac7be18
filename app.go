package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nerase/acquire"
	"nerase/blobstore"
	"nerase/core"
	"nerase/db"
	"nerase/lifecycle"
	"nerase/logging"
	"nerase/metrics"
	"nerase/removebg"
	"nerase/shutdown"
	"nerase/webui"

	"go.uber.org/zap"
)

// App owns the long-lived components of a running NErase process and their
// shutdown order.
type App struct {
	cfg      *core.Config
	logger   *logging.Logger
	shutdown *shutdown.Manager

	samples    *core.SampleCatalog
	stats      *metrics.Store
	controller *lifecycle.Controller
	server     *webui.Server

	database *db.Database
	writer   *db.AsyncWriter[db.JobRecord]
}

// NewApp builds every component from cfg and registers their cleanup with
// mgr. Nothing listens until Run.
func NewApp(cfg *core.Config, logger *logging.Logger, mgr *shutdown.Manager) (*App, error) {
	a := &App{cfg: cfg, logger: logger, shutdown: mgr}

	samples, err := core.LoadSampleCatalog(cfg.SamplesFile)
	if err != nil {
		return nil, err
	}
	a.samples = samples

	remover, err := removebg.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	fetcher, err := acquire.NewDownloader(cfg)
	if err != nil {
		return nil, err
	}
	blobs := blobstore.New(blobstore.DefaultPrefix)
	a.stats = metrics.NewStore(metrics.StoreConfig{
		RecentCapacity: metrics.DefaultStoreConfig().RecentCapacity,
		Version:        core.Version,
	}, time.Now())
	sinks := outcomeSinks{a.stats}

	deps := lifecycle.Dependencies{
		Remover: remover,
		Fetcher: fetcher,
		Samples: samples,
		Blobs:   blobs,
		Logger:  logger,
	}
	serverDeps := webui.Dependencies{
		Blobs:       blobs,
		Stats:       a.stats,
		Thumbnails:  webui.NewThumbnailCache(fetcher, webui.DefaultThumbnailWidth),
		Logger:      logger,
		RequestGate: mgr.Middleware,
	}

	if cfg.HistoryEnabled() {
		repo, err := a.openHistory()
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, newHistorySink(repo, mgr, logger))
		serverDeps.History = repo
		serverDeps.Health = a.database
	}
	deps.History = sinks

	a.controller, err = lifecycle.NewControllerWithConfig(deps, lifecycle.ConfigFromCore(cfg))
	if err != nil {
		a.closeHistory()
		return nil, err
	}

	serverDeps.Lifecycle = a.controller
	a.server, err = webui.NewServer(webui.ServerConfigFromCore(cfg), serverDeps)
	if err != nil {
		a.controller.Close()
		a.closeHistory()
		return nil, err
	}

	a.registerCleanup()
	return a, nil
}

// openHistory opens the database, applying migrations, and starts the
// background writer.
func (a *App) openHistory() (*db.HistoryRepository, error) {
	database, err := db.Open(a.cfg.HistoryDB)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	a.database = database

	repo := db.NewHistoryRepository(database, nil)
	historyLog := a.logger.Named("history")
	a.writer = db.NewAsyncWriterWithConfig(repo.AsyncWriteHandler(), db.AsyncWriterConfig[db.JobRecord]{
		ChannelCapacity: db.DefaultChannelCapacity,
		OnError: func(op db.QueuedWrite[db.JobRecord], err error) {
			historyLog.Warn("queued history write failed",
				zap.String("job_id", op.Value.JobID),
				zap.Duration("queued_for", time.Since(op.QueuedAt)),
				zap.Error(err))
		},
	})
	a.writer.Start()

	a.logger.Info("Job history enabled",
		zap.String("path", database.Path()),
		zap.Int("retention_days", a.cfg.HistoryRetentionDays))
	return db.NewHistoryRepository(database, a.writer), nil
}

func (a *App) closeHistory() {
	if a.writer != nil {
		a.writer.Stop()
	}
	if a.database != nil {
		a.database.Close()
	}
}

// registerCleanup orders teardown: report stopped, stop accepting HTTP, abandon the active
// job, flush history, close the database, flush logs.
func (a *App) registerCleanup() {
	a.shutdown.Register("stats", shutdown.PriorityHTTPServer, shutdown.Func(a.stats.MarkStopped))
	a.shutdown.Register("http-server", shutdown.PriorityHTTPServer, a.server.Shutdown)
	a.shutdown.Register("lifecycle", shutdown.PriorityController, shutdown.Closer(a.controller))
	if a.writer != nil {
		writer := a.writer
		a.shutdown.Register("history-writer", shutdown.PriorityHistory, shutdown.Bounded(func() error {
			if !writer.StopWithTimeout(db.DefaultDrainTimeout) {
				return errors.New("pending history writes were not flushed")
			}
			return nil
		}))
	}
	if a.database != nil {
		a.shutdown.Register("history-db", shutdown.PriorityDatabase, shutdown.Closer(a.database))
	}
	a.shutdown.Register("logger", shutdown.PriorityLogger, shutdown.SyncLogger(a.logger))
}

// SampleCount is the size of the sample gallery.
func (a *App) SampleCount() int {
	return a.samples.Len()
}

// Server exposes the HTTP server.
func (a *App) Server() *webui.Server {
	return a.server
}

// Run serves until ctx is cancelled, a shutdown signal arrives or the
// server fails, then runs the registered cleanup.
func (a *App) Run(ctx context.Context) error {
	runCtx := a.shutdown.Context()

	go func() {
		select {
		case <-ctx.Done():
			a.shutdown.Trigger("context cancelled")
		case <-runCtx.Done():
		}
	}()

	if a.database != nil {
		a.database.StartPruneScheduler(runCtx, db.PruneSchedulerConfig{
			RetentionDays: a.cfg.HistoryRetentionDays,
			Interval:      24 * time.Hour,
			OnPrune: func(result db.PruneResult, err error) {
				if err != nil {
					a.logger.Warn("History prune failed", zap.Error(err))
					return
				}
				if result.Deleted > 0 {
					a.logger.Info("Pruned job history",
						zap.Int64("deleted", result.Deleted),
						zap.Duration("duration", result.Duration))
				}
			},
		})
	}

	serveErr := make(chan error, 1)
	go func() {
		err := a.server.Start(runCtx)
		if err != nil {
			a.logger.Error("HTTP server failed", zap.Error(err))
			a.shutdown.Trigger("http server failed")
		}
		serveErr <- err
	}()

	a.shutdown.Wait()
	shutdownErr := a.shutdown.Shutdown()

	var err error
	select {
	case err = <-serveErr:
	case <-time.After(time.Second):
	}
	return errors.Join(err, shutdownErr)
}
