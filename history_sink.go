package main

import (
	"context"
	"errors"
	"time"

	"nerase/db"
	"nerase/lifecycle"
	"nerase/logging"
	"nerase/shutdown"

	"go.uber.org/zap"
)

// recordInserter is the part of db.HistoryRepository the sink needs.
type recordInserter interface {
	Insert(ctx context.Context, rec db.JobRecord) (int64, error)
}

// operationGuard is the part of shutdown.Manager that keeps the database
// open until a running insert returns.
type operationGuard interface {
	WrapOperation(ctx context.Context, name string, fn func(context.Context) error) error
}

// historySink writes lifecycle outcomes to job_history. Inserts are queued
// on the repository's AsyncWriter. When the queue is full or the writer is
// not running, the repository inserts synchronously and RecordOutcome blocks
// the caller, bounded by the sink's timeout.
type historySink struct {
	repo    recordInserter
	guard   operationGuard
	logger  *logging.Logger
	timeout time.Duration
}

// newHistorySink returns a sink writing to repo. guard may be nil.
func newHistorySink(repo recordInserter, guard operationGuard, logger *logging.Logger) *historySink {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &historySink{repo: repo, guard: guard, logger: logger.Named("history"), timeout: 5 * time.Second}
}

// RecordOutcome implements lifecycle.HistorySink. Outcomes that arrive after
// shutdown has begun are dropped.
func (h *historySink) RecordOutcome(o lifecycle.Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	insert := func(ctx context.Context) error {
		_, err := h.repo.Insert(ctx, jobRecordFromOutcome(o))
		return err
	}

	var err error
	if h.guard != nil {
		err = h.guard.WrapOperation(ctx, "record-outcome", insert)
	} else {
		err = insert(ctx)
	}

	if errors.Is(err, shutdown.ErrTrackerClosed) {
		h.logger.Debug("dropping job outcome during shutdown", zap.String("job_id", o.JobID))
		return
	}
	if err != nil {
		h.logger.Warn("failed to record job outcome",
			zap.String("job_id", o.JobID),
			zap.String("status", string(o.Status)),
			zap.Error(err))
	}
}

func jobRecordFromOutcome(o lifecycle.Outcome) db.JobRecord {
	return db.JobRecord{
		JobID:        o.JobID,
		Origin:       string(o.Origin),
		SourceName:   o.SourceName,
		SampleID:     o.SampleID,
		Status:       string(o.Status),
		ErrorKind:    o.ErrorKind,
		ErrorMessage: o.ErrorMessage,
		InputBytes:   o.InputBytes,
		OutputBytes:  o.OutputBytes,
		DurationMS:   o.Duration.Milliseconds(),
		CreatedAt:    o.FinishedAt,
	}
}

// outcomeSinks fans one outcome out to every sink in order.
type outcomeSinks []lifecycle.HistorySink

func (s outcomeSinks) RecordOutcome(o lifecycle.Outcome) {
	for _, sink := range s {
		sink.RecordOutcome(o)
	}
}
