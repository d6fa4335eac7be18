package db

import (
	"context"
	"fmt"
	"time"
)

// PruneResult reports one retention pass.
type PruneResult struct {
	Deleted  int64
	Duration time.Duration
}

// Prune deletes job_history rows older than retentionDays. Zero deletes
// nothing.
func (d *Database) Prune(ctx context.Context, retentionDays int) (PruneResult, error) {
	start := time.Now()
	var result PruneResult

	if retentionDays < 0 {
		return result, fmt.Errorf("db: retentionDays must be non-negative, got %d", retentionDays)
	}
	if retentionDays == 0 {
		return result, nil
	}

	res, err := d.ExecContext(ctx,
		"DELETE FROM job_history WHERE created_at < datetime('now', ?)",
		fmt.Sprintf("-%d days", retentionDays))
	if err != nil {
		return result, fmt.Errorf("db: failed to prune job history: %w", err)
	}
	result.Deleted, err = res.RowsAffected()
	if err != nil {
		return result, fmt.Errorf("db: failed to get rows affected: %w", err)
	}

	result.Duration = time.Since(start)
	return result, nil
}

// PruneSchedulerConfig holds configuration for the retention scheduler.
type PruneSchedulerConfig struct {
	// RetentionDays is the number of days to retain records. Zero disables pruning.
	RetentionDays int
	// Interval is how often to prune
	Interval time.Duration
	// OnPrune is called after each pass (optional)
	OnPrune func(result PruneResult, err error)
}

// DefaultPruneSchedulerConfig keeps 30 days and prunes daily.
func DefaultPruneSchedulerConfig() PruneSchedulerConfig {
	return PruneSchedulerConfig{
		RetentionDays: 30,
		Interval:      24 * time.Hour,
	}
}

// StartPruneScheduler prunes once immediately and then every Interval until
// ctx is cancelled.
func (d *Database) StartPruneScheduler(ctx context.Context, config PruneSchedulerConfig) {
	if config.RetentionDays <= 0 || config.Interval <= 0 {
		return
	}

	run := func() {
		result, err := d.Prune(ctx, config.RetentionDays)
		if config.OnPrune != nil {
			config.OnPrune(result, err)
		}
	}

	go func() {
		run()

		ticker := time.NewTicker(config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
}
