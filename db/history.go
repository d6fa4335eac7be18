package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// sqliteTimeLayout is how SQLite's CURRENT_TIMESTAMP renders.
const sqliteTimeLayout = "2006-01-02 15:04:05"

// JobRecord is one row of job_history.
type JobRecord struct {
	ID           int64     `json:"id"`
	JobID        string    `json:"job_id"`
	Origin       string    `json:"origin"`
	SourceName   string    `json:"source_name,omitempty"`
	SampleID     int       `json:"sample_id,omitempty"`
	Status       string    `json:"status"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	InputBytes   int64     `json:"input_bytes"`
	OutputBytes  int64     `json:"output_bytes"`
	DurationMS   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// HistoryRepository reads and writes job_history.
//
// When an AsyncWriter is attached and running, inserts are queued and
// applied in the background; a full queue falls back to a synchronous write.
type HistoryRepository struct {
	db          *Database
	asyncWriter *AsyncWriter[JobRecord]
}

// NewHistoryRepository creates a repository. asyncWriter may be nil.
func NewHistoryRepository(database *Database, asyncWriter *AsyncWriter[JobRecord]) *HistoryRepository {
	return &HistoryRepository{db: database, asyncWriter: asyncWriter}
}

const insertJobRecord = `
	INSERT INTO job_history (
		job_id, origin, source_name, sample_id, status, error_kind,
		error_message, input_bytes, output_bytes, duration_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func jobRecordArgs(rec JobRecord) []interface{} {
	var sampleID interface{}
	if rec.SampleID > 0 {
		sampleID = rec.SampleID
	}
	return []interface{}{
		rec.JobID,
		rec.Origin,
		nullString(rec.SourceName),
		sampleID,
		rec.Status,
		nullString(rec.ErrorKind),
		nullString(rec.ErrorMessage),
		rec.InputBytes,
		rec.OutputBytes,
		rec.DurationMS,
	}
}

// Insert stores rec. It returns the row id, or 0 when the write was queued.
func (r *HistoryRepository) Insert(ctx context.Context, rec JobRecord) (int64, error) {
	if r.db == nil {
		return 0, fmt.Errorf("db: database connection is nil")
	}
	if rec.JobID == "" || rec.Status == "" {
		return 0, fmt.Errorf("db: job record needs job id and status")
	}

	if r.asyncWriter != nil && r.asyncWriter.Running() {
		if r.asyncWriter.Write(rec) {
			return 0, nil
		}
	}

	return r.insertSync(ctx, rec)
}

func (r *HistoryRepository) insertSync(ctx context.Context, rec JobRecord) (int64, error) {
	result, err := r.db.ExecContext(ctx, insertJobRecord, jobRecordArgs(rec)...)
	if err != nil {
		return 0, fmt.Errorf("db: failed to insert job record: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("db: failed to get last insert id: %w", err)
	}
	return id, nil
}

// AsyncWriteHandler returns the handler that applies queued JobRecords.
func (r *HistoryRepository) AsyncWriteHandler() WriteHandler[JobRecord] {
	return func(op QueuedWrite[JobRecord]) error {
		_, err := r.insertSync(context.Background(), op.Value)
		return err
	}
}

// Recent returns up to limit records, newest first. limit <= 0 means 20.
func (r *HistoryRepository) Recent(ctx context.Context, limit int) ([]JobRecord, error) {
	if r.db == nil {
		return nil, fmt.Errorf("db: database connection is nil")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, job_id, origin, COALESCE(source_name, ''), COALESCE(sample_id, 0),
		       status, COALESCE(error_kind, ''), COALESCE(error_message, ''),
		       input_bytes, output_bytes, duration_ms, created_at
		FROM job_history
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("db: failed to query job history: %w", err)
	}
	defer rows.Close()

	var records []JobRecord
	for rows.Next() {
		var rec JobRecord
		var createdAt sql.NullString
		if err := rows.Scan(
			&rec.ID,
			&rec.JobID,
			&rec.Origin,
			&rec.SourceName,
			&rec.SampleID,
			&rec.Status,
			&rec.ErrorKind,
			&rec.ErrorMessage,
			&rec.InputBytes,
			&rec.OutputBytes,
			&rec.DurationMS,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("db: failed to scan job history row: %w", err)
		}
		rec.CreatedAt = parseSQLiteTime(createdAt.String)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: error iterating job history rows: %w", err)
	}
	return records, nil
}

// Count returns the number of rows, optionally restricted to one status.
func (r *HistoryRepository) Count(ctx context.Context, status string) (int64, error) {
	if r.db == nil {
		return 0, fmt.Errorf("db: database connection is nil")
	}

	var count int64
	var err error
	if status == "" {
		err = r.db.queryScalar(ctx, &count, "SELECT COUNT(*) FROM job_history")
	} else {
		err = r.db.queryScalar(ctx, &count, "SELECT COUNT(*) FROM job_history WHERE status = ?", status)
	}
	if err != nil {
		return 0, fmt.Errorf("db: failed to count job history: %w", err)
	}
	return count, nil
}

// parseSQLiteTime accepts both CURRENT_TIMESTAMP text and RFC3339, which is
// what modernc returns for DATETIME columns.
func parseSQLiteTime(s string) time.Time {
	for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// nullString stores empty strings as NULL.
func nullString(s string) interface{} {
	if s == "" {
		return sql.NullString{}
	}
	return s
}
