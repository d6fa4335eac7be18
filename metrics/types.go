// Package metrics keeps in-memory statistics about background-removal jobs
// for the /api/stats endpoint. Unlike the history database it is always on
// and resets when the process restarts.
package metrics

import "time"

// JobSample is one finished or discarded job.
type JobSample struct {
	ID         string        `json:"id"`
	Origin     string        `json:"origin"`
	Status     string        `json:"status"`
	ErrorKind  string        `json:"error_kind,omitempty"`
	Duration   time.Duration `json:"duration"`
	FinishedAt time.Time     `json:"finished_at"`
}

// JobMetrics aggregates every job seen since start.
type JobMetrics struct {
	TotalProcessed  int64                     `json:"total_processed"`
	TotalSucceeded  int64                     `json:"total_succeeded"`
	TotalFailed     int64                     `json:"total_failed"`
	TotalSuperseded int64                     `json:"total_superseded"`
	ByOrigin        map[string]*OriginMetrics `json:"by_origin"`
	ByErrorKind     map[string]int64          `json:"by_error_kind"`
}

// OriginMetrics are the statistics for one source origin.
// Superseded jobs count towards Count but not SuccessRate.
type OriginMetrics struct {
	Count       int64         `json:"count"`
	SuccessRate float64       `json:"success_rate"`
	AvgDuration time.Duration `json:"avg_duration"`
}

// SystemStatus describes the running process.
type SystemStatus struct {
	Health    string        `json:"health"`
	Version   string        `json:"version"`
	Uptime    time.Duration `json:"uptime"`
	LastCheck time.Time     `json:"last_check"`
}

// Snapshot is everything /api/stats serves.
type Snapshot struct {
	System SystemStatus `json:"system"`
	Jobs   JobMetrics   `json:"jobs"`
	Recent []JobSample  `json:"recent"`
}

// Health constants for SystemStatus
const (
	SystemHealthRunning = "running"
	SystemHealthStopped = "stopped"
)
