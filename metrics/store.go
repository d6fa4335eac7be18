package metrics

import (
	"sync"
	"time"

	"nerase/lifecycle"
)

// StoreConfig configures the Store.
type StoreConfig struct {
	// RecentCapacity is the number of samples kept for Snapshot.Recent
	RecentCapacity int
	// Version is reported in SystemStatus
	Version string
}

// DefaultStoreConfig returns a default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		RecentCapacity: 50,
		Version:        "dev",
	}
}

type originStats struct {
	count         int64
	finished      int64
	succeeded     int64
	totalDuration time.Duration
}

// Store is a concurrency-safe in-memory Collector. Recent samples live in a
// fixed-size ring; aggregates cover every job since startTime.
//
//	store := metrics.NewStore(metrics.DefaultStoreConfig(), time.Now())
//	store.RecordOutcome(outcome)
//	snap := store.Snapshot(10)
type Store struct {
	mu sync.RWMutex

	recent     []JobSample
	recentHead int
	recentSize int

	totalProcessed  int64
	totalSucceeded  int64
	totalFailed     int64
	totalSuperseded int64
	byOrigin        map[string]*originStats
	byErrorKind     map[string]int64

	startTime time.Time
	version   string
	stopped   bool
	now       func() time.Time
}

// NewStore creates a Store. startTime is used to calculate uptime.
func NewStore(config StoreConfig, startTime time.Time) *Store {
	capacity := config.RecentCapacity
	if capacity < 1 {
		capacity = DefaultStoreConfig().RecentCapacity
	}
	return &Store{
		recent:      make([]JobSample, capacity),
		byOrigin:    make(map[string]*originStats),
		byErrorKind: make(map[string]int64),
		startTime:   startTime,
		version:     config.Version,
		now:         time.Now,
	}
}

// RecordOutcome implements lifecycle.HistorySink.
func (s *Store) RecordOutcome(o lifecycle.Outcome) {
	s.Record(JobSample{
		ID:         o.JobID,
		Origin:     string(o.Origin),
		Status:     string(o.Status),
		ErrorKind:  o.ErrorKind,
		Duration:   o.Duration,
		FinishedAt: o.FinishedAt,
	})
}

// Record adds one sample.
func (s *Store) Record(sample JobSample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recent[s.recentHead] = sample
	s.recentHead = (s.recentHead + 1) % len(s.recent)
	if s.recentSize < len(s.recent) {
		s.recentSize++
	}

	s.totalProcessed++
	stats, ok := s.byOrigin[sample.Origin]
	if !ok {
		stats = &originStats{}
		s.byOrigin[sample.Origin] = stats
	}
	stats.count++

	switch lifecycle.Status(sample.Status) {
	case lifecycle.StatusSucceeded:
		s.totalSucceeded++
		stats.finished++
		stats.succeeded++
		stats.totalDuration += sample.Duration
	case lifecycle.StatusFailed:
		s.totalFailed++
		stats.finished++
		stats.totalDuration += sample.Duration
		if sample.ErrorKind != "" {
			s.byErrorKind[sample.ErrorKind]++
		}
	case lifecycle.StatusSuperseded:
		s.totalSuperseded++
	}
}

// JobMetrics returns the aggregates.
func (s *Store) JobMetrics() JobMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobMetricsLocked()
}

func (s *Store) jobMetricsLocked() JobMetrics {
	m := JobMetrics{
		TotalProcessed:  s.totalProcessed,
		TotalSucceeded:  s.totalSucceeded,
		TotalFailed:     s.totalFailed,
		TotalSuperseded: s.totalSuperseded,
		ByOrigin:        make(map[string]*OriginMetrics, len(s.byOrigin)),
		ByErrorKind:     make(map[string]int64, len(s.byErrorKind)),
	}
	for origin, stats := range s.byOrigin {
		om := &OriginMetrics{Count: stats.count}
		if stats.finished > 0 {
			om.SuccessRate = float64(stats.succeeded) / float64(stats.finished) * 100
			om.AvgDuration = stats.totalDuration / time.Duration(stats.finished)
		}
		m.ByOrigin[origin] = om
	}
	for kind, n := range s.byErrorKind {
		m.ByErrorKind[kind] = n
	}
	return m
}

// Recent returns up to limit samples, newest first.
func (s *Store) Recent(limit int) []JobSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recentLocked(limit)
}

func (s *Store) recentLocked(limit int) []JobSample {
	if limit <= 0 || s.recentSize == 0 {
		return []JobSample{}
	}
	if limit > s.recentSize {
		limit = s.recentSize
	}

	capacity := len(s.recent)
	out := make([]JobSample, limit)
	for i := 0; i < limit; i++ {
		out[i] = s.recent[(s.recentHead-1-i+capacity)%capacity]
	}
	return out
}

// SystemStatus reports health, version and uptime.
func (s *Store) SystemStatus() SystemStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.systemStatusLocked()
}

func (s *Store) systemStatusLocked() SystemStatus {
	now := s.now()
	health := SystemHealthRunning
	if s.stopped {
		health = SystemHealthStopped
	}
	return SystemStatus{
		Health:    health,
		Version:   s.version,
		Uptime:    now.Sub(s.startTime),
		LastCheck: now,
	}
}

// MarkStopped flips the reported health to stopped during shutdown.
func (s *Store) MarkStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

// Snapshot returns a consistent view including up to recent samples.
func (s *Store) Snapshot(recent int) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		System: s.systemStatusLocked(),
		Jobs:   s.jobMetricsLocked(),
		Recent: s.recentLocked(recent),
	}
}
