package lifecycle

import (
	"time"

	"nerase/blobstore"
)

// Status is the state of a processing job.
type Status string

const (
	StatusIdle           Status = "idle"
	StatusUploading      Status = "uploading"
	StatusAwaitingResult Status = "awaiting_result"
	StatusSucceeded      Status = "succeeded"
	StatusFailed         Status = "failed"

	// StatusSuperseded never appears in DisplayState. It is only reported to
	// the HistorySink for jobs whose outcome was discarded.
	StatusSuperseded Status = "superseded"
)

// Active reports whether a job in this status is still waiting on I/O.
func (s Status) Active() bool {
	return s == StatusUploading || s == StatusAwaitingResult
}

// Origin tells where a source image came from.
type Origin string

const (
	OriginLocal        Origin = "local"
	OriginRemoteSample Origin = "remote-sample"
)

// LocalFile is an uploaded file. The caller has already checked its type.
type LocalFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// SourceImage is the image being processed.
type SourceImage struct {
	Name        string
	ContentType string
	Data        []byte
	Origin      Origin
	SampleID    int
	Handle      blobstore.Handle
}

// Job is one attempt to remove the background from the current source.
// Result is set only when Status is StatusSucceeded and ErrorMessage only
// when Status is StatusFailed.
type Job struct {
	ID           string
	Generation   uint64
	Origin       Origin
	SampleID     int
	Status       Status
	Progress     int
	ErrorMessage string
	Result       blobstore.Handle
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Outcome describes a finished or discarded job for the audit log.
type Outcome struct {
	JobID        string
	Origin       Origin
	SourceName   string
	SampleID     int
	Status       Status
	ErrorKind    string
	ErrorMessage string
	InputBytes   int64
	OutputBytes  int64
	Duration     time.Duration
	FinishedAt   time.Time
}

// HistorySink receives job outcomes. Implementations must not block.
type HistorySink interface {
	RecordOutcome(Outcome)
}
