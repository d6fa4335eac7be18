// Package lifecycle owns the state machine that takes one source image
// through background removal and exposes the result for display.
//
// controller.go implements the Controller organism.
//
// This organism composes:
//   - removebg.Remover: the background-removal capability
//   - acquire.Fetcher: downloads remote samples
//   - blobstore.Store: displayable handles for original and processed bytes
//   - HistorySink: optional audit log of outcomes
//
// At most one job is active. Every submit or reset bumps a generation
// counter; asynchronous completions carry the generation they were started
// with and are discarded when it no longer matches. Superseded requests are
// abandoned, not cancelled.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nerase/acquire"
	"nerase/blobstore"
	"nerase/core"
	"nerase/logging"
	"nerase/removebg"
)

var (
	// ErrClosed is returned by submits after Close.
	ErrClosed = errors.New("lifecycle: controller is closed")

	// ErrUnknownSample is returned by SubmitSample for an id not in the catalog.
	ErrUnknownSample = errors.New("lifecycle: unknown sample")

	// ErrEmptyFile is returned by SubmitLocalFile for a file with no content.
	ErrEmptyFile = errors.New("lifecycle: file is empty")
)

// defaultErrorMessage is shown when a failure carries no text of its own.
const defaultErrorMessage = "Failed to process image"

// Config holds the progress simulation settings.
type Config struct {
	// ProgressInterval is the tick period.
	// Default: 500ms
	ProgressInterval time.Duration

	// ProgressStep is added on each tick.
	// Default: 10
	ProgressStep int

	// ProgressCap is the highest simulated value before the result arrives.
	// Default: 90
	ProgressCap int

	// DownloadURL is advertised in DisplayState once a job succeeds.
	// Default: /api/download
	DownloadURL string
}

// DefaultConfig returns the progress cadence used by the page.
func DefaultConfig() Config {
	return Config{
		ProgressInterval: 500 * time.Millisecond,
		ProgressStep:     10,
		ProgressCap:      90,
		DownloadURL:      "/api/download",
	}
}

// ConfigFromCore maps application config onto Config.
func ConfigFromCore(cfg *core.Config) Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	c.ProgressInterval = cfg.ProgressInterval
	c.ProgressStep = cfg.ProgressStep
	c.ProgressCap = cfg.ProgressCap
	return c
}

// Dependencies are the collaborators of a Controller. Remover and Blobs are
// required.
type Dependencies struct {
	Remover removebg.Remover
	Fetcher acquire.Fetcher
	Samples *core.SampleCatalog
	Blobs   *blobstore.Store
	History HistorySink
	Logger  *logging.Logger
}

// Controller coordinates acquisition, capability calls and display state.
//
// Thread Safety: all methods are safe for concurrent use. Listeners are
// called outside the lock and may run concurrently with each other.
type Controller struct {
	cfg       Config
	remover   removebg.Remover
	fetcher   acquire.Fetcher
	samples   *core.SampleCatalog
	blobs     *blobstore.Store
	history   HistorySink
	logger    *logging.Logger
	newTicker func(time.Duration) ticker

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu        sync.Mutex
	gen       uint64
	revision  uint64
	source    *SourceImage
	job       *Job
	stopTick  func()
	listeners map[int]func(DisplayState)
	nextSub   int
	closed    bool
}

// NewController creates a Controller with DefaultConfig.
func NewController(deps Dependencies) (*Controller, error) {
	return NewControllerWithConfig(deps, DefaultConfig())
}

// NewControllerWithConfig creates a Controller with explicit configuration.
func NewControllerWithConfig(deps Dependencies, cfg Config) (*Controller, error) {
	if deps.Remover == nil {
		return nil, fmt.Errorf("lifecycle: remover cannot be nil")
	}
	if deps.Blobs == nil {
		return nil, fmt.Errorf("lifecycle: blob store cannot be nil")
	}

	defaults := DefaultConfig()
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = defaults.ProgressInterval
	}
	if cfg.ProgressStep <= 0 {
		cfg.ProgressStep = defaults.ProgressStep
	}
	if cfg.ProgressCap <= 0 || cfg.ProgressCap >= 100 {
		cfg.ProgressCap = defaults.ProgressCap
	}
	if cfg.DownloadURL == "" {
		cfg.DownloadURL = defaults.DownloadURL
	}

	samples := deps.Samples
	if samples == nil {
		var err error
		if samples, err = core.NewSampleCatalog(core.DefaultSamples); err != nil {
			return nil, fmt.Errorf("lifecycle: default samples: %w", err)
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		cfg:       cfg,
		remover:   deps.Remover,
		fetcher:   deps.Fetcher,
		samples:   samples,
		blobs:     deps.Blobs,
		history:   deps.History,
		logger:    logger.Named("lifecycle"),
		newTicker: newRealTicker,
		baseCtx:   ctx,
		cancel:    cancel,
		listeners: make(map[int]func(DisplayState)),
	}, nil
}

// Samples returns the catalog used by SubmitSample.
func (c *Controller) Samples() *core.SampleCatalog {
	return c.samples
}

// SubmitLocalFile makes file the source and starts a new job, superseding
// any current one. The source handle is available immediately.
func (c *Controller) SubmitLocalFile(file LocalFile) error {
	if len(file.Data) == 0 {
		return ErrEmptyFile
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	job := c.beginJobLocked(OriginLocal, 0)
	src := &SourceImage{
		Name:        file.Name,
		ContentType: file.ContentType,
		Data:        file.Data,
		Origin:      OriginLocal,
		Handle:      c.blobs.Put(file.Data, file.ContentType),
	}
	c.source = src
	snap := c.snapshotLocked()
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Info("job started",
		zap.String("job_id", job.ID),
		zap.String("origin", string(OriginLocal)),
		zap.String("name", file.Name),
		zap.Int("bytes", len(file.Data)))
	c.notify(snap)

	go func() {
		defer c.wg.Done()
		c.runCapability(job, *src)
	}()
	return nil
}

// SubmitSample resolves id through the catalog and submits its URL.
func (c *Controller) SubmitSample(id int) error {
	sample, ok := c.samples.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSample, id)
	}
	return c.submitRemote(sample.URL, sample.ID)
}

// SubmitRemoteSample fetches url and then processes it like a local file.
// The source stays unset until the fetch succeeds.
func (c *Controller) SubmitRemoteSample(url string) error {
	return c.submitRemote(url, 0)
}

func (c *Controller) submitRemote(url string, sampleID int) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	job := c.beginJobLocked(OriginRemoteSample, sampleID)
	snap := c.snapshotLocked()
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Info("job started",
		zap.String("job_id", job.ID),
		zap.String("origin", string(OriginRemoteSample)),
		zap.Int("sample_id", sampleID),
		zap.String("url", url))
	c.notify(snap)

	go func() {
		defer c.wg.Done()
		src, ok := c.acquire(job, url, sampleID)
		if !ok {
			return
		}
		c.runCapability(job, src)
	}()
	return nil
}

// Reset returns the controller to idle, abandoning any active job and
// releasing all handles. Calling it on an idle controller changes nothing.
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.job == nil && c.source == nil {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.clearLocked()
	c.revision++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Debug("reset")
	c.notify(snap)
}

// DisplayState returns the current projection.
func (c *Controller) DisplayState() DisplayState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Result returns the processed image of a succeeded job.
func (c *Controller) Result() (blobstore.Blob, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job == nil || c.job.Status != StatusSucceeded {
		return blobstore.Blob{}, false
	}
	return c.blobs.Get(c.job.Result.ID)
}

// Subscribe registers fn to receive a snapshot after every change.
// The returned function removes the subscription.
func (c *Controller) Subscribe(fn func(DisplayState)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// Close abandons the active job, cancels every outstanding request and
// waits for background goroutines to exit. Further submits fail with
// ErrClosed.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.gen++
	c.clearLocked()
	c.revision++
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	return nil
}

// beginJobLocked supersedes the current job and installs a fresh one in
// StatusUploading with its own progress ticker.
func (c *Controller) beginJobLocked(origin Origin, sampleID int) *Job {
	c.gen++
	c.clearLocked()

	job := &Job{
		ID:         uuid.NewString(),
		Generation: c.gen,
		Origin:     origin,
		SampleID:   sampleID,
		Status:     StatusUploading,
		StartedAt:  time.Now(),
	}
	c.job = job
	c.stopTick = c.startTicker(job.Generation)
	c.revision++
	return job
}

// clearLocked stops the ticker and releases every handle.
func (c *Controller) clearLocked() {
	if c.stopTick != nil {
		c.stopTick()
		c.stopTick = nil
	}
	if c.source != nil {
		c.blobs.Release(c.source.Handle.ID)
		c.source = nil
	}
	if c.job != nil {
		c.blobs.Release(c.job.Result.ID)
		c.job = nil
	}
}

// currentLocked reports whether gen still identifies the active job.
func (c *Controller) currentLocked(gen uint64) bool {
	return !c.closed && c.job != nil && c.job.Generation == gen && gen == c.gen
}

func (c *Controller) snapshotLocked() DisplayState {
	return project(c.revision, c.source, c.job, c.cfg.DownloadURL)
}

// acquire downloads a remote sample. It returns false when the job failed
// or was superseded in the meantime.
func (c *Controller) acquire(job *Job, url string, sampleID int) (SourceImage, bool) {
	var (
		data        []byte
		contentType string
		err         error
	)
	if c.fetcher == nil {
		err = &core.AcquisitionError{URL: url, Err: errors.New("lifecycle: no fetcher configured")}
	} else {
		data, contentType, err = c.fetcher.DownloadBytes(c.baseCtx, url)
	}

	c.mu.Lock()
	if !c.currentLocked(job.Generation) {
		c.mu.Unlock()
		c.discard(job, "", int64(len(data)), 0)
		return SourceImage{}, false
	}
	if err != nil {
		c.failLocked(job, "", 0, err)
		return SourceImage{}, false
	}

	contentType = acquire.NormalizeContentType(contentType)
	src := SourceImage{
		Name:        acquire.FileName(url, contentType),
		ContentType: contentType,
		Data:        data,
		Origin:      OriginRemoteSample,
		SampleID:    sampleID,
		Handle:      c.blobs.Put(data, contentType),
	}
	c.source = &src
	c.revision++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Debug("sample acquired",
		zap.String("job_id", job.ID),
		zap.Int("bytes", len(data)))
	c.notify(snap)
	return src, true
}

// runCapability sends src to the remover and applies the outcome.
func (c *Controller) runCapability(job *Job, src SourceImage) {
	img := removebg.Image{Name: src.Name, ContentType: src.ContentType, Data: src.Data}
	res, err := c.remover.Remove(c.baseCtx, img, removebg.OnWroteRequest(func() {
		c.markAwaiting(job.Generation)
	}))

	c.mu.Lock()
	if !c.currentLocked(job.Generation) {
		c.mu.Unlock()
		var out int64
		if res != nil {
			out = int64(len(res.Data))
		}
		c.discard(job, src.Name, int64(len(src.Data)), out)
		return
	}
	if err != nil {
		c.failLocked(job, src.Name, int64(len(src.Data)), err)
		return
	}

	c.stopTickLocked()
	job.Status = StatusSucceeded
	job.Progress = 100
	job.FinishedAt = time.Now()
	job.Result = c.blobs.Put(res.Data, res.ContentType)
	c.revision++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info("job succeeded",
		zap.String("job_id", job.ID),
		zap.Int("output_bytes", len(res.Data)),
		zap.Duration("duration", job.FinishedAt.Sub(job.StartedAt)))
	c.record(Outcome{
		JobID:       job.ID,
		Origin:      job.Origin,
		SourceName:  src.Name,
		SampleID:    job.SampleID,
		Status:      StatusSucceeded,
		InputBytes:  int64(len(src.Data)),
		OutputBytes: int64(len(res.Data)),
		Duration:    job.FinishedAt.Sub(job.StartedAt),
		FinishedAt:  job.FinishedAt,
	})
	c.notify(snap)
}

// failLocked moves job to StatusFailed and unlocks c.mu.
func (c *Controller) failLocked(job *Job, sourceName string, inputBytes int64, err error) {
	msg := err.Error()
	if msg == "" {
		msg = defaultErrorMessage
	}

	c.stopTickLocked()
	job.Status = StatusFailed
	job.Progress = 0
	job.ErrorMessage = msg
	job.FinishedAt = time.Now()
	c.revision++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Warn("job failed",
		zap.String("job_id", job.ID),
		zap.String("kind", core.ErrorKind(err)),
		zap.Error(err))
	c.record(Outcome{
		JobID:        job.ID,
		Origin:       job.Origin,
		SourceName:   sourceName,
		SampleID:     job.SampleID,
		Status:       StatusFailed,
		ErrorKind:    core.ErrorKind(err),
		ErrorMessage: msg,
		InputBytes:   inputBytes,
		Duration:     job.FinishedAt.Sub(job.StartedAt),
		FinishedAt:   job.FinishedAt,
	})
	c.notify(snap)
}

// discard drops the late outcome of a superseded job. Nothing is stored.
func (c *Controller) discard(job *Job, sourceName string, inputBytes, outputBytes int64) {
	now := time.Now()
	c.logger.Debug("discarded stale response",
		zap.String("job_id", job.ID),
		zap.Uint64("generation", job.Generation))
	c.record(Outcome{
		JobID:       job.ID,
		Origin:      job.Origin,
		SourceName:  sourceName,
		SampleID:    job.SampleID,
		Status:      StatusSuperseded,
		InputBytes:  inputBytes,
		OutputBytes: outputBytes,
		Duration:    now.Sub(job.StartedAt),
		FinishedAt:  now,
	})
}

// markAwaiting moves the job to StatusAwaitingResult once the upload has
// been written.
func (c *Controller) markAwaiting(gen uint64) {
	c.mu.Lock()
	if !c.currentLocked(gen) || c.job.Status != StatusUploading {
		c.mu.Unlock()
		return
	}
	c.job.Status = StatusAwaitingResult
	c.revision++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
}

func (c *Controller) stopTickLocked() {
	if c.stopTick != nil {
		c.stopTick()
		c.stopTick = nil
	}
}

func (c *Controller) record(o Outcome) {
	if c.history != nil {
		c.history.RecordOutcome(o)
	}
}

func (c *Controller) notify(snap DisplayState) {
	c.mu.Lock()
	fns := make([]func(DisplayState), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
