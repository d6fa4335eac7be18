package webui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nerase/blobstore"
	"nerase/core"
	"nerase/db"
	"nerase/lifecycle"
	"nerase/logging"
	"nerase/metrics"
	"nerase/removebg"

	"go.uber.org/zap/zaptest"
)

var processedPNG = []byte("\x89PNG processed")

type fakeRemover struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeRemover) Remove(ctx context.Context, img removebg.Image, opts ...removebg.CallOption) (*removebg.Result, error) {
	f.mu.Lock()
	f.calls++
	err := f.err
	f.mu.Unlock()

	if hook := removebg.WroteRequestHook(opts...); hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return &removebg.Result{Data: processedPNG, ContentType: "image/png"}, nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	data  []byte
	err   error
}

func (f *fakeFetcher) DownloadBytes(ctx context.Context, url string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, "", f.err
	}
	return f.data, "image/jpeg", nil
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeHistory struct {
	records []db.JobRecord
	err     error
	limit   int
}

func (f *fakeHistory) Recent(ctx context.Context, limit int) ([]db.JobRecord, error) {
	f.limit = limit
	return f.records, f.err
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

type fixture struct {
	server     *Server
	controller *lifecycle.Controller
	blobs      *blobstore.Store
	remover    *fakeRemover
	fetcher    *fakeFetcher
}

type fixtureOption func(*ServerConfig, *Dependencies)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	return newFixtureWithSink(t, nil, opts...)
}

// newFixtureWithSink also hands sink to the controller as its outcome sink.
func newFixtureWithSink(t *testing.T, sink lifecycle.HistorySink, opts ...fixtureOption) *fixture {
	t.Helper()
	logger := logging.NewFromZap(zaptest.NewLogger(t))

	blobs := blobstore.New(blobstore.DefaultPrefix)
	remover := &fakeRemover{}
	fetcher := &fakeFetcher{data: testPNG(t, 640, 480)}

	controller, err := lifecycle.NewControllerWithConfig(lifecycle.Dependencies{
		Remover: remover,
		Fetcher: fetcher,
		Blobs:   blobs,
		History: sink,
		Logger:  logger,
	}, lifecycle.Config{ProgressInterval: time.Hour})
	if err != nil {
		t.Fatalf("NewControllerWithConfig: %v", err)
	}

	cfg := DefaultServerConfig()
	cfg.Port = 0
	deps := Dependencies{
		Lifecycle: controller,
		Blobs:     blobs,
		Logger:    logger,
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}

	server, err := NewServer(cfg, deps)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() {
		server.Shutdown(context.Background())
		controller.Close()
	})

	return &fixture{
		server:     server,
		controller: controller,
		blobs:      blobs,
		remover:    remover,
		fetcher:    fetcher,
	}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) waitForStatus(t *testing.T, want lifecycle.Status) lifecycle.DisplayState {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ds := f.controller.DisplayState(); ds.Status == want {
			return ds
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("status never became %s, last %+v", want, f.controller.DisplayState())
	return lifecycle.DisplayState{}
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func uploadRequest(t *testing.T, field, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	part.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error envelope %q: %v", rec.Body.String(), err)
	}
	if resp.Success {
		t.Error("error envelope should have success=false")
	}
	if resp.Message == "" {
		t.Error("error envelope should carry a message")
	}
	return resp
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	if _, err := NewServer(DefaultServerConfig(), Dependencies{}); err == nil {
		t.Error("expected error without lifecycle")
	}
	controller, _ := lifecycle.NewController(lifecycle.Dependencies{
		Remover: &fakeRemover{},
		Blobs:   blobstore.New(""),
	})
	defer controller.Close()
	if _, err := NewServer(DefaultServerConfig(), Dependencies{Lifecycle: controller}); err == nil {
		t.Error("expected error without blob store")
	}
}

func TestServer_Health(t *testing.T) {
	f := newFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestServer_HealthDegraded(t *testing.T) {
	f := newFixture(t, func(_ *ServerConfig, d *Dependencies) {
		d.Health = fakePinger{err: errors.New("database is locked")}
	})
	rec := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "degraded") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestServer_Version(t *testing.T) {
	f := newFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/version", nil))
	var info core.VersionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Version != core.Version {
		t.Errorf("version = %q, want %q", info.Version, core.Version)
	}
}

func TestServer_IndexAndAssets(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "NErase") {
		t.Error("index page should mention NErase")
	}

	rec = f.do(httptest.NewRequest(http.MethodGet, "/static/js/app.js", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET app.js status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/javascript") {
		t.Errorf("Content-Type = %q", ct)
	}

	rec = f.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /nope status = %d, want 404", rec.Code)
	}
}

func TestServer_StateStartsIdle(t *testing.T) {
	f := newFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/state", nil))

	var ds lifecycle.DisplayState
	if err := json.Unmarshal(rec.Body.Bytes(), &ds); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ds.Status != lifecycle.StatusIdle || !ds.ShowUploadPrompt || ds.ShowProgress {
		t.Errorf("unexpected idle state: %+v", ds)
	}
}

func TestServer_UploadProcessAndDownload(t *testing.T) {
	f := newFixture(t)
	original := testPNG(t, 8, 8)

	rec := f.do(uploadRequest(t, "image", "cat.png", "image/png", original))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("upload status = %d: %s", rec.Code, rec.Body.String())
	}

	ds := f.waitForStatus(t, lifecycle.StatusSucceeded)
	if !ds.ShowComparison || ds.DownloadURL != "/api/download" {
		t.Fatalf("unexpected succeeded state: %+v", ds)
	}

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/download", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), processedPNG) {
		t.Error("download should return the processed bytes")
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename=processed-image.png` {
		t.Errorf("Content-Disposition = %q", cd)
	}

	rec = f.do(httptest.NewRequest(http.MethodGet, ds.OriginalURL, nil))
	if rec.Code != http.StatusOK || !bytes.Equal(rec.Body.Bytes(), original) {
		t.Errorf("original handle: status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("original Content-Type = %q", ct)
	}
	rec = f.do(httptest.NewRequest(http.MethodGet, ds.ProcessedURL, nil))
	if rec.Code != http.StatusOK || !bytes.Equal(rec.Body.Bytes(), processedPNG) {
		t.Errorf("processed handle: status %d", rec.Code)
	}
}

func TestServer_UploadCapabilityFailure(t *testing.T) {
	f := newFixture(t)
	f.remover.err = &core.CapabilityError{StatusCode: http.StatusForbidden}

	rec := f.do(uploadRequest(t, "image", "cat.jpg", "image/jpeg", []byte("jpeg")))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("upload status = %d", rec.Code)
	}
	ds := f.waitForStatus(t, lifecycle.StatusFailed)
	if ds.ErrorMessage == "" || ds.ShowComparison {
		t.Errorf("unexpected failed state: %+v", ds)
	}

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/download", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("download after failure status = %d, want 404", rec.Code)
	}
}

func TestServer_UploadValidation(t *testing.T) {
	tests := []struct {
		name        string
		field       string
		filename    string
		contentType string
		data        []byte
		wantStatus  int
	}{
		{"text file", "image", "notes.txt", "text/plain", []byte("hello"), http.StatusUnsupportedMediaType},
		{"gif", "image", "anim.gif", "image/gif", []byte("GIF89a"), http.StatusUnsupportedMediaType},
		{"webp", "image", "pic.webp", "image/webp", []byte("RIFF"), http.StatusUnsupportedMediaType},
		{"wrong field", "file", "cat.png", "image/png", []byte("png"), http.StatusBadRequest},
		{"empty file", "image", "cat.png", "image/png", nil, http.StatusBadRequest},
		{"too large", "image", "big.png", "image/png", bytes.Repeat([]byte("x"), 2048), http.StatusRequestEntityTooLarge},
		{"octet-stream with jpg extension", "image", "photo.JPG", "application/octet-stream", []byte("jpeg"), http.StatusAccepted},
		{"image/jpg alias", "image", "photo", "image/jpg", []byte("jpeg"), http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(c *ServerConfig, _ *Dependencies) {
				c.MaxUploadBytes = 1024
			})
			rec := f.do(uploadRequest(t, tt.field, tt.filename, tt.contentType, tt.data))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus >= 400 {
				decodeError(t, rec)
				if ds := f.controller.DisplayState(); ds.Status != lifecycle.StatusIdle {
					t.Errorf("rejected upload reached the controller: %+v", ds)
				}
			}
		})
	}
}

func TestServer_UploadBodyOverLimit(t *testing.T) {
	f := newFixture(t, func(c *ServerConfig, _ *Dependencies) {
		c.MaxUploadBytes = 1024
	})
	huge := bytes.Repeat([]byte("x"), multipartSlack+4096)
	rec := f.do(uploadRequest(t, "image", "huge.png", "image/png", huge))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	resp := decodeError(t, rec)
	if !strings.Contains(resp.Message, "1.0 KiB") {
		t.Errorf("message should name the limit: %q", resp.Message)
	}
}

func TestServer_Samples(t *testing.T) {
	f := newFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/samples", nil))

	var resp struct {
		Samples []sampleView `json:"samples"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Samples) != 3 {
		t.Fatalf("got %d samples, want 3", len(resp.Samples))
	}
	for i, s := range resp.Samples {
		if s.ID != i+1 {
			t.Errorf("sample %d has id %d", i, s.ID)
		}
		if s.ThumbnailURL == "" || s.Title == "" {
			t.Errorf("incomplete sample view: %+v", s)
		}
	}
}

func TestServer_SelectSample(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/samples/2", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	ds := f.waitForStatus(t, lifecycle.StatusSucceeded)
	if ds.Origin != lifecycle.OriginRemoteSample {
		t.Errorf("origin = %q", ds.Origin)
	}
	if f.fetcher.count() != 1 {
		t.Errorf("fetcher called %d times", f.fetcher.count())
	}
}

func TestServer_SelectSampleErrors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/samples/99", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", rec.Code)
	}
	decodeError(t, rec)

	rec = f.do(httptest.NewRequest(http.MethodPost, "/api/samples/abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("non-numeric id status = %d, want 400", rec.Code)
	}

	if ds := f.controller.DisplayState(); ds.Status != lifecycle.StatusIdle {
		t.Errorf("failed selection changed state: %+v", ds)
	}
}

func TestServer_SampleThumbnail(t *testing.T) {
	f := newFixture(t)
	f.server.thumbnails = NewThumbnailCache(f.fetcher, 320)

	for i := 0; i < 2; i++ {
		rec := f.do(httptest.NewRequest(http.MethodGet, "/api/samples/1/thumbnail", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("Content-Type = %q", ct)
		}
		cfg, _, err := image.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
		if err != nil {
			t.Fatalf("decode thumbnail: %v", err)
		}
		if cfg.Width != 320 || cfg.Height != 240 {
			t.Errorf("thumbnail is %dx%d, want 320x240", cfg.Width, cfg.Height)
		}
	}
	if f.fetcher.count() != 1 {
		t.Errorf("sample fetched %d times, want 1", f.fetcher.count())
	}

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/samples/42/thumbnail", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown sample status = %d", rec.Code)
	}
}

func TestServer_SampleThumbnailFetchFailure(t *testing.T) {
	f := newFixture(t)
	f.fetcher.err = &core.AcquisitionError{URL: "x", StatusCode: http.StatusNotFound}
	f.server.thumbnails = NewThumbnailCache(f.fetcher, 0)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/samples/1/thumbnail", nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	decodeError(t, rec)
}

func TestServer_SampleThumbnailRedirectsWithoutCache(t *testing.T) {
	f := newFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/samples/3/thumbnail", nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	sample, _ := f.controller.Samples().Lookup(3)
	if loc := rec.Header().Get("Location"); loc != sample.URL {
		t.Errorf("Location = %q", loc)
	}
}

func TestServer_Reset(t *testing.T) {
	f := newFixture(t)
	f.do(uploadRequest(t, "image", "cat.png", "image/png", []byte("png")))
	ds := f.waitForStatus(t, lifecycle.StatusSucceeded)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/reset", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rec.Code)
	}
	var after lifecycle.DisplayState
	json.Unmarshal(rec.Body.Bytes(), &after)
	if after.Status != lifecycle.StatusIdle || after.OriginalURL != "" {
		t.Errorf("state after reset: %+v", after)
	}

	rec = f.do(httptest.NewRequest(http.MethodGet, ds.OriginalURL, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("released handle status = %d, want 404", rec.Code)
	}
	if f.blobs.Len() != 0 {
		t.Errorf("blob store holds %d handles after reset", f.blobs.Len())
	}
}

func TestServer_DownloadWithoutResult(t *testing.T) {
	f := newFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/download", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	decodeError(t, rec)
}

func TestServer_UnknownBlob(t *testing.T) {
	f := newFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/blobs/does-not-exist", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/upload", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/upload status = %d, want 405", rec.Code)
	}
	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/reset", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/reset status = %d, want 405", rec.Code)
	}
}

func TestServer_HistoryDisabled(t *testing.T) {
	f := newFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/history", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	decodeError(t, rec)
}

func TestServer_History(t *testing.T) {
	history := &fakeHistory{records: []db.JobRecord{
		{ID: 2, JobID: "b", Origin: "local", Status: "succeeded", InputBytes: 2048, OutputBytes: 1024, CreatedAt: time.Now()},
		{ID: 1, JobID: "a", Origin: "remote-sample", Status: "failed", ErrorKind: "acquisition", CreatedAt: time.Now()},
	}}
	f := newFixture(t, func(_ *ServerConfig, d *Dependencies) {
		d.History = history
	})

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/history?limit=500", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if history.limit != 100 {
		t.Errorf("limit passed = %d, want capped 100", history.limit)
	}

	var resp struct {
		Jobs []historyView `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Jobs) != 2 {
		t.Fatalf("got %d jobs", len(resp.Jobs))
	}
	if resp.Jobs[0].InputSize != "2.0 KiB" || resp.Jobs[0].OutputSize != "1.0 KiB" {
		t.Errorf("sizes = %q / %q", resp.Jobs[0].InputSize, resp.Jobs[0].OutputSize)
	}
	if resp.Jobs[1].ErrorKind != "acquisition" {
		t.Errorf("error kind = %q", resp.Jobs[1].ErrorKind)
	}

	f.do(httptest.NewRequest(http.MethodGet, "/api/history", nil))
	if history.limit != 20 {
		t.Errorf("default limit = %d, want 20", history.limit)
	}

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/history?limit=zero", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid limit status = %d", rec.Code)
	}

	history.err = errors.New("disk I/O error")
	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/history", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("failing history status = %d", rec.Code)
	}
}

func TestServer_StatsDisabled(t *testing.T) {
	f := newFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestServer_StatsFollowController(t *testing.T) {
	store := metrics.NewStore(metrics.DefaultStoreConfig(), time.Now())
	f := newFixtureWithSink(t, store, func(_ *ServerConfig, d *Dependencies) {
		d.Stats = store
	})

	if err := f.controller.SubmitSample(2); err != nil {
		t.Fatalf("SubmitSample: %v", err)
	}
	f.waitForStatus(t, lifecycle.StatusSucceeded)

	deadline := time.Now().Add(2 * time.Second)
	for store.JobMetrics().TotalSucceeded != 1 {
		if time.Now().After(deadline) {
			t.Fatal("outcome never reached the stats store")
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/stats?recent=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var snap metrics.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.System.Health != metrics.SystemHealthRunning {
		t.Errorf("health = %q", snap.System.Health)
	}
	if len(snap.Recent) != 1 || snap.Recent[0].Origin != string(lifecycle.OriginRemoteSample) {
		t.Errorf("recent = %+v", snap.Recent)
	}

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/stats?recent=-1", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative recent status = %d", rec.Code)
	}
}

func TestServer_RequestGate(t *testing.T) {
	var gated int32
	f := newFixture(t, func(_ *ServerConfig, d *Dependencies) {
		d.RequestGate = func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&gated, 1)
				http.Error(w, "closing", http.StatusServiceUnavailable)
			})
		}
	})

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/state", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("gated route status = %d", rec.Code)
	}
	rec = f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health should bypass the gate, status = %d", rec.Code)
	}
	if atomic.LoadInt32(&gated) != 1 {
		t.Errorf("gate saw %d requests, want 1", atomic.LoadInt32(&gated))
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	f := newFixture(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- f.server.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	if err := f.server.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}

func TestUploadContentType(t *testing.T) {
	tests := []struct {
		declared, filename string
		want               string
		ok                 bool
	}{
		{"image/png", "a.png", "image/png", true},
		{"image/jpeg", "a.jpg", "image/jpeg", true},
		{"image/jpg", "a", "image/jpeg", true},
		{"IMAGE/PNG", "a", "image/png", true},
		{"image/png; charset=binary", "a", "image/png", true},
		{"", "a.jpeg", "image/jpeg", true},
		{"application/octet-stream", "a.png", "image/png", true},
		{"", "a.gif", "", false},
		{"image/svg+xml", "a.svg", "", false},
		{"text/plain", "a.png", "", false},
	}
	for _, tt := range tests {
		got, ok := uploadContentType(tt.declared, tt.filename)
		if got != tt.want || ok != tt.ok {
			t.Errorf("uploadContentType(%q, %q) = %q, %v; want %q, %v",
				tt.declared, tt.filename, got, ok, tt.want, tt.ok)
		}
	}
}
