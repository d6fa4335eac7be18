package webui

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"nerase/blobstore"
	"nerase/core"
	"nerase/db"
	"nerase/lifecycle"
	"nerase/metrics"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// DownloadFileName is the attachment name of the processed image.
const DownloadFileName = "processed-image.png"

// uploadField is the multipart field carrying the image.
const uploadField = "image"

// multipartSlack covers boundaries and part headers on top of the file.
const multipartSlack = 64 * 1024

// Lifecycle is the part of lifecycle.Controller the handlers drive.
type Lifecycle interface {
	DisplayState() lifecycle.DisplayState
	SubmitLocalFile(file lifecycle.LocalFile) error
	SubmitSample(id int) error
	Reset()
	Result() (blobstore.Blob, bool)
	Subscribe(fn func(lifecycle.DisplayState)) (unsubscribe func())
	Samples() *core.SampleCatalog
}

// HistoryReader lists finished jobs. *db.HistoryRepository implements it.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]db.JobRecord, error)
}

// StatsReader reports in-memory job statistics. *metrics.Store implements it.
type StatsReader interface {
	Snapshot(recent int) metrics.Snapshot
}

// Pinger reports whether a dependency is reachable. *db.Database implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// errorResponse is the JSON envelope for every failed API call.
type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

type sampleView struct {
	ID           int    `json:"id"`
	Title        string `json:"title"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url"`
}

type historyView struct {
	db.JobRecord
	InputSize  string `json:"input_size"`
	OutputSize string `json:"output_size,omitempty"`
	Age        string `json:"age"`
}

// HandleHealth reports ok, or 503 when the history database is unreachable.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":  "ok",
		"clients": s.broadcaster.ClientCount(),
	}
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			resp["status"] = "degraded"
			resp["history"] = err.Error()
			s.writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp["history"] = "ok"
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// HandleVersion serves the build metadata.
func (s *Server) HandleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, core.GetVersionInfo())
}

// HandleState serves the current DisplayState.
func (s *Server) HandleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.lifecycle.DisplayState())
}

// HandleUpload accepts a PNG or JPEG in the "image" field and starts a job.
// Type and size are checked here so the controller only sees valid files.
func (s *Server) HandleUpload(w http.ResponseWriter, r *http.Request) {
	limit := s.config.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartSlack)

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, http.StatusRequestEntityTooLarge,
				"Image is larger than "+humanize.IBytes(uint64(limit)), err)
			return
		}
		s.writeError(w, http.StatusBadRequest, "Expected an image in the \""+uploadField+"\" field", err)
		return
	}
	defer file.Close()

	contentType, ok := uploadContentType(header.Header.Get("Content-Type"), header.Filename)
	if !ok {
		s.writeError(w, http.StatusUnsupportedMediaType, "Only PNG, JPG and JPEG images are supported", nil)
		return
	}
	if header.Size > limit {
		s.writeError(w, http.StatusRequestEntityTooLarge,
			"Image is larger than "+humanize.IBytes(uint64(limit)), nil)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Failed to read upload", err)
		return
	}
	if int64(len(data)) > limit {
		s.writeError(w, http.StatusRequestEntityTooLarge,
			"Image is larger than "+humanize.IBytes(uint64(limit)), nil)
		return
	}

	err = s.lifecycle.SubmitLocalFile(lifecycle.LocalFile{
		Name:        path.Base(header.Filename),
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.lifecycle.DisplayState())
}

// HandleSamples lists the sample gallery.
func (s *Server) HandleSamples(w http.ResponseWriter, r *http.Request) {
	samples := s.lifecycle.Samples().All()
	views := make([]sampleView, 0, len(samples))
	for _, sample := range samples {
		views = append(views, sampleView{
			ID:           sample.ID,
			Title:        sample.Title,
			URL:          sample.URL,
			ThumbnailURL: "/api/samples/" + strconv.Itoa(sample.ID) + "/thumbnail",
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"samples": views})
}

// HandleSelectSample starts a job for the sample named in the path.
func (s *Server) HandleSelectSample(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Sample id must be a number", err)
		return
	}
	if err := s.lifecycle.SubmitSample(id); err != nil {
		s.writeSubmitError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.lifecycle.DisplayState())
}

// HandleSampleThumbnail serves a scaled preview of a sample. Without a
// thumbnail cache it redirects to the sample itself.
func (s *Server) HandleSampleThumbnail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Sample id must be a number", err)
		return
	}
	sample, ok := s.lifecycle.Samples().Lookup(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "Unknown sample", nil)
		return
	}
	if s.thumbnails == nil {
		http.Redirect(w, r, sample.URL, http.StatusFound)
		return
	}

	data, err := s.thumbnails.Get(r.Context(), sample.URL)
	if err != nil {
		s.logger.Warn("thumbnail unavailable", zap.Int("sample_id", id), zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "Sample preview unavailable", err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// HandleReset returns the controller to idle.
func (s *Server) HandleReset(w http.ResponseWriter, r *http.Request) {
	s.lifecycle.Reset()
	s.writeJSON(w, http.StatusOK, s.lifecycle.DisplayState())
}

// HandleDownload serves the processed image as an attachment.
func (s *Server) HandleDownload(w http.ResponseWriter, r *http.Request) {
	blob, ok := s.lifecycle.Result()
	if !ok {
		s.writeError(w, http.StatusNotFound, "No processed image to download", nil)
		return
	}
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": DownloadFileName}))
	writeBlob(w, blob, "no-store")
}

// HandleBlob serves the bytes behind a handle URL.
func (s *Server) HandleBlob(w http.ResponseWriter, r *http.Request) {
	blob, ok := s.blobs.Get(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeBlob(w, blob, "private, max-age=3600")
}

// HandleHistory lists recent finished jobs, newest first.
func (s *Server) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "Job history is disabled", nil)
		return
	}

	limit := s.config.HistoryDefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive number", err)
			return
		}
		limit = n
	}
	if limit > s.config.HistoryMaxLimit {
		limit = s.config.HistoryMaxLimit
	}

	records, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read job history", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Failed to read job history", err)
		return
	}

	views := make([]historyView, 0, len(records))
	for _, rec := range records {
		v := historyView{
			JobRecord: rec,
			InputSize: humanize.IBytes(uint64(rec.InputBytes)),
			Age:       humanize.Time(rec.CreatedAt),
		}
		if rec.OutputBytes > 0 {
			v.OutputSize = humanize.IBytes(uint64(rec.OutputBytes))
		}
		views = append(views, v)
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": views})
}

// HandleStats serves job statistics since startup with the most recent
// outcomes.
func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		s.writeError(w, http.StatusNotFound, "Statistics are disabled", nil)
		return
	}

	recent := 10
	if v := r.URL.Query().Get("recent"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "recent must be zero or a positive number", err)
			return
		}
		recent = n
	}
	if recent > s.config.HistoryMaxLimit {
		recent = s.config.HistoryMaxLimit
	}
	s.writeJSON(w, http.StatusOK, s.stats.Snapshot(recent))
}

func (s *Server) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrUnknownSample):
		s.writeError(w, http.StatusNotFound, "Unknown sample", err)
	case errors.Is(err, lifecycle.ErrEmptyFile):
		s.writeError(w, http.StatusBadRequest, "The uploaded file is empty", err)
	case errors.Is(err, lifecycle.ErrClosed):
		s.writeError(w, http.StatusServiceUnavailable, "Server is shutting down", err)
	default:
		s.logger.Error("submit failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Failed to start processing", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug("failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := errorResponse{Success: false, Message: message}
	if err != nil {
		resp.Error = err.Error()
	}
	s.writeJSON(w, status, resp)
}

func writeBlob(w http.ResponseWriter, blob blobstore.Blob, cacheControl string) {
	ct := blob.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
	w.Header().Set("Cache-Control", cacheControl)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	w.Write(blob.Data)
}

// uploadContentType accepts PNG and JPEG. The declared part type wins; a
// missing or generic one falls back to the file extension.
func uploadContentType(declared, filename string) (string, bool) {
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil || mediaType == "" || mediaType == "application/octet-stream" {
		switch strings.ToLower(path.Ext(filename)) {
		case ".png":
			return "image/png", true
		case ".jpg", ".jpeg":
			return "image/jpeg", true
		default:
			return "", false
		}
	}

	switch strings.ToLower(mediaType) {
	case "image/png":
		return "image/png", true
	case "image/jpeg", "image/jpg":
		return "image/jpeg", true
	default:
		return "", false
	}
}
