// Package acquire fetches remote sample images into memory.
//
// downloader.go implements the Downloader molecule used when the user picks
// one of the bundled samples instead of uploading a file.
//
// This molecule composes:
//   - core.Config: fetch timeout, size limit and TLS settings
//   - core.AcquisitionError: the single failure type callers see
package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"nerase/core"
)

// ErrTooLarge is wrapped in an AcquisitionError when the body exceeds MaxBytes.
var ErrTooLarge = errors.New("acquire: image exceeds size limit")

// Fetcher is implemented by Downloader and by test doubles.
type Fetcher interface {
	DownloadBytes(ctx context.Context, url string) ([]byte, string, error)
}

// Downloader downloads sample images.
//
// Thread Safety: Downloader is safe for concurrent use.
// Each download creates its own HTTP request.
type Downloader struct {
	client   *http.Client
	maxBytes int64
}

// DownloaderConfig holds configuration for the Downloader.
type DownloaderConfig struct {
	// HTTPClient is the HTTP client for downloads (optional)
	HTTPClient *http.Client

	// Timeout applies when HTTPClient is nil.
	// Default: 60 seconds
	Timeout time.Duration

	// MaxBytes caps the body size. Zero disables the check.
	MaxBytes int64
}

// DefaultDownloaderConfig returns sensible defaults for downloading images.
func DefaultDownloaderConfig() DownloaderConfig {
	return DownloaderConfig{
		Timeout:  60 * time.Second,
		MaxBytes: 10 * 1024 * 1024,
	}
}

// NewDownloader creates a Downloader from application config.
func NewDownloader(cfg *core.Config) (*Downloader, error) {
	if cfg == nil {
		return nil, fmt.Errorf("acquire: config cannot be nil")
	}
	return NewDownloaderWithConfig(DownloaderConfig{
		HTTPClient: core.GetHTTPClient(cfg, cfg.FetchTimeout),
		MaxBytes:   cfg.MaxFileSize,
	}), nil
}

// NewDownloaderWithConfig creates a downloader with explicit configuration.
func NewDownloaderWithConfig(cfg DownloaderConfig) *Downloader {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Downloader{
		client:   httpClient,
		maxBytes: cfg.MaxBytes,
	}
}

// DownloadBytes downloads url and returns the body and its Content-Type.
//
// Any failure, including a non-200 status, is returned as
// *core.AcquisitionError.
func (d *Downloader) DownloadBytes(ctx context.Context, url string) ([]byte, string, error) {
	fail := func(status int, err error) ([]byte, string, error) {
		return nil, "", &core.AcquisitionError{URL: url, StatusCode: status, Err: err}
	}

	if url == "" {
		return fail(0, fmt.Errorf("acquire: URL cannot be empty"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fail(0, fmt.Errorf("acquire: failed to create download request: %w", err))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fail(0, fmt.Errorf("acquire: failed to download image: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fail(resp.StatusCode, fmt.Errorf("acquire: download failed with status %d", resp.StatusCode))
	}

	var body io.Reader = resp.Body
	if d.maxBytes > 0 {
		if resp.ContentLength > d.maxBytes {
			return fail(0, ErrTooLarge)
		}
		body = io.LimitReader(resp.Body, d.maxBytes+1)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return fail(0, fmt.Errorf("acquire: failed to read image data: %w", err))
	}
	if d.maxBytes > 0 && int64(len(data)) > d.maxBytes {
		return fail(0, ErrTooLarge)
	}

	return data, resp.Header.Get("Content-Type"), nil
}

// FileName derives a display name for a downloaded sample: the last path
// segment of url when it has an image extension, otherwise a name built
// from contentType.
func FileName(url, contentType string) string {
	base := url
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	base = path.Base(base)
	if ext := strings.ToLower(path.Ext(base)); ext == ".png" || ext == ".jpg" || ext == ".jpeg" {
		return base
	}
	return "sample-image" + extensionFromContentType(contentType)
}

// NormalizeContentType strips parameters and falls back to image/jpeg, which
// is what the sample host serves.
func NormalizeContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType == "" {
		return "image/jpeg"
	}
	return mediaType
}

// extensionFromContentType returns the file extension for a given Content-Type.
func extensionFromContentType(contentType string) string {
	switch NormalizeContentType(contentType) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}
