// Package removebg talks to the remove.bg background-removal API.
//
// client.go implements the Client molecule: it sends one image as a
// multipart upload and returns the processed PNG bytes.
//
// This molecule composes:
//   - core.Config: endpoint, API key and TLS settings
//   - core.CapabilityError: the single failure type callers see
//   - net/http/httptrace: to report when the upload has been written
package removebg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptrace"
	"net/textproto"
	"sync"
	"time"

	"nerase/core"
)

const (
	// FormField is the multipart field remove.bg reads the image from.
	FormField = "image_file"

	// HeaderAPIKey carries the account key.
	HeaderAPIKey = "X-Api-Key"

	// maxErrorBody bounds how much of a failed response is read for details.
	maxErrorBody = 64 * 1024
)

// Image is the input to a background-removal call.
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

// Result is the processed image returned by the service.
type Result struct {
	Data        []byte
	ContentType string
}

// Remover is implemented by Client and by test doubles.
type Remover interface {
	Remove(ctx context.Context, img Image, opts ...CallOption) (*Result, error)
}

// CallOption customises a single Remove call.
type CallOption func(*callOptions)

type callOptions struct {
	onWroteRequest func()
}

// OnWroteRequest registers fn to run once the request body has been fully
// written to the connection. It may not fire if the transport fails early.
func OnWroteRequest(fn func()) CallOption {
	return func(o *callOptions) {
		o.onWroteRequest = fn
	}
}

// WroteRequestHook returns the function registered with OnWroteRequest, or
// nil. Remover implementations other than Client use it to honour the hook.
func WroteRequestHook(opts ...CallOption) func() {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o.onWroteRequest
}

// Client calls the remove.bg endpoint.
//
// Thread Safety: Client is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

// ClientConfig holds configuration for the Client.
type ClientConfig struct {
	// Endpoint is the removebg URL.
	// Default: https://api.remove.bg/v1.0/removebg
	Endpoint string

	// APIKey is sent as X-Api-Key. An empty key is sent as-is and rejected
	// by the service.
	APIKey string

	// HTTPClient is used for the call (optional).
	HTTPClient *http.Client

	// Timeout applies when HTTPClient is nil. Zero means no timeout.
	Timeout time.Duration
}

// DefaultClientConfig returns the public remove.bg endpoint with no timeout.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Endpoint: core.DefaultRemoveBGURL,
	}
}

// NewClient creates a Client from application config.
func NewClient(cfg *core.Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("removebg: config cannot be nil")
	}
	return NewClientWithConfig(ClientConfig{
		Endpoint:   cfg.RemoveBGURL,
		APIKey:     cfg.RemoveBGAPIKey,
		HTTPClient: core.GetHTTPClient(cfg, cfg.RemoveBGTimeout),
	})
}

// NewClientWithConfig creates a Client with explicit configuration.
func NewClientWithConfig(cfg ClientConfig) (*Client, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = core.DefaultRemoveBGURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		httpClient: httpClient,
		endpoint:   endpoint,
		apiKey:     cfg.APIKey,
	}, nil
}

// Endpoint returns the configured URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Remove uploads img and returns the processed bytes.
//
// Every failure is returned as *core.CapabilityError: non-2xx responses
// carry the status and, when the body has one, the service's own message.
func (c *Client) Remove(ctx context.Context, img Image, opts ...CallOption) (*Result, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	if len(img.Data) == 0 {
		return nil, &core.CapabilityError{Err: fmt.Errorf("removebg: image is empty")}
	}

	body, contentType, err := encodeForm(img)
	if err != nil {
		return nil, &core.CapabilityError{Err: err}
	}

	if o.onWroteRequest != nil {
		var once sync.Once
		ctx = httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
			WroteRequest: func(info httptrace.WroteRequestInfo) {
				if info.Err == nil {
					once.Do(o.onWroteRequest)
				}
			},
		})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, &core.CapabilityError{Err: fmt.Errorf("removebg: failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(HeaderAPIKey, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &core.CapabilityError{Err: fmt.Errorf("removebg: request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := errorDetail(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &core.CapabilityError{StatusCode: resp.StatusCode, Detail: detail}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &core.CapabilityError{Err: fmt.Errorf("removebg: failed to read response: %w", err)}
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "image/png"
	}
	return &Result{Data: data, ContentType: ct}, nil
}

// encodeForm builds the multipart body with the image under FormField.
// The part keeps the caller's content type instead of octet-stream.
func encodeForm(img Image) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	name := img.Name
	if name == "" {
		name = "image"
	}
	ct := img.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FormField, name))
	header.Set("Content-Type", ct)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("removebg: create form file: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", fmt.Errorf("removebg: write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("removebg: close form: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

type errorResponse struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Code   string `json:"code"`
	} `json:"errors"`
}

// errorDetail extracts the first error title from a remove.bg error body.
// Bodies that are not in that shape yield "".
func errorDetail(r io.Reader) string {
	var parsed errorResponse
	if err := json.NewDecoder(r).Decode(&parsed); err != nil || len(parsed.Errors) == 0 {
		return ""
	}
	first := parsed.Errors[0]
	if first.Title != "" {
		return first.Title
	}
	return first.Detail
}
