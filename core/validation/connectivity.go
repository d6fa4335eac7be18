package validation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"nerase/core"
)

// ConnectivityResult represents the result of a connectivity check.
type ConnectivityResult struct {
	Reachable  bool
	StatusCode int
	Message    string
	Latency    time.Duration
	Error      error
}

// ConnectivityChecker sends a HEAD request to see whether a server answers.
// Any HTTP response counts as reachable, including a 4xx from an endpoint
// that only accepts POST.
type ConnectivityChecker struct {
	timeout              time.Duration
	allowSelfSignedCerts bool
}

// NewConnectivityChecker creates a checker with a 10 second timeout.
func NewConnectivityChecker() *ConnectivityChecker {
	return &ConnectivityChecker{timeout: 10 * time.Second}
}

// WithTimeout sets the timeout for connectivity checks.
func (c *ConnectivityChecker) WithTimeout(timeout time.Duration) *ConnectivityChecker {
	c.timeout = timeout
	return c
}

// WithAllowSelfSignedCerts configures whether to allow self-signed certificates.
func (c *ConnectivityChecker) WithAllowSelfSignedCerts(allow bool) *ConnectivityChecker {
	c.allowSelfSignedCerts = allow
	return c
}

// CheckServerConnectivity validates serverURL and then tries to reach it.
func (c *ConnectivityChecker) CheckServerConnectivity(ctx context.Context, serverURL string) ConnectivityResult {
	endpoint, err := ParseEndpointURL(serverURL)
	if err != nil {
		return ConnectivityResult{Message: "Invalid URL format", Error: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint.String(), nil)
	if err != nil {
		return ConnectivityResult{Message: "Failed to create request", Error: err}
	}

	client := core.GetHTTPClient(&core.Config{AllowSelfSignedCerts: c.allowSelfSignedCerts}, c.timeout)
	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		var netErr net.Error
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return ConnectivityResult{
				Message: "Connection timed out",
				Latency: latency,
				Error:   fmt.Errorf("%s: no response after %v", serverURL, c.timeout),
			}
		}
		return ConnectivityResult{Message: "Connection failed", Latency: latency, Error: err}
	}
	resp.Body.Close()

	return ConnectivityResult{
		Reachable:  true,
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("Server reachable (status: %d)", resp.StatusCode),
		Latency:    latency,
	}
}
