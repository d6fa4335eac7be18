package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// ParseEndpointURL parses raw as an absolute http or https endpoint.
// Credentials in the URL are rejected: the remove.bg key travels in a
// header, and anything in the URL would end up in logs.
func ParseEndpointURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("endpoint URL cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid URL format: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, fmt.Errorf("URL must use http or https scheme, got: %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("URL must include a host")
	}
	if u.User != nil {
		return nil, fmt.Errorf("URL must not embed credentials")
	}
	return u, nil
}
