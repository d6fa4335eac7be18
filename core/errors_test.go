package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestConfigError_Error(t *testing.T) {
	err := ErrInvalidConfig("Port", "out of range")
	msg := err.Error()
	for _, want := range []string{"Port", "out of range", ".env"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, expected to contain %q", msg, want)
		}
	}

	bare := &ConfigError{Message: "just a message"}
	if bare.Error() != "just a message" {
		t.Errorf("Error() = %q, want bare message", bare.Error())
	}
}

func TestIsConfigError_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("startup: %w", ErrInvalidSamples("samples.yaml", "empty"))

	cfgErr, ok := IsConfigError(wrapped)
	if !ok {
		t.Fatal("IsConfigError() = false for wrapped ConfigError")
	}
	if cfgErr.Code != ErrCodeInvalidSamples {
		t.Errorf("Code = %s, want %s", cfgErr.Code, ErrCodeInvalidSamples)
	}

	if _, ok := IsConfigError(errors.New("plain")); ok {
		t.Error("IsConfigError() = true for plain error")
	}
}

func TestAcquisitionError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AcquisitionError
		want string
	}{
		{"status", &AcquisitionError{URL: "http://x", StatusCode: 404}, "404 Not Found"},
		{"transport", &AcquisitionError{URL: "http://x", Err: errors.New("connection refused")}, "connection refused"},
		{"empty", &AcquisitionError{}, "Failed to fetch sample image"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); !strings.Contains(got, tt.want) {
				t.Errorf("Error() = %q, expected to contain %q", got, tt.want)
			}
		})
	}
}

func TestCapabilityError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *CapabilityError
		want string
	}{
		{"status with detail", &CapabilityError{StatusCode: 403, Detail: "API Key invalid"}, "API Key invalid (403)"},
		{"status only", &CapabilityError{StatusCode: 500}, "500 Internal Server Error"},
		{"transport", &CapabilityError{Err: errors.New("dial tcp: timeout")}, "dial tcp: timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if !strings.HasPrefix(got, "Failed to remove background") {
				t.Errorf("Error() = %q, want generic prefix", got)
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("Error() = %q, expected to contain %q", got, tt.want)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")

	if !errors.Is(&AcquisitionError{Err: cause}, cause) {
		t.Error("AcquisitionError does not unwrap to its cause")
	}
	if !errors.Is(&CapabilityError{Err: cause}, cause) {
		t.Error("CapabilityError does not unwrap to its cause")
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&AcquisitionError{StatusCode: 500}, "acquisition"},
		{fmt.Errorf("wrapped: %w", &CapabilityError{StatusCode: 403}), "capability"},
		{errors.New("other"), "internal"},
	}

	for _, tt := range tests {
		if got := ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
