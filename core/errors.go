package core

import (
	"errors"
	"fmt"
	"net/http"
)

// ConfigError represents a configuration-related error with actionable instructions.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // Actionable instruction for resolution
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes for configuration errors
const (
	ErrCodeInvalidConfig  = "INVALID_CONFIG"
	ErrCodeInvalidSamples = "INVALID_SAMPLES"
)

// ErrInvalidConfig returns an error for a configuration value that failed validation.
func ErrInvalidConfig(field, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidConfig,
		Message: fmt.Sprintf("Invalid configuration value %s: %s", field, reason),
		Action:  "Check the matching environment variable in your .env file",
	}
}

// ErrInvalidSamples returns an error for a sample catalog that cannot be used.
func ErrInvalidSamples(path, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidSamples,
		Message: fmt.Sprintf("Invalid sample catalog %s: %s", path, reason),
		Action:  "Fix SAMPLES_FILE or unset it to use the built-in samples",
	}
}

// IsConfigError checks if an error is a ConfigError and returns it if so
func IsConfigError(err error) (*ConfigError, bool) {
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr, true
	}
	return nil, false
}

// AcquisitionError reports that a remote sample's bytes could not be fetched.
// StatusCode is zero for transport failures.
type AcquisitionError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *AcquisitionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("Failed to fetch sample image: server responded %d %s",
			e.StatusCode, http.StatusText(e.StatusCode))
	}
	if e.Err != nil {
		return fmt.Sprintf("Failed to fetch sample image: %v", e.Err)
	}
	return "Failed to fetch sample image"
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// CapabilityError reports that the background-removal service call failed.
// Detail carries the service's own explanation when it sent one.
type CapabilityError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *CapabilityError) Error() string {
	msg := "Failed to remove background"
	switch {
	case e.StatusCode != 0 && e.Detail != "":
		return fmt.Sprintf("%s: %s (%d)", msg, e.Detail, e.StatusCode)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: service responded %d %s", msg, e.StatusCode, http.StatusText(e.StatusCode))
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", msg, e.Err)
	default:
		return msg
	}
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// ErrorKind classifies a job failure for logging and the history table.
func ErrorKind(err error) string {
	var acqErr *AcquisitionError
	var capErr *CapabilityError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &acqErr):
		return "acquisition"
	case errors.As(err, &capErr):
		return "capability"
	default:
		return "internal"
	}
}
