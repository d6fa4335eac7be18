package core

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultRemoveBGURL is the remove.bg endpoint used when REMOVE_BG_URL is not set.
const DefaultRemoveBGURL = "https://api.remove.bg/v1.0/removebg"

// Config holds all configuration values
type Config struct {
	// Background-removal capability
	RemoveBGAPIKey  string
	RemoveBGURL     string        `validate:"required,url"`
	RemoveBGTimeout time.Duration `validate:"gte=0"` // 0 means no client-side timeout

	// Sample acquisition
	FetchTimeout time.Duration `validate:"gt=0"`
	SamplesFile  string

	// Server Configuration
	Host                 string
	Port                 int   `validate:"gt=0,lt=65536"`
	MaxFileSize          int64 `validate:"gt=0"`
	AllowSelfSignedCerts bool
	SkipNetworkChecks    bool

	// Progress simulation
	ProgressInterval time.Duration `validate:"gt=0"`
	ProgressStep     int           `validate:"gt=0,lte=100"`
	ProgressCap      int           `validate:"gte=0,lt=100"`

	// Persistence and logging
	HistoryDB            string
	HistoryRetentionDays int    `validate:"gte=0"` // 0 keeps every record
	LogFile              string `validate:"required"`
	LogLevel             string `validate:"omitempty,oneof=debug info warn warning error fatal"`
	LogMaxSizeMB         int    `validate:"gte=0"`
	LogMaxBackups        int    `validate:"gte=0"`
	LogMaxAgeDays        int    `validate:"gte=0"`
	DevMode              bool
}

// LoadConfig loads configuration from environment variables with defaults that
// work out of the box. Nothing is strictly required: a missing API key is left
// for the capability to reject.
func LoadConfig() (*Config, error) {
	apiKey := os.Getenv("REMOVE_BG_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("VITE_REMOVE_BG_API_KEY") // Legacy frontend variable
	}

	cfg := &Config{
		RemoveBGAPIKey:  apiKey,
		RemoveBGURL:     GetEnvOrDefault("REMOVE_BG_URL", DefaultRemoveBGURL),
		RemoveBGTimeout: ParseDurationEnv("REMOVE_BG_TIMEOUT", 0),

		FetchTimeout: ParseDurationEnv("FETCH_TIMEOUT", 60),
		SamplesFile:  os.Getenv("SAMPLES_FILE"),

		Host:                 GetEnvOrDefault("HOST", "localhost"),
		Port:                 ParseIntEnv("PORT", 8080),
		MaxFileSize:          ParseInt64Env("MAX_FILE_SIZE", 10*1024*1024),
		AllowSelfSignedCerts: ParseBoolEnv("ALLOW_SELF_SIGNED_CERTS", false),
		SkipNetworkChecks:    ParseBoolEnv("SKIP_NETWORK_CHECKS", false),

		ProgressInterval: ParseMillisEnv("PROGRESS_INTERVAL_MS", 500),
		ProgressStep:     ParseIntEnv("PROGRESS_STEP", 10),
		ProgressCap:      ParseIntEnv("PROGRESS_CAP", 90),

		HistoryDB:            lookupEnvOrDefault("HISTORY_DB", "data/history.db"),
		HistoryRetentionDays: ParseIntEnv("HISTORY_RETENTION_DAYS", 30),
		LogFile:              GetEnvOrDefault("LOG_FILE", "nerase.log"),
		LogLevel:             os.Getenv("LOG_LEVEL"),
		LogMaxSizeMB:         ParseIntEnv("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups:        ParseIntEnv("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays:        ParseIntEnv("LOG_MAX_AGE_DAYS", 30),
		DevMode:              ParseBoolEnv("DEV_MODE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags on Config and converts the first failure
// into a ConfigError naming the offending field.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return ErrInvalidConfig(fe.Field(), fmt.Sprintf("failed %q check (value %v)", fe.Tag(), fe.Value()))
		}
		return fmt.Errorf("validate config: %w", err)
	}
	if c.ProgressCap < c.ProgressStep {
		return ErrInvalidConfig("ProgressCap", fmt.Sprintf("must be at least ProgressStep (%d)", c.ProgressStep))
	}
	return nil
}

// ListenAddr returns host:port for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HistoryEnabled reports whether finished jobs are written to the audit log.
func (c *Config) HistoryEnabled() bool {
	return c.HistoryDB != ""
}

// HasAPIKey reports whether a remove.bg key was supplied.
func (c *Config) HasAPIKey() bool {
	return c.RemoveBGAPIKey != ""
}

// GetHTTPClient returns an HTTP client configured with TLS settings based on AllowSelfSignedCerts.
// A zero timeout leaves the client without a deadline.
func GetHTTPClient(cfg *Config, timeout time.Duration) *http.Client {
	client := &http.Client{
		Timeout: timeout,
	}

	if cfg != nil && cfg.AllowSelfSignedCerts {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return client
}

// lookupEnvOrDefault differs from GetEnvOrDefault in that an explicitly empty
// variable is honoured, which is how HISTORY_DB is switched off.
func lookupEnvOrDefault(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}
