package core

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// lookupEnv parses the trimmed value of key with parse. Unset, blank and
// unparsable values all yield fallback.
func lookupEnv[T any](key string, fallback T, parse func(string) (T, error)) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := parse(raw)
	if err != nil {
		return fallback
	}
	return v
}

// GetEnvOrDefault returns the value of an environment variable or a default value.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// ParseIntEnv reads key as a base-10 int.
func ParseIntEnv(key string, defaultValue int) int {
	return lookupEnv(key, defaultValue, strconv.Atoi)
}

// ParseInt64Env reads key as a base-10 int64.
func ParseInt64Env(key string, defaultValue int64) int64 {
	return lookupEnv(key, defaultValue, func(s string) (int64, error) {
		return strconv.ParseInt(s, 10, 64)
	})
}

// ParseBoolEnv reads key as a switch. true/1/yes/on and false/0/no/off are
// recognised in any case.
func ParseBoolEnv(key string, defaultValue bool) bool {
	return lookupEnv(key, defaultValue, func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off":
			return false, nil
		}
		return false, strconv.ErrSyntax
	})
}

// ParseDurationEnv reads key as whole seconds, or as a Go duration such as
// "1m30s".
func ParseDurationEnv(key string, defaultSeconds int) time.Duration {
	return lookupEnv(key, time.Duration(defaultSeconds)*time.Second, func(s string) (time.Duration, error) {
		if n, err := strconv.Atoi(s); err == nil {
			return time.Duration(n) * time.Second, nil
		}
		return time.ParseDuration(s)
	})
}

// ParseMillisEnv reads key as whole milliseconds.
func ParseMillisEnv(key string, defaultMillis int) time.Duration {
	return time.Duration(ParseIntEnv(key, defaultMillis)) * time.Millisecond
}
