package core

import (
	"testing"
	"time"
)

func TestGetEnvOrDefault(t *testing.T) {
	const testKey = "TEST_GET_ENV_OR_DEFAULT"

	tests := []struct {
		name         string
		envValue     string
		setEnv       bool
		defaultValue string
		want         string
	}{
		{"returns env value when set", "custom_value", true, "default", "custom_value"},
		{"returns default when not set", "", false, "default", "default"},
		{"returns default when empty", "", true, "default", "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setEnv {
				t.Setenv(testKey, tt.envValue)
			}
			got := GetEnvOrDefault(testKey, tt.defaultValue)
			if got != tt.want {
				t.Errorf("GetEnvOrDefault() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseIntEnv(t *testing.T) {
	const testKey = "TEST_PARSE_INT_ENV"

	tests := []struct {
		name     string
		envValue string
		want     int
	}{
		{"valid integer", "42", 42},
		{"surrounding whitespace", " 7 ", 7},
		{"negative integer", "-3", -3},
		{"not a number", "abc", 5},
		{"empty", "", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(testKey, tt.envValue)
			if got := ParseIntEnv(testKey, 5); got != tt.want {
				t.Errorf("ParseIntEnv() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseBoolEnv(t *testing.T) {
	const testKey = "TEST_PARSE_BOOL_ENV"

	tests := []struct {
		envValue     string
		defaultValue bool
		want         bool
	}{
		{"true", false, true},
		{"YES", false, true},
		{"1", false, true},
		{"off", true, false},
		{"0", true, false},
		{"maybe", true, true},
		{"", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.envValue, func(t *testing.T) {
			t.Setenv(testKey, tt.envValue)
			if got := ParseBoolEnv(testKey, tt.defaultValue); got != tt.want {
				t.Errorf("ParseBoolEnv(%q) = %v, want %v", tt.envValue, got, tt.want)
			}
		})
	}
}

func TestParseDurationHelpers(t *testing.T) {
	t.Setenv("TEST_DURATION_SECONDS", "3")
	t.Setenv("TEST_DURATION_MILLIS", "250")

	if got := ParseDurationEnv("TEST_DURATION_SECONDS", 1); got != 3*time.Second {
		t.Errorf("ParseDurationEnv() = %v, want 3s", got)
	}
	if got := ParseMillisEnv("TEST_DURATION_MILLIS", 500); got != 250*time.Millisecond {
		t.Errorf("ParseMillisEnv() = %v, want 250ms", got)
	}
	if got := ParseMillisEnv("TEST_DURATION_UNSET", 500); got != 500*time.Millisecond {
		t.Errorf("ParseMillisEnv() default = %v, want 500ms", got)
	}

	t.Setenv("TEST_DURATION_SECONDS", "1m30s")
	if got := ParseDurationEnv("TEST_DURATION_SECONDS", 1); got != 90*time.Second {
		t.Errorf("ParseDurationEnv(1m30s) = %v, want 1m30s", got)
	}
	t.Setenv("TEST_DURATION_SECONDS", "soon")
	if got := ParseDurationEnv("TEST_DURATION_SECONDS", 7); got != 7*time.Second {
		t.Errorf("ParseDurationEnv(soon) = %v, want default 7s", got)
	}
}

func TestParseInt64Env(t *testing.T) {
	t.Setenv("TEST_PARSE_INT64_ENV", "10485760")
	if got := ParseInt64Env("TEST_PARSE_INT64_ENV", 1); got != 10485760 {
		t.Errorf("ParseInt64Env() = %d", got)
	}
	t.Setenv("TEST_PARSE_INT64_ENV", "10MB")
	if got := ParseInt64Env("TEST_PARSE_INT64_ENV", 1); got != 1 {
		t.Errorf("ParseInt64Env(10MB) = %d, want default", got)
	}
}
