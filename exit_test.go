package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"nerase/core"
)

func TestExitCodeFor(t *testing.T) {
	failure := errors.New("listen tcp :8080: address already in use")

	tests := []struct {
		name       string
		runErr     error
		code       int
		want       int
		wantStderr bool
	}{
		{"clean stop", nil, core.ExitCodeSuccess, core.ExitCodeSuccess, false},
		{"sigint", nil, core.ExitCodeSIGINT, core.ExitCodeSIGINT, false},
		{"sigterm", nil, core.ExitCodeSIGTERM, core.ExitCodeSIGTERM, false},
		{"run failed", failure, core.ExitCodeSuccess, core.ExitCodeError, true},
		{"run failed after signal", failure, core.ExitCodeSIGINT, core.ExitCodeError, true},
		{"wrapped status", fmt.Errorf("service: %w", exitStatus(core.ExitCodeSIGTERM)), core.ExitCodeSuccess, core.ExitCodeSIGTERM, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			got := exitCodeFor(shutdownResult(tt.runErr, tt.code), &stderr)
			if got != tt.want {
				t.Errorf("exit code = %d, want %d", got, tt.want)
			}
			if (stderr.Len() > 0) != tt.wantStderr {
				t.Errorf("stderr = %q", stderr.String())
			}
		})
	}
}

func TestExitStatus_Error(t *testing.T) {
	if got := exitStatus(core.ExitCodeSIGINT).Error(); got != "stopped: interrupted (SIGINT)" {
		t.Errorf("Error() = %q", got)
	}
}
