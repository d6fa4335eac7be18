package main

import (
	"errors"
	"fmt"
	"io"

	"nerase/core"
)

// exitStatus is returned by run when the app shut down cleanly but the
// process should still exit non-zero, e.g. after SIGINT.
type exitStatus int

func (e exitStatus) Error() string {
	return "stopped: " + core.ExitCodeName(int(e))
}

// shutdownResult folds the manager's exit code into run's error.
func shutdownResult(err error, code int) error {
	if err == nil && code != core.ExitCodeSuccess {
		return exitStatus(code)
	}
	return err
}

// exitCodeFor maps run's error to a process exit code and reports genuine
// failures on stderr.
func exitCodeFor(err error, stderr io.Writer) int {
	if err == nil {
		return core.ExitCodeSuccess
	}
	var status exitStatus
	if errors.As(err, &status) {
		return int(status)
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return core.ExitCodeError
}
