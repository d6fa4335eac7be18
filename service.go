// service.go lets NErase run under the platform service manager (Windows
// services, systemd, launchd) through github.com/kardianos/service.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"nerase/core"

	"github.com/kardianos/service"
)

// serviceStopTimeout bounds how long Stop waits for the app to exit.
const serviceStopTimeout = 35 * time.Second

// Program implements service.Interface around a run function.
type Program struct {
	run func(ctx context.Context) error

	cancel context.CancelFunc
	exit   chan struct{}
	err    error
}

// Start is called by the service manager and must not block.
func (p *Program) Start(s service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.exit = make(chan struct{})

	go func() {
		defer close(p.exit)
		p.err = p.run(ctx)
	}()
	return nil
}

// Stop cancels the run context and waits for a clean exit.
func (p *Program) Stop(s service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()

	select {
	case <-p.exit:
		var status exitStatus
		if errors.As(p.err, &status) {
			return nil
		}
		return p.err
	case <-time.After(serviceStopTimeout):
		return fmt.Errorf("timeout waiting for service to stop")
	}
}

// ServiceConfig describes the installed service.
func ServiceConfig() *service.Config {
	return &service.Config{
		Name:        "NErase",
		DisplayName: "NErase Background Removal",
		Description: "Serves the NErase page and forwards images to remove.bg",
		Option: service.KeyValue{
			"StartType": "automatic",
		},
	}
}

func newService(run func(ctx context.Context) error) (service.Service, error) {
	s, err := service.New(&Program{run: run}, ServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return s, nil
}

// RunAsService hands control to the service manager when the process was
// started by one. It returns false when running interactively.
func RunAsService(run func(ctx context.Context) error) (bool, error) {
	if service.Interactive() {
		return false, nil
	}
	s, err := newService(run)
	if err != nil {
		return false, err
	}
	if err := s.Run(); err != nil {
		return true, fmt.Errorf("service run failed: %w", err)
	}
	return true, nil
}

// PrintServiceUsage prints the service management commands.
func PrintServiceUsage(w io.Writer) {
	fmt.Fprintln(w, "NErase Service Management")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: nerase <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  install    Install NErase as a system service")
	fmt.Fprintln(w, "  uninstall  Remove the system service (alias: remove)")
	fmt.Fprintln(w, "  start      Start the service")
	fmt.Fprintln(w, "  stop       Stop the service")
	fmt.Fprintln(w, "  restart    Restart the service")
	fmt.Fprintln(w, "  status     Show the current service status")
	fmt.Fprintln(w, "  version    Print the build version")
	fmt.Fprintln(w, "  help       Show this help message")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run without arguments to start the server in the foreground.")
}

// serviceControls maps command names onto service.Control actions.
var serviceControls = map[string]string{
	"install":   "install",
	"uninstall": "uninstall",
	"remove":    "uninstall",
	"start":     "start",
	"stop":      "stop",
	"restart":   "restart",
}

// HandleServiceCommand handles args[1] when it names a management command.
// It reports whether a command was handled.
func HandleServiceCommand(args []string, out io.Writer, run func(ctx context.Context) error) (bool, error) {
	if len(args) < 2 {
		return false, nil
	}

	switch cmd := args[1]; cmd {
	case "help", "-h", "--help", "-help":
		PrintServiceUsage(out)
		return true, nil
	case "version", "--version", "-v":
		fmt.Fprintf(out, "NErase %s\n", core.VersionString())
		return true, nil
	case "status":
		s, err := newService(run)
		if err != nil {
			return true, err
		}
		status, err := s.Status()
		if err != nil {
			return true, fmt.Errorf("failed to get service status: %w", err)
		}
		fmt.Fprintln(out, describeStatus(status))
		return true, nil
	default:
		action, ok := serviceControls[cmd]
		if !ok {
			return false, nil
		}
		s, err := newService(run)
		if err != nil {
			return true, err
		}
		if err := service.Control(s, action); err != nil {
			return true, fmt.Errorf("failed to %s service: %w", action, err)
		}
		fmt.Fprintf(out, "Service %s: done\n", action)
		return true, nil
	}
}

func describeStatus(status service.Status) string {
	switch status {
	case service.StatusRunning:
		return "Service is running"
	case service.StatusStopped:
		return "Service is stopped"
	default:
		return "Service status unknown"
	}
}
