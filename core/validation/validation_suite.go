// Package validation runs the startup checks printed before NErase begins
// serving: configuration, sample gallery, history storage and remove.bg
// reachability.
package validation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"nerase/core"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

// StepStatus is how a single check ended.
type StepStatus int

const (
	StepPassed StepStatus = iota
	StepWarning
	StepFailed
	StepSkipped
)

type statusStyle struct {
	label string
	icon  string
	attrs []color.Attribute
}

var statusStyles = map[StepStatus]statusStyle{
	StepPassed:  {"passed", "✓", []color.Attribute{color.FgGreen}},
	StepWarning: {"warning", "!", []color.Attribute{color.FgYellow}},
	StepFailed:  {"failed", "✗", []color.Attribute{color.FgRed}},
	StepSkipped: {"skipped", "○", []color.Attribute{color.FgHiBlack}},
}

func (s StepStatus) style() statusStyle {
	if st, ok := statusStyles[s]; ok {
		return st
	}
	return statusStyle{"unknown", "?", []color.Attribute{color.FgWhite}}
}

func (s StepStatus) String() string {
	return s.style().label
}

// Step is the result of one check. Warnings do not fail the suite; they
// flag things like a missing API key that remove.bg will reject later.
type Step struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
	Latency time.Duration
}

func passed(format string, args ...interface{}) Step {
	return Step{Status: StepPassed, Message: fmt.Sprintf(format, args...)}
}

func warning(message string, err error) Step {
	return Step{Status: StepWarning, Message: message, Error: err}
}

func failed(message string, err error) Step {
	return Step{Status: StepFailed, Message: message, Error: err}
}

func skipped(message string) Step {
	return Step{Status: StepSkipped, Message: message}
}

// SuiteResult collects the steps that ran. Success is false when any step
// failed.
type SuiteResult struct {
	Steps       []Step
	TotalSteps  int
	PassedSteps int
	FailedSteps int
	Warnings    int
	Duration    time.Duration
	Success     bool
}

func (r *SuiteResult) add(step Step) {
	r.Steps = append(r.Steps, step)
	r.TotalSteps++
	switch step.Status {
	case StepPassed:
		r.PassedSteps++
	case StepWarning:
		r.Warnings++
	case StepFailed:
		r.FailedSteps++
	}
	r.Success = r.FailedSteps == 0
}

// ValidationSuite composes the individual checks and prints their progress.
type ValidationSuite struct {
	output              io.Writer
	connectivityChecker *ConnectivityChecker
	minHistoryFree      int64
	showProgress        bool
	failFast            bool
	skipNetwork         bool
}

// NewValidationSuite creates a suite that prints to stdout.
func NewValidationSuite() *ValidationSuite {
	return &ValidationSuite{
		output:              os.Stdout,
		connectivityChecker: NewConnectivityChecker().WithTimeout(5 * time.Second),
		minHistoryFree:      MinHistoryFreeBytes,
		showProgress:        true,
	}
}

// WithOutput sets the output writer for progress messages.
func (s *ValidationSuite) WithOutput(w io.Writer) *ValidationSuite {
	s.output = w
	return s
}

// WithTimeout sets the timeout for network checks.
func (s *ValidationSuite) WithTimeout(timeout time.Duration) *ValidationSuite {
	s.connectivityChecker.WithTimeout(timeout)
	return s
}

// WithShowProgress enables or disables progress output.
func (s *ValidationSuite) WithShowProgress(show bool) *ValidationSuite {
	s.showProgress = show
	return s
}

// WithFailFast stops validation on first failure if enabled.
func (s *ValidationSuite) WithFailFast(failFast bool) *ValidationSuite {
	s.failFast = failFast
	return s
}

// WithSkipNetwork skips the remove.bg reachability check.
func (s *ValidationSuite) WithSkipNetwork(skip bool) *ValidationSuite {
	s.skipNetwork = skip
	return s
}

// WithMinHistoryFree overrides MinHistoryFreeBytes.
func (s *ValidationSuite) WithMinHistoryFree(bytes int64) *ValidationSuite {
	s.minHistoryFree = bytes
	return s
}

// Validate runs every check against cfg in order.
func (s *ValidationSuite) Validate(ctx context.Context, cfg *core.Config) SuiteResult {
	start := time.Now()
	s.printHeader("NErase Startup Checks")

	checks := []struct {
		name string
		fn   func() Step
	}{
		{"Configuration", func() Step { return s.checkConfig(cfg) }},
		{"API Key", func() Step { return s.checkAPIKey(cfg) }},
		{"Sample Gallery", func() Step { return s.checkSamples(cfg) }},
		{"History Storage", func() Step { return s.checkHistoryStorage(cfg) }},
		{"remove.bg Connectivity", func() Step { return s.checkConnectivity(ctx, cfg) }},
	}

	result := SuiteResult{Success: true}
	for _, check := range checks {
		step := s.runStep(check.name, check.fn)
		result.add(step)
		if s.failFast && step.Status == StepFailed {
			break
		}
	}
	result.Duration = time.Since(start)

	s.printSummary(result)
	return result
}

func (s *ValidationSuite) checkConfig(cfg *core.Config) Step {
	if cfg == nil {
		return failed("No configuration loaded", fmt.Errorf("config is nil"))
	}
	if err := cfg.Validate(); err != nil {
		return failed("Invalid settings", err)
	}
	return passed("listening on %s", cfg.ListenAddr())
}

func (s *ValidationSuite) checkAPIKey(cfg *core.Config) Step {
	if cfg == nil {
		return skipped("No configuration loaded")
	}
	if !cfg.HasAPIKey() {
		return warning("REMOVE_BG_API_KEY is not set; remove.bg will reject every request", nil)
	}
	return passed("configured")
}

func (s *ValidationSuite) checkSamples(cfg *core.Config) Step {
	if cfg == nil {
		return skipped("No configuration loaded")
	}
	if cfg.SamplesFile != "" {
		if err := CheckFileExists(cfg.SamplesFile); err != nil {
			return failed("Samples file unavailable", err)
		}
	}
	catalog, err := core.LoadSampleCatalog(cfg.SamplesFile)
	if err != nil {
		return failed("Samples file is invalid", err)
	}
	if cfg.SamplesFile == "" {
		return passed("%d built-in samples", catalog.Len())
	}
	return passed("%d samples from %s", catalog.Len(), cfg.SamplesFile)
}

func (s *ValidationSuite) checkHistoryStorage(cfg *core.Config) Step {
	if cfg == nil || !cfg.HistoryEnabled() {
		return skipped("Job history disabled")
	}
	dir := filepath.Dir(cfg.HistoryDB)
	info, err := CheckDiskSpace(dir, s.minHistoryFree)
	if err != nil {
		var short *DiskSpaceError
		if errors.As(err, &short) {
			return failed("Not enough free space for the history database", err)
		}
		return warning("Could not determine free space", err)
	}
	return passed("%s free at %s", humanize.IBytes(uint64(info.Free)), info.Path)
}

func (s *ValidationSuite) checkConnectivity(ctx context.Context, cfg *core.Config) Step {
	if cfg == nil {
		return skipped("No configuration loaded")
	}
	if s.skipNetwork {
		return skipped("Network checks disabled")
	}
	s.connectivityChecker.WithAllowSelfSignedCerts(cfg.AllowSelfSignedCerts)
	result := s.connectivityChecker.CheckServerConnectivity(ctx, cfg.RemoveBGURL)
	if !result.Reachable {
		// Starting offline is allowed; uploads will fail until the network returns.
		return warning(result.Message, result.Error)
	}
	return passed("%s (latency: %v)", result.Message, result.Latency.Round(time.Millisecond))
}

// runStep times fn and prints its line.
func (s *ValidationSuite) runStep(name string, fn func() Step) Step {
	if s.showProgress {
		fmt.Fprintf(s.output, "  ◌ %s...", name)
	}

	start := time.Now()
	step := fn()
	step.Name = name
	step.Latency = time.Since(start)

	s.printStep(step)
	return step
}

func (s *ValidationSuite) printHeader(title string) {
	if !s.showProgress {
		return
	}
	color.New(color.FgCyan, color.Bold).Fprintf(s.output, "\n━━━ %s ━━━\n\n", title)
}

func (s *ValidationSuite) printStep(step Step) {
	if !s.showProgress {
		return
	}
	st := step.Status.style()
	clr := color.New(st.attrs...)

	// \r rewinds over the in-progress line.
	clr.Fprintf(s.output, "\r  %s %s", st.icon, step.Name)
	if step.Message != "" {
		color.New(color.FgHiBlack).Fprintf(s.output, " - %s", step.Message)
	}
	fmt.Fprintln(s.output)

	if step.Error != nil && step.Status != StepSkipped {
		clr.Fprintf(s.output, "    └─ %v\n", step.Error)
	}
}

func (s *ValidationSuite) printSummary(result SuiteResult) {
	if !s.showProgress {
		return
	}
	verdict, clr := "Checks Passed", color.New(color.FgGreen, color.Bold)
	if !result.Success {
		verdict, clr = "Checks Failed", color.New(color.FgRed, color.Bold)
	}
	fmt.Fprintln(s.output)
	clr.Fprintf(s.output, "━━━ %s ", verdict)
	color.New(color.FgHiBlack).Fprintf(s.output, "(%s)", result.counts())
	clr.Fprintln(s.output, " ━━━")
	fmt.Fprintln(s.output)
}

func (r SuiteResult) counts() string {
	parts := []string{fmt.Sprintf("%d/%d checks passed", r.PassedSteps, r.TotalSteps)}
	if r.FailedSteps > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", r.FailedSteps))
	}
	if r.Warnings > 0 {
		parts = append(parts, fmt.Sprintf("%d warnings", r.Warnings))
	}
	return strings.Join(parts, ", ") + ", " + r.Duration.Round(time.Millisecond).String()
}

// GetFirstError returns the first failed step's error prefixed with the
// step name, or nil.
func (r SuiteResult) GetFirstError() error {
	for _, step := range r.Steps {
		if step.Status == StepFailed && step.Error != nil {
			return fmt.Errorf("%s: %w", step.Name, step.Error)
		}
	}
	return nil
}

// Summary is a one-line description of the run.
func (r SuiteResult) Summary() string {
	verdict := "Validation Passed"
	if !r.Success {
		verdict = "Validation Failed"
	}
	return verdict + ": " + r.counts()
}
