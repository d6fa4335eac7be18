package core

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// PrintBanner writes a short coloured startup summary. Secrets are never
// printed; the API key line only says whether one is configured.
func PrintBanner(w io.Writer, cfg *Config, samples int) {
	header := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.FgHiBlack)

	fmt.Fprintln(w)
	header.Fprintf(w, "━━━ NErase %s ━━━\n", VersionString())
	fmt.Fprintln(w)

	printLine(w, "listening", "http://"+cfg.ListenAddr(), true)
	printLine(w, "capability", cfg.RemoveBGURL, true)
	if cfg.HasAPIKey() {
		printLine(w, "api key", "configured", true)
	} else {
		printLine(w, "api key", "not set, requests will be rejected by the service", false)
	}
	printLine(w, "samples", fmt.Sprintf("%d available", samples), true)
	if cfg.HistoryEnabled() {
		printLine(w, "history", cfg.HistoryDB, true)
	} else {
		printLine(w, "history", "disabled", true)
	}

	fmt.Fprintln(w)
	dim.Fprintf(w, "  progress tick %v, step %d, cap %d%%\n", cfg.ProgressInterval, cfg.ProgressStep, cfg.ProgressCap)
	fmt.Fprintln(w)
}

func printLine(w io.Writer, name, value string, ok bool) {
	icon, clr := "✓", color.New(color.FgGreen)
	if !ok {
		icon, clr = "!", color.New(color.FgYellow)
	}
	clr.Fprintf(w, "  %s %-10s", icon, name)
	color.New(color.FgHiBlack).Fprintf(w, " %s\n", value)
}
