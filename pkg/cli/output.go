package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/devicelab-dev/geoprobe/pkg/core"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// colorsEnabled controls whether ANSI colors are used
var colorsEnabled = true

func init() {
	// Respect NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
		return
	}
	// Check if stdout is a terminal
	fd := os.Stdout.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		colorsEnabled = false
	}
}

// color returns the color code if colors are enabled, empty string otherwise
func color(c string) string {
	if colorsEnabled {
		return c
	}
	return ""
}

func formatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm %ds", mins, secs)
}

// statusLabel returns the colored marker and label for a status.
func statusLabel(s core.CheckStatus) (string, string) {
	switch s {
	case core.StatusPassed:
		return color(colorGreen), "✓ PASS"
	case core.StatusFailed:
		return color(colorRed), "✗ FAIL"
	case core.StatusErrored:
		return color(colorRed), "! ERR"
	case core.StatusSkipped:
		return color(colorCyan), "- SKIP"
	default:
		return color(colorGray), "…"
	}
}

// printCheckResult prints one finished check with its failures.
func printCheckResult(w io.Writer, r core.CheckResult) {
	c, _ := statusLabel(r.Status)
	mark := "✓"
	switch r.Status {
	case core.StatusFailed, core.StatusErrored:
		mark = "✗"
	case core.StatusSkipped:
		mark = "-"
	}
	worker := ""
	if r.Worker > 0 {
		worker = fmt.Sprintf(" [w%d]", r.Worker)
	}
	fmt.Fprintf(w, "  %s%s%s %s%s %s%s%s\n",
		c, mark, color(colorReset), r.Name, worker, color(colorGray), formatDuration(r.Duration), color(colorReset))

	for _, f := range r.Failures {
		fmt.Fprintf(w, "      %s%s%s\n", color(colorRed), f, color(colorReset))
	}
	if r.Status == core.StatusErrored && r.Error != "" {
		fmt.Fprintf(w, "      %s%s%s\n", color(colorRed), r.Error, color(colorReset))
	}
}

// printMeasurement prints the values probe measured.
func printMeasurement(w io.Writer, m core.Measurement) {
	if m.Location != nil {
		fmt.Fprintf(w, "  %-10s %s\n", "location", m.Location)
	}
	if m.InView != nil {
		fmt.Fprintf(w, "  %-10s %s\n", "inView", m.InView)
	}
	if m.Size != nil {
		fmt.Fprintf(w, "  %-10s %s\n", "size", m.Size)
	}
	if m.Window != nil {
		fmt.Fprintf(w, "  %-10s %s\n", "window", m.Window)
	}
}

// printSummary prints the per-suite table.
func printSummary(w io.Writer, results []*core.SuiteResult) {
	passed, failed, errored, skipped := 0, 0, 0, 0
	var total time.Duration
	for _, r := range results {
		passed += r.Passed
		failed += r.Failed
		errored += r.Errored
		skipped += r.Skipped
		total += r.Duration
	}

	fmt.Fprintln(w)
	if passed > 0 {
		fmt.Fprintf(w, "  %s%d checks passing%s (%s)\n", color(colorGreen), passed, color(colorReset), formatDuration(total))
	}
	if failed > 0 {
		fmt.Fprintf(w, "  %s%d checks failing%s\n", color(colorRed), failed, color(colorReset))
	}
	if errored > 0 {
		fmt.Fprintf(w, "  %s%d checks errored%s\n", color(colorRed), errored, color(colorReset))
	}
	if skipped > 0 {
		fmt.Fprintf(w, "  %s%d checks skipped%s\n", color(colorCyan), skipped, color(colorReset))
	}
	fmt.Fprintln(w)

	tableWidth := 84
	fmt.Fprintln(w, strings.Repeat("═", tableWidth))
	fmt.Fprintf(w, "  %-36s %6s %6s %6s %6s %6s %10s\n", "Suite", "Status", "Pass", "Fail", "Err", "Skip", "Duration")
	fmt.Fprintln(w, strings.Repeat("─", tableWidth))

	for _, r := range results {
		statusColor, status := statusLabel(r.Status)

		// Truncate name if too long
		name := r.Name
		if len(name) > 36 {
			name = name[:33] + "..."
		}

		fmt.Fprintf(w, "  %-36s %s%6s%s %6d %6d %6d %6d %10s\n",
			name, statusColor, status, color(colorReset),
			r.Passed, r.Failed, r.Errored, r.Skipped, formatDuration(r.Duration))
	}
	fmt.Fprintln(w, strings.Repeat("═", tableWidth))
}
