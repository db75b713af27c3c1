// Package output renders live progress and the final summary of a run.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chess-vn/chessload/internal/performance/engine"
	"github.com/chess-vn/chessload/internal/performance/executor"
	"github.com/chess-vn/chessload/internal/performance/metrics"
)

// ANSI escape codes for cursor control
const (
	cursorUp  = "\033[%dA" // Move cursor up N lines
	clearLine = "\033[2K"  // Clear entire line

	// Box drawing characters
	boxHorizontal  = "━"
	boxVertical    = "│"
	boxTopLeft     = "┌"
	boxTopRight    = "┐"
	boxBottomLeft  = "└"
	boxBottomRight = "┘"

	// Progress bar characters
	progressFilled = "█"
	progressEmpty  = "░"
)

// LiveStats contains real-time statistics for display.
type LiveStats struct {
	// Progress tracking
	Progress  float64       // 0.0 to 1.0
	Elapsed   time.Duration // Time elapsed since test start
	Remaining time.Duration // Time left in the stages

	// VU stats
	ActiveVUs int
	TargetVUs int

	// Request stats
	CurrentRPS    float64
	TotalRequests int64
	Errors        int64
	ErrorRate     float64 // 0.0 to 1.0
	Iterations    int64

	// Latency stats
	LatencyP95 time.Duration
	LatencyAvg time.Duration

	// Phase info
	CurrentPhase string
	CurrentStage int // 1-indexed
	TotalStages  int
}

// ConsoleOutput manages console output during and after a run.
type ConsoleOutput struct {
	testName string
	writer   io.Writer
	isTTY    bool
	quiet    bool
	colors   *ColorScheme

	// State
	mu          sync.Mutex
	linesOutput int // Number of lines in the live display
}

// ConsoleOutputConfig contains configuration for ConsoleOutput.
type ConsoleOutputConfig struct {
	TestName string
	Writer   io.Writer
	Quiet    bool
	NoColor  bool

	ForceColors bool
	ForceTTY    bool
}

// NewConsoleOutput creates a new console output handler.
func NewConsoleOutput(config ConsoleOutputConfig) *ConsoleOutput {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}

	isTTY := config.ForceTTY || isTerminal(config.Writer)
	useColors := !config.NoColor && (config.ForceColors || (isTTY && supportsColors()))

	colors := NoColorScheme()
	if useColors {
		colors = DefaultColorScheme()
	}

	return &ConsoleOutput{
		testName: config.TestName,
		writer:   config.Writer,
		isTTY:    isTTY,
		quiet:    config.Quiet,
		colors:   colors,
	}
}

// IsTTY returns whether the output is a terminal.
func (c *ConsoleOutput) IsTTY() bool {
	return c.isTTY
}

// HeaderInfo describes the run for PrintHeader.
type HeaderInfo struct {
	BaseURL   string
	Endpoints []string
	Stages    []executor.Stage
	ThinkTime time.Duration
}

// PrintHeader prints the run header.
func (c *ConsoleOutput) PrintHeader(info HeaderInfo) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cfg := executor.Config{Stages: info.Stages}
	line := strings.Repeat(boxHorizontal, 56)

	c.writeln(c.colors.Rule.Sprint(line))
	c.writeln(c.colors.Title.Sprintf("%s - Running [%s]", c.testName, executor.TypeRampingVUs))
	c.writeln(c.colors.Rule.Sprint(line))

	baseURL := info.BaseURL
	if baseURL == "" {
		baseURL = c.colors.Warn.Sprint("(BASE_URL not set)")
	}
	c.writeln(fmt.Sprintf("Target:     %s", baseURL))
	c.writeln(fmt.Sprintf("Endpoints:  %s", strings.Join(info.Endpoints, " ")))
	c.writeln(fmt.Sprintf("Stages:     %s", formatStages(info.Stages)))
	c.writeln(fmt.Sprintf("Max VUs:    %d over %s, think-time %s",
		cfg.MaxVUs(), formatDuration(cfg.TotalDuration()), formatDuration(info.ThinkTime)))
	c.writeln("")
}

// Render shows stats as a redrawn block on a terminal, or one line otherwise.
func (c *ConsoleOutput) Render(stats *LiveStats) {
	if c.isTTY {
		c.Update(stats)
		return
	}
	c.PrintNonInteractiveUpdate(stats)
}

// Update redraws the live display with new statistics.
func (c *ConsoleOutput) Update(stats *LiveStats) {
	if c.quiet || !c.isTTY {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLive()

	lines := c.renderLiveStats(stats)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

// clearLive erases the previous live block. Callers hold c.mu.
func (c *ConsoleOutput) clearLive() {
	if c.linesOutput == 0 {
		return
	}

	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	c.linesOutput = 0
}

// renderLiveStats renders the live statistics display.
func (c *ConsoleOutput) renderLiveStats(stats *LiveStats) []string {
	var lines []string

	progressBar := renderProgressBar(stats.Progress, 40)
	timeInfo := fmt.Sprintf("%s / %s", formatDuration(stats.Elapsed), formatDuration(stats.Elapsed+stats.Remaining))

	lines = append(lines, fmt.Sprintf("Progress: %s %s | %s",
		c.colors.Progress.Sprint(progressBar),
		c.colors.Title.Sprintf("%.0f%%", stats.Progress*100),
		c.colors.Dim.Sprint(timeInfo)))

	phaseInfo := stats.CurrentPhase
	if stats.TotalStages > 0 {
		phaseInfo = fmt.Sprintf("%s (%d/%d)", stats.CurrentPhase, stats.CurrentStage, stats.TotalStages)
	}
	lines = append(lines, fmt.Sprintf("Stage:    %s", c.colors.Stage.Sprint(phaseInfo)))
	lines = append(lines, "")

	boxWidth := 55
	lines = append(lines, c.colors.Dim.Sprint(boxTopLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxTopRight))

	vusStr := fmt.Sprintf("VUs:     %s / %d", c.colors.Value.Sprint(stats.ActiveVUs), stats.TargetVUs)
	reqsStr := fmt.Sprintf("Requests:    %s", c.colors.Value.Sprint(formatNumber(stats.TotalRequests)))
	lines = append(lines, c.formatBoxRow(vusStr, reqsStr, boxWidth))

	errColor := c.colors.rate(stats.ErrorRate, 0.01, 0.02)
	rpsStr := fmt.Sprintf("RPS:     %s", c.colors.Success.Sprintf("%.1f", stats.CurrentRPS))
	errStr := fmt.Sprintf("Errors:      %s (%s)",
		errColor.Sprint(stats.Errors),
		errColor.Sprintf("%.1f%%", stats.ErrorRate*100))
	lines = append(lines, c.formatBoxRow(rpsStr, errStr, boxWidth))

	p95Str := fmt.Sprintf("P95:     %s", c.colors.Latency.Sprint(formatDurationShort(stats.LatencyP95)))
	avgStr := fmt.Sprintf("Avg:         %s", c.colors.Latency.Sprint(formatDurationShort(stats.LatencyAvg)))
	lines = append(lines, c.formatBoxRow(p95Str, avgStr, boxWidth))

	lines = append(lines, c.colors.Dim.Sprint(boxBottomLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxBottomRight))

	return lines
}

// formatBoxRow formats a row inside the stats box with two columns.
func (c *ConsoleOutput) formatBoxRow(left, right string, boxWidth int) string {
	colWidth := (boxWidth - 4) / 2 // 2 borders + 2 padding

	leftPadding := colWidth - visibleLen(left)
	if leftPadding < 0 {
		leftPadding = 0
	}
	rightPadding := colWidth - visibleLen(right)
	if rightPadding < 0 {
		rightPadding = 0
	}

	border := c.colors.Dim.Sprint(boxVertical)
	return fmt.Sprintf("%s %s%s%s %s%s %s",
		border,
		left, strings.Repeat(" ", leftPadding),
		border,
		right, strings.Repeat(" ", rightPadding),
		border)
}

// PrintNonInteractiveUpdate prints a one-line status update.
// Used when output is not a TTY (e.g., piped to a file or CI/CD).
func (c *ConsoleOutput) PrintNonInteractiveUpdate(stats *LiveStats) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln(fmt.Sprintf("[%s] Progress: %.0f%% | Stage: %s | VUs: %d/%d | Reqs: %d | RPS: %.1f | Errors: %d (%.1f%%) | P95: %s",
		formatDuration(stats.Elapsed),
		stats.Progress*100,
		stats.CurrentPhase,
		stats.ActiveVUs,
		stats.TargetVUs,
		stats.TotalRequests,
		stats.CurrentRPS,
		stats.Errors,
		stats.ErrorRate*100,
		formatDurationShort(stats.LatencyP95)))
}

// PrintSummary prints the final run summary.
func (c *ConsoleOutput) PrintSummary(result *engine.TestResult) {
	if c.quiet {
		if result.Passed {
			c.writeln(c.colors.Success.Sprint("PASSED"))
		} else {
			c.writeln(c.colors.Error.Sprint("FAILED"))
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isTTY {
		c.clearLive()
	}

	line := strings.Repeat(boxHorizontal, 56)
	status := c.colors.Success.Sprint("Completed ✓")
	if !result.Passed {
		status = c.colors.Error.Sprint("Failed ✗")
	}
	if result.Interrupted {
		status += " " + c.colors.Warn.Sprint("(interrupted)")
	}

	c.writeln("")
	c.writeln(c.colors.Rule.Sprint(line))
	c.writeln(fmt.Sprintf("%s - %s", c.colors.Title.Sprint(result.Name), status))
	c.writeln(c.colors.Rule.Sprint(line))
	c.writeln(c.colors.Dim.Sprintf("run %s", result.RunID))
	c.writeln("")

	c.writeln(fmt.Sprintf("Duration:      %s", c.colors.Value.Sprint(formatDuration(result.Duration))))
	if m := result.Metrics; m != nil {
		c.writeln(fmt.Sprintf("Total Reqs:    %s (%.1f/s)", c.colors.Value.Sprint(formatNumber(m.TotalRequests)), m.RPS))
		c.writeln(fmt.Sprintf("Iterations:    %s (%.2f/s)", c.colors.Value.Sprint(formatNumber(m.Iterations)), m.IterationRate))
		if result.Executor != nil {
			c.writeln(fmt.Sprintf("VUs:           max %s", c.colors.Value.Sprint(result.Executor.MaxVUs)))
		}
		c.writeln(fmt.Sprintf("Data Received: %s", c.colors.Value.Sprint(formatBytes(m.TotalBytes))))

		successRate := 1.0 - m.ErrorRate
		c.writeln(fmt.Sprintf("Success Rate:  %s",
			c.colors.rate(m.ErrorRate, 0.01, 0.05).Sprintf("%.1f%%", successRate*100)))
	}
	c.writeln("")

	if len(result.Checks) > 0 {
		c.writeln(c.colors.Heading.Sprint("Checks:"))
		width := 0
		for _, ch := range result.Checks {
			if len(ch.Name) > width {
				width = len(ch.Name)
			}
		}
		for _, ch := range result.Checks {
			c.writeln(fmt.Sprintf("  %s %-*s  %6.2f%%  %s %d  %s %d",
				c.colors.passIcon(ch.Fails == 0), width, ch.Name, ch.Rate()*100,
				c.colors.Success.Sprint("✓"), ch.Passes,
				c.colors.Error.Sprint("✗"), ch.Fails))
		}
		c.writeln("")
	}

	if m := result.Metrics; m != nil {
		c.writeln(c.colors.Heading.Sprint("Latency Distribution:"))
		c.writeln(fmt.Sprintf("  Avg:       %s", formatDurationShort(m.Latency.Mean)))
		c.writeln(fmt.Sprintf("  Min:       %s", formatDurationShort(m.Latency.Min)))
		c.writeln(fmt.Sprintf("  P50:       %s", formatDurationShort(m.Latency.P50)))
		c.writeln(fmt.Sprintf("  P90:       %s", formatDurationShort(m.Latency.P90)))
		c.writeln(fmt.Sprintf("  P95:       %s", formatDurationShort(m.Latency.P95)))
		c.writeln(fmt.Sprintf("  P99:       %s", formatDurationShort(m.Latency.P99)))
		c.writeln(fmt.Sprintf("  Max:       %s", formatDurationShort(m.Latency.Max)))
		c.writeln("")
	}

	if len(result.Endpoints) > 0 {
		c.writeln(c.colors.Heading.Sprint("Endpoints:"))
		for _, ep := range result.Endpoints {
			c.writeln(fmt.Sprintf("  %-16s %8s reqs  %6s failed  p95 %s",
				ep.Endpoint, formatNumber(ep.Requests), formatNumber(ep.Failed),
				formatDurationShort(ep.Latency.P95)))
		}
		c.writeln("")
	}

	if len(result.Thresholds) > 0 {
		c.writeln(c.colors.Heading.Sprint("Thresholds:"))
		for _, t := range result.Thresholds {
			c.writeln(fmt.Sprintf("  %s %s %s (actual: %s)", c.colors.passIcon(t.Passed), t.Metric, t.Expression, t.Value))
		}
		c.writeln("")
	}
}

// write writes to the output without a newline.
func (c *ConsoleOutput) write(s string) {
	fmt.Fprint(c.writer, s)
}

// writeln writes to the output with a newline.
func (c *ConsoleOutput) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

// StatsFromRun builds LiveStats from a metrics snapshot and executor stats.
// Either may be nil before the run has started.
func StatsFromRun(snapshot *metrics.Snapshot, stats *executor.Stats, progress float64) *LiveStats {
	live := &LiveStats{
		Progress:     progress,
		CurrentPhase: "initializing",
	}

	if stats != nil {
		live.TargetVUs = stats.TargetVUs
		live.ActiveVUs = stats.ActiveVUs
		live.TotalStages = stats.TotalStages
		live.CurrentStage = stats.CurrentStage + 1
		if live.CurrentStage > stats.TotalStages {
			live.CurrentStage = stats.TotalStages
		}
		live.Elapsed = stats.Elapsed
		if remaining := stats.TotalDuration - stats.Elapsed; remaining > 0 {
			live.Remaining = remaining
		}
	}

	if snapshot == nil {
		return live
	}

	live.CurrentRPS = snapshot.RPS
	live.TotalRequests = snapshot.TotalRequests
	live.Errors = snapshot.FailedRequests
	live.ErrorRate = snapshot.ErrorRate
	live.Iterations = snapshot.Iterations
	live.LatencyP95 = snapshot.Latency.P95
	live.LatencyAvg = snapshot.Latency.Mean
	live.CurrentPhase = string(snapshot.CurrentPhase)
	if stats == nil {
		live.ActiveVUs = snapshot.ActiveVUs
		live.Elapsed = snapshot.Elapsed
	}

	return live
}
