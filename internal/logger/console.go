// Package logger provides logging implementations for briefflow runs.
//
// The logger package offers leveled logging plus structured progress output at
// the run, task and review levels. Implementations are thread-safe and support
// console and file destinations.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/harrison/briefflow/internal/models"
)

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// ConsoleLogger logs run progress to a writer with timestamps and thread safety.
// All output is prefixed with [HH:MM:SS] timestamps for tracking execution flow.
// Color output is enabled automatically when the writer is a terminal.
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
	progress    map[string]*ProgressBar
}

// NewConsoleLogger creates a ConsoleLogger that writes to the provided io.Writer.
// If writer is nil, messages are silently discarded.
// Valid levels: trace, debug, info, warn, error (case-insensitive).
// If logLevel is empty or invalid, defaults to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
		progress:    make(map[string]*ProgressBar),
	}
}

// isTerminal reports whether w is a TTY that should receive colors.
// NO_COLOR disables colors through fatih/color.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	if color.NoColor {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// normalizeLogLevel converts a log level string to lowercase and validates it.
// Returns "info" as default for empty or invalid levels.
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))

	switch normalized {
	case "trace", "debug", "info", "warn", "error":
		return normalized
	default:
		return "info"
	}
}

// ValidLevel reports whether level names a known log level.
func ValidLevel(level string) bool {
	normalized := strings.ToLower(strings.TrimSpace(level))
	return normalized == normalizeLogLevel(normalized)
}

// logLevelToInt converts a log level string to its numeric value.
func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// shouldLog checks if a message at the given level should be logged.
func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

// LogTrace logs a trace-level message (most verbose).
func (cl *ConsoleLogger) LogTrace(format string, args ...interface{}) {
	cl.logWithLevel("TRACE", fmt.Sprintf(format, args...))
}

// LogDebug logs a debug-level message.
func (cl *ConsoleLogger) LogDebug(format string, args ...interface{}) {
	cl.logWithLevel("DEBUG", fmt.Sprintf(format, args...))
}

// LogInfo logs an info-level message.
// Format: "[HH:MM:SS] [INFO] <message>"
func (cl *ConsoleLogger) LogInfo(format string, args ...interface{}) {
	cl.logWithLevel("INFO", fmt.Sprintf(format, args...))
}

// LogWarn logs a warning-level message.
func (cl *ConsoleLogger) LogWarn(format string, args ...interface{}) {
	cl.logWithLevel("WARN", fmt.Sprintf(format, args...))
}

// LogError logs an error-level message.
func (cl *ConsoleLogger) LogError(format string, args ...interface{}) {
	cl.logWithLevel("ERROR", fmt.Sprintf(format, args...))
}

func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if cl.writer == nil || !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	if cl.colorOutput {
		cl.write(cl.formatWithColor(ts, level, message))
		return
	}
	cl.write(fmt.Sprintf("[%s] [%s] %s\n", ts, level, message))
}

// formatWithColor formats a log message with ANSI color codes.
func (cl *ConsoleLogger) formatWithColor(ts, level, message string) string {
	var coloredLevel string

	switch strings.ToUpper(level) {
	case "TRACE":
		coloredLevel = color.New(color.FgHiBlack).Sprint(level)
	case "DEBUG":
		coloredLevel = color.New(color.FgCyan).Sprint(level)
	case "INFO":
		coloredLevel = color.New(color.FgBlue).Sprint(level)
	case "WARN":
		coloredLevel = color.New(color.FgYellow).Sprint(level)
	case "ERROR":
		coloredLevel = color.New(color.FgRed).Sprint(level)
	default:
		coloredLevel = level
	}

	return fmt.Sprintf("[%s] [%s] %s\n", ts, coloredLevel, message)
}

// write must be called with the mutex held.
func (cl *ConsoleLogger) write(s string) {
	_, _ = io.WriteString(cl.writer, s)
}

// LogRunStart logs the start or resumption of a run at INFO level.
// Format: "[HH:MM:SS] Starting run <id> of <workflow>: <n> tasks"
func (cl *ConsoleLogger) LogRunStart(state *models.RunState, resumed bool) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	total := len(state.Results)
	counts := state.Counts()
	done := counts[models.StatusSucceeded]
	bar := NewProgressBar(total, 10, cl.colorOutput)
	bar.Update(done)
	cl.progress[state.RunID] = bar

	verb := "Starting"
	if resumed {
		verb = "Resuming"
	}
	workflow := state.Workflow
	if cl.colorOutput {
		workflow = color.New(color.Bold).Sprint(workflow)
	}

	msg := fmt.Sprintf("[%s] %s run %s of %s: %d tasks", timestamp(), verb, state.RunID, workflow, total)
	if resumed {
		msg += fmt.Sprintf(" (%d already succeeded)", done)
	}
	cl.write(msg + "\n")
}

// LogTaskStart logs a task entering running at DEBUG level.
func (cl *ConsoleLogger) LogTaskStart(runID string, task *models.TaskSpec) {
	cl.LogDebug("Task %s (%s) started", task.Name, task.TaskType)
}

// LogTaskResult logs the outcome of a task at INFO level, followed by the
// run's progress bar.
// Format: "[HH:MM:SS] Task <name>: <status> (<duration>)"
func (cl *ConsoleLogger) LogTaskResult(runID string, result models.TaskResult) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	status := string(result.Status)
	if cl.colorOutput {
		status = statusColor(result.Status).Sprint(strings.ToUpper(status))
	}

	line := fmt.Sprintf("[%s] Task %s: %s", ts, result.TaskName, status)
	if d := result.Duration(); d > 0 {
		line += fmt.Sprintf(" (%s)", formatDuration(d))
	}
	if result.Attempts > 1 {
		line += fmt.Sprintf(" after %d attempts", result.Attempts)
	}
	if result.Error != "" {
		line += ": " + result.Error
	}
	cl.write(line + "\n")

	if bar, ok := cl.progress[runID]; ok && result.Status.Terminal() {
		bar.Increment()
		cl.write(fmt.Sprintf("[%s] Progress: %s\n", ts, bar.Render()))
	}
}

// LogReviewPending logs an open checkpoint at INFO level with the command an
// operator uses to decide it.
func (cl *ConsoleLogger) LogReviewPending(cp *models.ReviewCheckpoint) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	label := "Review pending"
	if cl.colorOutput {
		label = color.New(color.FgYellow, color.Bold).Sprint(label)
	}
	ts := timestamp()
	cl.write(fmt.Sprintf("[%s] %s for task %s (checkpoint %s)\n", ts, label, cp.TaskName, cp.ID))
	cl.write(fmt.Sprintf("[%s]   decide with: briefflow review decide %s approve|modify|reject\n", ts, cp.ID))
}

// LogSummary logs the run summary with completion statistics at INFO level.
func (cl *ConsoleLogger) LogSummary(summary models.RunSummary) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	delete(cl.progress, summary.RunID)

	ts := timestamp()
	scheme := newColorScheme(cl.colorOutput)

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", ts, scheme.header.Sprint("=== Run Summary ==="))
	fmt.Fprintf(&b, "[%s] Run: %s (%s)\n", ts, summary.RunID, summary.Workflow)
	fmt.Fprintf(&b, "[%s] Status: %s\n", ts, runStatusColor(summary.Status, cl.colorOutput).Sprint(summary.Status))
	fmt.Fprintf(&b, "[%s] Total tasks: %d\n", ts, summary.Total)
	fmt.Fprintf(&b, "[%s] %s\n", ts, formatCount("Succeeded", summary.Succeeded, scheme.success))
	fmt.Fprintf(&b, "[%s] %s\n", ts, formatCount("Failed", summary.Failed, scheme.fail))
	fmt.Fprintf(&b, "[%s] %s\n", ts, formatCount("Skipped", summary.Skipped, scheme.warn))
	if summary.AwaitingReview > 0 {
		fmt.Fprintf(&b, "[%s] %s\n", ts, formatCount("Awaiting review", summary.AwaitingReview, scheme.warn))
	}
	if summary.Pending > 0 {
		fmt.Fprintf(&b, "[%s] Pending: %d\n", ts, summary.Pending)
	}
	fmt.Fprintf(&b, "[%s] Duration: %s\n", ts, formatDuration(summary.Duration))

	if len(summary.FailedTasks) > 0 {
		fmt.Fprintf(&b, "[%s] %s\n", ts, scheme.fail.Sprint("Failed tasks:"))
		for _, ft := range summary.FailedTasks {
			fmt.Fprintf(&b, "[%s]   - %s [%s]: %s\n", ts, scheme.fail.Sprint(ft.TaskName), ft.ErrorClass, ft.Error)
		}
	}

	cl.write(b.String())
}

// timestamp returns the current time formatted as "15:04:05" (HH:MM:SS).
func timestamp() string {
	return time.Now().Format("15:04:05")
}

// formatDuration converts a time.Duration to a human-readable string.
// Examples: "5s", "1m30s", "2h15m". Durations under a second keep milliseconds.
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		hours := d / time.Hour
		remainder := d % time.Hour
		if remainder == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		minutes := remainder / time.Minute
		remainder = remainder % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dh%dm", hours, minutes)
		}
		seconds := remainder / time.Second
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	case d >= time.Minute:
		minutes := d / time.Minute
		remainder := d % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		seconds := remainder / time.Second
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	}
}

// NoOpLogger discards all log messages.
// Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// NewNoOpLogger creates a NoOpLogger instance.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (n *NoOpLogger) LogRunStart(*models.RunState, bool) {}
func (n *NoOpLogger) LogTaskStart(string, *models.TaskSpec) {}
func (n *NoOpLogger) LogTaskResult(string, models.TaskResult) {}
func (n *NoOpLogger) LogReviewPending(*models.ReviewCheckpoint) {}
func (n *NoOpLogger) LogSummary(models.RunSummary) {}
func (n *NoOpLogger) LogDebug(string, ...interface{}) {}
func (n *NoOpLogger) LogInfo(string, ...interface{}) {}
func (n *NoOpLogger) LogWarn(string, ...interface{}) {}
func (n *NoOpLogger) LogError(string, ...interface{}) {}
