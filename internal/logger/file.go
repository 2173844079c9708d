package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harrison/briefflow/internal/models"
)

// DefaultLogDir is where run logs go when no log_dir is configured.
var DefaultLogDir = filepath.Join(".briefflow", "logs")

// FileLogger logs orchestrator events to files under a log directory.
// It creates a timestamped log file per process, a detail file per task
// result under tasks/<run-id>/, and keeps a latest.log symlink pointing to the
// most recent run log. It is thread-safe and implements executor.Logger.
type FileLogger struct {
	logDir   string
	runLog   *os.File
	runFile  string
	tasksDir string
	logLevel string
	mu       sync.Mutex
}

// NewFileLogger creates a FileLogger in DefaultLogDir at info level.
func NewFileLogger() (*FileLogger, error) {
	return NewFileLoggerWithDirAndLevel(DefaultLogDir, "info")
}

// NewFileLoggerWithDirAndLevel creates a FileLogger with a custom log directory and log level.
func NewFileLoggerWithDirAndLevel(logDir string, logLevel string) (*FileLogger, error) {
	if logDir == "" {
		logDir = DefaultLogDir
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	tasksDir := filepath.Join(logDir, "tasks")
	if err := os.MkdirAll(tasksDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create tasks directory: %w", err)
	}

	// run-YYYYMMDD-HHMMSS.log
	timestamp := time.Now().Format("20060102-150405")
	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", timestamp))

	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	symlinkPath := filepath.Join(logDir, "latest.log")
	if _, err := os.Lstat(symlinkPath); err == nil {
		if err := os.Remove(symlinkPath); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}
	if err := os.Symlink(filepath.Base(runFile), symlinkPath); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create symlink: %w", err)
	}

	logger := &FileLogger{
		logDir:   logDir,
		runLog:   file,
		runFile:  runFile,
		tasksDir: tasksDir,
		logLevel: normalizeLogLevel(logLevel),
	}

	logger.writeRunLog("=== briefflow run log ===\n")
	logger.writeRunLog(fmt.Sprintf("Started at: %s\n\n", time.Now().Format(time.RFC3339)))

	return logger, nil
}

// RunFile returns the path of the current run log.
func (fl *FileLogger) RunFile() string {
	return fl.runFile
}

func (fl *FileLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(fl.logLevel)
}

// LogDebug logs a debug-level message.
func (fl *FileLogger) LogDebug(format string, args ...interface{}) {
	fl.logWithLevel("DEBUG", fmt.Sprintf(format, args...))
}

// LogInfo logs an info-level message.
func (fl *FileLogger) LogInfo(format string, args ...interface{}) {
	fl.logWithLevel("INFO", fmt.Sprintf(format, args...))
}

// LogWarn logs a warning-level message.
func (fl *FileLogger) LogWarn(format string, args ...interface{}) {
	fl.logWithLevel("WARN", fmt.Sprintf(format, args...))
}

// LogError logs an error-level message.
func (fl *FileLogger) LogError(format string, args ...interface{}) {
	fl.logWithLevel("ERROR", fmt.Sprintf(format, args...))
}

func (fl *FileLogger) logWithLevel(level string, message string) {
	if !fl.shouldLog(strings.ToLower(level)) {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] [%s] %s\n", timestamp(), level, message))
}

// LogRunStart logs the start of a run at INFO level.
func (fl *FileLogger) LogRunStart(state *models.RunState, resumed bool) {
	if !fl.shouldLog("info") {
		return
	}

	verb := "Starting"
	if resumed {
		verb = "Resuming"
	}
	fl.writeRunLog(fmt.Sprintf(
		"[%s] %s run %s of %s: %d tasks (fingerprint %s)\n",
		timestamp(), verb, state.RunID, state.Workflow, len(state.Results), shortFingerprint(state.Fingerprint),
	))
}

// LogTaskStart logs a task entering running at DEBUG level.
func (fl *FileLogger) LogTaskStart(runID string, task *models.TaskSpec) {
	fl.LogDebug("Task %s (%s) started, depends on [%s]", task.Name, task.TaskType, strings.Join(task.DependsOn, ", "))
}

// LogTaskResult writes a one-line outcome to the run log and the full result,
// artifact included, to tasks/<run-id>/<task>.log.
func (fl *FileLogger) LogTaskResult(runID string, result models.TaskResult) {
	if fl.shouldLog("info") {
		line := fmt.Sprintf("[%s] Task %s: %s", timestamp(), result.TaskName, result.Status)
		if result.ErrorClass != "" {
			line += fmt.Sprintf(" [%s]", result.ErrorClass)
		}
		if result.Error != "" {
			line += ": " + result.Error
		}
		fl.writeRunLog(line + "\n")
	}

	if err := fl.writeTaskLog(runID, result); err != nil {
		fl.LogWarn("%v", err)
	}
}

func (fl *FileLogger) writeTaskLog(runID string, result models.TaskResult) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	dir := filepath.Join(fl.tasksDir, runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create task log directory: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== Task %s ===\n", result.TaskName)
	fmt.Fprintf(&b, "Run: %s\n", runID)
	fmt.Fprintf(&b, "Status: %s\n", result.Status)
	fmt.Fprintf(&b, "Attempts: %d\n", result.Attempts)
	fmt.Fprintf(&b, "Duration: %.1fs\n", result.Duration().Seconds())
	if result.Error != "" {
		fmt.Fprintf(&b, "\nError (%s):\n%s\n", result.ErrorClass, result.Error)
	}
	if result.Artifact != nil {
		data, err := models.IndentArtifact(result.Artifact)
		if err != nil {
			fmt.Fprintf(&b, "\nArtifact: <unencodable: %v>\n", err)
		} else {
			fmt.Fprintf(&b, "\nArtifact:\n%s\n", data)
		}
	}
	fmt.Fprintf(&b, "\nLogged at: %s\n", time.Now().Format(time.RFC3339))

	path := filepath.Join(dir, taskLogName(result.TaskName))
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write task log: %w", err)
	}
	return nil
}

// LogReviewPending logs an open checkpoint at INFO level.
func (fl *FileLogger) LogReviewPending(cp *models.ReviewCheckpoint) {
	if !fl.shouldLog("info") {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] [REVIEW] Task %s awaiting review (checkpoint %s)\n", timestamp(), cp.TaskName, cp.ID))
}

// LogSummary logs the run summary at INFO level.
func (fl *FileLogger) LogSummary(summary models.RunSummary) {
	if !fl.shouldLog("info") {
		return
	}

	ts := timestamp()
	var b strings.Builder
	fmt.Fprintf(&b, "\n[%s] === RUN SUMMARY ===\n", ts)
	fmt.Fprintf(&b, "[%s] Run:             %s (%s)\n", ts, summary.RunID, summary.Workflow)
	fmt.Fprintf(&b, "[%s] Status:          %s\n", ts, summary.Status)
	fmt.Fprintf(&b, "[%s] Total tasks:     %d\n", ts, summary.Total)
	fmt.Fprintf(&b, "[%s] Succeeded:       %d\n", ts, summary.Succeeded)
	fmt.Fprintf(&b, "[%s] Failed:          %d\n", ts, summary.Failed)
	fmt.Fprintf(&b, "[%s] Skipped:         %d\n", ts, summary.Skipped)
	fmt.Fprintf(&b, "[%s] Awaiting review: %d\n", ts, summary.AwaitingReview)
	fmt.Fprintf(&b, "[%s] Total time:      %.1fs\n", ts, summary.Duration.Seconds())
	for _, ft := range summary.FailedTasks {
		fmt.Fprintf(&b, "[%s]   - %s [%s]: %s\n", ts, ft.TaskName, ft.ErrorClass, ft.Error)
	}
	fl.writeRunLog(b.String())
}

// Close flushes and closes the run log file.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		if err := fl.runLog.Sync(); err != nil {
			return fmt.Errorf("failed to sync run log: %w", err)
		}
		if err := fl.runLog.Close(); err != nil {
			return fmt.Errorf("failed to close run log: %w", err)
		}
		fl.runLog = nil
	}

	return nil
}

// writeRunLog is a thread-safe helper to write to the run log file.
func (fl *FileLogger) writeRunLog(message string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		fl.runLog.WriteString(message)
		// Flush after each write for real-time logging
		fl.runLog.Sync()
	}
}

// taskLogName turns a task name into a safe file name.
func taskLogName(name string) string {
	safe := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ':' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, name)
	return safe + ".log"
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
