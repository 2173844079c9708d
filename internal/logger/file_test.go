package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harrison/briefflow/internal/models"
)

func newTestFileLogger(t *testing.T, level string) (*FileLogger, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "logs")
	fl, err := NewFileLoggerWithDirAndLevel(dir, level)
	if err != nil {
		t.Fatalf("NewFileLoggerWithDirAndLevel() error = %v", err)
	}
	t.Cleanup(func() { fl.Close() })
	return fl, dir
}

func readRunLog(t *testing.T, fl *FileLogger) string {
	t.Helper()
	data, err := os.ReadFile(fl.RunFile())
	if err != nil {
		t.Fatalf("failed to read run log: %v", err)
	}
	return string(data)
}

// TestFileLoggerLayout verifies the log directory, run log and latest.log symlink.
func TestFileLoggerLayout(t *testing.T) {
	fl, dir := newTestFileLogger(t, "info")

	if _, err := os.Stat(filepath.Join(dir, "tasks")); err != nil {
		t.Errorf("expected tasks directory: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(fl.RunFile()), "run-") {
		t.Errorf("unexpected run log name %s", fl.RunFile())
	}

	target, err := os.Readlink(filepath.Join(dir, "latest.log"))
	if err != nil {
		t.Fatalf("expected latest.log symlink: %v", err)
	}
	if target != filepath.Base(fl.RunFile()) {
		t.Errorf("latest.log points to %s, want %s", target, filepath.Base(fl.RunFile()))
	}

	if !strings.Contains(readRunLog(t, fl), "=== briefflow run log ===") {
		t.Error("missing run log header")
	}
}

func TestFileLoggerReplacesLatestSymlink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("run-old.log", filepath.Join(dir, "latest.log")); err != nil {
		t.Fatal(err)
	}

	fl, err := NewFileLoggerWithDirAndLevel(dir, "info")
	if err != nil {
		t.Fatalf("NewFileLoggerWithDirAndLevel() error = %v", err)
	}
	defer fl.Close()

	target, _ := os.Readlink(filepath.Join(dir, "latest.log"))
	if target == "run-old.log" {
		t.Error("latest.log still points to the old run")
	}
}

func TestFileLoggerRunEvents(t *testing.T) {
	fl, _ := newTestFileLogger(t, "info")
	state := testState()
	state.Fingerprint = "0123456789abcdef0123"

	fl.LogRunStart(state, true)
	fl.LogTaskStart("run-1", &models.TaskSpec{Name: "collect", TaskType: "feed_collection"})
	fl.LogReviewPending(&models.ReviewCheckpoint{ID: "cp-9", TaskName: "select"})
	fl.LogWarn("publisher unavailable: %s", "dial tcp")
	fl.LogSummary(models.RunSummary{
		RunID: "run-1", Workflow: "daily", Status: models.RunFailed, Total: 2, Succeeded: 1, Failed: 1,
		FailedTasks: []models.TaskResult{{TaskName: "cluster", ErrorClass: "config", Error: "min_cluster_size: must be at least 1"}},
	})

	out := readRunLog(t, fl)
	for _, want := range []string{
		"Resuming run run-1 of daily: 2 tasks (fingerprint 0123456789ab)",
		"[REVIEW] Task select awaiting review (checkpoint cp-9)",
		"[WARN] publisher unavailable: dial tcp",
		"=== RUN SUMMARY ===",
		"Status:          failed",
		"- cluster [config]: min_cluster_size: must be at least 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in run log:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Task collect (feed_collection) started") {
		t.Error("debug line written at info level")
	}
}

func TestFileLoggerTaskDetail(t *testing.T) {
	fl, dir := newTestFileLogger(t, "info")
	start := time.Now()

	fl.LogTaskResult("run-1", models.TaskResult{
		TaskName:   "render/html",
		Status:     models.StatusSucceeded,
		Attempts:   1,
		Artifact:   models.Artifact{"html": "<h1>Daily</h1>"},
		StartedAt:  start,
		FinishedAt: start.Add(2 * time.Second),
	})

	if !strings.Contains(readRunLog(t, fl), "Task render/html: succeeded") {
		t.Error("missing task line in run log")
	}

	data, err := os.ReadFile(filepath.Join(dir, "tasks", "run-1", "render_html.log"))
	if err != nil {
		t.Fatalf("expected task detail file: %v", err)
	}
	detail := string(data)
	for _, want := range []string{"=== Task render/html ===", "Status: succeeded", "Attempts: 1", "Duration: 2.0s", `"html": "<h1>Daily</h1>"`} {
		if !strings.Contains(detail, want) {
			t.Errorf("expected %q in task detail:\n%s", want, detail)
		}
	}
}

func TestFileLoggerTaskFailureDetail(t *testing.T) {
	fl, dir := newTestFileLogger(t, "error")

	fl.LogTaskResult("run-2", models.TaskResult{
		TaskName:   "fetch",
		Status:     models.StatusFailed,
		Error:      "gave up after 3 attempts: connection reset",
		ErrorClass: "fatal",
	})

	// the run log line is info level, the detail file is always written
	if strings.Contains(readRunLog(t, fl), "Task fetch") {
		t.Error("task line written at error level")
	}
	data, err := os.ReadFile(filepath.Join(dir, "tasks", "run-2", "fetch.log"))
	if err != nil {
		t.Fatalf("expected task detail file: %v", err)
	}
	if !strings.Contains(string(data), "Error (fatal):\ngave up after 3 attempts: connection reset") {
		t.Errorf("unexpected detail:\n%s", data)
	}
}

func TestFileLoggerCloseIsIdempotent(t *testing.T) {
	fl, _ := newTestFileLogger(t, "info")
	if err := fl.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := fl.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	// writes after close are dropped
	fl.LogInfo("late")
}
