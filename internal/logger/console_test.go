package logger

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harrison/briefflow/internal/models"
)

func testState() *models.RunState {
	spec := models.NewWorkflowSpec("daily", []models.TaskSpec{
		{Name: "collect", TaskType: "feed_collection"},
		{Name: "cluster", TaskType: "topic_clustering", DependsOn: []string{"collect"}},
	})
	return models.NewRunState("run-1", spec, time.Now())
}

// TestNewConsoleLogger verifies the constructor normalizes the level and never colors a buffer.
func TestNewConsoleLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewConsoleLogger(buf, " DEBUG ")

	if logger.logLevel != "debug" {
		t.Errorf("expected log level %q, got %q", "debug", logger.logLevel)
	}
	if logger.colorOutput {
		t.Error("expected color output to be disabled for a buffer")
	}

	if NewConsoleLogger(buf, "verbose").logLevel != "info" {
		t.Error("expected invalid level to default to info")
	}
}

// TestLogLevelFiltering verifies that messages are filtered based on log level.
func TestLogLevelFiltering(t *testing.T) {
	levels := []string{"trace", "debug", "info", "warn", "error"}
	log := func(l *ConsoleLogger, level, msg string) {
		switch level {
		case "trace":
			l.LogTrace("%s", msg)
		case "debug":
			l.LogDebug("%s", msg)
		case "info":
			l.LogInfo("%s", msg)
		case "warn":
			l.LogWarn("%s", msg)
		case "error":
			l.LogError("%s", msg)
		}
	}

	for ci, configured := range levels {
		for mi, message := range levels {
			name := fmt.Sprintf("%s logger, %s message", configured, message)
			t.Run(name, func(t *testing.T) {
				buf := &bytes.Buffer{}
				l := NewConsoleLogger(buf, configured)
				log(l, message, "hello")

				shouldAppear := mi >= ci
				appeared := strings.Contains(buf.String(), "hello")
				if appeared != shouldAppear {
					t.Errorf("appeared = %v, want %v (output %q)", appeared, shouldAppear, buf.String())
				}
				if appeared && !strings.Contains(buf.String(), "["+strings.ToUpper(message)+"]") {
					t.Errorf("missing level tag in %q", buf.String())
				}
			})
		}
	}
}

func TestLeveledMessageFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	NewConsoleLogger(buf, "info").LogWarn("ledger at %s is slow", "/tmp/x.db")

	pattern := regexp.MustCompile(`^\[\d{2}:\d{2}:\d{2}\] \[WARN\] ledger at /tmp/x.db is slow\n$`)
	if !pattern.MatchString(buf.String()) {
		t.Errorf("unexpected format: %q", buf.String())
	}
}

func TestNilWriterDiscards(t *testing.T) {
	l := NewConsoleLogger(nil, "trace")
	l.LogInfo("nothing")
	l.LogRunStart(testState(), false)
	l.LogTaskResult("run-1", models.TaskResult{TaskName: "collect", Status: models.StatusSucceeded})
	l.LogSummary(models.RunSummary{})
}

func TestLogRunStartAndProgress(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewConsoleLogger(buf, "info")
	state := testState()

	l.LogRunStart(state, false)
	if !strings.Contains(buf.String(), "Starting run run-1 of daily: 2 tasks") {
		t.Errorf("missing run start line in %q", buf.String())
	}

	start := time.Now()
	l.LogTaskResult("run-1", models.TaskResult{
		TaskName:   "collect",
		Status:     models.StatusSucceeded,
		Attempts:   2,
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
	})

	out := buf.String()
	for _, want := range []string{"Task collect: succeeded (1s) after 2 attempts", "Progress: [=====     ] 1/2 (50%)"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}

	// awaiting review is not terminal, so the bar does not move
	buf.Reset()
	l.LogTaskResult("run-1", models.TaskResult{TaskName: "cluster", Status: models.StatusAwaitingReview})
	if strings.Contains(buf.String(), "Progress") {
		t.Errorf("unexpected progress line in %q", buf.String())
	}
}

func TestLogRunStartResumed(t *testing.T) {
	buf := &bytes.Buffer{}
	state := testState()
	state.Results["collect"].Status = models.StatusSucceeded

	NewConsoleLogger(buf, "info").LogRunStart(state, true)
	if !strings.Contains(buf.String(), "Resuming run run-1 of daily: 2 tasks (1 already succeeded)") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestLogTaskResultWithError(t *testing.T) {
	buf := &bytes.Buffer{}
	NewConsoleLogger(buf, "info").LogTaskResult("run-1", models.TaskResult{
		TaskName:   "fetch",
		Status:     models.StatusFailed,
		Error:      "task fetch: timeout after 1s",
		ErrorClass: "timeout",
	})
	if !strings.Contains(buf.String(), "Task fetch: failed: task fetch: timeout after 1s") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestLogTaskStartIsDebug(t *testing.T) {
	task := &models.TaskSpec{Name: "collect", TaskType: "feed_collection"}

	buf := &bytes.Buffer{}
	NewConsoleLogger(buf, "info").LogTaskStart("run-1", task)
	if buf.Len() != 0 {
		t.Errorf("expected no output at info, got %q", buf.String())
	}

	NewConsoleLogger(buf, "debug").LogTaskStart("run-1", task)
	if !strings.Contains(buf.String(), "[DEBUG] Task collect (feed_collection) started") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestLogReviewPending(t *testing.T) {
	buf := &bytes.Buffer{}
	NewConsoleLogger(buf, "info").LogReviewPending(&models.ReviewCheckpoint{ID: "cp-1", TaskName: "select"})

	out := buf.String()
	if !strings.Contains(out, "Review pending for task select (checkpoint cp-1)") {
		t.Errorf("missing review line in %q", out)
	}
	if !strings.Contains(out, "briefflow review decide cp-1") {
		t.Errorf("missing decide hint in %q", out)
	}
}

func TestLogSummary(t *testing.T) {
	tests := []struct {
		name    string
		summary models.RunSummary
		want    []string
		notWant []string
	}{
		{
			name: "succeeded",
			summary: models.RunSummary{
				RunID: "run-1", Workflow: "daily", Status: models.RunSucceeded,
				Total: 3, Succeeded: 3, Duration: 90 * time.Second,
			},
			want:    []string{"=== Run Summary ===", "Status: succeeded", "Total tasks: 3", "Succeeded: 3", "Failed: 0", "Duration: 1m30s"},
			notWant: []string{"Failed tasks:", "Awaiting review"},
		},
		{
			name: "failed with details",
			summary: models.RunSummary{
				RunID: "run-2", Workflow: "daily", Status: models.RunFailed,
				Total: 3, Succeeded: 1, Failed: 1, Skipped: 1,
				FailedTasks: []models.TaskResult{{TaskName: "fetch", ErrorClass: "fatal", Error: "boom"}},
			},
			want: []string{"Status: failed", "Failed: 1", "Skipped: 1", "Failed tasks:", "- fetch [fatal]: boom"},
		},
		{
			name: "suspended",
			summary: models.RunSummary{
				RunID: "run-3", Workflow: "daily", Status: models.RunAwaitingReview,
				Total: 2, Succeeded: 1, AwaitingReview: 1,
			},
			want: []string{"Status: awaiting_review", "Awaiting review: 1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			NewConsoleLogger(buf, "info").LogSummary(tt.summary)
			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("expected %q in %q", w, out)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(out, w) {
					t.Errorf("did not expect %q in %q", w, out)
				}
			}
		})
	}
}

func TestLogSummaryFilteredAtWarn(t *testing.T) {
	buf := &bytes.Buffer{}
	NewConsoleLogger(buf, "warn").LogSummary(models.RunSummary{Status: models.RunSucceeded})
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestConsoleLoggerConcurrent(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewConsoleLogger(buf, "info")
	l.LogRunStart(testState(), false)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.LogInfo("message %d", i)
		}(i)
	}
	wg.Wait()

	lines := strings.Count(buf.String(), "[INFO] message")
	if lines != 20 {
		t.Errorf("expected 20 lines, got %d", lines)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{5 * time.Second, "5s"},
		{2 * time.Minute, "2m"},
		{90 * time.Second, "1m30s"},
		{2*time.Hour + 15*time.Minute, "2h15m"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h2m3s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidLevel(t *testing.T) {
	for _, level := range []string{"trace", "DEBUG", " info", "warn", "error"} {
		if !ValidLevel(level) {
			t.Errorf("ValidLevel(%q) = false", level)
		}
	}
	for _, level := range []string{"", "verbose", "fatal"} {
		if ValidLevel(level) {
			t.Errorf("ValidLevel(%q) = true", level)
		}
	}
}

func TestProgressBarRender(t *testing.T) {
	pb := NewProgressBar(4, 8, false)
	if got := pb.Render(); got != "[        ] 0/4 (0%)" {
		t.Errorf("empty bar = %q", got)
	}

	pb.Increment()
	pb.Increment()
	if got := pb.Render(); got != "[====    ] 2/4 (50%)" {
		t.Errorf("half bar = %q", got)
	}

	pb.Update(9)
	if pb.Percentage() != 100 {
		t.Errorf("percentage should clamp, got %d", pb.Percentage())
	}
	if got := pb.Render(); !strings.HasPrefix(got, "[========]") {
		t.Errorf("full bar = %q", got)
	}

	if NewProgressBar(0, 0, false).Render() != "[          ] 0/0 (0%)" {
		t.Error("zero total should render an empty default-width bar")
	}
}
