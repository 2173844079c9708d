package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harrison/briefflow/internal/executor"
	"github.com/harrison/briefflow/internal/ledger"
	"github.com/harrison/briefflow/internal/models"
	"github.com/harrison/briefflow/internal/parser"
)

const testWorkflows = `
workflows:
  chain:
    tasks:
      - name: first
        task_type: noop
      - name: second
        task_type: noop
        depends_on: [first]
  gated:
    tasks:
      - name: draft
        task_type: noop
        human_review: true
      - name: publish
        task_type: noop
        depends_on: [draft]
  feeds:
    tasks:
      - name: collect
        task_type: feed_collection
      - name: cluster
        task_type: topic_clustering
        depends_on: [collect]
  broken:
    tasks:
      - name: a
        task_type: noop
        depends_on: [missing]
      - name: b
        task_type: mystery
`

const testOPML = `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <head><title>Subscriptions</title></head>
  <body>
    <outline text="Tech">
      <outline type="rss" text="Example" xmlUrl="https://example.com/rss"/>
      <outline type="atom" title="Other" xmlUrl="https://other.example/atom"/>
    </outline>
  </body>
</opml>`

// testProject is a temp directory holding a config file, workflow definitions
// and a SQLite ledger.
type testProject struct {
	dir    string
	config string
	db     string
}

func newTestProject(t *testing.T) *testProject {
	t.Helper()
	dir := t.TempDir()
	p := &testProject{
		dir:    dir,
		config: filepath.Join(dir, "config.yaml"),
		db:     filepath.Join(dir, "state", "ledger.db"),
	}

	writeTestFile(t, filepath.Join(dir, "workflows.yaml"), testWorkflows)
	writeTestFile(t, p.config, fmt.Sprintf(`max_concurrency: 2
max_retries: 0
log_level: info
log_dir: %s
database: %s
workflow_file: %s
settings_dir: %s
review_poll_interval: 20ms
`, filepath.Join(dir, "logs"), p.db, filepath.Join(dir, "workflows.yaml"), dir))
	return p
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

// run executes the root command with --config appended.
func (p *testProject) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeCommand(t, append(args, "--config", p.config)...)
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	rootCmd := NewRootCommand()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return buf.String(), err
}

func (p *testProject) ledger(t *testing.T) ledger.Ledger {
	t.Helper()
	l, err := ledger.OpenSQLite(p.db)
	if err != nil {
		t.Fatalf("Failed to open ledger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func (p *testProject) latestRun(t *testing.T, workflow string) *models.RunState {
	t.Helper()
	state, err := p.ledger(t).LatestRun(context.Background(), workflow)
	if err != nil {
		t.Fatalf("LatestRun(%s) error = %v", workflow, err)
	}
	return state
}

func TestRunCommand_Succeeds(t *testing.T) {
	p := newTestProject(t)

	output, err := p.run(t, "run", "chain")
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, output)
	}

	for _, want := range []string{"Loading workflow chain", "Starting run", "Task first: succeeded", "=== Run Summary ===", "completed successfully", "Logs written to:"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}

	state := p.latestRun(t, "chain")
	if state.Status != models.RunSucceeded {
		t.Errorf("run status = %s, want succeeded", state.Status)
	}
	if _, err := os.Lstat(filepath.Join(p.dir, "logs", "latest.log")); err != nil {
		t.Errorf("expected latest.log in log dir: %v", err)
	}
}

func TestRunCommand_ValidationFailure(t *testing.T) {
	p := newTestProject(t)

	output, err := p.run(t, "run", "broken")
	if ExitCode(err) != ExitValidation {
		t.Fatalf("ExitCode = %d, want %d (err %v)", ExitCode(err), ExitValidation, err)
	}
	for _, want := range []string{`task "a": depends on unknown task "missing"`, `unknown task type "mystery"`} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}

	// nothing was recorded
	if _, err := os.Stat(p.db); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ledger should not be created for an invalid workflow, stat err = %v", err)
	}
}

func TestRunCommand_UnknownWorkflow(t *testing.T) {
	p := newTestProject(t)

	_, err := p.run(t, "run", "nope")
	if !errors.Is(err, parser.ErrWorkflowNotFound) {
		t.Errorf("expected ErrWorkflowNotFound, got %v", err)
	}
	if ExitCode(err) != ExitValidation {
		t.Errorf("ExitCode = %d, want %d", ExitCode(err), ExitValidation)
	}
}

func TestRunCommand_FlagErrors(t *testing.T) {
	p := newTestProject(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"resume and fresh", []string{"run", "chain", "--resume", "x", "--fresh"}, "cannot use both --resume and --fresh"},
		{"malformed set", []string{"run", "chain", "--set", "nodot=1"}, "expected task.key=value"},
		{"missing workflow arg", []string{"run"}, "accepts 1 arg"},
		{"bad log level", []string{"run", "chain", "--log-level", "loud"}, "invalid log_level"},
		{"missing opml", []string{"run", "feeds", "--opml", "/does/not/exist.opml"}, "failed to open OPML file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.run(t, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestRunCommand_NoWaitSuspendsThenResumes(t *testing.T) {
	p := newTestProject(t)

	output, err := p.run(t, "run", "gated", "--no-wait")
	if ExitCode(err) != ExitSuspended {
		t.Fatalf("ExitCode = %d, want %d (err %v)\n%s", ExitCode(err), ExitSuspended, err, output)
	}
	if !strings.Contains(output, "suspended awaiting review") {
		t.Errorf("missing suspension message:\n%s", output)
	}

	state := p.latestRun(t, "gated")
	if state.Status != models.RunAwaitingReview {
		t.Fatalf("run status = %s, want awaiting_review", state.Status)
	}

	listOut, err := p.run(t, "review", "list", state.RunID)
	if err != nil {
		t.Fatalf("review list failed: %v", err)
	}
	pending, err := p.ledger(t).ListCheckpoints(context.Background(), state.RunID, true)
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected one pending checkpoint, got %d (err %v)", len(pending), err)
	}
	cpID := pending[0].ID
	if !strings.Contains(listOut, cpID) || !strings.Contains(listOut, "draft") {
		t.Errorf("review list missing checkpoint:\n%s", listOut)
	}

	if out, err := p.run(t, "review", "decide", cpID, "approve"); err != nil {
		t.Fatalf("review decide failed: %v\n%s", err, out)
	}

	// a second decision loses
	_, err = p.run(t, "review", "decide", cpID, "reject")
	if !errors.Is(err, executor.ErrAlreadyDecided) {
		t.Errorf("expected ErrAlreadyDecided, got %v", err)
	}

	output, err = p.run(t, "run", "gated")
	if err != nil {
		t.Fatalf("resumed run failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Resuming run "+state.RunID) {
		t.Errorf("expected the suspended run to resume:\n%s", output)
	}

	final := p.latestRun(t, "gated")
	if final.RunID != state.RunID || final.Status != models.RunSucceeded {
		t.Errorf("latest run = %s (%s), want %s succeeded", final.RunID, final.Status, state.RunID)
	}
}

func TestRunCommand_ResumeSucceededRunRefused(t *testing.T) {
	p := newTestProject(t)

	if _, err := p.run(t, "run", "chain"); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	runID := p.latestRun(t, "chain").RunID

	_, err := p.run(t, "run", "chain", "--resume", runID)
	if !errors.Is(err, executor.ErrNotResumable) {
		t.Errorf("expected ErrNotResumable, got %v", err)
	}

	// without --resume a finished run is not picked up
	output, err := p.run(t, "run", "chain")
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if strings.Contains(output, "Resuming") {
		t.Errorf("a succeeded run must not be resumed:\n%s", output)
	}
	if p.latestRun(t, "chain").RunID == runID {
		t.Error("expected a new run")
	}
}

func TestRunCommand_OPMLInjectsFeeds(t *testing.T) {
	p := newTestProject(t)
	opml := filepath.Join(p.dir, "feeds.opml")
	writeTestFile(t, opml, testOPML)

	output, err := p.run(t, "run", "feeds", "--opml", opml)
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Loaded 2 feed(s) from "+opml+" into 1 task(s)") {
		t.Errorf("missing OPML line:\n%s", output)
	}

	collect := p.latestRun(t, "feeds").Results["collect"]
	if collect.Status != models.StatusSucceeded {
		t.Fatalf("collect status = %s: %s", collect.Status, collect.Error)
	}
	if got := collect.Artifact["feed_count"]; got != float64(2) {
		t.Errorf("feed_count = %v, want 2", got)
	}
}

func TestInjectFeeds(t *testing.T) {
	spec := models.NewWorkflowSpec("w", []models.TaskSpec{
		{Name: "a", TaskType: feedCollectionType},
		{Name: "b", TaskType: feedCollectionType},
		{Name: "c", TaskType: "noop"},
	})
	feeds := []parser.Feed{{Name: "Example", URL: "https://example.com/rss"}}

	overrides := map[string]map[string]any{"b": {"feeds": "explicit"}}
	if n := injectFeeds(spec, overrides, feeds); n != 1 {
		t.Errorf("injectFeeds() = %d, want 1", n)
	}
	if _, ok := overrides["a"]["feeds"]; !ok {
		t.Error("task a should receive the feeds")
	}
	if overrides["b"]["feeds"] != "explicit" {
		t.Error("explicit --set feeds must win")
	}
	if _, ok := overrides["c"]; ok {
		t.Error("non feed_collection tasks must be untouched")
	}

	wildcard := map[string]map[string]any{"*": {"feeds": "explicit"}}
	if n := injectFeeds(spec, wildcard, feeds); n != 0 {
		t.Errorf("injectFeeds() with wildcard = %d, want 0", n)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"generic", errors.New("boom"), ExitFailure},
		{"validation", &parser.ValidationError{Workflow: "w"}, ExitValidation},
		{"run error", fmt.Errorf("wrapped: %w", &executor.RunError{RunID: "r"}), ExitTaskFailed},
		{"review rejected", executor.ErrReviewRejected, ExitTaskFailed},
		{"cancelled", executor.ErrCancelled, ExitCancelled},
		{"suspended", executor.ErrSuspended, ExitSuspended},
		{"explicit", &ExitError{Code: 42}, 42},
		{"explicit wins over cause", &ExitError{Code: ExitSuspended, Err: errors.New("x")}, ExitSuspended},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestReportRun_SuspendedNamesFailures(t *testing.T) {
	spec := models.NewWorkflowSpec("daily", []models.TaskSpec{
		{Name: "select", TaskType: "noop", HumanReview: true},
		{Name: "fetch", TaskType: "noop"},
		{Name: "render", TaskType: "noop", DependsOn: []string{"fetch"}},
	})
	state := models.NewRunState("run-1", spec, time.Now())
	state.Spec = spec
	state.Results["select"].Status = models.StatusAwaitingReview
	state.Results["fetch"].Status = models.StatusFailed
	state.Results["render"].Status = models.StatusSkipped

	var out bytes.Buffer
	err := reportRun(&out, "daily", state, executor.ErrSuspended, "run.log")
	if ExitCode(err) != ExitSuspended {
		t.Errorf("ExitCode = %d, want %d", ExitCode(err), ExitSuspended)
	}
	for _, want := range []string{"Run run-1 suspended awaiting review.", "1 task(s) failed on other branches: fetch"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("expected %q in output:\n%s", want, out.String())
		}
	}

	state.Results["fetch"].Status = models.StatusSucceeded
	out.Reset()
	reportRun(&out, "daily", state, executor.ErrSuspended, "run.log")
	if strings.Contains(out.String(), "failed on other branches") {
		t.Errorf("no failures expected:\n%s", out.String())
	}
}
