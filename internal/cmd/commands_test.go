package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harrison/briefflow/internal/models"
)

func TestRootCommand(t *testing.T) {
	root := NewRootCommand()
	if root.Use != "briefflow" {
		t.Errorf("Use = %q, want briefflow", root.Use)
	}
	if !root.SilenceUsage {
		t.Error("expected SilenceUsage")
	}

	want := map[string]bool{"run": false, "validate": false, "list-workflows": false, "review": false, "status": false}
	for _, sub := range root.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %s", name)
		}
	}

	output, err := executeCommand(t, "--version")
	if err != nil {
		t.Fatalf("--version failed: %v", err)
	}
	if !strings.Contains(output, Version) {
		t.Errorf("version output %q missing %q", output, Version)
	}
}

func TestValidateCommand(t *testing.T) {
	p := newTestProject(t)

	tests := []struct {
		name     string
		args     []string
		wantCode int
		want     []string
		notWant  []string
	}{
		{
			name:     "valid workflow",
			args:     []string{"validate", "chain"},
			wantCode: ExitSuccess,
			want:     []string{"✓ Loaded 4 workflow(s)", "✓ Workflow chain is valid"},
		},
		{
			name:     "invalid workflow lists every issue",
			args:     []string{"validate", "broken"},
			wantCode: ExitValidation,
			want: []string{
				"✗ Validation failed for workflow broken",
				`depends on unknown task "missing"`,
				`unknown task type "mystery"`,
				"Found 2 validation error(s)!",
			},
		},
		{
			name:     "all workflows",
			args:     []string{"validate"},
			wantCode: ExitValidation,
			want:     []string{"Workflow chain is valid", "Workflow gated is valid", "Workflow feeds is valid", "Validation failed for workflow broken"},
		},
		{
			name:     "unknown workflow",
			args:     []string{"validate", "nope"},
			wantCode: ExitValidation,
			want:     []string{"workflow not found"},
		},
		{
			name:     "params resolve",
			args:     []string{"validate", "feeds", "--params"},
			wantCode: ExitSuccess,
			want:     []string{"Workflow feeds is valid"},
		},
		{
			name:     "params out of range",
			args:     []string{"validate", "feeds", "--params", "--set", "collect.max_age_hours=0"},
			wantCode: ExitValidation,
			want:     []string{`task "collect": key "max_age_hours": 0 is below minimum 1`},
		},
		{
			name:     "overrides ignored without params",
			args:     []string{"validate", "feeds", "--set", "collect.max_age_hours=0"},
			wantCode: ExitSuccess,
			notWant:  []string{"below minimum"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := p.run(t, tt.args...)
			if got := ExitCode(err); got != tt.wantCode {
				t.Fatalf("ExitCode = %d, want %d (err %v)\n%s", got, tt.wantCode, err, output)
			}
			for _, w := range tt.want {
				if !strings.Contains(output, w) {
					t.Errorf("expected %q in output:\n%s", w, output)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(output, w) {
					t.Errorf("did not expect %q in output:\n%s", w, output)
				}
			}
		})
	}
}

func TestValidateCommand_MissingFile(t *testing.T) {
	output, err := executeCommand(t, "validate", "--workflow-file", filepath.Join(t.TempDir(), "none.yaml"), "--config", filepath.Join(t.TempDir(), "none.yaml"))
	if ExitCode(err) != ExitValidation {
		t.Errorf("ExitCode = %d, want %d", ExitCode(err), ExitValidation)
	}
	if !strings.Contains(output, "✗ Failed to load workflows") {
		t.Errorf("unexpected output:\n%s", output)
	}
}

func TestListWorkflowsCommand(t *testing.T) {
	p := newTestProject(t)

	output, err := p.run(t, "list-workflows")
	if err != nil {
		t.Fatalf("list-workflows failed: %v", err)
	}
	for _, want := range []string{"broken (2 tasks)", "chain (2 tasks)", "gated (2 tasks)", "TASK", "second", "first", "yes"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
	// sorted by name
	if strings.Index(output, "broken") > strings.Index(output, "chain") {
		t.Errorf("workflows not sorted:\n%s", output)
	}

	output, err = p.run(t, "list-workflows", "--tasks=false")
	if err != nil {
		t.Fatalf("list-workflows failed: %v", err)
	}
	if strings.Contains(output, "TASK") {
		t.Errorf("task table printed with --tasks=false:\n%s", output)
	}
}

func TestReviewCommand(t *testing.T) {
	p := newTestProject(t)

	output, err := p.run(t, "review", "list")
	if err != nil {
		t.Fatalf("review list failed: %v", err)
	}
	if !strings.Contains(output, "No pending reviews.") {
		t.Errorf("unexpected output:\n%s", output)
	}

	// record a suspended run to get a checkpoint
	if _, err := p.run(t, "run", "gated", "--no-wait"); ExitCode(err) != ExitSuspended {
		t.Fatalf("expected suspended run, got %v", err)
	}
	pending, err := p.ledger(t).ListCheckpoints(context.Background(), "", true)
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected one pending checkpoint, got %d (err %v)", len(pending), err)
	}
	cpID := pending[0].ID

	output, err = p.run(t, "review", "show", cpID)
	if err != nil {
		t.Fatalf("review show failed: %v", err)
	}
	for _, want := range []string{"Checkpoint: " + cpID, "Task:       draft", "Decision:   pending", "Proposed output:", `"task": "draft"`} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}

	errTests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"bad decision", []string{"review", "decide", cpID, "maybe"}, "invalid decision"},
		{"modify without payload", []string{"review", "decide", cpID, "modify"}, "modify requires --payload"},
		{"payload with approve", []string{"review", "decide", cpID, "approve", "--payload", "x.json"}, "--payload is only used with modify"},
		{"missing payload file", []string{"review", "decide", cpID, "modify", "--payload", filepath.Join(p.dir, "none.json")}, "failed to read payload"},
		{"unknown checkpoint", []string{"review", "decide", "nope", "approve"}, "checkpoint nope not found"},
		{"show unknown", []string{"review", "show", "nope"}, "checkpoint nope not found"},
	}
	for _, tt := range errTests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.run(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}

	payload := filepath.Join(p.dir, "payload.json")
	writeTestFile(t, payload, `{"task": "draft", "edited": true}`)
	output, err = p.run(t, "review", "decide", cpID, "modify", "--payload", payload)
	if err != nil {
		t.Fatalf("review decide failed: %v", err)
	}
	if !strings.Contains(output, "Checkpoint "+cpID+" modified.") {
		t.Errorf("unexpected output:\n%s", output)
	}

	cp, err := p.ledger(t).GetCheckpoint(context.Background(), cpID)
	if err != nil {
		t.Fatalf("GetCheckpoint() error = %v", err)
	}
	if cp.Decision != models.DecisionModified || cp.Payload["edited"] != true {
		t.Errorf("checkpoint = %+v, want modified with payload", cp)
	}

	output, err = p.run(t, "review", "list", "--all")
	if err != nil {
		t.Fatalf("review list --all failed: %v", err)
	}
	if !strings.Contains(output, cpID) || !strings.Contains(output, "modified") {
		t.Errorf("decided checkpoint missing from --all:\n%s", output)
	}
}

func TestReviewCommand_Rerun(t *testing.T) {
	p := newTestProject(t)

	if _, err := p.run(t, "run", "gated", "--no-wait"); ExitCode(err) != ExitSuspended {
		t.Fatalf("expected suspended run, got %v", err)
	}
	pending, err := p.ledger(t).ListCheckpoints(context.Background(), "", true)
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected one pending checkpoint, got %d (err %v)", len(pending), err)
	}
	first := pending[0].ID

	overrides := filepath.Join(p.dir, "overrides.json")
	writeTestFile(t, overrides, `{"note": "shorter"}`)
	output, err := p.run(t, "review", "decide", first, "rerun", "--payload", overrides)
	if err != nil {
		t.Fatalf("review decide rerun failed: %v", err)
	}
	if !strings.Contains(output, "Checkpoint "+first+" rerun.") {
		t.Errorf("unexpected output:\n%s", output)
	}

	output, err = p.run(t, "review", "show", first)
	if err != nil {
		t.Fatalf("review show failed: %v", err)
	}
	for _, want := range []string{"Decision:   rerun", "Rerun overrides:", `"note": "shorter"`} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}

	// the resumed run executes draft again and stops at a new checkpoint
	if _, err := p.run(t, "run", "gated", "--no-wait"); ExitCode(err) != ExitSuspended {
		t.Fatalf("expected suspended run, got %v", err)
	}
	pending, err = p.ledger(t).ListCheckpoints(context.Background(), "", true)
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected one pending checkpoint, got %d (err %v)", len(pending), err)
	}
	if pending[0].ID == first || pending[0].RunID != p.latestRun(t, "gated").RunID {
		t.Errorf("expected a new checkpoint in the same run, got %+v", pending[0])
	}
}

func TestStatusCommand(t *testing.T) {
	p := newTestProject(t)

	output, err := p.run(t, "status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(output, "No runs recorded.") {
		t.Errorf("unexpected output:\n%s", output)
	}

	if _, err := p.run(t, "run", "chain"); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if _, err := p.run(t, "run", "gated", "--no-wait"); ExitCode(err) != ExitSuspended {
		t.Fatalf("expected suspended run, got %v", err)
	}

	output, err = p.run(t, "status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	for _, want := range []string{"RUN", "chain", "succeeded", "gated", "awaiting_review"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}

	output, err = p.run(t, "status", "--workflow", "chain")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if strings.Contains(output, "gated") {
		t.Errorf("--workflow should filter runs:\n%s", output)
	}

	gated := p.latestRun(t, "gated")
	output, err = p.run(t, "status", gated.RunID)
	if err != nil {
		t.Fatalf("status <run> failed: %v", err)
	}
	for _, want := range []string{"Run:         " + gated.RunID, "Status:      awaiting_review", "draft", "publish", "pending", "Pending reviews:", "briefflow review decide"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
	// started tasks come first
	if strings.Index(output, "draft") > strings.Index(output, "publish") {
		t.Errorf("expected draft before publish:\n%s", output)
	}

	_, err = p.run(t, "status", "missing-run")
	if err == nil || !strings.Contains(err.Error(), "run missing-run not found") {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestRunDuration(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if got := runDuration(start, time.Time{}); got != "-" {
		t.Errorf("unfinished = %q, want -", got)
	}
	if got := runDuration(start, start.Add(1500*time.Millisecond)); got != "1.5s" {
		t.Errorf("runDuration = %q, want 1.5s", got)
	}
}

func TestReadPayload(t *testing.T) {
	dir := t.TempDir()

	obj := filepath.Join(dir, "obj.json")
	writeTestFile(t, obj, `{"topics": ["a", "b"]}`)
	payload, err := readPayload(obj)
	if err != nil {
		t.Fatalf("readPayload() error = %v", err)
	}
	if len(payload["topics"].([]any)) != 2 {
		t.Errorf("unexpected payload %v", payload)
	}

	for name, content := range map[string]string{"list.json": `[1, 2]`, "empty.json": ``, "bad.json": `{`} {
		path := filepath.Join(dir, name)
		writeTestFile(t, path, content)
		if _, err := readPayload(path); err == nil {
			t.Errorf("readPayload(%s) expected error", name)
		}
	}

	if _, err := readPayload(filepath.Join(dir, "none.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
