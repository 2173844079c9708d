package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/briefflow/internal/display"
	"github.com/harrison/briefflow/internal/ledger"
	"github.com/harrison/briefflow/internal/models"
)

// NewStatusCommand creates the status command
func NewStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [run-id]",
		Short: "Show recorded runs, or the task results of one run",
		Long: `Without arguments, list the most recent runs in the ledger.
With a run ID, show every task result of that run and its open reviews.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			l, err := openLedger(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer l.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				return showRun(cmd.Context(), l, args[0], out)
			}
			workflow, _ := cmd.Flags().GetString("workflow")
			limit, _ := cmd.Flags().GetInt("limit")
			return listRuns(cmd.Context(), l, workflow, limit, out)
		},
	}

	addConfigFlags(cmd)
	cmd.Flags().String("workflow", "", "Only list runs of this workflow")
	cmd.Flags().Int("limit", 10, "Number of runs to list (0 = all)")

	return cmd
}

func listRuns(ctx context.Context, l ledger.Ledger, workflow string, limit int, out io.Writer) error {
	runs, err := l.ListRuns(ctx, workflow, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	table := display.NewTable("RUN", "WORKFLOW", "STATUS", "STARTED", "DURATION")
	for _, r := range runs {
		table.Row(r.RunID, r.Workflow, string(r.Status), r.StartedAt.Local().Format(time.DateTime), runDuration(r.StartedAt, r.FinishedAt))
	}
	table.Render(out)
	return nil
}

func showRun(ctx context.Context, l ledger.Ledger, runID string, out io.Writer) error {
	state, err := l.Load(ctx, runID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return fmt.Errorf("run %s not found", runID)
		}
		return err
	}

	fmt.Fprintf(out, "Run:         %s\n", state.RunID)
	fmt.Fprintf(out, "Workflow:    %s\n", state.Workflow)
	fmt.Fprintf(out, "Status:      %s\n", state.Status)
	fmt.Fprintf(out, "Fingerprint: %s\n", state.Fingerprint)
	fmt.Fprintf(out, "Started:     %s\n", state.StartedAt.Local().Format(time.DateTime))
	if !state.FinishedAt.IsZero() {
		fmt.Fprintf(out, "Finished:    %s (%s)\n", state.FinishedAt.Local().Format(time.DateTime), runDuration(state.StartedAt, state.FinishedAt))
	}

	fmt.Fprintln(out)
	table := display.NewTable("TASK", "STATUS", "ATTEMPTS", "DURATION", "ERROR")
	for _, name := range sortedTaskNames(state) {
		r := state.Results[name]
		attempts := ""
		if r.Attempts > 0 {
			attempts = fmt.Sprintf("%d", r.Attempts)
		}
		errText := r.Error
		if r.ErrorClass != "" && errText != "" {
			errText = fmt.Sprintf("[%s] %s", r.ErrorClass, errText)
		}
		table.Row(name, string(r.Status), attempts, runDuration(r.StartedAt, r.FinishedAt), errText)
	}
	table.Render(out)

	pending, err := l.ListCheckpoints(ctx, runID, true)
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}
	if len(pending) > 0 {
		fmt.Fprintf(out, "\nPending reviews:\n")
		for _, cp := range pending {
			fmt.Fprintf(out, "  - %s (task %s): briefflow review decide %s approve|modify|rerun|reject\n", cp.ID, cp.TaskName, cp.ID)
		}
	}
	return nil
}

// sortedTaskNames orders tasks by start time, unstarted tasks last by name.
func sortedTaskNames(state *models.RunState) []string {
	names := make([]string, 0, len(state.Results))
	for name := range state.Results {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := state.Results[names[i]].StartedAt, state.Results[names[j]].StartedAt
		switch {
		case a.IsZero() != b.IsZero():
			return !a.IsZero()
		case !a.Equal(b):
			return a.Before(b)
		default:
			return names[i] < names[j]
		}
	})
	return names
}

func runDuration(start, end time.Time) string {
	if start.IsZero() || end.IsZero() {
		return "-"
	}
	return end.Sub(start).Round(100 * time.Millisecond).String()
}
