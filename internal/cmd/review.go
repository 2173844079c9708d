package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/briefflow/internal/display"
	"github.com/harrison/briefflow/internal/executor"
	"github.com/harrison/briefflow/internal/ledger"
	"github.com/harrison/briefflow/internal/models"
)

// NewReviewCommand creates the review command and its subcommands
func NewReviewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Inspect and decide human review checkpoints",
		Long: `Tasks flagged human_review stop at a checkpoint after producing their
output. A run waiting on a checkpoint continues as soon as a decision is
recorded here, from any process sharing the ledger.

Decisions:
  approve   dependents receive the proposed output
  modify    dependents receive the --payload JSON instead
  rerun     the task runs again, with the optional --payload JSON as
            parameter overrides, and stops at a new checkpoint
  reject    the task fails and its dependents are skipped`,
	}

	cmd.AddCommand(newReviewListCommand())
	cmd.AddCommand(newReviewShowCommand())
	cmd.AddCommand(newReviewDecideCommand())

	return cmd
}

func newReviewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [run-id]",
		Short: "List pending checkpoints, of one run or of every run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			all, _ := cmd.Flags().GetBool("all")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			l, err := openLedger(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer l.Close()

			checkpoints, err := l.ListCheckpoints(cmd.Context(), runID, !all)
			if err != nil {
				return fmt.Errorf("failed to list checkpoints: %w", err)
			}
			printCheckpoints(cmd.OutOrStdout(), checkpoints, all)
			return nil
		},
	}

	addConfigFlags(cmd)
	cmd.Flags().Bool("all", false, "Include decided checkpoints")

	return cmd
}

func printCheckpoints(out io.Writer, checkpoints []*models.ReviewCheckpoint, all bool) {
	if len(checkpoints) == 0 {
		if all {
			fmt.Fprintln(out, "No checkpoints.")
		} else {
			fmt.Fprintln(out, "No pending reviews.")
		}
		return
	}

	table := display.NewTable("CHECKPOINT", "RUN", "TASK", "DECISION", "CREATED")
	for _, cp := range checkpoints {
		table.Row(cp.ID, cp.RunID, cp.TaskName, string(cp.Decision), cp.CreatedAt.Local().Format(time.DateTime))
	}
	table.Render(out)
}

func newReviewShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <checkpoint-id>",
		Short: "Show a checkpoint with its proposed output",
		Args:  cobra.ExactArgs(1),
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

			cp, err := l.GetCheckpoint(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, ledger.ErrNotFound) {
					return fmt.Errorf("checkpoint %s not found", args[0])
				}
				return err
			}
			return printCheckpoint(cmd.OutOrStdout(), cp)
		},
	}

	addConfigFlags(cmd)

	return cmd
}

func printCheckpoint(out io.Writer, cp *models.ReviewCheckpoint) error {
	fmt.Fprintf(out, "Checkpoint: %s\n", cp.ID)
	fmt.Fprintf(out, "Run:        %s\n", cp.RunID)
	fmt.Fprintf(out, "Task:       %s\n", cp.TaskName)
	fmt.Fprintf(out, "Decision:   %s\n", cp.Decision)
	fmt.Fprintf(out, "Created:    %s\n", cp.CreatedAt.Local().Format(time.DateTime))
	if !cp.DecidedAt.IsZero() {
		fmt.Fprintf(out, "Decided:    %s\n", cp.DecidedAt.Local().Format(time.DateTime))
	}

	if err := printArtifact(out, "Proposed output", cp.Proposed); err != nil {
		return err
	}
	switch {
	case cp.Decision == models.DecisionModified:
		return printArtifact(out, "Replacement payload", cp.Payload)
	case cp.Decision == models.DecisionRerun && cp.Payload != nil:
		return printArtifact(out, "Rerun overrides", cp.Payload)
	}
	return nil
}

func printArtifact(out io.Writer, label string, a models.Artifact) error {
	data, err := models.IndentArtifact(a)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", label, err)
	}
	fmt.Fprintf(out, "\n%s:\n%s\n", label, data)
	return nil
}

func newReviewDecideCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decide <checkpoint-id> approve|modify|rerun|reject",
		Short: "Record the decision for a pending checkpoint",
		Long: `Record the decision for a pending checkpoint. Only the first decision
counts; deciding an already decided checkpoint fails.

Examples:
  briefflow review decide 3f1c... approve
  briefflow review decide 3f1c... modify --payload selection.json
  briefflow review decide 3f1c... rerun --payload overrides.json
  briefflow review decide 3f1c... reject`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			decision, err := models.ParseDecision(args[1])
			if err != nil {
				return err
			}

			payloadPath, _ := cmd.Flags().GetString("payload")
			var payload models.Artifact
			switch {
			case decision == models.DecisionModified && payloadPath == "":
				return fmt.Errorf("modify requires --payload with the replacement output as JSON")
			case payloadPath == "":
			case decision == models.DecisionModified || decision == models.DecisionRerun:
				if payload, err = readPayload(payloadPath); err != nil {
					return err
				}
			default:
				return fmt.Errorf("--payload is only used with modify or rerun")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			l, err := openLedger(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer l.Close()

			gate := executor.NewReviewGate(l, cfg.ReviewPollInterval)
			if err := gate.SubmitDecision(cmd.Context(), args[0], decision, payload); err != nil {
				if errors.Is(err, ledger.ErrNotFound) {
					return fmt.Errorf("checkpoint %s not found", args[0])
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Checkpoint %s %s.\n", args[0], decision)
			return nil
		},
	}

	addConfigFlags(cmd)
	cmd.Flags().String("payload", "", "JSON file with the replacement output (modify) or parameter overrides (rerun)")

	return cmd
}

// readPayload reads a JSON object from path.
func readPayload(path string) (models.Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	payload, err := models.UnmarshalArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("invalid payload in %s: %w", path, err)
	}
	if payload == nil {
		return nil, fmt.Errorf("payload in %s must be a JSON object", path)
	}
	return payload, nil
}
