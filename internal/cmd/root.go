package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for briefflow
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "briefflow",
		Short: "Workflow orchestration for news briefings",
		Long: `briefflow runs news briefing workflows: collect feeds, cluster items into
topics, select topics, fetch and summarize content, and render a briefing.

Workflows are declared in YAML or HCL as named tasks with dependencies.
Independent tasks run concurrently, every task result is recorded in a
ledger so interrupted runs resume where they stopped, and tasks flagged
human_review wait for a reviewer's decision.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
		// main prints the error once
		SilenceErrors: true,
	}

	// Add subcommands
	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewListWorkflowsCommand())
	cmd.AddCommand(NewReviewCommand())
	cmd.AddCommand(NewStatusCommand())

	return cmd
}
