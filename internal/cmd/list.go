package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrison/briefflow/internal/config"
	"github.com/harrison/briefflow/internal/display"
	"github.com/harrison/briefflow/internal/parser"
)

// NewListWorkflowsCommand creates the list-workflows command
func NewListWorkflowsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list-workflows",
		Short: "List the workflows in the definition file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			verbose, _ := cmd.Flags().GetBool("tasks")
			return listWorkflows(cfg, verbose, cmd.OutOrStdout())
		},
	}

	addConfigFlags(cmd)
	cmd.Flags().Bool("tasks", true, "Show each workflow's tasks and dependencies")

	return cmd
}

func listWorkflows(cfg *config.Config, showTasks bool, out io.Writer) error {
	defs, err := parser.LoadFile(cfg.WorkflowFile)
	if err != nil {
		return err
	}

	names := defs.Names()
	if len(names) == 0 {
		fmt.Fprintf(out, "No workflows defined in %s\n", cfg.WorkflowFile)
		return nil
	}

	fmt.Fprintf(out, "Workflows in %s:\n", cfg.WorkflowFile)
	for _, name := range names {
		spec, _, err := defs.Spec(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%s (%d tasks)\n", name, len(spec.Tasks))
		if !showTasks {
			continue
		}

		table := display.NewTable("  TASK", "TYPE", "DEPENDS ON", "REVIEW")
		for _, task := range spec.Tasks {
			review := ""
			if task.HumanReview {
				review = "yes"
			}
			deps := strings.Join(task.DependsOn, ", ")
			if deps == "" {
				deps = "-"
			}
			table.Row("  "+task.Name, task.TaskType, deps, review)
		}
		table.Render(out)
	}
	return nil
}
