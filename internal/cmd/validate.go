package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/harrison/briefflow/internal/config"
	"github.com/harrison/briefflow/internal/models"
	"github.com/harrison/briefflow/internal/parser"
	"github.com/harrison/briefflow/internal/tasks"
)

// NewValidateCommand creates and returns the validate subcommand
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [workflow]...",
		Short: "Validate workflow definitions",
		Long: `Parse and validate workflows, checking for:
  - Missing or duplicate task names
  - Dependencies on unknown tasks or on the task itself
  - Unknown task types
  - Invalid timeouts and retry limits
  - Circular dependencies

With --params, every task's parameters are also resolved through the settings
files, environment variables and --set overrides, and checked against the
task type's schema.

Without arguments every workflow in the definition file is validated.

Exit code: 0 if valid, 2 if any issue was found`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			checkParams, _ := cmd.Flags().GetBool("params")
			setFlags, _ := cmd.Flags().GetStringArray("set")
			return validateWorkflows(cfg, args, checkParams, setFlags, cmd.OutOrStdout())
		},
	}

	addConfigFlags(cmd)
	cmd.Flags().Bool("params", false, "Also resolve and check task parameters")
	cmd.Flags().String("env", "", "Settings environment used with --params")
	cmd.Flags().StringArray("set", nil, "Parameter override used with --params (task.key=value); repeatable")

	return cmd
}

// validateWorkflows validates the named workflows, or all of them, and reports
// every issue. It returns an *ExitError with ExitValidation when any workflow
// is invalid.
func validateWorkflows(cfg *config.Config, names []string, checkParams bool, setFlags []string, output io.Writer) error {
	defs, err := parser.LoadFile(cfg.WorkflowFile)
	if err != nil {
		fmt.Fprintf(output, "✗ Failed to load workflows from %s\n", cfg.WorkflowFile)
		fmt.Fprintf(output, "  Error: %v\n", err)
		return &ExitError{Code: ExitValidation, Err: fmt.Errorf("parse error: %w", err)}
	}
	fmt.Fprintf(output, "✓ Loaded %d workflow(s) from %s\n", len(defs.Names()), cfg.WorkflowFile)

	if len(names) == 0 {
		names = defs.Names()
	}

	var resolver *config.Resolver
	var overrides map[string]map[string]any
	if checkParams {
		settings, err := config.LoadSettings(cfg.SettingsDir, cfg.Environment)
		if err != nil {
			return err
		}
		resolver = settings.Resolver(os.Environ(), cfg.EnvPrefix)
		if overrides, err = config.ParseSetFlags(setFlags); err != nil {
			return err
		}
	}

	registry := tasks.NewDefaultRegistry()
	invalid := 0
	for _, name := range names {
		issues, err := workflowIssues(defs, name, registry, resolver, overrides)
		if err != nil {
			fmt.Fprintf(output, "\n✗ %v\n", err)
			invalid++
			continue
		}
		if len(issues) == 0 {
			fmt.Fprintf(output, "\n✓ Workflow %s is valid\n", name)
			continue
		}

		invalid++
		fmt.Fprintf(output, "\n✗ Validation failed for workflow %s\n", name)
		for _, issue := range issues {
			fmt.Fprintf(output, "  ✗ %s\n", issue)
		}
		fmt.Fprintf(output, "Found %d validation error(s)!\n", len(issues))
	}

	if invalid > 0 {
		return &ExitError{Code: ExitValidation, Err: fmt.Errorf("%d of %d workflow(s) invalid", invalid, len(names))}
	}
	return nil
}

// workflowIssues returns the structural issues of a workflow and, when a
// resolver is given and the structure is sound, its parameter problems.
func workflowIssues(defs *parser.Definitions, name string, registry *tasks.Registry, resolver *config.Resolver, overrides map[string]map[string]any) ([]parser.Issue, error) {
	spec, err := defs.Workflow(name, registry)
	if err != nil {
		if issues := parser.Issues(err); len(issues) > 0 {
			return issues, nil
		}
		return nil, err
	}
	if resolver == nil {
		return nil, nil
	}
	return paramIssues(spec, registry, resolver, overrides), nil
}

// paramIssues resolves every task's parameters the way a run would.
func paramIssues(spec *models.WorkflowSpec, registry *tasks.Registry, resolver *config.Resolver, overrides map[string]map[string]any) []parser.Issue {
	var issues []parser.Issue
	for i := range spec.Tasks {
		task := &spec.Tasks[i]
		typ, err := registry.Get(task.TaskType)
		if err != nil {
			continue
		}
		_, err = resolver.Resolve(typ.Schema, task.TaskType, task.Name, config.WorkflowParams(task), config.OverridesFor(overrides, task.Name))
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			for _, problem := range cfgErr.Problems {
				issues = append(issues, parser.Issue{Task: task.Name, Message: problem})
			}
		}
	}
	return issues
}
