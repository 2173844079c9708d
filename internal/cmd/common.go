package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harrison/briefflow/internal/config"
	"github.com/harrison/briefflow/internal/ledger"
	"github.com/harrison/briefflow/internal/models"
	"github.com/harrison/briefflow/internal/parser"
	"github.com/harrison/briefflow/internal/tasks"
)

// addConfigFlags registers the flags every command uses to find its config,
// ledger and workflow file.
func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "Path to config file (default: .briefflow/config.yaml)")
	cmd.Flags().String("database", "", "Ledger location: SQLite file path or postgres:// URL")
	cmd.Flags().String("workflow-file", "", "Workflow definition file (YAML or HCL)")
}

// loadConfig reads the config file, applies the environment and then any
// flags the user set, and validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	var cfg *config.Config
	var err error

	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	} else {
		cfg, err = config.LoadConfigFromDir(".")
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	cfg.ApplyEnvironment(os.Getenv)
	cfg.MergeWithFlags(
		changedInt(cmd, "max-concurrency"),
		changedString(cmd, "database"),
		changedString(cmd, "workflow-file"),
		changedString(cmd, "env"),
		changedString(cmd, "log-dir"),
		changedString(cmd, "log-level"),
		changedString(cmd, "metrics-addr"),
	)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// changedString returns the flag value only when the user set it.
func changedString(cmd *cobra.Command, name string) *string {
	if f := cmd.Flags().Lookup(name); f == nil || !f.Changed {
		return nil
	}
	v, _ := cmd.Flags().GetString(name)
	return &v
}

func changedInt(cmd *cobra.Command, name string) *int {
	if f := cmd.Flags().Lookup(name); f == nil || !f.Changed {
		return nil
	}
	v, _ := cmd.Flags().GetInt(name)
	return &v
}

// stateDir is where lock files live: next to a SQLite ledger, or under
// .briefflow for PostgreSQL.
func stateDir(cfg *config.Config) string {
	if ledger.IsPostgres(cfg.Database) {
		return ".briefflow"
	}
	return filepath.Dir(cfg.Database)
}

// openLedger opens the configured ledger.
func openLedger(ctx context.Context, cfg *config.Config) (ledger.Ledger, error) {
	l, err := ledger.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %s: %w", cfg.Database, err)
	}
	return l, nil
}

// loadWorkflow reads the definition file and validates one workflow. Every
// validation issue is printed to out and the error carries ExitValidation.
func loadWorkflow(out io.Writer, path, name string, registry *tasks.Registry) (*models.WorkflowSpec, error) {
	defs, err := parser.LoadFile(path)
	if err != nil {
		return nil, &ExitError{Code: ExitValidation, Err: fmt.Errorf("failed to load workflow file: %w", err)}
	}

	spec, err := defs.Workflow(name, registry)
	if err != nil {
		if errors.Is(err, parser.ErrWorkflowNotFound) {
			return nil, &ExitError{Code: ExitValidation, Err: err}
		}
		printIssues(out, name, parser.Issues(err))
		return nil, &ExitError{Code: ExitValidation, Err: err}
	}
	return spec, nil
}

func printIssues(out io.Writer, workflow string, issues []parser.Issue) {
	if len(issues) == 0 {
		return
	}
	fmt.Fprintf(out, "Workflow %s has %d issue(s):\n", workflow, len(issues))
	for _, issue := range issues {
		fmt.Fprintf(out, "  - %s\n", issue)
	}
}
