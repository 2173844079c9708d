package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/harrison/briefflow/internal/config"
	"github.com/harrison/briefflow/internal/display"
	"github.com/harrison/briefflow/internal/events"
	"github.com/harrison/briefflow/internal/executor"
	"github.com/harrison/briefflow/internal/filelock"
	"github.com/harrison/briefflow/internal/logger"
	"github.com/harrison/briefflow/internal/metrics"
	"github.com/harrison/briefflow/internal/models"
	"github.com/harrison/briefflow/internal/parser"
	"github.com/harrison/briefflow/internal/tasks"
)

// feedCollectionType is the task type that receives --opml feeds.
const feedCollectionType = "feed_collection"

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Execute a workflow",
		Long: `Execute a workflow from the definition file.

Tasks run as soon as their dependencies succeed, up to --max-concurrency at a
time. A failed task skips its dependents; independent branches keep going.
Tasks flagged human_review wait for a decision submitted with
"briefflow review decide".

If the latest run of the workflow was interrupted, it is resumed: succeeded
tasks keep their artifacts and only unfinished work runs again.

Configuration is loaded from .briefflow/config.yaml if present.
CLI flags override configuration file settings.

Examples:
  briefflow run daily_briefing
  briefflow run daily_briefing --opml feeds.opml
  briefflow run daily_briefing --set select.max_topics=3 --set '*.llm.model=mistral'
  briefflow run daily_briefing --env production --max-concurrency 8
  briefflow run daily_briefing --no-wait          # exit 5 instead of waiting on reviews
  briefflow run daily_briefing --resume <run-id>  # resume a failed or cancelled run
  briefflow run daily_briefing --fresh            # ignore any interrupted run`,
		Args: cobra.ExactArgs(1),
		RunE: runCommand,
	}

	addConfigFlags(cmd)
	cmd.Flags().String("opml", "", "OPML file whose feeds are passed to feed_collection tasks")
	cmd.Flags().StringArray("set", nil, "Override a task parameter as task.key=value (task * means every task); repeatable")
	cmd.Flags().String("env", "", "Settings environment (selects settings.<env>.yaml)")
	cmd.Flags().Int("max-concurrency", -1, "Maximum number of concurrent tasks (-1 = use config)")
	cmd.Flags().String("resume", "", "Resume the given run, including failed and cancelled runs")
	cmd.Flags().Bool("fresh", false, "Start a new run even if an interrupted one exists")
	cmd.Flags().Bool("no-wait", false, "Stop with exit code 5 when reviews are pending instead of waiting")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().String("log-dir", "", "Directory for log files")
	cmd.Flags().String("log-level", "", "Log level: trace, debug, info, warn, error")

	return cmd
}

// runCommand implements the run command logic
func runCommand(cmd *cobra.Command, args []string) error {
	workflow := args[0]
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	resumeID, _ := cmd.Flags().GetString("resume")
	fresh, _ := cmd.Flags().GetBool("fresh")
	noWait, _ := cmd.Flags().GetBool("no-wait")
	opmlPath, _ := cmd.Flags().GetString("opml")
	setFlags, _ := cmd.Flags().GetStringArray("set")

	if resumeID != "" && fresh {
		return fmt.Errorf("cannot use both --resume and --fresh")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	overrides, err := config.ParseSetFlags(setFlags)
	if err != nil {
		return err
	}

	registry := tasks.NewDefaultRegistry()
	fmt.Fprintf(out, "Loading workflow %s from %s...\n", workflow, cfg.WorkflowFile)
	spec, err := loadWorkflow(errOut, cfg.WorkflowFile, workflow, registry)
	if err != nil {
		return err
	}

	if opmlPath != "" {
		feeds, err := parser.LoadOPML(opmlPath)
		if err != nil {
			return err
		}
		n := injectFeeds(spec, overrides, feeds)
		fmt.Fprintf(out, "Loaded %d feed(s) from %s into %d task(s)\n", len(feeds), opmlPath, n)
	}

	settings, err := config.LoadSettings(cfg.SettingsDir, cfg.Environment)
	if err != nil {
		return err
	}
	resolver := settings.Resolver(os.Environ(), cfg.EnvPrefix)

	lock := filelock.NewRunLock(stateDir(cfg), workflow)
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer lock.Release()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer l.Close()

	// Console for real-time progress, file for the detailed record
	consoleLog := logger.NewConsoleLogger(out, cfg.LogLevel)
	fileLog, err := logger.NewFileLoggerWithDirAndLevel(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer fileLog.Close()
	multiLog := &multiLogger{loggers: []executor.Logger{consoleLog, fileLog}}

	orch := executor.NewOrchestrator(registry, resolver, l, executor.Options{
		MaxConcurrency:     cfg.MaxConcurrency,
		TaskTimeout:        cfg.TaskTimeout,
		MaxRetries:         cfg.MaxRetries,
		ReviewPollInterval: cfg.ReviewPollInterval,
		NoWait:             noWait,
		Overrides:          overrides,
	})
	orch.SetLogger(multiLog)

	if cfg.AMQPURL != "" {
		pub, err := events.DialAMQP(cfg.AMQPURL, events.DefaultExchange)
		if err != nil {
			display.Warning{
				Title:      "Event publisher unavailable",
				Message:    err.Error(),
				Suggestion: "Check amqp_url; the run continues without publishing events",
			}.Display(errOut)
		} else {
			defer pub.Close()
			orch.SetPublisher(pub)
		}
	}

	var server *metrics.Server
	if cfg.MetricsAddr != "" {
		collectors := metrics.New()
		server, err = collectors.Serve(cfg.MetricsAddr)
		if err != nil {
			return fmt.Errorf("failed to serve metrics on %s: %w", cfg.MetricsAddr, err)
		}
		orch.SetMetrics(collectors)
		fmt.Fprintf(out, "Serving metrics on http://%s/metrics\n", server.Addr())
	}

	state, err := prepareRun(ctx, orch, spec, resumeID, fresh, errOut)
	if err != nil {
		return err
	}

	var final *models.RunState
	var runErr error
	done := make(chan struct{})
	g := new(errgroup.Group)
	g.Go(func() error {
		defer close(done)
		final, runErr = orch.Execute(ctx, state)
		return nil
	})
	if server != nil {
		g.Go(func() error {
			<-done
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}
	if err := g.Wait(); err != nil {
		multiLog.LogWarn("metrics server shutdown: %v", err)
	}

	return reportRun(out, workflow, final, runErr, fileLog.RunFile())
}

// prepareRun picks the run to execute: the explicit --resume run, else the
// latest interrupted run unless --fresh, else a new one.
func prepareRun(ctx context.Context, orch *executor.Orchestrator, spec *models.WorkflowSpec, resumeID string, fresh bool, errOut io.Writer) (*models.RunState, error) {
	runID := resumeID
	if runID == "" && !fresh {
		prev, err := orch.FindResumable(ctx, spec.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to look up previous runs: %w", err)
		}
		if prev != nil {
			runID = prev.RunID
		}
	}
	if runID == "" {
		return orch.NewRun(ctx, spec)
	}

	state, err := orch.PrepareResume(ctx, spec, runID, resumeID != "")
	if errors.Is(err, executor.ErrFingerprintMismatch) {
		display.Warning{
			Title:      "Workflow definition changed",
			Message:    fmt.Sprintf("run %s of %s was recorded for a different definition and cannot be resumed", runID, spec.Name),
			Suggestion: "Start a new run with --fresh, or restore the previous definition",
		}.Display(errOut)
	}
	return state, err
}

// reportRun prints the outcome line and converts the run error to an exit code.
func reportRun(out io.Writer, workflow string, final *models.RunState, runErr error, logFile string) error {
	if final == nil {
		return runErr
	}

	switch {
	case runErr == nil:
		fmt.Fprintf(out, "\nRun %s completed successfully!\n", final.RunID)
	case errors.Is(runErr, executor.ErrSuspended):
		fmt.Fprintf(out, "\nRun %s suspended awaiting review.\n", final.RunID)
		if failed := failedTasks(final); len(failed) > 0 {
			fmt.Fprintf(out, "%d task(s) failed on other branches: %s\n", len(failed), strings.Join(failed, ", "))
		}
		fmt.Fprintf(out, "Decide with \"briefflow review list %s\", then resume with \"briefflow run %s\".\n", final.RunID, workflow)
		runErr = &ExitError{Code: ExitSuspended}
	case errors.Is(runErr, executor.ErrCancelled):
		fmt.Fprintf(out, "\nRun %s cancelled. Resume with \"briefflow run %s --resume %s\".\n", final.RunID, workflow, final.RunID)
		runErr = &ExitError{Code: ExitCancelled}
	default:
		fmt.Fprintf(out, "\nRun %s finished with failures. Retry with \"briefflow run %s --resume %s\".\n", final.RunID, workflow, final.RunID)
	}
	fmt.Fprintf(out, "Logs written to: %s\n", logFile)
	return runErr
}

// failedTasks lists the failed tasks of a run in definition order.
func failedTasks(state *models.RunState) []string {
	var failed []string
	for _, name := range state.Spec.TaskNames() {
		if state.StatusOf(name) == models.StatusFailed {
			failed = append(failed, name)
		}
	}
	return failed
}

// injectFeeds sets the feed list as the CLI-layer feeds parameter of every
// feed_collection task that has no explicit --set feeds, and returns how many
// tasks received it.
func injectFeeds(spec *models.WorkflowSpec, overrides map[string]map[string]any, feeds []parser.Feed) int {
	if _, ok := overrides["*"]["feeds"]; ok {
		return 0
	}

	list := parser.FeedParams(feeds)
	n := 0
	for _, task := range spec.Tasks {
		if task.TaskType != feedCollectionType {
			continue
		}
		if _, ok := overrides[task.Name]["feeds"]; ok {
			continue
		}
		if overrides[task.Name] == nil {
			overrides[task.Name] = make(map[string]any)
		}
		overrides[task.Name]["feeds"] = list
		n++
	}
	return n
}

// multiLogger implements executor.Logger by delegating to multiple loggers
type multiLogger struct {
	loggers []executor.Logger
}

// LogRunStart forwards to all loggers
func (ml *multiLogger) LogRunStart(state *models.RunState, resumed bool) {
	for _, logger := range ml.loggers {
		logger.LogRunStart(state, resumed)
	}
}

// LogTaskStart forwards to all loggers
func (ml *multiLogger) LogTaskStart(runID string, task *models.TaskSpec) {
	for _, logger := range ml.loggers {
		logger.LogTaskStart(runID, task)
	}
}

// LogTaskResult forwards to all loggers
func (ml *multiLogger) LogTaskResult(runID string, result models.TaskResult) {
	for _, logger := range ml.loggers {
		logger.LogTaskResult(runID, result)
	}
}

// LogReviewPending forwards to all loggers
func (ml *multiLogger) LogReviewPending(cp *models.ReviewCheckpoint) {
	for _, logger := range ml.loggers {
		logger.LogReviewPending(cp)
	}
}

// LogSummary forwards to all loggers
func (ml *multiLogger) LogSummary(summary models.RunSummary) {
	for _, logger := range ml.loggers {
		logger.LogSummary(summary)
	}
}

// LogWarn forwards to all loggers
func (ml *multiLogger) LogWarn(format string, args ...interface{}) {
	for _, logger := range ml.loggers {
		logger.LogWarn(format, args...)
	}
}
