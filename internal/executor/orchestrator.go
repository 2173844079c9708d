package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/harrison/briefflow/internal/config"
	"github.com/harrison/briefflow/internal/events"
	"github.com/harrison/briefflow/internal/ledger"
	"github.com/harrison/briefflow/internal/models"
	"github.com/harrison/briefflow/internal/parser"
	"github.com/harrison/briefflow/internal/tasks"
)

// Logger defines the interface for logging run progress and results.
type Logger interface {
	LogRunStart(state *models.RunState, resumed bool)
	LogTaskStart(runID string, task *models.TaskSpec)
	LogTaskResult(runID string, result models.TaskResult)
	LogReviewPending(cp *models.ReviewCheckpoint)
	LogSummary(summary models.RunSummary)
	LogWarn(format string, args ...interface{})
}

// Metrics receives run, task and review observations.
type Metrics interface {
	RunStarted(workflow string)
	RunFinished(workflow string, status models.RunStatus, d time.Duration)
	TaskFinished(workflow, taskType string, result models.TaskResult)
	ReviewOpened(workflow string)
	ReviewClosed(workflow string, decision models.Decision)
}

// Options tunes an Orchestrator.
type Options struct {
	// MaxConcurrency is the number of worker slots. A task waiting for review holds none.
	MaxConcurrency int
	// TaskTimeout bounds an attempt of a task without its own timeout (0 = none).
	TaskTimeout time.Duration
	// MaxRetries bounds retries of a task without its own max_retries.
	MaxRetries int
	// RetryInterval is the initial backoff delay between attempts.
	RetryInterval time.Duration
	// ReviewPollInterval is how often a waiting review checks the ledger.
	ReviewPollInterval time.Duration
	// NoWait stops the run with status awaiting_review instead of blocking on reviews.
	NoWait bool
	// Overrides is the CLI parameter layer by task name; "*" applies to every task.
	Overrides map[string]map[string]any
}

// Orchestrator drives workflow runs. Every run gets its own state, worker slots
// and write lock, so one Orchestrator can drive several runs at once.
type Orchestrator struct {
	registry *tasks.Registry
	resolver *config.Resolver
	ledger   ledger.Ledger
	gate     *ReviewGate
	executor *TaskExecutor
	opts     Options

	logger    Logger
	metrics   Metrics
	publisher events.Publisher

	now      func() time.Time
	newRunID func() string
}

// NewOrchestrator creates an Orchestrator. The resolver may be nil, in which
// case only defaults, workflow params and overrides apply.
func NewOrchestrator(registry *tasks.Registry, resolver *config.Resolver, l ledger.Ledger, opts Options) *Orchestrator {
	if registry == nil {
		panic("task registry cannot be nil")
	}
	if l == nil {
		panic("ledger cannot be nil")
	}
	if resolver == nil {
		resolver = config.NewResolver(nil, nil, nil, "")
	}
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 1
	}

	te := NewTaskExecutor(registry, opts.TaskTimeout, opts.MaxRetries)
	if opts.RetryInterval > 0 {
		te.RetryInterval = opts.RetryInterval
	}

	return &Orchestrator{
		registry:  registry,
		resolver:  resolver,
		ledger:    l,
		gate:      NewReviewGate(l, opts.ReviewPollInterval),
		executor:  te,
		opts:      opts,
		logger:    nopLogger{},
		metrics:   nopMetrics{},
		publisher: events.NoOpPublisher{},
		now:       time.Now,
		newRunID:  uuid.NewString,
	}
}

// SetLogger sets the progress logger. Nil disables logging.
func (o *Orchestrator) SetLogger(l Logger) {
	if l == nil {
		l = nopLogger{}
	}
	o.logger = l
}

// SetMetrics sets the metrics sink. Nil disables metrics.
func (o *Orchestrator) SetMetrics(m Metrics) {
	if m == nil {
		m = nopMetrics{}
	}
	o.metrics = m
}

// SetPublisher sets the event publisher. Nil disables events.
func (o *Orchestrator) SetPublisher(p events.Publisher) {
	if p == nil {
		p = events.NoOpPublisher{}
	}
	o.publisher = p
}

// Gate returns the review gate, for submitting decisions in-process.
func (o *Orchestrator) Gate() *ReviewGate {
	return o.gate
}

// NewRun validates spec and records a fresh run with every task pending.
func (o *Orchestrator) NewRun(ctx context.Context, spec *models.WorkflowSpec) (*models.RunState, error) {
	if err := parser.Validate(spec, o.registry); err != nil {
		return nil, err
	}
	state := models.NewRunState(o.newRunID(), spec, o.now().UTC())
	if err := o.ledger.CreateRun(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	return state, nil
}

// FindResumable returns the latest interrupted run of a workflow, or nil when
// its latest run finished. Cancelled and failed runs are never picked up here.
func (o *Orchestrator) FindResumable(ctx context.Context, workflow string) (*models.RunState, error) {
	state, err := o.ledger.LatestRun(ctx, workflow)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	switch state.Status {
	case models.RunRunning, models.RunAwaitingReview:
		return state, nil
	default:
		return nil, nil
	}
}

// PrepareResume loads a recorded run of spec and resets the tasks that must
// run again. Running tasks always restart from scratch. Failed and skipped
// tasks are retried only when explicit is true, which is also required for
// cancelled and failed runs; otherwise they keep their recorded outcome.
// Succeeded tasks keep their artifacts and tasks awaiting review go back to
// the gate.
func (o *Orchestrator) PrepareResume(ctx context.Context, spec *models.WorkflowSpec, runID string, explicit bool) (*models.RunState, error) {
	if err := parser.Validate(spec, o.registry); err != nil {
		return nil, err
	}

	state, err := o.ledger.Load(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	if state.Workflow != spec.Name {
		return nil, fmt.Errorf("run %s belongs to workflow %s, not %s: %w", runID, state.Workflow, spec.Name, ErrNotResumable)
	}
	if state.Fingerprint != spec.Fingerprint() {
		return nil, fmt.Errorf("run %s: %w", runID, ErrFingerprintMismatch)
	}
	switch state.Status {
	case models.RunSucceeded:
		return nil, fmt.Errorf("run %s already succeeded: %w", runID, ErrNotResumable)
	case models.RunCancelled, models.RunFailed:
		if !explicit {
			return nil, fmt.Errorf("run %s is %s and must be resumed explicitly: %w", runID, state.Status, ErrNotResumable)
		}
	}

	state.Spec = spec
	for _, name := range spec.TaskNames() {
		if r, ok := state.Results[name]; ok && !needsReset(r.Status, explicit) {
			continue
		}
		reset := &models.TaskResult{TaskName: name, Status: models.StatusPending}
		if err := o.ledger.Record(ctx, runID, reset); err != nil {
			return nil, fmt.Errorf("failed to reset task %s: %w", name, err)
		}
		state.Results[name] = reset
	}
	if !explicit {
		if err := o.skipBehindFailures(ctx, state); err != nil {
			return nil, err
		}
	}

	if err := o.ledger.SetRunStatus(ctx, runID, models.RunRunning, time.Time{}); err != nil {
		return nil, fmt.Errorf("failed to reopen run %s: %w", runID, err)
	}
	state.Status = models.RunRunning
	state.FinishedAt = time.Time{}
	return state, nil
}

func needsReset(status models.TaskStatus, explicit bool) bool {
	switch status {
	case models.StatusRunning:
		return true
	case models.StatusFailed, models.StatusSkipped:
		return explicit
	default:
		return false
	}
}

// skipBehindFailures finishes fail-forward for a run stopped between recording
// a failure and skipping its dependents.
func (o *Orchestrator) skipBehindFailures(ctx context.Context, state *models.RunState) error {
	sched, err := NewScheduler(state.Spec)
	if err != nil {
		return err
	}
	for _, name := range sched.Order() {
		if state.StatusOf(name) != models.StatusFailed {
			continue
		}
		for _, dep := range sched.SkipDependents(state, name) {
			if err := o.ledger.Record(ctx, state.RunID, state.Results[dep]); err != nil {
				return fmt.Errorf("failed to skip task %s: %w", dep, err)
			}
		}
	}
	return nil
}

// Execute drives a prepared run until no task can make progress. It returns the
// final state with nil for success, a *RunError for task failures, ErrCancelled
// when ctx was cancelled, and ErrSuspended when reviews are still pending.
func (o *Orchestrator) Execute(ctx context.Context, state *models.RunState) (*models.RunState, error) {
	if state == nil || state.Spec == nil {
		return nil, fmt.Errorf("run state with an attached workflow spec is required")
	}
	sched, err := NewScheduler(state.Spec)
	if err != nil {
		return nil, err
	}

	r := &run{
		o:        o,
		state:    state,
		sched:    sched,
		sem:      semaphore.NewWeighted(int64(o.opts.MaxConcurrency)),
		wake:     make(chan struct{}, 1),
		inFlight: make(map[string]bool),
		errs:     make(map[string]*TaskExecutionError),
		storeCtx: context.WithoutCancel(ctx),
	}

	resumed := len(state.Results) > 0 && state.Counts()[models.StatusPending] < len(state.Results)
	o.logger.LogRunStart(state, resumed)
	o.metrics.RunStarted(state.Workflow)
	r.publish(events.New(events.RunStarted, state.RunID, state.Workflow))

	started := o.now()
	r.loop(ctx)
	return r.finish(ctx, started)
}

// run is the mutable state of one Execute call.
type run struct {
	o     *Orchestrator
	state *models.RunState
	sched *Scheduler
	sem   *semaphore.Weighted
	wg    sync.WaitGroup
	wake  chan struct{}

	// storeCtx outlives cancellation so that the final transitions are recorded.
	storeCtx context.Context
	stop     context.CancelFunc

	// mu is the per-run write lock: ledger record, state update and ready-set
	// computation happen under it.
	mu       sync.Mutex
	inFlight map[string]bool
	errs     map[string]*TaskExecutionError
	storeErr error
}

func (r *run) loop(ctx context.Context) {
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	r.stop = stop

	// reviews suspended by an earlier invocation go straight back to the gate
	for _, name := range r.sched.Order() {
		if r.state.StatusOf(name) == models.StatusAwaitingReview {
			r.start(name)
			go r.resumeReview(runCtx, name)
		}
	}

	for runCtx.Err() == nil {
		r.mu.Lock()
		if r.sched.Stalled(r.state, len(r.inFlight)) {
			r.mu.Unlock()
			break
		}
		var ready []string
		for _, name := range r.sched.ReadyTasks(r.state) {
			if !r.inFlight[name] {
				ready = append(ready, name)
			}
		}
		r.mu.Unlock()

		if len(ready) == 0 {
			select {
			case <-r.wake:
			case <-runCtx.Done():
			}
			continue
		}

		for _, name := range ready {
			if err := r.sem.Acquire(runCtx, 1); err != nil {
				break
			}
			r.start(name)
			go r.runTask(runCtx, name)
		}
	}

	r.wg.Wait()
}

func (r *run) start(name string) {
	r.mu.Lock()
	r.inFlight[name] = true
	r.mu.Unlock()
	r.wg.Add(1)
}

func (r *run) done(name string) {
	r.mu.Lock()
	delete(r.inFlight, name)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
	r.wg.Done()
}

func (r *run) runTask(ctx context.Context, name string) {
	held := true
	release := func() {
		if held {
			r.sem.Release(1)
			held = false
		}
	}
	defer func() {
		release()
		r.done(name)
	}()

	spec, _ := r.state.Spec.Task(name)
	typ, err := r.o.registry.Get(spec.TaskType)
	if err != nil {
		r.failTask(r.failedBeforeStart(name, ClassFatal, err), NewTaskExecutionError(name, ClassFatal, err))
		return
	}

	overrides := config.OverridesFor(r.o.opts.Overrides, name)
	if spec.HumanReview {
		rerun, err := r.rerunOverrides(name)
		if err != nil {
			r.storeFailed(err)
			return
		}
		overrides = config.Merge(
			config.Layer{Source: config.SourceCLI, Values: overrides},
			config.Layer{Source: config.SourceCLI, Values: rerun},
		)
	}

	params, err := r.o.resolver.Resolve(typ.Schema, spec.TaskType, spec.Name, config.WorkflowParams(spec), overrides)
	if err != nil {
		r.failTask(r.failedBeforeStart(name, ClassConfig, err), NewTaskExecutionError(name, ClassConfig, err))
		return
	}

	preds := r.predecessorArtifacts(name)
	if !r.record(models.TaskResult{TaskName: name, Status: models.StatusRunning, StartedAt: r.o.now()}) {
		return
	}
	r.o.logger.LogTaskStart(r.state.RunID, spec)
	r.publish(r.taskEvent(events.TaskStarted, models.TaskResult{TaskName: name, Status: models.StatusRunning}))

	result, err := r.o.executor.Execute(ctx, spec, params, preds)
	if err != nil {
		var te *TaskExecutionError
		if !errors.As(err, &te) {
			te = NewTaskExecutionError(name, Classify(err), err)
		}
		if te.Class == ClassCancelled {
			result.Status = models.StatusSkipped
			if r.record(result) {
				r.observe(spec.TaskType, result)
			}
			return
		}
		r.failTask(result, te)
		return
	}

	if !spec.HumanReview {
		if r.record(result) {
			r.observe(spec.TaskType, result)
		}
		return
	}

	// the slot goes back to the pool while a reviewer decides
	release()
	r.openReview(ctx, spec, result)
}

// rerunOverrides returns the parameter overrides a reviewer attached to a
// rerun decision on the task's latest checkpoint, or nil.
func (r *run) rerunOverrides(name string) (map[string]any, error) {
	cp, err := r.o.gate.latest(r.storeCtx, r.state.RunID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoints of %s: %w", name, err)
	}
	if cp == nil || cp.Decision != models.DecisionRerun {
		return nil, nil
	}
	return cp.Payload, nil
}

func (r *run) failedBeforeStart(name string, class ErrorClass, err error) models.TaskResult {
	now := r.o.now()
	return models.TaskResult{
		TaskName:   name,
		Status:     models.StatusFailed,
		Error:      err.Error(),
		ErrorClass: string(class),
		StartedAt:  now,
		FinishedAt: now,
	}
}

// predecessorArtifacts returns the recorded artifacts of the direct dependencies.
// The executor copies them before handing them to the task.
func (r *run) predecessorArtifacts(name string) map[string]models.Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()

	preds := make(map[string]models.Artifact)
	for _, dep := range r.sched.Dependencies(name) {
		if res, ok := r.state.Results[dep]; ok {
			preds[dep] = res.Artifact
		}
	}
	return preds
}

func (r *run) openReview(ctx context.Context, spec *models.TaskSpec, candidate models.TaskResult) {
	cp, err := r.o.gate.Open(r.storeCtx, r.state.RunID, spec.Name, candidate.Artifact)
	if err != nil {
		r.storeFailed(err)
		return
	}

	candidate.Status = models.StatusAwaitingReview
	if !r.record(candidate) {
		return
	}
	r.o.logger.LogReviewPending(cp)
	r.o.metrics.ReviewOpened(r.state.Workflow)
	e := r.taskEvent(events.ReviewPending, candidate)
	e.CheckpointID = cp.ID
	r.publish(e)

	r.awaitDecision(ctx, spec, candidate, cp)
}

// resumeReview picks up a task left awaiting review by an earlier invocation.
func (r *run) resumeReview(ctx context.Context, name string) {
	defer r.done(name)

	spec, _ := r.state.Spec.Task(name)
	r.mu.Lock()
	candidate := *r.state.Results[name]
	r.mu.Unlock()

	cp, err := r.o.gate.latest(ctx, r.state.RunID, name)
	if err != nil {
		if ctx.Err() == nil {
			r.storeFailed(err)
		}
		return
	}
	if cp == nil {
		// no checkpoint was recorded before the stop, so the task runs again
		r.record(models.TaskResult{TaskName: name, Status: models.StatusPending})
		return
	}

	if candidate.Artifact == nil {
		candidate.Artifact = cp.Proposed
	}
	r.o.metrics.ReviewOpened(r.state.Workflow)
	if !cp.Resolved() {
		r.o.logger.LogReviewPending(cp)
	}
	r.awaitDecision(ctx, spec, candidate, cp)
}

// awaitDecision blocks on the gate unless the checkpoint is already decided.
// When the wait ends without a decision the task stays awaiting_review.
func (r *run) awaitDecision(ctx context.Context, spec *models.TaskSpec, candidate models.TaskResult, cp *models.ReviewCheckpoint) {
	if !cp.Resolved() {
		if r.o.opts.NoWait {
			return
		}
		decided, err := r.o.gate.Wait(ctx, cp.ID)
		if err != nil {
			if ctx.Err() == nil {
				r.storeFailed(err)
			}
			return
		}
		cp = decided
	}
	r.applyDecision(spec, candidate, cp)
}

func (r *run) applyDecision(spec *models.TaskSpec, candidate models.TaskResult, cp *models.ReviewCheckpoint) {
	r.o.metrics.ReviewClosed(r.state.Workflow, cp.Decision)
	e := r.taskEvent(events.ReviewDecided, candidate)
	e.CheckpointID = cp.ID
	e.Status = string(cp.Decision)
	r.publish(e)

	if cp.Decision == models.DecisionRerun {
		// back to pending: the loop runs it again and a new checkpoint opens
		r.record(models.TaskResult{TaskName: spec.Name, Status: models.StatusPending})
		return
	}

	result := candidate
	result.FinishedAt = r.o.now()
	if cp.Decision == models.DecisionRejected {
		err := fmt.Errorf("checkpoint %s: %w", cp.ID, ErrReviewRejected)
		result.Status = models.StatusFailed
		result.Artifact = nil
		result.Error = err.Error()
		result.ErrorClass = string(ClassReviewRejected)
		r.failTask(result, NewTaskExecutionError(spec.Name, ClassReviewRejected, err))
		return
	}

	result.Status = models.StatusSucceeded
	result.Artifact = cp.Outcome().Clone()
	if r.record(result) {
		r.observe(spec.TaskType, result)
	}
}

// failTask records a failed result and skips its pending dependents, all under
// the run lock so no dependent can start in between.
func (r *run) failTask(result models.TaskResult, te *TaskExecutionError) {
	r.mu.Lock()
	if !r.recordLocked(result) {
		r.mu.Unlock()
		return
	}
	r.errs[result.TaskName] = te

	var skipped []models.TaskResult
	for _, name := range r.sched.SkipDependents(r.state, result.TaskName) {
		res := *r.state.Results[name]
		if !r.recordLocked(res) {
			break
		}
		skipped = append(skipped, res)
	}
	r.mu.Unlock()

	spec, _ := r.state.Spec.Task(result.TaskName)
	r.observe(spec.TaskType, result)
	for _, res := range skipped {
		dep, _ := r.state.Spec.Task(res.TaskName)
		r.observe(dep.TaskType, res)
	}
}

func (r *run) record(result models.TaskResult) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recordLocked(result)
}

// recordLocked writes the result to the ledger and only then to the state.
func (r *run) recordLocked(result models.TaskResult) bool {
	res := result
	if err := r.o.ledger.Record(r.storeCtx, r.state.RunID, &res); err != nil {
		r.storeFailedLocked(err)
		return false
	}
	r.state.Results[res.TaskName] = &res
	return true
}

func (r *run) storeFailed(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storeFailedLocked(err)
}

// storeFailedLocked stops the run: scheduling more work without a ledger
// would make it unresumable.
func (r *run) storeFailedLocked(err error) {
	if r.storeErr == nil {
		r.storeErr = err
		r.o.logger.LogWarn("ledger write failed, stopping run %s: %v", r.state.RunID, err)
	}
	if r.stop != nil {
		r.stop()
	}
}

func (r *run) observe(taskType string, result models.TaskResult) {
	r.o.logger.LogTaskResult(r.state.RunID, result)
	r.o.metrics.TaskFinished(r.state.Workflow, taskType, result)
	r.publish(r.taskEvent(events.TaskFinished, result))
}

func (r *run) taskEvent(t events.Type, result models.TaskResult) events.Event {
	e := events.New(t, r.state.RunID, r.state.Workflow)
	e.Task = result.TaskName
	e.Status = string(result.Status)
	e.Error = result.Error
	e.ErrorClass = result.ErrorClass
	return e
}

func (r *run) publish(e events.Event) {
	if err := r.o.publisher.Publish(r.storeCtx, e); err != nil {
		r.o.logger.LogWarn("failed to publish %s event: %v", e.Type, err)
	}
}

func (r *run) finish(ctx context.Context, started time.Time) (*models.RunState, error) {
	r.mu.Lock()
	cancelled := ctx.Err() != nil && r.storeErr == nil && !r.sched.IsComplete(r.state)
	if cancelled {
		for _, name := range r.sched.Order() {
			if r.state.StatusOf(name) != models.StatusPending {
				continue
			}
			r.recordLocked(models.TaskResult{
				TaskName:   name,
				Status:     models.StatusSkipped,
				Error:      ErrCancelled.Error(),
				ErrorClass: string(ClassCancelled),
			})
		}
	}

	status := r.finalStatus(cancelled)
	var finishedAt time.Time
	if status != models.RunAwaitingReview {
		finishedAt = r.o.now().UTC()
	}
	if err := r.o.ledger.SetRunStatus(r.storeCtx, r.state.RunID, status, finishedAt); err != nil && r.storeErr == nil {
		r.storeErr = err
		status = models.RunFailed
	}
	r.state.Status = status
	r.state.FinishedAt = finishedAt
	runErr := r.runErrorLocked()
	storeErr := r.storeErr
	r.mu.Unlock()

	r.o.logger.LogSummary(r.state.Summary(r.o.now()))
	r.o.metrics.RunFinished(r.state.Workflow, status, r.o.now().Sub(started))
	e := events.New(events.RunFinished, r.state.RunID, r.state.Workflow)
	e.Status = string(status)
	r.publish(e)

	switch {
	case storeErr != nil:
		return r.state, fmt.Errorf("run %s stopped: ledger write failed: %w", r.state.RunID, storeErr)
	case status == models.RunSucceeded:
		return r.state, nil
	case status == models.RunCancelled:
		return r.state, ErrCancelled
	case status == models.RunAwaitingReview:
		return r.state, fmt.Errorf("run %s: %d review(s) pending: %w", r.state.RunID, r.state.Counts()[models.StatusAwaitingReview], ErrSuspended)
	case runErr != nil:
		return r.state, runErr
	default:
		return r.state, fmt.Errorf("run %s stalled with %d pending tasks", r.state.RunID, r.state.Counts()[models.StatusPending])
	}
}

func (r *run) finalStatus(cancelled bool) models.RunStatus {
	counts := r.state.Counts()
	switch {
	case r.storeErr != nil:
		return models.RunFailed
	case cancelled:
		return models.RunCancelled
	case counts[models.StatusAwaitingReview] > 0:
		return models.RunAwaitingReview
	case counts[models.StatusFailed] > 0:
		return models.RunFailed
	case r.sched.IsComplete(r.state):
		return models.RunSucceeded
	default:
		return models.RunFailed
	}
}

func (r *run) runErrorLocked() *RunError {
	var taskErrs []*TaskExecutionError
	for _, name := range r.sched.Order() {
		res, ok := r.state.Results[name]
		if !ok || res.Status != models.StatusFailed {
			continue
		}
		if te, ok := r.errs[name]; ok {
			taskErrs = append(taskErrs, te)
		} else {
			taskErrs = append(taskErrs, failureFromResult(res))
		}
	}
	if len(taskErrs) == 0 {
		return nil
	}
	return &RunError{
		RunID:      r.state.RunID,
		Workflow:   r.state.Workflow,
		TotalTasks: len(r.state.Spec.Tasks),
		TaskErrors: taskErrs,
	}
}

type nopLogger struct{}

func (nopLogger) LogRunStart(*models.RunState, bool) {}
func (nopLogger) LogTaskStart(string, *models.TaskSpec) {}
func (nopLogger) LogTaskResult(string, models.TaskResult) {}
func (nopLogger) LogReviewPending(*models.ReviewCheckpoint) {}
func (nopLogger) LogSummary(models.RunSummary) {}
func (nopLogger) LogWarn(string, ...interface{}) {}

type nopMetrics struct{}

func (nopMetrics) RunStarted(string) {}
func (nopMetrics) RunFinished(string, models.RunStatus, time.Duration) {}
func (nopMetrics) TaskFinished(string, string, models.TaskResult) {}
func (nopMetrics) ReviewOpened(string) {}
func (nopMetrics) ReviewClosed(string, models.Decision) {}
