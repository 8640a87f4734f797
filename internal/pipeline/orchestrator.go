package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/automakerhq/automaker/internal/events"
	"github.com/automakerhq/automaker/internal/history"
	"github.com/automakerhq/automaker/internal/models"
)

// errHalted signals that the active run was cancelled or superseded while a
// phase was executing. It is never surfaced: the terminal state was already
// recorded by whoever halted the run.
var errHalted = errors.New("deployment halted")

// Orchestrator owns the single current deployment run and drives it through
// the state machine: build steps, deploy steps, health probe, E2E tests. At
// most one run is in flight per process; the claim is a mutex-guarded
// check-and-set so near-simultaneous deploy calls cannot interleave.
type Orchestrator struct {
	configs    *ConfigStore
	executor   *Executor
	probe      *HealthProbe
	summarizer Summarizer
	sink       events.Sink
	history    history.Store
	logger     *slog.Logger

	mu      sync.Mutex
	current *models.DeploymentResult
	cancel  context.CancelFunc
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSink sets the event sink. Defaults to a no-op sink.
func WithSink(sink events.Sink) Option {
	return func(o *Orchestrator) {
		o.sink = sink
	}
}

// WithHistory sets the deployment history store.
func WithHistory(store history.Store) Option {
	return func(o *Orchestrator) {
		o.history = store
	}
}

// WithProbe overrides the health probe.
func WithProbe(probe *HealthProbe) Option {
	return func(o *Orchestrator) {
		o.probe = probe
	}
}

// WithSummarizer overrides the E2E output summarizer.
func WithSummarizer(s Summarizer) Option {
	return func(o *Orchestrator) {
		o.summarizer = s
	}
}

// NewOrchestrator creates a pipeline orchestrator.
func NewOrchestrator(configs *ConfigStore, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		configs:    configs,
		executor:   NewExecutor(logger),
		probe:      NewHealthProbe(logger),
		summarizer: RegexSummarizer{},
		sink:       events.NopSink{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Deploy runs a full deployment for the project and blocks until it reaches
// a terminal state. It returns an error only for preconditions: a run
// already in flight, or no saved configuration. Every failure after the run
// starts is reported through the returned result, never as an error.
func (o *Orchestrator) Deploy(ctx context.Context, projectPath string, trigger models.DeploymentTrigger, featureIDs []string) (*models.DeploymentResult, error) {
	result, runCtx, err := o.claim(ctx, projectPath, trigger, featureIDs)
	if err != nil {
		return nil, err
	}
	o.run(runCtx, result)
	return o.snapshot(result), nil
}

// DeployAsync claims the deployment slot synchronously, subject to the same
// preconditions as Deploy, then executes the pipeline in the background. It
// returns a snapshot of the freshly started run.
func (o *Orchestrator) DeployAsync(ctx context.Context, projectPath string, trigger models.DeploymentTrigger, featureIDs []string) (*models.DeploymentResult, error) {
	result, runCtx, err := o.claim(ctx, projectPath, trigger, featureIDs)
	if err != nil {
		return nil, err
	}
	go o.run(runCtx, result)
	return o.snapshot(result), nil
}

// claim performs the atomic check-and-set that enforces at-most-one run in
// flight. No suspension point sits between the running check and marking
// the new result as current.
func (o *Orchestrator) claim(ctx context.Context, projectPath string, trigger models.DeploymentTrigger, featureIDs []string) (*models.DeploymentResult, context.Context, error) {
	if trigger == "" {
		trigger = models.TriggerManual
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current != nil && o.current.Status.IsActive() {
		return nil, nil, ErrDeploymentInProgress
	}
	if !o.configs.Has(projectPath) {
		return nil, nil, fmt.Errorf("%w: %s", ErrConfigNotFound, projectPath)
	}

	result := &models.DeploymentResult{
		ID:            newDeploymentID(),
		ProjectPath:   projectPath,
		StartedAt:     time.Now(),
		Status:        models.DeploymentStatusBuilding,
		BuildResults:  []models.StepResult{},
		DeployResults: []models.StepResult{},
		Trigger:       trigger,
		FeatureIDs:    featureIDs,
	}

	// The run must outlive the caller's request context; cancellation goes
	// through Cancel instead.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.current = result
	o.cancel = cancel

	return result, runCtx, nil
}

// run drives one claimed deployment to a terminal state. All failures are
// funneled into the failed terminal state; nothing propagates to the caller.
func (o *Orchestrator) run(ctx context.Context, result *models.DeploymentResult) {
	defer func() {
		if rec := recover(); rec != nil {
			o.finishFailed(result, fmt.Errorf("internal error: %v", rec))
		}
	}()

	cfg := o.configs.Get(result.ProjectPath)

	o.logger.Info("deployment started",
		"deployment_id", result.ID,
		"project", result.ProjectPath,
		"trigger", result.Trigger,
		"build_steps", len(cfg.BuildSteps),
		"deploy_steps", len(cfg.DeploySteps),
	)
	o.emitIfActive(result, events.New(events.TypeDeploymentStarted, result.ID, &events.Data{
		Status: string(models.DeploymentStatusBuilding),
	}))

	if err := o.execute(ctx, cfg, result); err != nil {
		o.finishFailed(result, err)
		return
	}
	o.finishSuccess(result)
}

// execute walks the pipeline phases in order and returns the first fatal
// error, or nil on full success.
func (o *Orchestrator) execute(ctx context.Context, cfg *models.DeploymentConfig, result *models.DeploymentResult) error {
	if err := o.runSteps(ctx, result, cfg.BuildSteps, buildPhase); err != nil {
		return err
	}

	if !o.transition(result, models.DeploymentStatusDeploying) {
		return errHalted
	}
	if err := o.runSteps(ctx, result, cfg.DeploySteps, deployPhase); err != nil {
		return err
	}

	if cfg.HealthCheckURL != "" {
		if err := o.runHealthCheck(ctx, cfg, result); err != nil {
			return err
		}
	}

	if cfg.E2ETests != nil {
		if err := o.runE2E(ctx, cfg.E2ETests, result); err != nil {
			return err
		}
	}
	return nil
}

// stepPhase binds a step list to its event types and result list.
type stepPhase struct {
	label     string
	started   events.Type
	completed events.Type
	build     bool
}

var (
	buildPhase  = stepPhase{label: "build", started: events.TypeBuildStepStarted, completed: events.TypeBuildStepCompleted, build: true}
	deployPhase = stepPhase{label: "deploy", started: events.TypeDeployStepStarted, completed: events.TypeDeployStepCompleted}
)

// runSteps executes the phase's steps strictly in order. A failed step
// aborts the phase immediately unless it is marked continueOnError; steps
// after an aborting failure never run.
func (o *Orchestrator) runSteps(ctx context.Context, result *models.DeploymentResult, steps []models.DeploymentStep, ph stepPhase) error {
	for _, step := range steps {
		if !o.emitIfActive(result, events.New(ph.started, result.ID, &events.Data{StepName: step.Name})) {
			return errHalted
		}

		res := o.executor.Run(ctx, result.ProjectPath, step)

		if !o.appendStepResult(result, res, ph) {
			return errHalted
		}
		o.emitIfActive(result, events.New(ph.completed, result.ID, &events.Data{
			StepName: res.StepName,
			Status:   string(res.Status),
			Output:   res.Output,
			Error:    res.Error,
		}))

		if res.Status == models.StepStatusFailed {
			if step.ContinueOnError {
				o.logger.Warn("step failed, continuing",
					"deployment_id", result.ID,
					"phase", ph.label,
					"step", step.Name,
					"error", res.Error,
				)
				continue
			}
			return fmt.Errorf("%s step %q failed: %s", ph.label, step.Name, res.Error)
		}
	}
	return nil
}

// runHealthCheck blocks until the deploy-level health URL responds or its
// deadline elapses. A missed deadline is always fatal; there is no
// continue-on-error for health checks.
func (o *Orchestrator) runHealthCheck(ctx context.Context, cfg *models.DeploymentConfig, result *models.DeploymentResult) error {
	if !o.transition(result, models.DeploymentStatusWaitingForHealth) {
		return errHalted
	}
	o.emitIfActive(result, events.New(events.TypeHealthCheckStarted, result.ID, &events.Data{
		Output: cfg.HealthCheckURL,
	}))

	ok := o.probe.Await(ctx, cfg.HealthCheckURL, cfg.HealthCheckTimeout())

	status := string(models.StepStatusSuccess)
	errMsg := ""
	if !ok {
		status = string(models.StepStatusFailed)
		errMsg = fmt.Sprintf("health check failed: %s not reachable within %dms",
			cfg.HealthCheckURL, cfg.HealthCheckTimeout().Milliseconds())
	}
	o.emitIfActive(result, events.New(events.TypeHealthCheckComplete, result.ID, &events.Data{
		Status: status,
		Error:  errMsg,
	}))

	if !ok {
		return errors.New(errMsg)
	}
	return nil
}

// runE2E waits for the E2E target URL when configured, runs the test
// command, and parses pass/fail/skip counts out of the output. A failed
// test run or a missed wait deadline is always fatal.
func (o *Orchestrator) runE2E(ctx context.Context, cfg *models.E2ETestConfig, result *models.DeploymentResult) error {
	if !o.transition(result, models.DeploymentStatusRunningTests) {
		return errHalted
	}
	o.emitIfActive(result, events.New(events.TypeE2EStarted, result.ID, nil))

	// The E2E wait target is independent of the deploy-level health check,
	// so tests can await a different endpoint.
	if cfg.WaitForURL != "" {
		if !o.probe.Await(ctx, cfg.WaitForURL, cfg.WaitTimeout()) {
			return fmt.Errorf("e2e tests aborted: %s not reachable within %dms",
				cfg.WaitForURL, cfg.WaitTimeout().Milliseconds())
		}
	}

	step := models.DeploymentStep{
		Name:             "e2e",
		Command:          cfg.Command,
		WorkingDirectory: cfg.WorkingDirectory,
		Env:              cfg.Env,
		TimeoutMs:        cfg.Timeout().Milliseconds(),
	}
	res := o.executor.Run(ctx, result.ProjectPath, step)

	summary := o.summarizer.Summarize(res.Output)
	e2e := &models.E2ETestResult{
		Status:     models.E2EStatusPassed,
		Output:     res.Output,
		Error:      res.Error,
		DurationMs: res.DurationMs,
		Passed:     summary.Passed,
		Failed:     summary.Failed,
		Skipped:    summary.Skipped,
	}
	if res.Status == models.StepStatusFailed {
		e2e.Status = models.E2EStatusFailed
	}

	if !o.setE2EResult(result, e2e) {
		return errHalted
	}
	o.emitIfActive(result, events.New(events.TypeE2EOutput, result.ID, &events.Data{
		Output: res.Output,
	}))
	o.emitIfActive(result, events.New(events.TypeE2ECompleted, result.ID, &events.Data{
		Status: string(e2e.Status),
		Error:  e2e.Error,
		Result: e2e,
	}))

	if e2e.Status == models.E2EStatusFailed {
		if e2e.Error != "" {
			return fmt.Errorf("e2e tests failed: %s", e2e.Error)
		}
		return errors.New("e2e tests failed")
	}
	return nil
}

// Cancel aborts the in-flight deployment: the run is marked failed, the
// terminal event is emitted, and the run context is cancelled so the active
// subprocess receives a termination signal. It reports whether anything was
// cancelled; calling it with no run in flight has no observable effect.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()

	if o.current == nil || !o.current.Status.IsActive() {
		o.mu.Unlock()
		return false
	}

	result := o.current
	cancel := o.cancel
	now := time.Now()
	result.Status = models.DeploymentStatusFailed
	result.Error = CancelledMessage
	result.FinishedAt = &now
	o.sink.Publish(events.New(events.TypeDeploymentFailed, result.ID, &events.Data{
		Status: string(models.DeploymentStatusFailed),
		Error:  CancelledMessage,
	}))
	snapshot := result.Clone()
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.logger.Info("deployment cancelled", "deployment_id", result.ID)
	o.record(snapshot)
	return true
}

// Current returns a snapshot of the current deployment, or nil if none has
// run yet.
func (o *Orchestrator) Current() *models.DeploymentResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current.Clone()
}

// IsRunning reports whether a deployment is in flight.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current != nil && o.current.Status.IsActive()
}

// History returns recent deployment results, newest first. Without a
// history store only the retained most-recent result is available.
func (o *Orchestrator) History(ctx context.Context, limit int) ([]*models.DeploymentResult, error) {
	if o.history != nil {
		return o.history.List(ctx, limit)
	}
	if current := o.Current(); current != nil {
		return []*models.DeploymentResult{current}, nil
	}
	return []*models.DeploymentResult{}, nil
}

// transition moves the run to a new status. It returns false when the run
// is no longer current or already terminal, which halts the pipeline
// without touching the recorded outcome.
func (o *Orchestrator) transition(result *models.DeploymentResult, status models.DeploymentStatus) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.activeLocked(result) {
		return false
	}
	result.Status = status
	return true
}

// appendStepResult appends a step result to the phase's list.
func (o *Orchestrator) appendStepResult(result *models.DeploymentResult, res models.StepResult, ph stepPhase) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.activeLocked(result) {
		return false
	}
	if ph.build {
		result.BuildResults = append(result.BuildResults, res)
	} else {
		result.DeployResults = append(result.DeployResults, res)
	}
	return true
}

func (o *Orchestrator) setE2EResult(result *models.DeploymentResult, e2e *models.E2ETestResult) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.activeLocked(result) {
		return false
	}
	result.E2EResult = e2e
	return true
}

// emitIfActive publishes an event for the run unless it was cancelled or
// superseded. Emission happens under the orchestrator lock so the terminal
// event recorded by Cancel or finish is always the last one observed for a
// given deployment.
func (o *Orchestrator) emitIfActive(result *models.DeploymentResult, ev *events.Event) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.activeLocked(result) {
		return false
	}
	o.sink.Publish(ev)
	return true
}

func (o *Orchestrator) activeLocked(result *models.DeploymentResult) bool {
	return o.current == result && result.Status.IsActive()
}

func (o *Orchestrator) finishSuccess(result *models.DeploymentResult) {
	o.mu.Lock()
	if !o.activeLocked(result) {
		o.mu.Unlock()
		return
	}
	now := time.Now()
	result.Status = models.DeploymentStatusSuccess
	result.FinishedAt = &now
	snapshot := result.Clone()
	o.sink.Publish(events.New(events.TypeDeploymentCompleted, result.ID, &events.Data{
		Status: string(models.DeploymentStatusSuccess),
		Result: snapshot,
	}))
	o.mu.Unlock()

	o.logger.Info("deployment completed",
		"deployment_id", result.ID,
		"duration", now.Sub(result.StartedAt).String(),
	)
	o.record(snapshot)
}

func (o *Orchestrator) finishFailed(result *models.DeploymentResult, err error) {
	if errors.Is(err, errHalted) {
		return
	}

	o.mu.Lock()
	if !o.activeLocked(result) {
		o.mu.Unlock()
		return
	}
	now := time.Now()
	result.Status = models.DeploymentStatusFailed
	result.Error = err.Error()
	result.FinishedAt = &now
	snapshot := result.Clone()
	o.sink.Publish(events.New(events.TypeDeploymentFailed, result.ID, &events.Data{
		Status: string(models.DeploymentStatusFailed),
		Error:  result.Error,
	}))
	o.mu.Unlock()

	o.logger.Error("deployment failed",
		"deployment_id", result.ID,
		"error", err,
	)
	o.record(snapshot)
}

// snapshot returns a clone of the result taken under the lock.
func (o *Orchestrator) snapshot(result *models.DeploymentResult) *models.DeploymentResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return result.Clone()
}

// record appends a terminal result to the history store, best effort.
func (o *Orchestrator) record(snapshot *models.DeploymentResult) {
	if o.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.history.Append(ctx, snapshot); err != nil {
		o.logger.Warn("failed to record deployment history",
			"deployment_id", snapshot.ID,
			"error", err,
		)
	}
}

// newDeploymentID builds a time-ordered, collision-resistant deployment ID.
func newDeploymentID() string {
	return fmt.Sprintf("deploy-%d-%s", time.Now().UnixMilli(), uuid.New().String()[:8])
}
