// Package orchestrator sequences interdependent business workflows within a
// process: dependency-graph scheduling, bounded parallel execution, retries,
// timeouts, compensation, and reverse-order rollback on process failure.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ledgerflow/ledgerflow/pkg/eventbus"
	"github.com/ledgerflow/ledgerflow/pkg/events"
	"github.com/ledgerflow/ledgerflow/pkg/models"
	"github.com/ledgerflow/ledgerflow/pkg/registry"
	"github.com/ledgerflow/ledgerflow/pkg/services"
)

const (
	defaultMaxParallelExecutions = 10
	defaultTimeout               = 5 * time.Minute
	defaultPollInterval          = 50 * time.Millisecond
)

// Config bounds the orchestrator's scheduling behavior.
type Config struct {
	// MaxParallelExecutions caps concurrently running workflow instances
	// regardless of how many are ready in a scheduling iteration.
	MaxParallelExecutions int

	// DefaultTimeout applies to workflow executions whose definition does
	// not declare one.
	DefaultTimeout time.Duration

	// PollInterval is the wait between scheduling iterations while the
	// process is paused or workflows are suspended at approval gates.
	PollInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxParallelExecutions <= 0 {
		c.MaxParallelExecutions = defaultMaxParallelExecutions
	}

	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = defaultTimeout
	}

	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
}

// processRun pairs an active process execution with the lock guarding its
// mutable state. Cross-workflow data sharing happens exclusively through
// output-data propagation at dependency resolution time.
type processRun struct {
	mu   sync.Mutex
	exec *models.ProcessExecution
}

// Orchestrator executes process definitions. Multiple orchestrator instances
// can coexist; the active-process table is owned per instance, inserted at
// run start and removed at run end.
type Orchestrator struct {
	registry  *registry.Registry
	deps      *services.Dependencies
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	validate  *validator.Validate
	config    Config

	mu     sync.RWMutex
	active map[string]*processRun
}

// Option configures an orchestrator at construction.
type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

func WithDependencies(deps *services.Dependencies) Option {
	return func(o *Orchestrator) { o.deps = deps }
}

func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(o *Orchestrator) { o.publisher = publisher }
}

func WithConfig(config Config) Option {
	return func(o *Orchestrator) { o.config = config }
}

func New(reg *registry.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: reg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		active:   make(map[string]*processRun),
	}

	for _, opt := range opts {
		opt(o)
	}

	o.config.applyDefaults()

	if o.logger == nil {
		o.logger = slog.Default()
	}

	o.logger = o.logger.With("module", "orchestrator")

	return o
}

// ExecuteProcess validates the definition, then runs the scheduling loop
// until every workflow terminates or no progress is possible. The returned
// execution carries per-workflow results and output data; expected failures
// surface through its status, not the error return.
func (o *Orchestrator) ExecuteProcess(ctx context.Context, req *models.ProcessExecutionRequest) (*models.ProcessExecution, error) {
	if err := o.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid process execution request: %w", err)
	}

	def := req.ProcessDefinition

	if err := o.ValidateDefinition(def); err != nil {
		return nil, err
	}

	exec := &models.ProcessExecution{
		ExecutionID:        "proc-" + uuid.New().String()[:8],
		ProcessDefinition:  def,
		InputData:          req.InputData,
		Context:            req.Context,
		Status:             models.ProcessRunning,
		WorkflowExecutions: make(map[string]*models.WorkflowExecution, len(def.Workflows)),
		OutputData:         make(map[string]any),
		StartTime:          time.Now().UTC(),
		TenantID:           req.TenantID,
		TraceID:            req.TraceID,
	}

	for _, wdef := range def.Workflows {
		exec.WorkflowExecutions[wdef.WorkflowID] = &models.WorkflowExecution{
			WorkflowID:      wdef.WorkflowID,
			Status:          models.WorkflowPending,
			DependenciesMet: len(wdef.Dependencies) == 0,
			OutputData:      make(map[string]any),
		}
	}

	run := &processRun{exec: exec}

	o.mu.Lock()
	o.active[exec.ExecutionID] = run
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.active, exec.ExecutionID)
		o.mu.Unlock()
	}()

	logger := o.logger.With("process_id", def.ProcessID, "execution_id", exec.ExecutionID)
	logger.InfoContext(ctx, "Starting process execution", "workflows", len(def.Workflows))

	o.emit(ctx, def.ProcessID, events.ProcessExecutionStarted{
		BaseEvent:     o.base(events.ProcessExecutionStartedEvent, exec),
		ProcessName:   def.Name,
		WorkflowCount: len(def.Workflows),
	})

	runErr := o.runSchedulingLoop(ctx, run, logger)

	run.mu.Lock()

	switch {
	case runErr != nil:
		exec.Status = models.ProcessFailed
		exec.Error = runErr.Error()
	case exec.Status == models.ProcessCancelled:
		// set by CancelProcess
	default:
		exec.Status = models.ProcessCompleted

		for _, wexec := range exec.WorkflowExecutions {
			if wexec.Status != models.WorkflowCompleted {
				exec.Status = models.ProcessPartiallyCompleted

				break
			}
		}
	}

	for id, wexec := range exec.WorkflowExecutions {
		if len(wexec.OutputData) > 0 {
			exec.OutputData[id] = wexec.OutputData
		}
	}

	now := time.Now().UTC()
	exec.EndTime = &now
	finalStatus := exec.Status
	run.mu.Unlock()

	if runErr != nil && def.RollbackOnFailure {
		o.rollbackProcess(ctx, run, logger)
	}

	logger.InfoContext(ctx, "Process execution finished", "status", finalStatus, "duration", now.Sub(exec.StartTime))

	finished := events.ProcessExecutionFinished{
		Status:   finalStatus,
		Error:    exec.Error,
		Duration: now.Sub(exec.StartTime),
	}
	finished.BaseEvent = o.base(finished.GetType(), exec)
	o.emit(ctx, def.ProcessID, finished)

	return exec, nil
}

// runSchedulingLoop repeatedly finds ready workflows and executes them until
// all terminate or no progress is possible. The iteration bound guarantees
// termination even under a scheduling bug; waits for pause or approval do not
// consume iterations.
func (o *Orchestrator) runSchedulingLoop(ctx context.Context, run *processRun, logger *slog.Logger) error {
	def := run.exec.ProcessDefinition

	maxIterations := len(def.Workflows) * 2
	for _, wdef := range def.Workflows {
		maxIterations += wdef.RetryCount
	}

	for iteration := 0; iteration < maxIterations; {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("process execution interrupted: %w", err)
		}

		run.mu.Lock()
		status := run.exec.Status
		run.mu.Unlock()

		if status == models.ProcessCancelled {
			return nil
		}

		if status == models.ProcessPaused {
			time.Sleep(o.config.PollInterval)

			continue
		}

		// Approval resolution and retry rescheduling happen outside this
		// loop, so readiness must be refreshed before every pass.
		o.recomputeDependencies(run)

		ready := o.readyDefinitions(run)
		if len(ready) == 0 {
			run.mu.Lock()
			waiting := o.anyWaitingApproval(run.exec)
			run.mu.Unlock()

			// Workflows independent of a suspended one keep executing;
			// only an otherwise idle process waits on the gate.
			if waiting {
				time.Sleep(o.config.PollInterval)

				continue
			}

			break
		}

		iteration++

		var parallel, sequential []*models.WorkflowDefinition

		for _, wdef := range ready {
			if wdef.DependencyType == models.DependencyParallel {
				parallel = append(parallel, wdef)
			} else {
				sequential = append(sequential, wdef)
			}
		}

		if len(parallel) > 0 {
			limit := def.ParallelExecutionLimit
			if limit <= 0 || limit > o.config.MaxParallelExecutions {
				limit = o.config.MaxParallelExecutions
			}

			sem := make(chan struct{}, limit)

			var wg sync.WaitGroup

			for _, wdef := range parallel {
				wg.Add(1)

				go func(wdef *models.WorkflowDefinition) {
					defer wg.Done()

					sem <- struct{}{}
					defer func() { <-sem }()

					o.runWorkflow(ctx, run, wdef, logger)
				}(wdef)
			}

			wg.Wait()
		}

		for _, wdef := range sequential {
			o.runWorkflow(ctx, run, wdef, logger)
		}
	}

	return nil
}

// readyDefinitions returns, in definition order, the pending workflows whose
// dependencies are satisfied and whose condition (for conditional
// dependencies) holds against the completed outputs.
func (o *Orchestrator) readyDefinitions(run *processRun) []*models.WorkflowDefinition {
	run.mu.Lock()
	defer run.mu.Unlock()

	outputs := make(map[string]any)

	for id, wexec := range run.exec.WorkflowExecutions {
		if wexec.Status == models.WorkflowCompleted {
			outputs[id] = wexec.OutputData
		}
	}

	var ready []*models.WorkflowDefinition

	for _, wdef := range run.exec.ProcessDefinition.Workflows {
		wexec := run.exec.WorkflowExecutions[wdef.WorkflowID]
		if wexec.Status != models.WorkflowPending || !wexec.DependenciesMet {
			continue
		}

		if wdef.DependencyType == models.DependencyConditional && !o.evaluateCondition(wdef.Condition, outputs) {
			continue
		}

		ready = append(ready, wdef)
	}

	return ready
}

// recomputeDependencies refreshes dependencies_met for every still-pending
// execution: true iff each dependency completed. Compensation targets that
// were forced ready keep their flag.
func (o *Orchestrator) recomputeDependencies(run *processRun) {
	run.mu.Lock()
	defer run.mu.Unlock()

	for _, wdef := range run.exec.ProcessDefinition.Workflows {
		wexec := run.exec.WorkflowExecutions[wdef.WorkflowID]
		if wexec.Status != models.WorkflowPending || wexec.DependenciesMet {
			continue
		}

		met := true

		for _, dep := range wdef.Dependencies {
			if run.exec.WorkflowExecutions[dep].Status != models.WorkflowCompleted {
				met = false

				break
			}
		}

		wexec.DependenciesMet = met
	}
}

// runWorkflow executes one attempt of a workflow definition under its
// timeout, then applies the retry/compensation policy.
func (o *Orchestrator) runWorkflow(ctx context.Context, run *processRun, wdef *models.WorkflowDefinition, logger *slog.Logger) {
	exec := run.exec

	run.mu.Lock()
	wexec := exec.WorkflowExecutions[wdef.WorkflowID]
	wexec.Status = models.WorkflowRunning
	attempt := wexec.RetryCount + 1

	if wexec.StartTime == nil {
		now := time.Now().UTC()
		wexec.StartTime = &now
	}

	params := o.mergedParameters(exec, wdef)
	run.mu.Unlock()

	logger = logger.With("workflow_id", wdef.WorkflowID, "workflow_class", wdef.WorkflowClass)
	logger.InfoContext(ctx, "Executing workflow", "attempt", attempt)

	o.emit(ctx, wdef.WorkflowID, events.WorkflowExecutionStarted{
		BaseEvent:     o.base(events.WorkflowExecutionStartedEvent, exec),
		WorkflowID:    wdef.WorkflowID,
		WorkflowClass: wdef.WorkflowClass,
		Attempt:       attempt,
	})

	instance, err := o.registry.Create(ctx, wdef.WorkflowClass, params, o.deps)
	if err != nil {
		o.handleWorkflowFailure(ctx, run, wdef, err.Error(), false, logger)

		return
	}

	run.mu.Lock()
	wexec.Instance = instance
	run.mu.Unlock()

	timeout := wdef.TimeoutDuration()
	if timeout <= 0 {
		timeout = o.config.DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		results []*models.WorkflowResult
		err     error
	}

	done := make(chan outcome, 1)

	go func() {
		results, execErr := instance.Execute(runCtx)
		done <- outcome{results: results, err: execErr}
	}()

	var out outcome

	timedOut := false

	select {
	case out = <-done:
	case <-runCtx.Done():
		timedOut = true

		// Cooperative cancellation: a step that does not observe its
		// context runs to completion anyway.
		_ = instance.Cancel(context.WithoutCancel(ctx))
	}

	if timedOut {
		o.handleWorkflowFailure(ctx, run, wdef, fmt.Sprintf("workflow %s timed out after %s", wdef.WorkflowID, timeout), true, logger)

		return
	}

	if out.err != nil {
		o.handleWorkflowFailure(ctx, run, wdef, out.err.Error(), false, logger)

		return
	}

	switch instance.Status() {
	case models.WorkflowCompleted:
		run.mu.Lock()
		wexec.Status = models.WorkflowCompleted
		wexec.Results = instance.Results()
		wexec.OutputData = instance.OutputData()
		now := time.Now().UTC()
		wexec.EndTime = &now
		started := *wexec.StartTime
		run.mu.Unlock()

		logger.InfoContext(ctx, "Workflow completed", "duration", now.Sub(started))

		o.emit(ctx, wdef.WorkflowID, events.WorkflowExecutionFinished{
			BaseEvent:  o.base(events.WorkflowExecutionCompletedEvent, exec),
			WorkflowID: wdef.WorkflowID,
			Status:     models.WorkflowCompleted,
			Duration:   now.Sub(started),
		})
	case models.WorkflowWaitingApproval:
		run.mu.Lock()
		wexec.Status = models.WorkflowWaitingApproval
		wexec.Results = instance.Results()
		run.mu.Unlock()

		logger.InfoContext(ctx, "Workflow suspended waiting for approval")

		results := instance.Results()
		last := results[len(results)-1]

		o.emit(ctx, wdef.WorkflowID, events.ApprovalRequested{
			BaseEvent:    o.base(events.ApprovalRequestedEvent, exec),
			WorkflowID:   wdef.WorkflowID,
			StepName:     last.StepName,
			ApprovalData: last.ApprovalData,
		})
	default:
		errMsg := fmt.Sprintf("workflow %s finished with status %s", wdef.WorkflowID, instance.Status())

		if results := instance.Results(); len(results) > 0 {
			if last := results[len(results)-1]; last.Error != "" {
				errMsg = last.Error
			}
		}

		o.handleWorkflowFailure(ctx, run, wdef, errMsg, false, logger)
	}
}

// handleWorkflowFailure applies the recovery policy for a failed attempt:
// retry while budget remains, otherwise mark failed permanently and force the
// compensation workflow ready if one is configured.
func (o *Orchestrator) handleWorkflowFailure(ctx context.Context, run *processRun, wdef *models.WorkflowDefinition, errMsg string, timedOut bool, logger *slog.Logger) {
	exec := run.exec

	run.mu.Lock()
	wexec := exec.WorkflowExecutions[wdef.WorkflowID]
	wexec.Error = errMsg

	if wexec.Instance != nil {
		wexec.Results = wexec.Instance.Results()
	}

	if wexec.RetryCount < wdef.RetryCount {
		wexec.RetryCount++
		wexec.Status = models.WorkflowPending
		attempt := wexec.RetryCount
		run.mu.Unlock()

		logger.WarnContext(ctx, "Workflow failed, scheduling retry", "error", errMsg, "retry", attempt, "max_retries", wdef.RetryCount)

		o.emit(ctx, wdef.WorkflowID, events.WorkflowExecutionRetried{
			BaseEvent:  o.base(events.WorkflowExecutionRetriedEvent, exec),
			WorkflowID: wdef.WorkflowID,
			Attempt:    attempt,
			MaxRetries: wdef.RetryCount,
		})

		return
	}

	wexec.Status = models.WorkflowFailed
	now := time.Now().UTC()

	if wexec.EndTime == nil {
		wexec.EndTime = &now
	}

	var duration time.Duration
	if wexec.StartTime != nil {
		duration = now.Sub(*wexec.StartTime)
	}

	compensation := ""

	if wdef.CompensationWorkflow != "" {
		// Compensation runs regardless of its own declared dependencies.
		exec.WorkflowExecutions[wdef.CompensationWorkflow].DependenciesMet = true
		compensation = wdef.CompensationWorkflow
	}

	run.mu.Unlock()

	logger.ErrorContext(ctx, "Workflow failed permanently", "error", errMsg, "timed_out", timedOut)

	o.emit(ctx, wdef.WorkflowID, events.WorkflowExecutionFinished{
		BaseEvent:  o.base(events.WorkflowExecutionFailedEvent, exec),
		WorkflowID: wdef.WorkflowID,
		Status:     models.WorkflowFailed,
		Error:      errMsg,
		TimedOut:   timedOut,
		Duration:   duration,
	})

	if compensation != "" {
		logger.InfoContext(ctx, "Compensation workflow triggered", "compensation_workflow", compensation)

		o.emit(ctx, wdef.WorkflowID, events.CompensationTriggered{
			BaseEvent:              o.base(events.CompensationTriggeredEvent, exec),
			FailedWorkflowID:       wdef.WorkflowID,
			CompensationWorkflowID: compensation,
		})
	}
}

// mergedParameters builds the parameter set a workflow instance is
// constructed with: definition parameters, process input, process context,
// then each completed dependency's outputs under a "{depID}_{key}" prefix.
// This is how data flows between workflows without shared mutable state.
func (o *Orchestrator) mergedParameters(exec *models.ProcessExecution, wdef *models.WorkflowDefinition) map[string]any {
	params := make(map[string]any)

	for k, v := range wdef.Parameters {
		params[k] = v
	}

	for k, v := range exec.InputData {
		params[k] = v
	}

	for k, v := range exec.Context {
		params[k] = v
	}

	for _, dep := range wdef.Dependencies {
		depExec := exec.WorkflowExecutions[dep]
		if depExec == nil || depExec.Status != models.WorkflowCompleted {
			continue
		}

		for k, v := range depExec.OutputData {
			params[dep+"_"+k] = v
		}
	}

	params["workflow_id"] = wdef.WorkflowID

	if exec.TenantID != "" {
		params["tenant_id"] = exec.TenantID
	}

	return params
}

// rollbackProcess compensates completed workflows most-recently-completed
// first. Individual rollback failures are recorded in the process output
// data and never abort the remaining rollbacks.
func (o *Orchestrator) rollbackProcess(ctx context.Context, run *processRun, logger *slog.Logger) {
	run.mu.Lock()

	var completed []*models.WorkflowExecution

	for _, wexec := range run.exec.WorkflowExecutions {
		if wexec.Status == models.WorkflowCompleted && wexec.Instance != nil {
			completed = append(completed, wexec)
		}
	}

	run.mu.Unlock()

	for i := 0; i < len(completed); i++ {
		for j := i + 1; j < len(completed); j++ {
			if completed[j].EndTime != nil && completed[i].EndTime != nil && completed[j].EndTime.After(*completed[i].EndTime) {
				completed[i], completed[j] = completed[j], completed[i]
			}
		}
	}

	logger.InfoContext(ctx, "Rolling back completed workflows", "count", len(completed))

	for _, wexec := range completed {
		if err := wexec.Instance.Rollback(ctx); err != nil {
			run.mu.Lock()
			run.exec.OutputData[wexec.WorkflowID+"_rollback_error"] = err.Error()
			run.mu.Unlock()

			logger.WarnContext(ctx, "Workflow rollback reported errors", "workflow_id", wexec.WorkflowID, "error", err)
		}
	}
}

func (o *Orchestrator) anyWaitingApproval(exec *models.ProcessExecution) bool {
	for _, wexec := range exec.WorkflowExecutions {
		if wexec.Status == models.WorkflowWaitingApproval {
			return true
		}
	}

	return false
}

func (o *Orchestrator) base(eventType events.EventType, exec *models.ProcessExecution) events.BaseEvent {
	return events.BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		ProcessID:   exec.ProcessDefinition.ProcessID,
		ExecutionID: exec.ExecutionID,
		TenantID:    exec.TenantID,
	}
}

// emit publishes a lifecycle event; publishing failures are logged and never
// affect the run.
func (o *Orchestrator) emit(ctx context.Context, key string, event eventbus.Event) {
	if o.publisher == nil {
		return
	}

	if err := o.publisher.Publish(ctx, key, event); err != nil {
		o.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
