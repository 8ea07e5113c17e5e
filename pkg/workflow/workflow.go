// Package workflow implements the business workflow state machine: an
// ordered step sequence with approval gates, best-effort rollback of the
// successful prefix, and suspend/resume semantics.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerflow/ledgerflow/pkg/models"
)

// Static error variables for linter compliance.
var (
	// ErrInvalidState indicates a method was called in a state that does not
	// allow the transition.
	ErrInvalidState = errors.New("invalid workflow state transition")

	// ErrNoSteps indicates a workflow was constructed without steps.
	ErrNoSteps = errors.New("workflow requires at least one step")

	// ErrNilSteps indicates a workflow was constructed without an implementation.
	ErrNilSteps = errors.New("workflow requires a steps implementation")
)

// Steps is the behavior a concrete workflow supplies. The engine owns
// ordering, timing, failure capture, approval suspension and rollback; the
// implementation owns only the business actions.
type Steps interface {
	// ExecuteStep performs the business action for the named step.
	ExecuteStep(ctx context.Context, step string, wc *Context) (*models.WorkflowResult, error)

	// ValidateBusinessRules runs before any step. An unsuccessful result
	// fails the workflow without executing steps; a result requiring
	// approval suspends it.
	ValidateBusinessRules(ctx context.Context, wc *Context) (*models.WorkflowResult, error)

	// RollbackStep compensates a previously successful step. Failures are
	// recorded but never escalated.
	RollbackStep(ctx context.Context, step string, wc *Context) (*models.WorkflowResult, error)
}

// Base provides no-op business rules and rollback so concrete workflows only
// implement what they need.
type Base struct{}

func (Base) ValidateBusinessRules(_ context.Context, _ *Context) (*models.WorkflowResult, error) {
	return models.StepSuccess("validate_business_rules", nil, "no business rules defined"), nil
}

func (Base) RollbackStep(_ context.Context, step string, _ *Context) (*models.WorkflowResult, error) {
	return models.StepSuccess(step, nil, "nothing to roll back"), nil
}

// ApprovalCallback is invoked when a workflow suspends waiting for approval.
type ApprovalCallback func(ctx context.Context, w *Workflow, result *models.WorkflowResult)

// Workflow drives an ordered, fixed list of named steps through a single
// lifecycle: pending, running, then exactly one terminal transition, with
// waiting_approval as the only re-enterable intermediate state.
type Workflow struct {
	id           string
	workflowType string
	steps        []string
	impl         Steps
	wc           *Context
	logger       *slog.Logger

	rollbackOnFailure     bool
	continueOnStepFailure bool
	onApprovalRequested   ApprovalCallback

	mu             sync.Mutex
	status         models.WorkflowStatus
	cursor         int
	results        []*models.WorkflowResult
	rolledBack     map[int]bool
	rollbackErrors []string
	startTime      *time.Time
	endTime        *time.Time
}

// Option configures a workflow at construction.
type Option func(*Workflow)

func WithID(id string) Option {
	return func(w *Workflow) { w.id = id }
}

func WithTenant(tenantID string) Option {
	return func(w *Workflow) { w.wc.TenantID = tenantID }
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) { w.logger = logger }
}

func WithParameters(params map[string]any) Option {
	return func(w *Workflow) {
		for k, v := range params {
			w.wc.Parameters[k] = v
		}
	}
}

func WithRollbackOnFailure(enabled bool) Option {
	return func(w *Workflow) { w.rollbackOnFailure = enabled }
}

func WithContinueOnStepFailure(enabled bool) Option {
	return func(w *Workflow) { w.continueOnStepFailure = enabled }
}

// WithApproval enables the approval gate flags consulted by step
// implementations through the workflow context.
func WithApproval(threshold float64) Option {
	return func(w *Workflow) {
		w.wc.RequireApproval = true
		w.wc.ApprovalThreshold = threshold
	}
}

func WithApprovalCallback(callback ApprovalCallback) Option {
	return func(w *Workflow) { w.onApprovalRequested = callback }
}

// New builds a workflow over a fixed, ordered step list. The step ordering is
// the execution contract: steps run strictly in declared order.
func New(workflowType string, steps []string, impl Steps, opts ...Option) (*Workflow, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("workflow type %s: %w", workflowType, ErrNoSteps)
	}

	if impl == nil {
		return nil, fmt.Errorf("workflow type %s: %w", workflowType, ErrNilSteps)
	}

	w := &Workflow{
		workflowType:      workflowType,
		steps:             append([]string(nil), steps...),
		impl:              impl,
		status:            models.WorkflowPending,
		cursor:            -1,
		rolledBack:        make(map[int]bool),
		rollbackOnFailure: true,
		wc: &Context{
			WorkflowType:    workflowType,
			Parameters:      make(map[string]any),
			BusinessContext: make(map[string]any),
		},
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.id == "" {
		w.id = "wf-" + uuid.New().String()[:8]
	}

	w.wc.WorkflowID = w.id

	if w.logger == nil {
		w.logger = slog.Default()
	}

	w.logger = w.logger.With("workflow_id", w.id, "workflow_type", w.workflowType)
	w.wc.Logger = w.logger

	return w, nil
}

// Execute runs the step sequence from the beginning. It returns the
// accumulated results; expected business failures are reported through the
// result list and final status, not through the error return.
func (w *Workflow) Execute(ctx context.Context) ([]*models.WorkflowResult, error) {
	w.mu.Lock()

	switch {
	case w.status == models.WorkflowRunning:
		w.mu.Unlock()

		return nil, fmt.Errorf("workflow %s is already running: %w", w.id, ErrInvalidState)
	case w.status == models.WorkflowWaitingApproval:
		w.mu.Unlock()

		return nil, fmt.Errorf("workflow %s is waiting for approval: %w", w.id, ErrInvalidState)
	case w.status.Terminal():
		w.mu.Unlock()

		return nil, fmt.Errorf("workflow %s already finished with status %s: %w", w.id, w.status, ErrInvalidState)
	}

	w.status = models.WorkflowRunning

	if w.startTime == nil {
		now := time.Now().UTC()
		w.startTime = &now
	}

	w.mu.Unlock()

	w.logger.InfoContext(ctx, "Starting workflow execution", "steps", len(w.steps))

	validation := w.runGuarded(ctx, "validate_business_rules", func(c context.Context) (*models.WorkflowResult, error) {
		return w.impl.ValidateBusinessRules(c, w.wc)
	})

	if validation.RequiresApproval {
		w.append(validation)
		w.suspend(ctx, validation)

		return w.Results(), nil
	}

	if !validation.Success {
		w.append(validation)
		w.finish(models.WorkflowFailed)
		w.logger.WarnContext(ctx, "Business rule validation failed", "error", validation.Error)

		return w.Results(), nil
	}

	return w.run(ctx, 0)
}

// ApproveAndContinue resumes a workflow suspended at an approval gate. The
// approval data is merged into the suspended result and execution resumes at
// the step after the cursor; the approved step is never re-executed.
func (w *Workflow) ApproveAndContinue(ctx context.Context, approvalData map[string]any) ([]*models.WorkflowResult, error) {
	w.mu.Lock()

	if w.status != models.WorkflowWaitingApproval {
		w.mu.Unlock()

		return nil, fmt.Errorf("workflow %s is not waiting for approval (status %s): %w", w.id, w.status, ErrInvalidState)
	}

	last := w.results[len(w.results)-1]
	if last.Data == nil {
		last.Data = make(map[string]any)
	}

	for k, v := range approvalData {
		last.Data[k] = v
	}

	last.Message = strings.TrimSpace(last.Message + " [APPROVED]")
	w.status = models.WorkflowRunning
	resumeFrom := w.cursor + 1
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "Workflow approved, resuming", "resume_step_index", resumeFrom)

	return w.run(ctx, resumeFrom)
}

// RejectAndCancel terminates a workflow suspended at an approval gate. The
// suspended result is marked failed with the rejection reason and previously
// successful steps are rolled back.
func (w *Workflow) RejectAndCancel(ctx context.Context, reason string) ([]*models.WorkflowResult, error) {
	w.mu.Lock()

	if w.status != models.WorkflowWaitingApproval {
		w.mu.Unlock()

		return nil, fmt.Errorf("workflow %s is not waiting for approval (status %s): %w", w.id, w.status, ErrInvalidState)
	}

	last := w.results[len(w.results)-1]
	last.Success = false
	last.Error = reason
	last.Message = strings.TrimSpace(last.Message + " [REJECTED]")
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "Workflow rejected", "reason", reason)
	w.finish(models.WorkflowCancelled)
	w.rollbackCompleted(ctx)

	return w.Results(), nil
}

// Cancel force-terminates the workflow from any non-terminal state.
func (w *Workflow) Cancel(ctx context.Context) error {
	w.mu.Lock()

	if w.status.Terminal() {
		w.mu.Unlock()

		return fmt.Errorf("workflow %s already finished with status %s: %w", w.id, w.status, ErrInvalidState)
	}

	w.mu.Unlock()

	w.logger.InfoContext(ctx, "Cancelling workflow")
	w.finish(models.WorkflowCancelled)

	return nil
}

// Rollback compensates every successful step in reverse order. Individual
// rollback failures are collected, recorded, and returned aggregated; they
// never abort the remaining rollbacks.
func (w *Workflow) Rollback(ctx context.Context) error {
	w.rollbackCompleted(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.rollbackErrors) == 0 {
		return nil
	}

	return fmt.Errorf("rollback completed with errors: %s", strings.Join(w.rollbackErrors, "; "))
}

func (w *Workflow) run(ctx context.Context, from int) ([]*models.WorkflowResult, error) {
	for i := from; i < len(w.steps); i++ {
		w.mu.Lock()

		if w.status != models.WorkflowRunning {
			w.mu.Unlock()

			return w.Results(), nil
		}

		w.cursor = i
		step := w.steps[i]
		w.mu.Unlock()

		result := w.runGuarded(ctx, step, func(c context.Context) (*models.WorkflowResult, error) {
			return w.impl.ExecuteStep(c, step, w.wc)
		})

		w.append(result)

		if result.RequiresApproval {
			w.suspend(ctx, result)

			return w.Results(), nil
		}

		if !result.Success {
			w.logger.WarnContext(ctx, "Step failed", "step", step, "error", result.Error)

			if w.rollbackOnFailure {
				w.rollbackCompleted(ctx)
			}

			if !w.continueOnStepFailure {
				w.finish(models.WorkflowFailed)

				return w.Results(), nil
			}
		}
	}

	w.finish(models.WorkflowCompleted)
	w.logger.InfoContext(ctx, "Workflow execution completed", "results", len(w.Results()))

	return w.Results(), nil
}

// runGuarded wraps a step invocation: it measures wall-clock duration and
// converts handler errors and panics into failed results so nothing escapes
// the engine loop.
func (w *Workflow) runGuarded(ctx context.Context, step string, fn func(context.Context) (*models.WorkflowResult, error)) (out *models.WorkflowResult) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			out = models.StepFailure(step, fmt.Sprintf("panic in step %s: %v", step, r))
			out.ExecutionTime = time.Since(start)
		}
	}()

	result, err := fn(ctx)
	if err != nil {
		result = models.StepFailure(step, err.Error())
	}

	if result == nil {
		result = models.StepFailure(step, "step returned no result")
	}

	if result.StepName == "" {
		result.StepName = step
	}

	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now().UTC()
	}

	result.ExecutionTime = time.Since(start)

	return result
}

func (w *Workflow) append(result *models.WorkflowResult) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.results = append(w.results, result)
}

func (w *Workflow) suspend(ctx context.Context, result *models.WorkflowResult) {
	w.mu.Lock()
	w.status = models.WorkflowWaitingApproval
	callback := w.onApprovalRequested
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "Workflow suspended waiting for approval", "step", result.StepName)

	if callback != nil {
		callback(ctx, w, result)
	}
}

// finish performs the single terminal transition. The end time is set exactly
// once per workflow lifetime, regardless of intermediate pause/resume cycles.
func (w *Workflow) finish(status models.WorkflowStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.status.Terminal() {
		return
	}

	w.status = status

	if w.endTime == nil {
		now := time.Now().UTC()
		w.endTime = &now
	}
}

// rollbackCompleted compensates the successful prefix in reverse order. Each
// step is rolled back at most once; failures are swallowed and recorded.
func (w *Workflow) rollbackCompleted(ctx context.Context) {
	type target struct {
		idx  int
		step string
	}

	w.mu.Lock()

	var targets []target

	for i := len(w.results) - 1; i >= 0; i-- {
		result := w.results[i]
		if !result.Success || w.rolledBack[i] {
			continue
		}

		targets = append(targets, target{idx: i, step: result.StepName})
	}

	w.mu.Unlock()

	for _, t := range targets {
		result := w.runGuarded(ctx, t.step, func(c context.Context) (*models.WorkflowResult, error) {
			return w.impl.RollbackStep(c, t.step, w.wc)
		})

		w.mu.Lock()
		w.rolledBack[t.idx] = true

		if !result.Success {
			w.rollbackErrors = append(w.rollbackErrors, fmt.Sprintf("%s: %s", t.step, result.Error))
		}

		w.mu.Unlock()

		if !result.Success {
			w.logger.Warn("Rollback step failed", "step", t.step, "error", result.Error)
		}
	}
}
