package workflow

import (
	"time"

	"github.com/ledgerflow/ledgerflow/pkg/models"
)

func (w *Workflow) ID() string {
	return w.id
}

func (w *Workflow) Type() string {
	return w.workflowType
}

// Steps returns the declared step names in execution order.
func (w *Workflow) Steps() []string {
	return append([]string(nil), w.steps...)
}

// Context returns the workflow context shared with step implementations.
func (w *Workflow) Context() *Context {
	return w.wc
}

func (w *Workflow) Status() models.WorkflowStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.status
}

// CurrentStepIndex is the 0-based cursor of the step most recently started.
// It is -1 before any step runs and persists across pause/resume.
func (w *Workflow) CurrentStepIndex() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.cursor
}

// Results returns the accumulated step results in execution order.
func (w *Workflow) Results() []*models.WorkflowResult {
	w.mu.Lock()
	defer w.mu.Unlock()

	return append([]*models.WorkflowResult(nil), w.results...)
}

// RollbackErrors returns the recorded best-effort rollback failures.
func (w *Workflow) RollbackErrors() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return append([]string(nil), w.rollbackErrors...)
}

func (w *Workflow) StartTime() *time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.startTime
}

func (w *Workflow) EndTime() *time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.endTime
}

// ExecutionTime returns the total wall-clock duration, or nil until both
// timestamps are set.
func (w *Workflow) ExecutionTime() *time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.startTime == nil || w.endTime == nil {
		return nil
	}

	d := w.endTime.Sub(*w.startTime)

	return &d
}

// ProgressPercentage reports executed steps over declared steps.
func (w *Workflow) ProgressPercentage() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.steps) == 0 {
		return 0
	}

	executed := 0

	for _, r := range w.results {
		if r.StepName != "validate_business_rules" {
			executed++
		}
	}

	return float64(executed) / float64(len(w.steps)) * 100
}

func (w *Workflow) IsCompleted() bool {
	return w.Status() == models.WorkflowCompleted
}

func (w *Workflow) IsFailed() bool {
	return w.Status() == models.WorkflowFailed
}

func (w *Workflow) IsRunning() bool {
	return w.Status() == models.WorkflowRunning
}

func (w *Workflow) IsWaitingApproval() bool {
	return w.Status() == models.WorkflowWaitingApproval
}

// OutputData is the data a completed workflow exposes to its dependents:
// every successful result's data merged under the business context.
func (w *Workflow) OutputData() map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()

	output := make(map[string]any)

	for _, r := range w.results {
		if !r.Success {
			continue
		}

		for k, v := range r.Data {
			output[k] = v
		}
	}

	for k, v := range w.wc.BusinessContext {
		output[k] = v
	}

	return output
}
