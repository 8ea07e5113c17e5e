package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgerflow/ledgerflow/pkg/events"
	"github.com/ledgerflow/ledgerflow/pkg/models"
)

// ActiveProcess returns a still-running process execution by ID. Completed
// runs are removed from the table; their final value reaches the caller by
// return from ExecuteProcess.
func (o *Orchestrator) ActiveProcess(executionID string) (*models.ProcessExecution, bool) {
	run, ok := o.run(executionID)
	if !ok {
		return nil, false
	}

	return run.exec, true
}

// PauseProcess suspends scheduling of new workflows for an active run.
// Workflows already in flight run to completion.
func (o *Orchestrator) PauseProcess(ctx context.Context, executionID string) error {
	run, ok := o.run(executionID)
	if !ok {
		return fmt.Errorf("execution %q: %w", executionID, ErrProcessNotFound)
	}

	run.mu.Lock()
	defer run.mu.Unlock()

	if run.exec.Status != models.ProcessRunning {
		return fmt.Errorf("execution %q has status %s: %w", executionID, run.exec.Status, ErrProcessNotRunning)
	}

	run.exec.Status = models.ProcessPaused
	o.logger.InfoContext(ctx, "Process execution paused", "execution_id", executionID)
	o.emit(ctx, run.exec.ProcessDefinition.ProcessID, pauseEvent(o, run.exec, events.ProcessExecutionPausedEvent))

	return nil
}

// ResumeProcess resumes scheduling of a paused run.
func (o *Orchestrator) ResumeProcess(ctx context.Context, executionID string) error {
	run, ok := o.run(executionID)
	if !ok {
		return fmt.Errorf("execution %q: %w", executionID, ErrProcessNotFound)
	}

	run.mu.Lock()
	defer run.mu.Unlock()

	if run.exec.Status != models.ProcessPaused {
		return fmt.Errorf("execution %q has status %s: %w", executionID, run.exec.Status, ErrProcessNotPaused)
	}

	run.exec.Status = models.ProcessRunning
	o.logger.InfoContext(ctx, "Process execution resumed", "execution_id", executionID)
	o.emit(ctx, run.exec.ProcessDefinition.ProcessID, pauseEvent(o, run.exec, events.ProcessExecutionResumedEvent))

	return nil
}

// CancelProcess terminates an active run and force-cancels any workflow
// still running or suspended at an approval gate, best-effort.
func (o *Orchestrator) CancelProcess(ctx context.Context, executionID string) error {
	run, ok := o.run(executionID)
	if !ok {
		return fmt.Errorf("execution %q: %w", executionID, ErrProcessNotFound)
	}

	run.mu.Lock()

	run.exec.Status = models.ProcessCancelled

	var instances []models.WorkflowRunner

	for _, wexec := range run.exec.WorkflowExecutions {
		switch wexec.Status {
		case models.WorkflowRunning, models.WorkflowWaitingApproval:
			wexec.Status = models.WorkflowCancelled

			if wexec.Instance != nil {
				instances = append(instances, wexec.Instance)
			}
		}
	}

	run.mu.Unlock()

	for _, instance := range instances {
		if err := instance.Cancel(ctx); err != nil {
			o.logger.WarnContext(ctx, "Failed to cancel workflow instance", "execution_id", executionID, "error", err)
		}
	}

	o.logger.InfoContext(ctx, "Process execution cancelled", "execution_id", executionID)

	return nil
}

// ApproveWorkflow resolves an approval gate for a suspended workflow in an
// active run and drives the instance to its next suspension or terminal
// state.
func (o *Orchestrator) ApproveWorkflow(ctx context.Context, executionID, workflowID string, approvalData map[string]any, decidedBy string) error {
	run, instance, err := o.suspendedInstance(executionID, workflowID)
	if err != nil {
		return err
	}

	if _, err := instance.ApproveAndContinue(ctx, approvalData); err != nil {
		return fmt.Errorf("failed to approve workflow %q: %w", workflowID, err)
	}

	if instance.Status() == models.WorkflowFailed {
		// A step failure after the gate follows the same recovery policy
		// as any other attempt failure: retry budget, then compensation.
		o.resolveFailedInstance(ctx, run, workflowID, instance)
	} else {
		o.syncFromInstance(run, workflowID, instance)
	}

	resolved := events.ApprovalResolved{
		WorkflowID: workflowID,
		Approved:   true,
		DecidedBy:  decidedBy,
	}
	resolved.BaseEvent = o.base(events.ApprovalResolvedEvent, run.exec)
	o.emit(ctx, workflowID, resolved)

	return nil
}

// RejectWorkflow resolves an approval gate by rejection: the suspended
// workflow is cancelled and its successful steps rolled back.
func (o *Orchestrator) RejectWorkflow(ctx context.Context, executionID, workflowID, reason, decidedBy string) error {
	run, instance, err := o.suspendedInstance(executionID, workflowID)
	if err != nil {
		return err
	}

	if _, err := instance.RejectAndCancel(ctx, reason); err != nil {
		return fmt.Errorf("failed to reject workflow %q: %w", workflowID, err)
	}

	o.syncFromInstance(run, workflowID, instance)

	resolved := events.ApprovalResolved{
		WorkflowID: workflowID,
		Approved:   false,
		Reason:     reason,
		DecidedBy:  decidedBy,
	}
	resolved.BaseEvent = o.base(events.ApprovalResolvedEvent, run.exec)
	o.emit(ctx, workflowID, resolved)

	return nil
}

func (o *Orchestrator) run(executionID string) (*processRun, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	run, ok := o.active[executionID]

	return run, ok
}

func (o *Orchestrator) suspendedInstance(executionID, workflowID string) (*processRun, models.WorkflowRunner, error) {
	run, ok := o.run(executionID)
	if !ok {
		return nil, nil, fmt.Errorf("execution %q: %w", executionID, ErrProcessNotFound)
	}

	run.mu.Lock()
	defer run.mu.Unlock()

	wexec, ok := run.exec.WorkflowExecutions[workflowID]
	if !ok || wexec.Instance == nil {
		return nil, nil, fmt.Errorf("workflow %q in execution %q: %w", workflowID, executionID, ErrProcessNotFound)
	}

	if wexec.Status != models.WorkflowWaitingApproval {
		return nil, nil, fmt.Errorf("workflow %q has status %s: %w", workflowID, wexec.Status, ErrNotWaitingApproval)
	}

	return run, wexec.Instance, nil
}

// resolveFailedInstance applies the retry/compensation policy to a workflow
// whose instance failed while being driven past an approval gate.
func (o *Orchestrator) resolveFailedInstance(ctx context.Context, run *processRun, workflowID string, instance models.WorkflowRunner) {
	wdef, ok := run.exec.ProcessDefinition.WorkflowByID(workflowID)
	if !ok {
		o.syncFromInstance(run, workflowID, instance)

		return
	}

	errMsg := fmt.Sprintf("workflow %s failed", workflowID)

	if results := instance.Results(); len(results) > 0 {
		if last := results[len(results)-1]; last.Error != "" {
			errMsg = last.Error
		}
	}

	logger := o.logger.With(
		"execution_id", run.exec.ExecutionID,
		"workflow_id", workflowID,
		"workflow_class", wdef.WorkflowClass,
	)

	o.handleWorkflowFailure(ctx, run, wdef, errMsg, false, logger)
}

// syncFromInstance refreshes the execution record after an externally driven
// state change on the instance.
func (o *Orchestrator) syncFromInstance(run *processRun, workflowID string, instance models.WorkflowRunner) {
	run.mu.Lock()
	defer run.mu.Unlock()

	wexec := run.exec.WorkflowExecutions[workflowID]
	wexec.Status = instance.Status()
	wexec.Results = instance.Results()

	switch instance.Status() {
	case models.WorkflowCompleted:
		wexec.OutputData = instance.OutputData()

		now := time.Now().UTC()
		if wexec.EndTime == nil {
			wexec.EndTime = &now
		}
	case models.WorkflowCancelled, models.WorkflowFailed:
		now := time.Now().UTC()
		if wexec.EndTime == nil {
			wexec.EndTime = &now
		}

		if results := instance.Results(); len(results) > 0 {
			if last := results[len(results)-1]; last.Error != "" {
				wexec.Error = last.Error
			}
		}
	}
}

func pauseEvent(o *Orchestrator, exec *models.ProcessExecution, eventType events.EventType) events.ProcessExecutionStateChanged {
	event := events.ProcessExecutionStateChanged{Status: exec.Status}
	event.BaseEvent = o.base(eventType, exec)

	return event
}
