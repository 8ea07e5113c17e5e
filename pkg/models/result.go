package models

import "time"

// WorkflowResult is the immutable outcome of one step execution. A workflow
// accumulates an ordered list of these; the list is the audit trail.
type WorkflowResult struct {
	Success          bool           `json:"success"`
	StepName         string         `json:"step_name"`
	Data             map[string]any `json:"data,omitempty"`
	Error            string         `json:"error,omitempty"`
	Message          string         `json:"message,omitempty"`
	ExecutionTime    time.Duration  `json:"execution_time,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
	RequiresApproval bool           `json:"requires_approval,omitempty"`
	ApprovalData     map[string]any `json:"approval_data,omitempty"`
}

// StepSuccess builds a successful result for the given step.
func StepSuccess(step string, data map[string]any, message string) *WorkflowResult {
	return &WorkflowResult{
		Success:   true,
		StepName:  step,
		Data:      data,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// StepFailure builds a failed result for the given step.
func StepFailure(step string, errMsg string) *WorkflowResult {
	return &WorkflowResult{
		Success:   false,
		StepName:  step,
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	}
}

// StepApprovalRequired builds a successful result that suspends the workflow
// pending external approval.
func StepApprovalRequired(step string, data map[string]any, approvalData map[string]any) *WorkflowResult {
	return &WorkflowResult{
		Success:          true,
		StepName:         step,
		Data:             data,
		RequiresApproval: true,
		ApprovalData:     approvalData,
		Timestamp:        time.Now().UTC(),
	}
}
