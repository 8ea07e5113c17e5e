package models

import (
	"context"
	"time"
)

// WorkflowRunner is the contract the orchestrator drives on an instantiated
// workflow. *workflow.Workflow implements it.
type WorkflowRunner interface {
	Execute(ctx context.Context) ([]*WorkflowResult, error)
	ApproveAndContinue(ctx context.Context, approvalData map[string]any) ([]*WorkflowResult, error)
	RejectAndCancel(ctx context.Context, reason string) ([]*WorkflowResult, error)
	Cancel(ctx context.Context) error
	Rollback(ctx context.Context) error
	Status() WorkflowStatus
	Results() []*WorkflowResult
	OutputData() map[string]any
}

// WorkflowExecution is the orchestrator-owned runtime state for one
// WorkflowDefinition within a process run.
type WorkflowExecution struct {
	WorkflowID      string            `json:"workflow_id"`
	Status          WorkflowStatus    `json:"status"`
	StartTime       *time.Time        `json:"start_time,omitempty"`
	EndTime         *time.Time        `json:"end_time,omitempty"`
	Results         []*WorkflowResult `json:"results,omitempty"`
	Error           string            `json:"error,omitempty"`
	RetryCount      int               `json:"retry_count"`
	DependenciesMet bool              `json:"dependencies_met"`
	OutputData      map[string]any    `json:"output_data,omitempty"`

	// Instance is the live workflow driven for this execution. It is nil
	// until the first attempt and is not serialized.
	Instance WorkflowRunner `json:"-"`
}

// ProcessExecution is the aggregate root for one orchestrator run. It is
// owned exclusively by the orchestrator while running and handed to the
// caller by return value on completion.
type ProcessExecution struct {
	ExecutionID        string                        `json:"execution_id"`
	ProcessDefinition  *ProcessDefinition            `json:"process_definition"`
	InputData          map[string]any                `json:"input_data,omitempty"`
	Context            map[string]any                `json:"context,omitempty"`
	Status             ProcessStatus                 `json:"status"`
	WorkflowExecutions map[string]*WorkflowExecution `json:"workflow_executions"`
	OutputData         map[string]any                `json:"output_data,omitempty"`
	Error              string                        `json:"error,omitempty"`
	StartTime          time.Time                     `json:"start_time"`
	EndTime            *time.Time                    `json:"end_time,omitempty"`
	TenantID           string                        `json:"tenant_id,omitempty"`
	TraceID            string                        `json:"trace_id,omitempty"`
}

// ProcessExecutionRequest is the caller-facing input for one process run.
type ProcessExecutionRequest struct {
	ProcessDefinition *ProcessDefinition `json:"process_definition" validate:"required"`
	InputData         map[string]any     `json:"input_data,omitempty"`
	Context           map[string]any     `json:"context,omitempty"`
	TenantID          string             `json:"tenant_id,omitempty"`
	UserID            string             `json:"user_id,omitempty"`
	TraceID           string             `json:"trace_id,omitempty"`
}
