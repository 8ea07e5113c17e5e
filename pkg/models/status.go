// Package models defines the core domain models for business process orchestration.
package models

// WorkflowStatus represents the lifecycle state of a business workflow.
type WorkflowStatus string

const (
	WorkflowPending         WorkflowStatus = "pending"
	WorkflowRunning         WorkflowStatus = "running"
	WorkflowCompleted       WorkflowStatus = "completed"
	WorkflowFailed          WorkflowStatus = "failed"
	WorkflowCancelled       WorkflowStatus = "cancelled"
	WorkflowWaitingApproval WorkflowStatus = "waiting_approval"
	WorkflowPaused          WorkflowStatus = "paused"
)

// Terminal reports whether the status allows no further transitions.
// WorkflowWaitingApproval is not terminal: it re-enters running via approval
// or ends cancelled via rejection.
func (s WorkflowStatus) Terminal() bool {
	switch s {
	case WorkflowCompleted, WorkflowFailed, WorkflowCancelled:
		return true
	default:
		return false
	}
}

// ProcessStatus represents the lifecycle state of an orchestrated process run.
type ProcessStatus string

const (
	ProcessPending            ProcessStatus = "pending"
	ProcessRunning            ProcessStatus = "running"
	ProcessCompleted          ProcessStatus = "completed"
	ProcessPartiallyCompleted ProcessStatus = "partially_completed"
	ProcessFailed             ProcessStatus = "failed"
	ProcessCancelled          ProcessStatus = "cancelled"
	ProcessPaused             ProcessStatus = "paused"
)

// DependencyType classifies how a workflow relates to its dependencies in
// process scheduling.
type DependencyType string

const (
	DependencySequence        DependencyType = "sequence"
	DependencyParallel        DependencyType = "parallel"
	DependencyConditional     DependencyType = "conditional"
	DependencyCompensation    DependencyType = "compensation"
	DependencySynchronization DependencyType = "synchronization"
)
