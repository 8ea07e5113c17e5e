// Package events defines the lifecycle events the orchestrator publishes for
// process and workflow execution.
package events

import (
	"time"

	"github.com/ledgerflow/ledgerflow/pkg/models"
)

type EventType string

// Kafka topic for orchestration lifecycle events.
const Topic = "ledgerflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Process lifecycle events.
	ProcessExecutionStartedEvent   EventType = "process.execution.started"
	ProcessExecutionCompletedEvent EventType = "process.execution.completed"
	ProcessExecutionFailedEvent    EventType = "process.execution.failed"
	ProcessExecutionCancelledEvent EventType = "process.execution.cancelled"
	ProcessExecutionPausedEvent    EventType = "process.execution.paused"
	ProcessExecutionResumedEvent   EventType = "process.execution.resumed"

	// Workflow lifecycle events within a process.
	WorkflowExecutionStartedEvent   EventType = "workflow.execution.started"
	WorkflowExecutionCompletedEvent EventType = "workflow.execution.completed"
	WorkflowExecutionFailedEvent    EventType = "workflow.execution.failed"
	WorkflowExecutionTimedOutEvent  EventType = "workflow.execution.timed_out"
	WorkflowExecutionRetriedEvent   EventType = "workflow.execution.retried"

	// Approval gate events.
	ApprovalRequestedEvent EventType = "workflow.approval.requested"
	ApprovalResolvedEvent  EventType = "workflow.approval.resolved"

	// Compensation events.
	CompensationTriggeredEvent EventType = "workflow.compensation.triggered"
)

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	ProcessID   string         `json:"process_id,omitempty"`
	ExecutionID string         `json:"execution_id,omitempty"`
	TenantID    string         `json:"tenant_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type ProcessExecutionStarted struct {
	BaseEvent

	ProcessName   string `json:"process_name"`
	WorkflowCount int    `json:"workflow_count"`
}

func (e ProcessExecutionStarted) GetType() EventType {
	return ProcessExecutionStartedEvent
}

type ProcessExecutionFinished struct {
	BaseEvent

	Status   models.ProcessStatus `json:"status"`
	Error    string               `json:"error,omitempty"`
	Duration time.Duration        `json:"duration"`
}

func (e ProcessExecutionFinished) GetType() EventType {
	switch e.Status {
	case models.ProcessCompleted, models.ProcessPartiallyCompleted:
		return ProcessExecutionCompletedEvent
	case models.ProcessCancelled:
		return ProcessExecutionCancelledEvent
	default:
		return ProcessExecutionFailedEvent
	}
}

// ProcessExecutionStateChanged covers pause/resume transitions of an active
// process run.
type ProcessExecutionStateChanged struct {
	BaseEvent

	Status models.ProcessStatus `json:"status"`
}

func (e ProcessExecutionStateChanged) GetType() EventType {
	return e.Type
}

type WorkflowExecutionStarted struct {
	BaseEvent

	WorkflowID    string `json:"workflow_id"`
	WorkflowClass string `json:"workflow_class"`
	Attempt       int    `json:"attempt"`
}

func (e WorkflowExecutionStarted) GetType() EventType {
	return WorkflowExecutionStartedEvent
}

type WorkflowExecutionFinished struct {
	BaseEvent

	WorkflowID string                `json:"workflow_id"`
	Status     models.WorkflowStatus `json:"status"`
	Error      string                `json:"error,omitempty"`
	TimedOut   bool                  `json:"timed_out,omitempty"`
	Duration   time.Duration         `json:"duration"`
}

func (e WorkflowExecutionFinished) GetType() EventType {
	switch {
	case e.TimedOut:
		return WorkflowExecutionTimedOutEvent
	case e.Status == models.WorkflowCompleted:
		return WorkflowExecutionCompletedEvent
	default:
		return WorkflowExecutionFailedEvent
	}
}

type WorkflowExecutionRetried struct {
	BaseEvent

	WorkflowID string `json:"workflow_id"`
	Attempt    int    `json:"attempt"`
	MaxRetries int    `json:"max_retries"`
}

func (e WorkflowExecutionRetried) GetType() EventType {
	return WorkflowExecutionRetriedEvent
}

type ApprovalRequested struct {
	BaseEvent

	WorkflowID   string         `json:"workflow_id"`
	StepName     string         `json:"step_name"`
	ApprovalData map[string]any `json:"approval_data,omitempty"`
}

func (e ApprovalRequested) GetType() EventType {
	return ApprovalRequestedEvent
}

type ApprovalResolved struct {
	BaseEvent

	WorkflowID string `json:"workflow_id"`
	Approved   bool   `json:"approved"`
	Reason     string `json:"reason,omitempty"`
	DecidedBy  string `json:"decided_by,omitempty"`
}

func (e ApprovalResolved) GetType() EventType {
	return ApprovalResolvedEvent
}

type CompensationTriggered struct {
	BaseEvent

	FailedWorkflowID       string `json:"failed_workflow_id"`
	CompensationWorkflowID string `json:"compensation_workflow_id"`
}

func (e CompensationTriggered) GetType() EventType {
	return CompensationTriggeredEvent
}
