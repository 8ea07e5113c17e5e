package models

import "time"

// WorkflowDefinition declares one workflow inside a process: which class to
// instantiate, its scheduling relation to other workflows, and its recovery
// budget.
type WorkflowDefinition struct {
	WorkflowID           string         `json:"workflow_id"           validate:"required"`
	WorkflowClass        string         `json:"workflow_class"        validate:"required"`
	Parameters           map[string]any `json:"parameters,omitempty"`
	Dependencies         []string       `json:"dependencies,omitempty"`
	DependencyType       DependencyType `json:"dependency_type,omitempty"`
	Condition            string         `json:"condition,omitempty"`
	TimeoutSeconds       int            `json:"timeout_seconds,omitempty"       validate:"gte=0"`
	RetryCount           int            `json:"retry_count,omitempty"           validate:"gte=0"`
	CompensationWorkflow string         `json:"compensation_workflow,omitempty"`
}

// TimeoutDuration returns the configured timeout, or zero when unset.
func (d *WorkflowDefinition) TimeoutDuration() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}

// ProcessDefinition is the declarative description of a multi-workflow
// process. Workflow IDs must be unique and the dependency relation acyclic;
// both are checked before any execution starts.
type ProcessDefinition struct {
	ProcessID              string                `json:"process_id"              validate:"required"`
	Name                   string                `json:"name"                    validate:"required,min=3"`
	Workflows              []*WorkflowDefinition `json:"workflows"               validate:"required,min=1,dive"`
	RollbackOnFailure      bool                  `json:"rollback_on_failure"`
	ParallelExecutionLimit int                   `json:"parallel_execution_limit" validate:"gte=0"`
}

// WorkflowByID returns the workflow definition with the given ID, if present.
func (p *ProcessDefinition) WorkflowByID(id string) (*WorkflowDefinition, bool) {
	for _, w := range p.Workflows {
		if w.WorkflowID == id {
			return w, true
		}
	}

	return nil, false
}
