package orchestrator

import (
	"errors"
	"fmt"

	"github.com/ledgerflow/ledgerflow/pkg/models"
)

// Static error variables for linter compliance.
var (
	ErrDuplicateWorkflowID  = errors.New("duplicate workflow id in process definition")
	ErrUnknownDependency    = errors.New("dependency references unknown workflow")
	ErrUnknownCompensation  = errors.New("compensation references unknown workflow")
	ErrDependencyCycle      = errors.New("dependency cycle detected")
	ErrUnknownWorkflowClass = errors.New("workflow class not registered")
	ErrProcessNotFound      = errors.New("process execution not found")
	ErrProcessNotRunning    = errors.New("process execution is not running")
	ErrProcessNotPaused     = errors.New("process execution is not paused")
	ErrNotWaitingApproval   = errors.New("workflow execution is not waiting for approval")
)

// ValidateDefinition fails fast on a malformed process definition before any
// workflow executes: struct-level constraints, unique workflow IDs, resolvable
// dependency and compensation references, registered workflow classes, and an
// acyclic dependency graph.
func (o *Orchestrator) ValidateDefinition(def *models.ProcessDefinition) error {
	if err := o.validate.Struct(def); err != nil {
		return fmt.Errorf("invalid process definition: %w", err)
	}

	ids := make(map[string]bool, len(def.Workflows))

	for _, w := range def.Workflows {
		if ids[w.WorkflowID] {
			return fmt.Errorf("workflow %q: %w", w.WorkflowID, ErrDuplicateWorkflowID)
		}

		ids[w.WorkflowID] = true
	}

	for _, w := range def.Workflows {
		for _, dep := range w.Dependencies {
			if !ids[dep] {
				return fmt.Errorf("workflow %q depends on %q: %w", w.WorkflowID, dep, ErrUnknownDependency)
			}
		}

		if w.CompensationWorkflow != "" && !ids[w.CompensationWorkflow] {
			return fmt.Errorf("workflow %q compensates with %q: %w", w.WorkflowID, w.CompensationWorkflow, ErrUnknownCompensation)
		}

		if !o.registry.Known(w.WorkflowClass) {
			return fmt.Errorf("workflow %q uses class %q: %w", w.WorkflowID, w.WorkflowClass, ErrUnknownWorkflowClass)
		}
	}

	return detectCycles(def)
}

// detectCycles runs a depth-first search with an explicit recursion stack
// over the dependency relation.
func detectCycles(def *models.ProcessDefinition) error {
	visited := make(map[string]bool, len(def.Workflows))
	inStack := make(map[string]bool, len(def.Workflows))

	var visit func(id string) error

	visit = func(id string) error {
		visited[id] = true
		inStack[id] = true

		wdef, _ := def.WorkflowByID(id)
		for _, dep := range wdef.Dependencies {
			if inStack[dep] {
				return fmt.Errorf("workflow %q and %q: %w", id, dep, ErrDependencyCycle)
			}

			if !visited[dep] {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		inStack[id] = false

		return nil
	}

	for _, w := range def.Workflows {
		if !visited[w.WorkflowID] {
			if err := visit(w.WorkflowID); err != nil {
				return err
			}
		}
	}

	return nil
}
