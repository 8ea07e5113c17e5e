// Package registry maps workflow class names to factories that construct
// runnable workflow instances with their injected service dependencies.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ledgerflow/ledgerflow/pkg/models"
	"github.com/ledgerflow/ledgerflow/pkg/services"
	"github.com/ledgerflow/ledgerflow/pkg/workflow"
)

// ErrClassNotRegistered indicates no factory exists for a workflow class.
var ErrClassNotRegistered = errors.New("workflow class not registered")

// WorkflowFactory constructs a workflow instance from merged parameters and
// the platform's service dependencies.
type WorkflowFactory func(ctx context.Context, params map[string]any, deps *services.Dependencies) (*workflow.Workflow, error)

// Registry is the workflow class registry consulted by the orchestrator and
// the template engine.
type Registry struct {
	logger *slog.Logger

	mu         sync.RWMutex
	factories  map[string]WorkflowFactory
	components map[string]*models.RegisteredComponent
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		logger:     logger.With("module", "registry"),
		factories:  make(map[string]WorkflowFactory),
		components: make(map[string]*models.RegisteredComponent),
	}
}

// Register binds a workflow class to its factory, replacing any previous
// registration for the same class.
func (r *Registry) Register(component *models.RegisteredComponent, factory WorkflowFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[component.Type] = factory
	r.components[component.Type] = component
	r.logger.Debug("Registered workflow class", "workflow_class", component.Type)
}

// Create instantiates a workflow of the given class.
func (r *Registry) Create(ctx context.Context, class string, params map[string]any, deps *services.Dependencies) (*workflow.Workflow, error) {
	r.mu.RLock()
	factory, ok := r.factories[class]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("workflow class %q: %w", class, ErrClassNotRegistered)
	}

	instance, err := factory(ctx, params, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow of class %q: %w", class, err)
	}

	return instance, nil
}

// Known reports whether a class has a registered factory.
func (r *Registry) Known(class string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.factories[class]

	return ok
}

// Components lists the registered workflow classes with their metadata.
func (r *Registry) Components() []*models.RegisteredComponent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	components := make([]*models.RegisteredComponent, 0, len(r.components))
	for _, c := range r.components {
		components = append(components, c)
	}

	return components
}
