// Package template implements the workflow template engine: reusable,
// parameterized workflow shapes with a typed, validated configuration
// surface.
package template

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ledgerflow/ledgerflow/pkg/models"
	"github.com/ledgerflow/ledgerflow/pkg/registry"
	"github.com/ledgerflow/ledgerflow/pkg/services"
	"github.com/ledgerflow/ledgerflow/pkg/workflow"
)

// Static error variables for linter compliance.
var (
	ErrTemplateNotFound      = errors.New("template not found")
	ErrTemplateAlreadyExists = errors.New("template already registered")
	ErrInvalidConfiguration  = errors.New("configuration failed template validation")
)

// Filter narrows ListTemplates results. Zero values match everything.
type Filter struct {
	Category   string
	Complexity string
	Tags       []string
}

// Engine registers workflow templates and instantiates workflows from
// validated configurations. Templates are registered at process start and
// immutable thereafter.
type Engine struct {
	logger   *slog.Logger
	registry *registry.Registry
	validate *validator.Validate

	mu        sync.RWMutex
	templates map[string]*models.WorkflowTemplate
}

func NewEngine(reg *registry.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		logger:    logger.With("module", "template_engine"),
		registry:  reg,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		templates: make(map[string]*models.WorkflowTemplate),
	}
}

// RegisterTemplate adds a template to the catalog. Registration fails on
// duplicate IDs or malformed parameter declarations.
func (e *Engine) RegisterTemplate(template *models.WorkflowTemplate) error {
	if err := e.validate.Struct(template); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}

	if err := validateParameterDeclarations(template); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.templates[template.TemplateID]; exists {
		return fmt.Errorf("template %q: %w", template.TemplateID, ErrTemplateAlreadyExists)
	}

	if template.CreatedAt.IsZero() {
		template.CreatedAt = time.Now().UTC()
	}

	e.templates[template.TemplateID] = template
	e.logger.Debug("Registered template", "template_id", template.TemplateID, "workflow_class", template.WorkflowClass)

	return nil
}

// RegisterWorkflowClass delegates to the factory registry so hosts can wire
// everything through the engine.
func (e *Engine) RegisterWorkflowClass(component *models.RegisteredComponent, factory registry.WorkflowFactory) {
	e.registry.Register(component, factory)
}

// Template returns a registered template by ID.
func (e *Engine) Template(templateID string) (*models.WorkflowTemplate, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	template, ok := e.templates[templateID]
	if !ok {
		return nil, fmt.Errorf("template %q: %w", templateID, ErrTemplateNotFound)
	}

	return template, nil
}

// ListTemplates returns the registered templates matching the filter, in no
// particular order.
func (e *Engine) ListTemplates(filter Filter) []*models.WorkflowTemplate {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var matched []*models.WorkflowTemplate

	for _, template := range e.templates {
		if filter.Category != "" && template.Category != filter.Category {
			continue
		}

		if filter.Complexity != "" && template.Complexity != filter.Complexity {
			continue
		}

		if !containsAllTags(template.Tags, filter.Tags) {
			continue
		}

		matched = append(matched, template)
	}

	return matched
}

// ValidateConfiguration checks user-supplied parameters against a template:
// required parameters present, per-parameter type/enum/range/regex checks,
// and soft warnings for unmet depends_on references.
func (e *Engine) ValidateConfiguration(templateID string, params map[string]any) (*models.TemplateValidationResult, error) {
	template, err := e.Template(templateID)
	if err != nil {
		return nil, err
	}

	return validateConfiguration(template, params), nil
}

// InstantiateWorkflow merges template parameter defaults with the supplied
// configuration, validates the merged set, and constructs the workflow via
// the registry. It returns nil with an error on any validation or
// instantiation failure; callers must check the error.
func (e *Engine) InstantiateWorkflow(ctx context.Context, templateID string, config map[string]any, deps *services.Dependencies) (*workflow.Workflow, error) {
	template, err := e.Template(templateID)
	if err != nil {
		return nil, err
	}

	merged := template.Defaults()
	for k, v := range config {
		merged[k] = v
	}

	result := validateConfiguration(template, merged)
	if !result.Valid {
		e.logger.Warn("Configuration rejected", "template_id", templateID, "errors", result.Errors)

		return nil, fmt.Errorf("template %q: %w: %v", templateID, ErrInvalidConfiguration, result.Errors)
	}

	instance, err := e.registry.Create(ctx, template.WorkflowClass, merged, deps)
	if err != nil {
		return nil, fmt.Errorf("template %q: %w", templateID, err)
	}

	return instance, nil
}

// ExportTemplate serializes a template to its portable JSON form.
func (e *Engine) ExportTemplate(templateID string) ([]byte, error) {
	template, err := e.Template(templateID)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(template, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to export template %q: %w", templateID, err)
	}

	return data, nil
}

// ImportTemplate registers a template from its serialized form.
func (e *Engine) ImportTemplate(data []byte) (*models.WorkflowTemplate, error) {
	var template models.WorkflowTemplate

	if err := json.Unmarshal(data, &template); err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	if err := e.RegisterTemplate(&template); err != nil {
		return nil, err
	}

	return &template, nil
}

func containsAllTags(have, want []string) bool {
	for _, tag := range want {
		found := false

		for _, t := range have {
			if t == tag {
				found = true

				break
			}
		}

		if !found {
			return false
		}
	}

	return true
}
