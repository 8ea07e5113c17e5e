package models

import "time"

// ParameterType enumerates the value types a configuration parameter accepts.
type ParameterType string

const (
	ParameterString    ParameterType = "string"
	ParameterInteger   ParameterType = "integer"
	ParameterDecimal   ParameterType = "decimal"
	ParameterBoolean   ParameterType = "boolean"
	ParameterEnum      ParameterType = "enum"
	ParameterList      ParameterType = "list"
	ParameterObject    ParameterType = "object"
	ParameterReference ParameterType = "reference"
)

// ConfigurationParameter describes one typed, validated configuration knob of
// a workflow template.
type ConfigurationParameter struct {
	Name          string        `json:"name"           validate:"required"`
	Type          ParameterType `json:"type"           validate:"required"`
	Description   string        `json:"description,omitempty"`
	Required      bool          `json:"required"`
	Default       any           `json:"default,omitempty"`
	AllowedValues []any         `json:"allowed_values,omitempty"`
	MinLength     *int          `json:"min_length,omitempty"`
	MaxLength     *int          `json:"max_length,omitempty"`
	MinValue      *float64      `json:"min_value,omitempty"`
	MaxValue      *float64      `json:"max_value,omitempty"`
	Pattern       string        `json:"pattern,omitempty"`
	DependsOn     []string      `json:"depends_on,omitempty"`

	// Schema optionally constrains object-typed parameters with a full JSON
	// Schema document.
	Schema *JSONSchema `json:"schema,omitempty"`
}

// WorkflowTemplate is a reusable, parameterized workflow shape. Templates are
// registered once at process start and immutable thereafter.
type WorkflowTemplate struct {
	TemplateID    string                    `json:"template_id"    validate:"required"`
	Name          string                    `json:"name"           validate:"required,min=3"`
	Description   string                    `json:"description,omitempty"`
	Category      string                    `json:"category,omitempty"`
	Complexity    string                    `json:"complexity,omitempty"`
	Tags          []string                  `json:"tags,omitempty"`
	WorkflowClass string                    `json:"workflow_class" validate:"required"`
	Parameters    []*ConfigurationParameter `json:"parameters,omitempty"`
	Version       int                       `json:"version,omitempty"`
	CreatedAt     time.Time                 `json:"created_at,omitempty"`
}

// ParameterByName returns the parameter with the given name, if declared.
func (t *WorkflowTemplate) ParameterByName(name string) (*ConfigurationParameter, bool) {
	for _, p := range t.Parameters {
		if p.Name == name {
			return p, true
		}
	}

	return nil, false
}

// Defaults returns the declared default value per parameter that has one.
func (t *WorkflowTemplate) Defaults() map[string]any {
	defaults := make(map[string]any)

	for _, p := range t.Parameters {
		if p.Default != nil {
			defaults[p.Name] = p.Default
		}
	}

	return defaults
}

// TemplateConfiguration is user-supplied parameter data validated against a
// template before instantiation.
type TemplateConfiguration struct {
	TemplateID string         `json:"template_id" validate:"required"`
	Name       string         `json:"name,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// TemplateValidationResult carries hard errors and soft warnings from
// validating a configuration against a template.
type TemplateValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}
