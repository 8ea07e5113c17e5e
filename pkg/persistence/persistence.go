// Package persistence provides the storage abstraction for process
// definitions, workflow templates, and completed-run audit records. The
// orchestration core itself holds no on-disk state; persistence is a host
// concern.
package persistence

import (
	"context"

	"github.com/ledgerflow/ledgerflow/pkg/models"
)

type Persistence interface {
	ProcessDefinitions(ctx context.Context) ([]*models.ProcessDefinition, error)
	ProcessDefinitionByID(ctx context.Context, id string) (*models.ProcessDefinition, error)
	SaveProcessDefinition(ctx context.Context, def *models.ProcessDefinition) error
	DeleteProcessDefinition(ctx context.Context, id string) error

	Templates(ctx context.Context) ([]*models.WorkflowTemplate, error)
	TemplateByID(ctx context.Context, id string) (*models.WorkflowTemplate, error)
	SaveTemplate(ctx context.Context, template *models.WorkflowTemplate) error

	SaveProcessAudit(ctx context.Context, exec *models.ProcessExecution) error
	ProcessAudits(ctx context.Context, processID string) ([]*models.ProcessExecution, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
