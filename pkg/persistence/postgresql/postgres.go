// Package postgresql provides PostgreSQL persistence for process definitions,
// workflow templates, and audit records.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// Registers the "postgres" database/sql driver.
	_ "github.com/lib/pq"

	"github.com/ledgerflow/ledgerflow/pkg/models"
	"github.com/ledgerflow/ledgerflow/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db             *sql.DB
	logger         *slog.Logger
	definitionRepo *DefinitionRepository
	templateRepo   *TemplateRepository
	auditRepo      *AuditRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and runs pending
// schema migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:             database,
		logger:         logger,
		definitionRepo: NewDefinitionRepository(database, logger),
		templateRepo:   NewTemplateRepository(database, logger),
		auditRepo:      NewAuditRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) ProcessDefinitions(ctx context.Context) ([]*models.ProcessDefinition, error) {
	return p.definitionRepo.GetAll(ctx)
}

func (p *Persistence) ProcessDefinitionByID(ctx context.Context, id string) (*models.ProcessDefinition, error) {
	return p.definitionRepo.GetByID(ctx, id)
}

func (p *Persistence) SaveProcessDefinition(ctx context.Context, def *models.ProcessDefinition) error {
	return p.definitionRepo.Save(ctx, def)
}

// DeleteProcessDefinition soft deletes a process definition by setting the
// deleted_at timestamp.
func (p *Persistence) DeleteProcessDefinition(ctx context.Context, id string) error {
	return p.definitionRepo.Delete(ctx, id)
}

func (p *Persistence) Templates(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	return p.templateRepo.GetAll(ctx)
}

func (p *Persistence) TemplateByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	return p.templateRepo.GetByID(ctx, id)
}

func (p *Persistence) SaveTemplate(ctx context.Context, template *models.WorkflowTemplate) error {
	return p.templateRepo.Save(ctx, template)
}

func (p *Persistence) SaveProcessAudit(ctx context.Context, exec *models.ProcessExecution) error {
	return p.auditRepo.Save(ctx, exec)
}

func (p *Persistence) ProcessAudits(ctx context.Context, processID string) ([]*models.ProcessExecution, error) {
	return p.auditRepo.GetByProcessID(ctx, processID)
}
