package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ledgerflow/ledgerflow/pkg/models"
	"github.com/ledgerflow/ledgerflow/pkg/persistence"
)

// TemplateRepository handles workflow template database operations.
type TemplateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTemplateRepository creates a new workflow template repository.
func NewTemplateRepository(db *sql.DB, logger *slog.Logger) *TemplateRepository {
	return &TemplateRepository{db: db, logger: logger}
}

// GetAll returns all workflow templates.
func (r *TemplateRepository) GetAll(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	query := `
		SELECT template
		FROM workflow_templates
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow templates: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	templates := make([]*models.WorkflowTemplate, 0)

	for rows.Next() {
		var templateJSON []byte

		if err := rows.Scan(&templateJSON); err != nil {
			return nil, fmt.Errorf("failed to scan workflow template: %w", err)
		}

		var template models.WorkflowTemplate
		if err := json.Unmarshal(templateJSON, &template); err != nil {
			return nil, fmt.Errorf("failed to unmarshal workflow template: %w", err)
		}

		templates = append(templates, &template)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow templates: %w", err)
	}

	return templates, nil
}

// GetByID returns a workflow template by its ID.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	query := `
		SELECT template
		FROM workflow_templates
		WHERE id = $1
	`

	var templateJSON []byte

	err := r.db.QueryRowContext(ctx, query, id).Scan(&templateJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("TemplateByID", id, persistence.ErrTemplateNotFound)
		}

		return nil, persistence.NewStoreError("TemplateByID", id, err)
	}

	var template models.WorkflowTemplate
	if err := json.Unmarshal(templateJSON, &template); err != nil {
		return nil, persistence.NewStoreError("TemplateByID", id, err)
	}

	return &template, nil
}

// Save inserts or updates a workflow template.
func (r *TemplateRepository) Save(ctx context.Context, template *models.WorkflowTemplate) error {
	templateJSON, err := json.Marshal(template)
	if err != nil {
		return persistence.NewStoreError("SaveTemplate", template.TemplateID, err)
	}

	query := `
		INSERT INTO workflow_templates (id, name, workflow_class, category, template, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			workflow_class = EXCLUDED.workflow_class,
			category = EXCLUDED.category,
			template = EXCLUDED.template,
			updated_at = NOW()
	`

	_, err = r.db.ExecContext(ctx, query,
		template.TemplateID,
		template.Name,
		template.WorkflowClass,
		template.Category,
		templateJSON,
	)
	if err != nil {
		return persistence.NewStoreError("SaveTemplate", template.TemplateID, err)
	}

	return nil
}
