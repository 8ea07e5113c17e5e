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

// DefinitionRepository handles process definition database operations. The
// definition document is stored as a JSONB blob with a few indexed columns
// lifted out for queries.
type DefinitionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDefinitionRepository creates a new process definition repository.
func NewDefinitionRepository(db *sql.DB, logger *slog.Logger) *DefinitionRepository {
	return &DefinitionRepository{db: db, logger: logger}
}

// GetAll returns all non-deleted process definitions.
func (r *DefinitionRepository) GetAll(ctx context.Context) ([]*models.ProcessDefinition, error) {
	query := `
		SELECT definition
		FROM process_definitions
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query process definitions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	defs := make([]*models.ProcessDefinition, 0)

	for rows.Next() {
		var definitionJSON []byte

		if err := rows.Scan(&definitionJSON); err != nil {
			return nil, fmt.Errorf("failed to scan process definition: %w", err)
		}

		var def models.ProcessDefinition
		if err := json.Unmarshal(definitionJSON, &def); err != nil {
			return nil, fmt.Errorf("failed to unmarshal process definition: %w", err)
		}

		defs = append(defs, &def)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating process definitions: %w", err)
	}

	return defs, nil
}

// GetByID returns a process definition by its ID.
func (r *DefinitionRepository) GetByID(ctx context.Context, id string) (*models.ProcessDefinition, error) {
	query := `
		SELECT definition
		FROM process_definitions
		WHERE id = $1 AND deleted_at IS NULL
	`

	var definitionJSON []byte

	err := r.db.QueryRowContext(ctx, query, id).Scan(&definitionJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("ProcessDefinitionByID", id, persistence.ErrProcessDefinitionNotFound)
		}

		return nil, persistence.NewStoreError("ProcessDefinitionByID", id, err)
	}

	var def models.ProcessDefinition
	if err := json.Unmarshal(definitionJSON, &def); err != nil {
		return nil, persistence.NewStoreError("ProcessDefinitionByID", id, err)
	}

	return &def, nil
}

// Save inserts or updates a process definition.
func (r *DefinitionRepository) Save(ctx context.Context, def *models.ProcessDefinition) error {
	definitionJSON, err := json.Marshal(def)
	if err != nil {
		return persistence.NewStoreError("SaveProcessDefinition", def.ProcessID, err)
	}

	query := `
		INSERT INTO process_definitions (id, name, definition, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			definition = EXCLUDED.definition,
			updated_at = NOW(),
			deleted_at = NULL
	`

	_, err = r.db.ExecContext(ctx, query, def.ProcessID, def.Name, definitionJSON)
	if err != nil {
		return persistence.NewStoreError("SaveProcessDefinition", def.ProcessID, err)
	}

	return nil
}

// Delete soft deletes a process definition by setting the deleted_at
// timestamp.
func (r *DefinitionRepository) Delete(ctx context.Context, id string) error {
	query := `UPDATE process_definitions SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return persistence.NewStoreError("DeleteProcessDefinition", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("DeleteProcessDefinition", id, err)
	}

	if rowsAffected == 0 {
		return persistence.NewStoreError("DeleteProcessDefinition", id, persistence.ErrProcessDefinitionNotFound)
	}

	return nil
}
