package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ledgerflow/ledgerflow/pkg/models"
	"github.com/ledgerflow/ledgerflow/pkg/persistence"
)

// AuditRepository stores completed process executions for later inspection.
// Audits are append-only; a finished run is recorded once under its
// execution ID.
type AuditRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAuditRepository creates a new process audit repository.
func NewAuditRepository(db *sql.DB, logger *slog.Logger) *AuditRepository {
	return &AuditRepository{db: db, logger: logger}
}

// Save records a process execution audit.
func (r *AuditRepository) Save(ctx context.Context, exec *models.ProcessExecution) error {
	executionJSON, err := json.Marshal(exec)
	if err != nil {
		return persistence.NewStoreError("SaveProcessAudit", exec.ExecutionID, err)
	}

	processID := ""
	if exec.ProcessDefinition != nil {
		processID = exec.ProcessDefinition.ProcessID
	}

	query := `
		INSERT INTO process_audits (execution_id, process_id, tenant_id, status, execution)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (execution_id) DO UPDATE SET
			status = EXCLUDED.status,
			execution = EXCLUDED.execution
	`

	_, err = r.db.ExecContext(ctx, query,
		exec.ExecutionID,
		processID,
		exec.TenantID,
		exec.Status,
		executionJSON,
	)
	if err != nil {
		return persistence.NewStoreError("SaveProcessAudit", exec.ExecutionID, err)
	}

	return nil
}

// GetByProcessID returns the recorded executions of a process, newest first.
func (r *AuditRepository) GetByProcessID(ctx context.Context, processID string) ([]*models.ProcessExecution, error) {
	query := `
		SELECT execution
		FROM process_audits
		WHERE process_id = $1
		ORDER BY recorded_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, processID)
	if err != nil {
		return nil, fmt.Errorf("failed to query process audits: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	audits := make([]*models.ProcessExecution, 0)

	for rows.Next() {
		var executionJSON []byte

		if err := rows.Scan(&executionJSON); err != nil {
			return nil, fmt.Errorf("failed to scan process audit: %w", err)
		}

		var exec models.ProcessExecution
		if err := json.Unmarshal(executionJSON, &exec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal process audit: %w", err)
		}

		audits = append(audits, &exec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating process audits: %w", err)
	}

	return audits, nil
}
