// Package file provides file-based persistence for process definitions,
// templates, and audit records. Intended for local development and tests.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledgerflow/ledgerflow/pkg/models"
	"github.com/ledgerflow/ledgerflow/pkg/persistence"
)

const (
	definitionsDir = "definitions"
	templatesDir   = "templates"
	auditsDir      = "audits"
)

// Persistence implements persistence.Persistence on the local file system,
// one JSON document per entity.
type Persistence struct {
	root string
}

func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{root: cleanRoot}
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) ProcessDefinitions(_ context.Context) ([]*models.ProcessDefinition, error) {
	var defs []*models.ProcessDefinition

	err := p.readAll(definitionsDir, func(data []byte) error {
		var def models.ProcessDefinition
		if err := json.Unmarshal(data, &def); err != nil {
			return err
		}

		defs = append(defs, &def)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return defs, nil
}

func (p *Persistence) ProcessDefinitionByID(_ context.Context, id string) (*models.ProcessDefinition, error) {
	data, err := os.ReadFile(p.path(definitionsDir, id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewStoreError("ProcessDefinitionByID", id, persistence.ErrProcessDefinitionNotFound)
		}

		return nil, persistence.NewStoreError("ProcessDefinitionByID", id, err)
	}

	var def models.ProcessDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, persistence.NewStoreError("ProcessDefinitionByID", id, err)
	}

	return &def, nil
}

func (p *Persistence) SaveProcessDefinition(_ context.Context, def *models.ProcessDefinition) error {
	return p.write(definitionsDir, def.ProcessID, def)
}

func (p *Persistence) DeleteProcessDefinition(_ context.Context, id string) error {
	if err := os.Remove(p.path(definitionsDir, id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return persistence.NewStoreError("DeleteProcessDefinition", id, persistence.ErrProcessDefinitionNotFound)
		}

		return persistence.NewStoreError("DeleteProcessDefinition", id, err)
	}

	return nil
}

func (p *Persistence) Templates(_ context.Context) ([]*models.WorkflowTemplate, error) {
	var templates []*models.WorkflowTemplate

	err := p.readAll(templatesDir, func(data []byte) error {
		var template models.WorkflowTemplate
		if err := json.Unmarshal(data, &template); err != nil {
			return err
		}

		templates = append(templates, &template)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return templates, nil
}

func (p *Persistence) TemplateByID(_ context.Context, id string) (*models.WorkflowTemplate, error) {
	data, err := os.ReadFile(p.path(templatesDir, id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewStoreError("TemplateByID", id, persistence.ErrTemplateNotFound)
		}

		return nil, persistence.NewStoreError("TemplateByID", id, err)
	}

	var template models.WorkflowTemplate
	if err := json.Unmarshal(data, &template); err != nil {
		return nil, persistence.NewStoreError("TemplateByID", id, err)
	}

	return &template, nil
}

func (p *Persistence) SaveTemplate(_ context.Context, template *models.WorkflowTemplate) error {
	return p.write(templatesDir, template.TemplateID, template)
}

func (p *Persistence) SaveProcessAudit(_ context.Context, exec *models.ProcessExecution) error {
	name := fmt.Sprintf("%s-%s-%d", exec.ProcessDefinition.ProcessID, exec.ExecutionID, time.Now().UnixNano())

	return p.write(auditsDir, name, exec)
}

func (p *Persistence) ProcessAudits(_ context.Context, processID string) ([]*models.ProcessExecution, error) {
	var audits []*models.ProcessExecution

	err := p.readAll(auditsDir, func(data []byte) error {
		var exec models.ProcessExecution
		if err := json.Unmarshal(data, &exec); err != nil {
			return err
		}

		if exec.ProcessDefinition != nil && exec.ProcessDefinition.ProcessID == processID {
			audits = append(audits, &exec)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return audits, nil
}

func (p *Persistence) path(dir, id string) string {
	return filepath.Join(p.root, dir, id+".json")
}

func (p *Persistence) write(dir, id string, entity any) error {
	if err := os.MkdirAll(filepath.Join(p.root, dir), 0o755); err != nil {
		return persistence.NewStoreError("Save", id, err)
	}

	data, err := json.MarshalIndent(entity, "", "  ")
	if err != nil {
		return persistence.NewStoreError("Save", id, err)
	}

	if err := os.WriteFile(p.path(dir, id), data, 0o644); err != nil {
		return persistence.NewStoreError("Save", id, err)
	}

	return nil
}

func (p *Persistence) readAll(dir string, each func(data []byte) error) error {
	entries, err := os.ReadDir(filepath.Join(p.root, dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("failed to read %s directory: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(p.root, dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}

		if err := each(data); err != nil {
			return fmt.Errorf("failed to decode %s: %w", entry.Name(), err)
		}
	}

	return nil
}
