// Package cmd provides common initialization functions for command-line
// applications.
package cmd

import (
	"log/slog"

	"github.com/ledgerflow/ledgerflow/internal/workflows"
	"github.com/ledgerflow/ledgerflow/pkg/registry"
)

func NewRegistry(log *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(log)

	workflows.RegisterAll(reg)

	return reg
}
