package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/ledgerflow/ledgerflow/pkg/cmd"
	"github.com/ledgerflow/ledgerflow/pkg/log"
	"github.com/ledgerflow/ledgerflow/pkg/models"
	"github.com/ledgerflow/ledgerflow/pkg/orchestrator"
	"github.com/ledgerflow/ledgerflow/pkg/template"
)

func main() {
	command := &cli.Command{
		Name:                  "ledgerflow",
		Usage:                 "Manage process definitions and workflow templates",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "validate",
				Aliases:   []string{"v"},
				Usage:     "Validate a process definition file",
				ArgsUsage: "<definition.json>",
				Action:    runValidate,
			},
			{
				Name:    "classes",
				Aliases: []string{"c"},
				Usage:   "List registered workflow classes",
				Action:  runClasses,
			},
			{
				Name:    "templates",
				Aliases: []string{"t"},
				Usage:   "Manage workflow templates",
				Commands: []*cli.Command{
					{
						Name:      "export",
						Usage:     "Export a template from a catalog file to stdout",
						ArgsUsage: "<catalog.json> <template-id>",
						Action:    runTemplateExport,
					},
					{
						Name:      "check",
						Usage:     "Validate a configuration against a template",
						ArgsUsage: "<catalog.json> <template-id> <config.json>",
						Action:    runTemplateCheck,
					},
				},
			},
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runValidate(_ context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	path := command.Args().First()
	if path == "" {
		return fmt.Errorf("usage: ledgerflow validate <definition.json>")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read process definition: %w", err)
	}

	var def models.ProcessDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return fmt.Errorf("failed to parse process definition: %w", err)
	}

	logger := log.WithModule("ledgerflow")
	orch := orchestrator.New(cmd.NewRegistry(logger), orchestrator.WithLogger(logger))

	if err := orch.ValidateDefinition(&def); err != nil {
		return err
	}

	fmt.Printf("%s: valid (%d workflows)\n", def.ProcessID, len(def.Workflows))

	return nil
}

func runClasses(_ context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	registry := cmd.NewRegistry(log.WithModule("ledgerflow"))

	for _, component := range registry.Components() {
		fmt.Printf("%-24s %s\n", component.Type, component.Description)
	}

	return nil
}

func runTemplateExport(_ context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	engine, err := loadCatalog(command.Args().Get(0))
	if err != nil {
		return err
	}

	data, err := engine.ExportTemplate(command.Args().Get(1))
	if err != nil {
		return err
	}

	fmt.Println(string(data))

	return nil
}

func runTemplateCheck(_ context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	engine, err := loadCatalog(command.Args().Get(0))
	if err != nil {
		return err
	}

	configData, err := os.ReadFile(command.Args().Get(2))
	if err != nil {
		return fmt.Errorf("failed to read configuration: %w", err)
	}

	var config map[string]any
	if err := json.Unmarshal(configData, &config); err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}

	result, err := engine.ValidateConfiguration(command.Args().Get(1), config)
	if err != nil {
		return err
	}

	for _, warning := range result.Warnings {
		fmt.Println("warning:", warning)
	}

	if !result.Valid {
		for _, msg := range result.Errors {
			fmt.Println("error:", msg)
		}

		return fmt.Errorf("configuration is invalid")
	}

	fmt.Println("configuration is valid")

	return nil
}

// loadCatalog builds a template engine from a JSON file holding an array of
// workflow templates.
func loadCatalog(path string) (*template.Engine, error) {
	if path == "" {
		return nil, fmt.Errorf("a template catalog file is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template catalog: %w", err)
	}

	var templates []*models.WorkflowTemplate
	if err := json.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("failed to parse template catalog: %w", err)
	}

	logger := log.WithModule("ledgerflow")
	engine := template.NewEngine(cmd.NewRegistry(logger), logger)

	for _, t := range templates {
		if err := engine.RegisterTemplate(t); err != nil {
			return nil, err
		}
	}

	return engine, nil
}
