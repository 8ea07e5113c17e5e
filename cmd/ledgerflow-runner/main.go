package main

import (
	"context"
	"os"

	redis "github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v3"

	"github.com/ledgerflow/ledgerflow/internal/localdev"
	"github.com/ledgerflow/ledgerflow/pkg/approvals"
	"github.com/ledgerflow/ledgerflow/pkg/cmd"
	"github.com/ledgerflow/ledgerflow/pkg/log"
	"github.com/ledgerflow/ledgerflow/pkg/orchestrator"
)

func main() {
	command := &cli.Command{
		Name:                  "ledgerflow-runner",
		EnableShellCompletion: true,
		Usage:                 "Execute business process definitions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Persistence URL (file://<dir> or postgres://...)",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the approval decision queue (disabled when empty)",
				Value:   "",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "approval-queue",
				Usage:   "Redis list the approval decisions are consumed from",
				Value:   "ledgerflow:approvals",
				Sources: cli.EnvVars("APPROVAL_QUEUE"),
			},
			&cli.StringFlag{
				Name:     "process",
				Aliases:  []string{"p"},
				Usage:    "Path to the process definition JSON file",
				Required: true,
				Sources:  cli.EnvVars("PROCESS_FILE"),
			},
			&cli.StringFlag{
				Name:    "input",
				Usage:   "Process input data as a JSON object",
				Value:   "{}",
				Sources: cli.EnvVars("PROCESS_INPUT"),
			},
			&cli.StringFlag{
				Name:    "tenant-id",
				Usage:   "Tenant the process runs for",
				Value:   "",
				Sources: cli.EnvVars("TENANT_ID"),
			},
			&cli.StringFlag{
				Name:    "cron",
				Usage:   "Run the process on this cron schedule instead of once",
				Value:   "",
				Sources: cli.EnvVars("PROCESS_CRON"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OTLP traces for process executions",
				Sources: cli.EnvVars("OTEL_TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))
			logger := log.WithModule("ledgerflow-runner")

			logger.InfoContext(ctx, "Initializing LedgerFlow runner")

			registry := cmd.NewRegistry(logger)

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			orch := orchestrator.New(registry,
				orchestrator.WithLogger(logger),
				orchestrator.WithPublisher(eventBus),
				orchestrator.WithDependencies(localdev.NewDependencies(logger)),
			)

			var receiver *approvals.Receiver

			if redisURL := command.String("redis-url"); redisURL != "" {
				opts, err := redis.ParseURL(redisURL)
				if err != nil {
					return err
				}

				receiver = approvals.NewReceiver(orch, redis.NewClient(opts), command.String("approval-queue"), logger)
				if err := receiver.Start(ctx); err != nil {
					return err
				}

				defer func() {
					err := receiver.Stop(ctx)
					if err != nil {
						logger.ErrorContext(ctx, "Failed to stop approval receiver", "error", err)
					}
				}()
			}

			runner := &Runner{
				orch:        orch,
				persistence: persistence,
				logger:      logger,
			}

			return runner.Run(ctx, command)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
