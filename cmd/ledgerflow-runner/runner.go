package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	noop "go.opentelemetry.io/otel/trace/noop"

	"github.com/ledgerflow/ledgerflow/pkg/models"
	"github.com/ledgerflow/ledgerflow/pkg/orchestrator"
	"github.com/ledgerflow/ledgerflow/pkg/otelhelper"
	"github.com/ledgerflow/ledgerflow/pkg/persistence"
	"github.com/ledgerflow/ledgerflow/pkg/scheduler"
)

// Runner loads a process definition and drives it through the orchestrator,
// once or on a cron schedule.
type Runner struct {
	orch        *orchestrator.Orchestrator
	persistence persistence.Persistence
	logger      *slog.Logger
	tracer      trace.Tracer
}

func (r *Runner) Run(ctx context.Context, command *cli.Command) error {
	def, err := loadDefinition(command.String("process"))
	if err != nil {
		return err
	}

	var input map[string]any
	if err := json.Unmarshal([]byte(command.String("input")), &input); err != nil {
		return fmt.Errorf("invalid --input JSON: %w", err)
	}

	r.tracer = noop.NewTracerProvider().Tracer("ledgerflow-runner")

	if command.Bool("tracing") {
		tracer, err := otelhelper.NewTracer(ctx, "ledgerflow-runner")
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}

		r.tracer = tracer
	}

	if err := r.persistence.SaveProcessDefinition(ctx, def); err != nil {
		r.logger.WarnContext(ctx, "Failed to persist process definition", "error", err)
	}

	req := &models.ProcessExecutionRequest{
		ProcessDefinition: def,
		InputData:         input,
		TenantID:          command.String("tenant-id"),
	}

	if cronExpr := command.String("cron"); cronExpr != "" {
		return r.runScheduled(ctx, def, req, cronExpr)
	}

	return r.runOnce(ctx, req)
}

func (r *Runner) runOnce(ctx context.Context, req *models.ProcessExecutionRequest) error {
	def := req.ProcessDefinition

	spanCtx, span := otelhelper.StartSpan(ctx, r.tracer, "process.execute",
		attribute.String(otelhelper.ProcessIDKey, def.ProcessID),
		attribute.String(otelhelper.ProcessNameKey, def.Name),
		attribute.String(otelhelper.TenantIDKey, req.TenantID),
	)
	defer span.End()

	exec, err := r.orch.ExecuteProcess(spanCtx, req)
	if err != nil {
		otelhelper.SetError(span, err, attribute.String(otelhelper.ProcessIDKey, def.ProcessID))

		return err
	}

	span.SetAttributes(
		attribute.String(otelhelper.ExecutionIDKey, exec.ExecutionID),
		attribute.String("ledgerflow.process.status", string(exec.Status)),
	)

	if err := r.persistence.SaveProcessAudit(ctx, exec); err != nil {
		r.logger.WarnContext(ctx, "Failed to persist process audit", "error", err)
	}

	return printExecution(exec)
}

func (r *Runner) runScheduled(ctx context.Context, def *models.ProcessDefinition, req *models.ProcessExecutionRequest, cronExpr string) error {
	sched := scheduler.New(r.orch, r.logger)

	err := sched.Add(&scheduler.Schedule{
		ScheduleID: def.ProcessID,
		CronExpr:   cronExpr,
		Definition: def,
		InputData:  req.InputData,
		TenantID:   req.TenantID,
	})
	if err != nil {
		return err
	}

	sched.Start()
	r.logger.InfoContext(ctx, "Scheduler running, waiting for shutdown signal", "cron", cronExpr)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
	case <-ctx.Done():
	}

	return sched.Stop(context.WithoutCancel(ctx))
}

func loadDefinition(path string) (*models.ProcessDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read process definition: %w", err)
	}

	var def models.ProcessDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse process definition: %w", err)
	}

	return &def, nil
}

func printExecution(exec *models.ProcessExecution) error {
	out, err := json.MarshalIndent(exec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render execution result: %w", err)
	}

	fmt.Println(string(out))

	return nil
}
