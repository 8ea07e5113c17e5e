// Package scheduler runs process definitions on recurring cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ledgerflow/ledgerflow/pkg/models"
	"github.com/ledgerflow/ledgerflow/pkg/orchestrator"
)

// Static error variables for linter compliance.
var (
	ErrScheduleExists  = errors.New("schedule already registered")
	ErrEmptyExpression = errors.New("cron expression is required")
)

// Schedule binds a process definition to a standard cron expression.
type Schedule struct {
	ScheduleID string                    `json:"schedule_id"`
	CronExpr   string                    `json:"cron"`
	Definition *models.ProcessDefinition `json:"definition"`
	InputData  map[string]any            `json:"input_data,omitempty"`
	TenantID   string                    `json:"tenant_id,omitempty"`
}

// Validate checks the schedule is runnable. The process definition itself is
// validated by the orchestrator at execution time.
func (s *Schedule) Validate() error {
	if s.ScheduleID == "" {
		return errors.New("schedule ID is required")
	}

	if s.CronExpr == "" {
		return ErrEmptyExpression
	}

	if _, err := cron.ParseStandard(s.CronExpr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	if s.Definition == nil {
		return errors.New("schedule process definition is required")
	}

	return nil
}

// Scheduler submits process executions on cron ticks. Overlapping runs of the
// same schedule are skipped rather than queued.
type Scheduler struct {
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
	cron   *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func New(orch *orchestrator.Orchestrator, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		orch:   orch,
		logger: logger.With("module", "scheduler"),
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		)),
		entries: make(map[string]cron.EntryID),
	}
}

// Add registers a schedule. The job only fires after Start.
func (s *Scheduler) Add(schedule *Schedule) error {
	if err := schedule.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[schedule.ScheduleID]; exists {
		return fmt.Errorf("schedule %q: %w", schedule.ScheduleID, ErrScheduleExists)
	}

	entryID, err := s.cron.AddFunc(schedule.CronExpr, func() { s.run(schedule) })
	if err != nil {
		return fmt.Errorf("failed to add cron job for schedule %s: %w", schedule.ScheduleID, err)
	}

	s.entries[schedule.ScheduleID] = entryID
	s.logger.Info("Schedule registered", "schedule_id", schedule.ScheduleID, "cron", schedule.CronExpr, "process_id", schedule.Definition.ProcessID)

	return nil
}

// Remove unregisters a schedule. A run already in flight is not interrupted.
func (s *Scheduler) Remove(scheduleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[scheduleID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, scheduleID)
		s.logger.Info("Schedule removed", "schedule_id", scheduleID)
	}
}

// Start begins firing registered schedules.
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.cron.Start()
}

// Stop halts scheduling and waits for in-flight runs to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Stopping scheduler")

	stopped := s.cron.Stop()

	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown interrupted: %w", ctx.Err())
	}
}

func (s *Scheduler) run(schedule *Schedule) {
	logger := s.logger.With("schedule_id", schedule.ScheduleID, "process_id", schedule.Definition.ProcessID)
	logger.Info("Schedule fired")

	input := make(map[string]any, len(schedule.InputData)+1)
	for k, v := range schedule.InputData {
		input[k] = v
	}

	input["scheduled_at"] = time.Now().UTC().Format(time.RFC3339)

	exec, err := s.orch.ExecuteProcess(context.Background(), &models.ProcessExecutionRequest{
		ProcessDefinition: schedule.Definition,
		InputData:         input,
		TenantID:          schedule.TenantID,
	})
	if err != nil {
		logger.Error("Scheduled process execution failed", "error", err)

		return
	}

	logger.Info("Scheduled process execution finished", "execution_id", exec.ExecutionID, "status", exec.Status)
}
