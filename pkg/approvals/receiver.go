// Package approvals consumes approval decisions from a Redis queue and
// resolves the matching workflow approval gates on the orchestrator.
package approvals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/ledgerflow/ledgerflow/pkg/orchestrator"
)

const defaultQueue = "ledgerflow:approvals"

// Decision is the wire format a human approval surface pushes onto the queue.
type Decision struct {
	ExecutionID string         `json:"execution_id"`
	WorkflowID  string         `json:"workflow_id"`
	Approved    bool           `json:"approved"`
	Reason      string         `json:"reason,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	DecidedBy   string         `json:"decided_by,omitempty"`
}

// Receiver pops approval decisions from Redis and applies them to suspended
// workflows.
type Receiver struct {
	orch   *orchestrator.Orchestrator
	client redis.UniversalClient
	queue  string
	logger *slog.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewReceiver(orch *orchestrator.Orchestrator, client redis.UniversalClient, queue string, logger *slog.Logger) *Receiver {
	if queue == "" {
		queue = defaultQueue
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Receiver{
		orch:   orch,
		client: client,
		queue:  queue,
		stopCh: make(chan struct{}),
		logger: logger.With(
			"module", "approval_receiver",
			"queue", queue,
		),
	}
}

// Start begins consuming decisions. It returns after verifying the Redis
// connection; consumption continues in the background until Stop.
func (r *Receiver) Start(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := r.client.Ping(pingCtx).Err()
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	r.logger.InfoContext(ctx, "Starting approval receiver")

	r.wg.Add(1)

	go r.consume(ctx)

	return nil
}

func (r *Receiver) consume(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopCh:
			r.logger.InfoContext(ctx, "Approval receiver stopped")

			return
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "Context cancelled, stopping approval receiver")

			return
		default:
			err := r.processMessage(ctx)
			if err != nil {
				r.logger.ErrorContext(ctx, "Error processing approval decision", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (r *Receiver) processMessage(ctx context.Context) error {
	result, err := r.client.BLPop(ctx, 1*time.Second, r.queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop decision from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	var decision Decision
	if err := json.Unmarshal([]byte(result[1]), &decision); err != nil {
		return fmt.Errorf("failed to parse approval decision: %w", err)
	}

	if decision.ExecutionID == "" || decision.WorkflowID == "" {
		return errors.New("approval decision missing execution_id or workflow_id")
	}

	r.logger.InfoContext(ctx, "Received approval decision",
		"execution_id", decision.ExecutionID,
		"workflow_id", decision.WorkflowID,
		"approved", decision.Approved,
	)

	if decision.Approved {
		err = r.orch.ApproveWorkflow(ctx, decision.ExecutionID, decision.WorkflowID, decision.Data, decision.DecidedBy)
	} else {
		err = r.orch.RejectWorkflow(ctx, decision.ExecutionID, decision.WorkflowID, decision.Reason, decision.DecidedBy)
	}

	if err != nil {
		return fmt.Errorf("failed to apply approval decision: %w", err)
	}

	return nil
}

// Stop halts consumption and closes the Redis client.
func (r *Receiver) Stop(ctx context.Context) error {
	r.logger.InfoContext(ctx, "Stopping approval receiver")

	close(r.stopCh)
	r.wg.Wait()

	if r.client != nil {
		err := r.client.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
		}
	}

	return nil
}
