package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerflow/ledgerflow/pkg/eventbus"
	"github.com/ledgerflow/ledgerflow/pkg/events"
	"github.com/ledgerflow/ledgerflow/pkg/models"
	"github.com/ledgerflow/ledgerflow/pkg/registry"
	"github.com/ledgerflow/ledgerflow/pkg/services"
	"github.com/ledgerflow/ledgerflow/pkg/workflow"
)

// recorder tracks step executions, attempts, and rollbacks across workflow
// instances created during one test.
type recorder struct {
	mu        sync.Mutex
	order     []string
	attempts  map[string]int
	rollbacks []string
}

func newRecorder() *recorder {
	return &recorder{attempts: make(map[string]int)}
}

func (r *recorder) executed(workflowID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.order = append(r.order, workflowID)
	r.attempts[workflowID]++
}

func (r *recorder) rolledBack(workflowID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rollbacks = append(r.rollbacks, workflowID)
}

func (r *recorder) executionOrder() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.order...)
}

func (r *recorder) attemptCount(workflowID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.attempts[workflowID]
}

func (r *recorder) rollbackOrder() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.rollbacks...)
}

// testSteps adapts plain functions to the workflow step contract.
type testSteps struct {
	workflow.Base

	exec func(step string, wc *workflow.Context) (*models.WorkflowResult, error)
	roll func(wc *workflow.Context)
}

func (s *testSteps) ExecuteStep(_ context.Context, step string, wc *workflow.Context) (*models.WorkflowResult, error) {
	if s.exec != nil {
		return s.exec(step, wc)
	}

	return models.StepSuccess(step, nil, "ok"), nil
}

func (s *testSteps) RollbackStep(_ context.Context, step string, wc *workflow.Context) (*models.WorkflowResult, error) {
	if s.roll != nil {
		s.roll(wc)
	}

	return models.StepSuccess(step, nil, "rolled back"), nil
}

// capturingPublisher records every emitted event for later inspection.
type capturingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *capturingPublisher) byType(eventType events.EventType) []eventbus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	var matched []eventbus.Event

	for _, e := range p.events {
		if e.GetType() == eventType {
			matched = append(matched, e)
		}
	}

	return matched
}

func (p *capturingPublisher) waitFor(t *testing.T, eventType events.EventType) eventbus.Event {
	t.Helper()

	return p.waitForNth(t, eventType, 1)
}

func (p *capturingPublisher) waitForNth(t *testing.T, eventType events.EventType, n int) eventbus.Event {
	t.Helper()

	deadline := time.After(2 * time.Second)

	for {
		if matched := p.byType(eventType); len(matched) >= n {
			return matched[n-1]
		}

		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d events of type %s", n, eventType)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func component(class string) *models.RegisteredComponent {
	return &models.RegisteredComponent{Type: class, Name: class}
}

// testRegistry registers the scripted workflow classes used across the
// orchestrator tests.
func testRegistry(rec *recorder) *registry.Registry {
	reg := registry.NewRegistry(nil)

	reg.Register(component("record"), func(_ context.Context, params map[string]any, _ *services.Dependencies) (*workflow.Workflow, error) {
		id, _ := params["workflow_id"].(string)

		steps := &testSteps{
			exec: func(step string, _ *workflow.Context) (*models.WorkflowResult, error) {
				rec.executed(id)

				return models.StepSuccess(step, map[string]any{"done": "true"}, "ok"), nil
			},
			roll: func(_ *workflow.Context) { rec.rolledBack(id) },
		}

		return workflow.New("record", []string{"work"}, steps, workflow.WithParameters(params))
	})

	reg.Register(component("fail"), func(_ context.Context, params map[string]any, _ *services.Dependencies) (*workflow.Workflow, error) {
		id, _ := params["workflow_id"].(string)

		steps := &testSteps{
			exec: func(_ string, _ *workflow.Context) (*models.WorkflowResult, error) {
				rec.executed(id)

				return nil, errors.New("permanent failure")
			},
		}

		return workflow.New("fail", []string{"work"}, steps, workflow.WithParameters(params))
	})

	reg.Register(component("flaky"), func(_ context.Context, params map[string]any, _ *services.Dependencies) (*workflow.Workflow, error) {
		id, _ := params["workflow_id"].(string)

		steps := &testSteps{
			exec: func(step string, _ *workflow.Context) (*models.WorkflowResult, error) {
				rec.executed(id)

				if rec.attemptCount(id) < 3 {
					return nil, errors.New("transient failure")
				}

				return models.StepSuccess(step, nil, "finally"), nil
			},
		}

		return workflow.New("flaky", []string{"work"}, steps, workflow.WithParameters(params))
	})

	reg.Register(component("approve"), func(_ context.Context, params map[string]any, _ *services.Dependencies) (*workflow.Workflow, error) {
		id, _ := params["workflow_id"].(string)

		steps := &testSteps{
			exec: func(step string, _ *workflow.Context) (*models.WorkflowResult, error) {
				rec.executed(id)

				if step == "work" {
					return models.StepApprovalRequired(step, nil, map[string]any{"amount": 5000.0}), nil
				}

				return models.StepSuccess(step, nil, "confirmed"), nil
			},
		}

		return workflow.New("approve", []string{"work", "confirm"}, steps, workflow.WithParameters(params))
	})

	reg.Register(component("gatefail"), func(_ context.Context, params map[string]any, _ *services.Dependencies) (*workflow.Workflow, error) {
		id, _ := params["workflow_id"].(string)

		steps := &testSteps{
			exec: func(step string, _ *workflow.Context) (*models.WorkflowResult, error) {
				if step == "gate" {
					rec.executed(id)

					return models.StepApprovalRequired(step, nil, map[string]any{"amount": 5000.0}), nil
				}

				rec.executed(id + ":settle")

				return nil, errors.New("settlement rejected by provider")
			},
			roll: func(_ *workflow.Context) { rec.rolledBack(id) },
		}

		return workflow.New("gatefail", []string{"gate", "settle"}, steps, workflow.WithParameters(params))
	})

	reg.Register(component("gateflaky"), func(_ context.Context, params map[string]any, _ *services.Dependencies) (*workflow.Workflow, error) {
		id, _ := params["workflow_id"].(string)

		steps := &testSteps{
			exec: func(step string, _ *workflow.Context) (*models.WorkflowResult, error) {
				if step == "gate" {
					rec.executed(id)

					return models.StepApprovalRequired(step, nil, map[string]any{"amount": 5000.0}), nil
				}

				rec.executed(id + ":settle")

				if rec.attemptCount(id+":settle") < 2 {
					return nil, errors.New("transient settlement failure")
				}

				return models.StepSuccess(step, nil, "settled"), nil
			},
		}

		return workflow.New("gateflaky", []string{"gate", "settle"}, steps, workflow.WithParameters(params))
	})

	reg.Register(component("slow"), func(_ context.Context, params map[string]any, _ *services.Dependencies) (*workflow.Workflow, error) {
		id, _ := params["workflow_id"].(string)

		steps := &testSteps{
			exec: func(step string, _ *workflow.Context) (*models.WorkflowResult, error) {
				rec.executed(id)
				time.Sleep(400 * time.Millisecond)

				return models.StepSuccess(step, nil, "slept"), nil
			},
		}

		return workflow.New("slow", []string{"work"}, steps, workflow.WithParameters(params))
	})

	return reg
}

func testOrchestrator(rec *recorder, pub *capturingPublisher) *Orchestrator {
	opts := []Option{
		WithConfig(Config{PollInterval: 5 * time.Millisecond}),
	}

	if pub != nil {
		opts = append(opts, WithPublisher(pub))
	}

	return New(testRegistry(rec), opts...)
}

func definition(workflows ...*models.WorkflowDefinition) *models.ProcessDefinition {
	return &models.ProcessDefinition{
		ProcessID: "proc-test",
		Name:      "orchestrator test process",
		Workflows: workflows,
	}
}

func execute(t *testing.T, o *Orchestrator, def *models.ProcessDefinition) *models.ProcessExecution {
	t.Helper()

	exec, err := o.ExecuteProcess(context.Background(), &models.ProcessExecutionRequest{
		ProcessDefinition: def,
		TenantID:          "tenant-1",
	})
	require.NoError(t, err)

	return exec
}

func TestValidateDefinitionRejectsDuplicateIDs(t *testing.T) {
	o := testOrchestrator(newRecorder(), nil)
	def := definition(
		&models.WorkflowDefinition{WorkflowID: "w1", WorkflowClass: "record"},
		&models.WorkflowDefinition{WorkflowID: "w1", WorkflowClass: "record"},
	)

	err := o.ValidateDefinition(def)
	require.ErrorIs(t, err, ErrDuplicateWorkflowID)
}

func TestValidateDefinitionRejectsDanglingReferences(t *testing.T) {
	o := testOrchestrator(newRecorder(), nil)

	err := o.ValidateDefinition(definition(
		&models.WorkflowDefinition{WorkflowID: "w1", WorkflowClass: "record", Dependencies: []string{"ghost"}},
	))
	require.ErrorIs(t, err, ErrUnknownDependency)

	err = o.ValidateDefinition(definition(
		&models.WorkflowDefinition{WorkflowID: "w1", WorkflowClass: "record", CompensationWorkflow: "ghost"},
	))
	require.ErrorIs(t, err, ErrUnknownCompensation)

	err = o.ValidateDefinition(definition(
		&models.WorkflowDefinition{WorkflowID: "w1", WorkflowClass: "no-such-class"},
	))
	require.ErrorIs(t, err, ErrUnknownWorkflowClass)
}

func TestValidateDefinitionRejectsCycles(t *testing.T) {
	o := testOrchestrator(newRecorder(), nil)
	def := definition(
		&models.WorkflowDefinition{WorkflowID: "w1", WorkflowClass: "record", Dependencies: []string{"w3"}},
		&models.WorkflowDefinition{WorkflowID: "w2", WorkflowClass: "record", Dependencies: []string{"w1"}},
		&models.WorkflowDefinition{WorkflowID: "w3", WorkflowClass: "record", Dependencies: []string{"w2"}},
	)

	err := o.ValidateDefinition(def)
	require.ErrorIs(t, err, ErrDependencyCycle)
}

func TestExecuteProcessRunsDependentsAfterPrerequisite(t *testing.T) {
	rec := newRecorder()
	o := testOrchestrator(rec, nil)

	def := definition(
		&models.WorkflowDefinition{WorkflowID: "w1", WorkflowClass: "record"},
		&models.WorkflowDefinition{WorkflowID: "w2", WorkflowClass: "record", Dependencies: []string{"w1"}, DependencyType: models.DependencySequence},
		&models.WorkflowDefinition{WorkflowID: "w3", WorkflowClass: "record", Dependencies: []string{"w1"}, DependencyType: models.DependencyParallel},
	)
	def.ParallelExecutionLimit = 2

	exec := execute(t, o, def)

	assert.Equal(t, models.ProcessCompleted, exec.Status)

	order := rec.executionOrder()
	require.Len(t, order, 3)
	assert.Equal(t, "w1", order[0])
	assert.ElementsMatch(t, []string{"w2", "w3"}, order[1:])

	for _, id := range []string{"w1", "w2", "w3"} {
		assert.Equal(t, models.WorkflowCompleted, exec.WorkflowExecutions[id].Status)
	}

	// Completed outputs surface on the process execution.
	w1Out, ok := exec.OutputData["w1"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "true", w1Out["done"])
	require.NotNil(t, exec.EndTime)
}

func TestDependentsOfFailedWorkflowNeverRun(t *testing.T) {
	rec := newRecorder()
	o := testOrchestrator(rec, nil)

	def := definition(
		&models.WorkflowDefinition{WorkflowID: "w1", WorkflowClass: "fail"},
		&models.WorkflowDefinition{WorkflowID: "w2", WorkflowClass: "record", Dependencies: []string{"w1"}},
	)

	exec := execute(t, o, def)

	assert.Equal(t, models.ProcessPartiallyCompleted, exec.Status)
	assert.Equal(t, models.WorkflowFailed, exec.WorkflowExecutions["w1"].Status)
	assert.Equal(t, models.WorkflowPending, exec.WorkflowExecutions["w2"].Status)
	assert.Equal(t, []string{"w1"}, rec.executionOrder())
}

func TestRetryBudgetGivesExactlyRetryCountPlusOneAttempts(t *testing.T) {
	rec := newRecorder()
	pub := &capturingPublisher{}
	o := testOrchestrator(rec, pub)

	def := definition(
		&models.WorkflowDefinition{WorkflowID: "stubborn", WorkflowClass: "fail", RetryCount: 2},
	)

	exec := execute(t, o, def)

	assert.Equal(t, models.ProcessPartiallyCompleted, exec.Status)
	assert.Equal(t, models.WorkflowFailed, exec.WorkflowExecutions["stubborn"].Status)
	assert.Equal(t, 3, rec.attemptCount("stubborn"))
	assert.Len(t, pub.byType(events.WorkflowExecutionRetriedEvent), 2)
}

func TestFlakyWorkflowSucceedsWithinRetryBudget(t *testing.T) {
	rec := newRecorder()
	o := testOrchestrator(rec, nil)

	def := definition(
		&models.WorkflowDefinition{WorkflowID: "flaky", WorkflowClass: "flaky", RetryCount: 2},
	)

	exec := execute(t, o, def)

	assert.Equal(t, models.ProcessCompleted, exec.Status)
	assert.Equal(t, models.WorkflowCompleted, exec.WorkflowExecutions["flaky"].Status)
	assert.Equal(t, 3, rec.attemptCount("flaky"))
}

func TestCompensationRunsAfterPermanentFailure(t *testing.T) {
	rec := newRecorder()
	pub := &capturingPublisher{}
	o := testOrchestrator(rec, pub)

	def := definition(
		&models.WorkflowDefinition{WorkflowID: "charge", WorkflowClass: "fail", CompensationWorkflow: "undo"},
		&models.WorkflowDefinition{
			WorkflowID:     "undo",
			WorkflowClass:  "record",
			Dependencies:   []string{"charge"},
			DependencyType: models.DependencyCompensation,
		},
	)

	exec := execute(t, o, def)

	assert.Equal(t, models.ProcessPartiallyCompleted, exec.Status)
	assert.Equal(t, models.WorkflowFailed, exec.WorkflowExecutions["charge"].Status)
	assert.Equal(t, models.WorkflowCompleted, exec.WorkflowExecutions["undo"].Status)
	require.Len(t, pub.byType(events.CompensationTriggeredEvent), 1)
}

func TestConditionalDependencyGatesExecution(t *testing.T) {
	rec := newRecorder()
	o := testOrchestrator(rec, nil)

	def := definition(
		&models.WorkflowDefinition{WorkflowID: "w1", WorkflowClass: "record"},
		&models.WorkflowDefinition{
			WorkflowID:     "gated",
			WorkflowClass:  "record",
			Dependencies:   []string{"w1"},
			DependencyType: models.DependencyConditional,
			Condition:      "w1.done == 'false'",
		},
	)

	exec := execute(t, o, def)

	assert.Equal(t, models.ProcessPartiallyCompleted, exec.Status)
	assert.Equal(t, models.WorkflowPending, exec.WorkflowExecutions["gated"].Status)
	assert.Equal(t, []string{"w1"}, rec.executionOrder())
}

func TestConditionalDependencyRunsWhenConditionHolds(t *testing.T) {
	rec := newRecorder()
	o := testOrchestrator(rec, nil)

	def := definition(
		&models.WorkflowDefinition{WorkflowID: "w1", WorkflowClass: "record"},
		&models.WorkflowDefinition{
			WorkflowID:     "gated",
			WorkflowClass:  "record",
			Dependencies:   []string{"w1"},
			DependencyType: models.DependencyConditional,
			Condition:      "w1.done == 'true'",
		},
	)

	exec := execute(t, o, def)

	assert.Equal(t, models.ProcessCompleted, exec.Status)
	assert.Equal(t, []string{"w1", "gated"}, rec.executionOrder())
}

func TestWorkflowTimeoutFailsTheExecution(t *testing.T) {
	rec := newRecorder()
	pub := &capturingPublisher{}

	o := New(testRegistry(rec),
		WithPublisher(pub),
		WithConfig(Config{
			PollInterval:   5 * time.Millisecond,
			DefaultTimeout: 50 * time.Millisecond,
		}),
	)

	def := definition(
		&models.WorkflowDefinition{WorkflowID: "sleepy", WorkflowClass: "slow"},
	)

	exec := execute(t, o, def)

	assert.Equal(t, models.ProcessPartiallyCompleted, exec.Status)
	assert.Equal(t, models.WorkflowFailed, exec.WorkflowExecutions["sleepy"].Status)
	assert.Contains(t, exec.WorkflowExecutions["sleepy"].Error, "timed out")
	require.Len(t, pub.byType(events.WorkflowExecutionTimedOutEvent), 1)
}

func TestContextCancellationFailsProcessAndRollsBack(t *testing.T) {
	rec := newRecorder()
	o := testOrchestrator(rec, nil)

	def := definition(
		&models.WorkflowDefinition{WorkflowID: "w1", WorkflowClass: "record"},
		&models.WorkflowDefinition{WorkflowID: "w2", WorkflowClass: "slow", Dependencies: []string{"w1"}},
	)
	def.RollbackOnFailure = true

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	exec, err := o.ExecuteProcess(ctx, &models.ProcessExecutionRequest{ProcessDefinition: def})
	require.NoError(t, err)

	assert.Equal(t, models.ProcessFailed, exec.Status)
	assert.NotEmpty(t, exec.Error)

	// The completed prefix is compensated.
	assert.Equal(t, []string{"w1"}, rec.rollbackOrder())
}

func TestApprovalGateSuspendsUntilApproved(t *testing.T) {
	rec := newRecorder()
	pub := &capturingPublisher{}
	o := testOrchestrator(rec, pub)

	def := definition(
		&models.WorkflowDefinition{WorkflowID: "payment", WorkflowClass: "approve"},
	)

	done := make(chan *models.ProcessExecution, 1)

	go func() {
		exec, err := o.ExecuteProcess(context.Background(), &models.ProcessExecutionRequest{ProcessDefinition: def})
		require.NoError(t, err)
		done <- exec
	}()

	requested := pub.waitFor(t, events.ApprovalRequestedEvent)
	approvalEvent, ok := requested.(events.ApprovalRequested)
	require.True(t, ok)

	executionID := approvalEvent.ExecutionID

	_, active := o.ActiveProcess(executionID)
	assert.True(t, active)

	err := o.ApproveWorkflow(context.Background(), executionID, "payment", map[string]any{"approved_by": "ops"}, "ops")
	require.NoError(t, err)

	exec := <-done

	assert.Equal(t, models.ProcessCompleted, exec.Status)
	assert.Equal(t, models.WorkflowCompleted, exec.WorkflowExecutions["payment"].Status)
	require.Len(t, pub.byType(events.ApprovalResolvedEvent), 1)

	// The run is gone from the active table once finished.
	_, active = o.ActiveProcess(executionID)
	assert.False(t, active)
}

func TestRejectionCancelsSuspendedWorkflow(t *testing.T) {
	rec := newRecorder()
	pub := &capturingPublisher{}
	o := testOrchestrator(rec, pub)

	def := definition(
		&models.WorkflowDefinition{WorkflowID: "payment", WorkflowClass: "approve"},
	)

	done := make(chan *models.ProcessExecution, 1)

	go func() {
		exec, err := o.ExecuteProcess(context.Background(), &models.ProcessExecutionRequest{ProcessDefinition: def})
		require.NoError(t, err)
		done <- exec
	}()

	requested := pub.waitFor(t, events.ApprovalRequestedEvent)
	approvalEvent, ok := requested.(events.ApprovalRequested)
	require.True(t, ok)

	err := o.RejectWorkflow(context.Background(), approvalEvent.ExecutionID, "payment", "too expensive", "ops")
	require.NoError(t, err)

	exec := <-done

	assert.Equal(t, models.ProcessPartiallyCompleted, exec.Status)
	assert.Equal(t, models.WorkflowCancelled, exec.WorkflowExecutions["payment"].Status)
	assert.Equal(t, "too expensive", exec.WorkflowExecutions["payment"].Error)
}

func TestDependentRunsAfterApprovedPrerequisite(t *testing.T) {
	rec := newRecorder()
	pub := &capturingPublisher{}
	o := testOrchestrator(rec, pub)

	def := definition(
		&models.WorkflowDefinition{WorkflowID: "review", WorkflowClass: "approve"},
		&models.WorkflowDefinition{WorkflowID: "activate", WorkflowClass: "record", Dependencies: []string{"review"}},
	)

	done := make(chan *models.ProcessExecution, 1)

	go func() {
		exec, err := o.ExecuteProcess(context.Background(), &models.ProcessExecutionRequest{ProcessDefinition: def})
		require.NoError(t, err)
		done <- exec
	}()

	requested := pub.waitFor(t, events.ApprovalRequestedEvent)
	approvalEvent, ok := requested.(events.ApprovalRequested)
	require.True(t, ok)

	err := o.ApproveWorkflow(context.Background(), approvalEvent.ExecutionID, "review", nil, "ops")
	require.NoError(t, err)

	exec := <-done

	assert.Equal(t, models.ProcessCompleted, exec.Status)
	assert.Equal(t, models.WorkflowCompleted, exec.WorkflowExecutions["review"].Status)
	assert.Equal(t, models.WorkflowCompleted, exec.WorkflowExecutions["activate"].Status)

	order := rec.executionOrder()
	require.NotEmpty(t, order)
	assert.Equal(t, "activate", order[len(order)-1])
}

func TestIndependentWorkflowsRunWhileGateSuspended(t *testing.T) {
	rec := newRecorder()
	pub := &capturingPublisher{}
	o := testOrchestrator(rec, pub)

	def := definition(
		&models.WorkflowDefinition{WorkflowID: "review", WorkflowClass: "approve"},
		&models.WorkflowDefinition{WorkflowID: "prep", WorkflowClass: "record"},
		&models.WorkflowDefinition{WorkflowID: "notify", WorkflowClass: "record", Dependencies: []string{"prep"}},
	)

	done := make(chan *models.ProcessExecution, 1)

	go func() {
		exec, err := o.ExecuteProcess(context.Background(), &models.ProcessExecutionRequest{ProcessDefinition: def})
		require.NoError(t, err)
		done <- exec
	}()

	requested := pub.waitFor(t, events.ApprovalRequestedEvent)
	approvalEvent, ok := requested.(events.ApprovalRequested)
	require.True(t, ok)

	// The branch independent of the suspended gate keeps making progress
	// before any decision arrives.
	require.Eventually(t, func() bool {
		return rec.attemptCount("notify") == 1
	}, 2*time.Second, 5*time.Millisecond)

	err := o.ApproveWorkflow(context.Background(), approvalEvent.ExecutionID, "review", nil, "ops")
	require.NoError(t, err)

	exec := <-done

	assert.Equal(t, models.ProcessCompleted, exec.Status)

	for _, id := range []string{"review", "prep", "notify"} {
		assert.Equal(t, models.WorkflowCompleted, exec.WorkflowExecutions[id].Status)
	}
}

func TestPostApprovalFailureTriggersCompensation(t *testing.T) {
	rec := newRecorder()
	pub := &capturingPublisher{}
	o := testOrchestrator(rec, pub)

	def := definition(
		&models.WorkflowDefinition{WorkflowID: "charge", WorkflowClass: "gatefail", CompensationWorkflow: "undo"},
		&models.WorkflowDefinition{
			WorkflowID:     "undo",
			WorkflowClass:  "record",
			Dependencies:   []string{"charge"},
			DependencyType: models.DependencyCompensation,
		},
	)

	done := make(chan *models.ProcessExecution, 1)

	go func() {
		exec, err := o.ExecuteProcess(context.Background(), &models.ProcessExecutionRequest{ProcessDefinition: def})
		require.NoError(t, err)
		done <- exec
	}()

	requested := pub.waitFor(t, events.ApprovalRequestedEvent)
	approvalEvent, ok := requested.(events.ApprovalRequested)
	require.True(t, ok)

	err := o.ApproveWorkflow(context.Background(), approvalEvent.ExecutionID, "charge", nil, "ops")
	require.NoError(t, err)

	exec := <-done

	assert.Equal(t, models.ProcessPartiallyCompleted, exec.Status)
	assert.Equal(t, models.WorkflowFailed, exec.WorkflowExecutions["charge"].Status)
	assert.Equal(t, models.WorkflowCompleted, exec.WorkflowExecutions["undo"].Status)
	assert.Contains(t, exec.WorkflowExecutions["charge"].Error, "settlement rejected")
	require.Len(t, pub.byType(events.CompensationTriggeredEvent), 1)
	assert.Equal(t, 1, rec.attemptCount("undo"))
}

func TestPostApprovalFailureConsumesRetryBudget(t *testing.T) {
	rec := newRecorder()
	pub := &capturingPublisher{}
	o := testOrchestrator(rec, pub)

	def := definition(
		&models.WorkflowDefinition{WorkflowID: "charge", WorkflowClass: "gateflaky", RetryCount: 1},
	)

	done := make(chan *models.ProcessExecution, 1)

	go func() {
		exec, err := o.ExecuteProcess(context.Background(), &models.ProcessExecutionRequest{ProcessDefinition: def})
		require.NoError(t, err)
		done <- exec
	}()

	requested := pub.waitFor(t, events.ApprovalRequestedEvent)
	approvalEvent, ok := requested.(events.ApprovalRequested)
	require.True(t, ok)

	err := o.ApproveWorkflow(context.Background(), approvalEvent.ExecutionID, "charge", nil, "ops")
	require.NoError(t, err)

	// The retried attempt re-runs the whole workflow, gate included.
	pub.waitForNth(t, events.ApprovalRequestedEvent, 2)

	err = o.ApproveWorkflow(context.Background(), approvalEvent.ExecutionID, "charge", nil, "ops")
	require.NoError(t, err)

	exec := <-done

	assert.Equal(t, models.ProcessCompleted, exec.Status)
	assert.Equal(t, models.WorkflowCompleted, exec.WorkflowExecutions["charge"].Status)
	assert.Equal(t, 2, rec.attemptCount("charge:settle"))
	require.Len(t, pub.byType(events.WorkflowExecutionRetriedEvent), 1)
	require.Len(t, pub.byType(events.ApprovalRequestedEvent), 2)
}

func TestApproveWorkflowErrorsForUnknownExecution(t *testing.T) {
	o := testOrchestrator(newRecorder(), nil)

	err := o.ApproveWorkflow(context.Background(), "proc-missing", "w1", nil, "ops")
	require.ErrorIs(t, err, ErrProcessNotFound)
}

func TestCancelProcessStopsSuspendedRun(t *testing.T) {
	rec := newRecorder()
	pub := &capturingPublisher{}
	o := testOrchestrator(rec, pub)

	def := definition(
		&models.WorkflowDefinition{WorkflowID: "payment", WorkflowClass: "approve"},
	)

	done := make(chan *models.ProcessExecution, 1)

	go func() {
		exec, err := o.ExecuteProcess(context.Background(), &models.ProcessExecutionRequest{ProcessDefinition: def})
		require.NoError(t, err)
		done <- exec
	}()

	requested := pub.waitFor(t, events.ApprovalRequestedEvent)
	approvalEvent, ok := requested.(events.ApprovalRequested)
	require.True(t, ok)

	err := o.CancelProcess(context.Background(), approvalEvent.ExecutionID)
	require.NoError(t, err)

	exec := <-done

	assert.Equal(t, models.ProcessCancelled, exec.Status)
	assert.Equal(t, models.WorkflowCancelled, exec.WorkflowExecutions["payment"].Status)
}

func TestPauseAndResumeProcess(t *testing.T) {
	rec := newRecorder()
	pub := &capturingPublisher{}
	o := testOrchestrator(rec, pub)

	def := definition(
		&models.WorkflowDefinition{WorkflowID: "w1", WorkflowClass: "slow"},
		&models.WorkflowDefinition{WorkflowID: "w2", WorkflowClass: "record", Dependencies: []string{"w1"}},
	)

	done := make(chan *models.ProcessExecution, 1)

	go func() {
		exec, err := o.ExecuteProcess(context.Background(), &models.ProcessExecutionRequest{ProcessDefinition: def})
		require.NoError(t, err)
		done <- exec
	}()

	started := pub.waitFor(t, events.ProcessExecutionStartedEvent)
	startedEvent, ok := started.(events.ProcessExecutionStarted)
	require.True(t, ok)

	executionID := startedEvent.ExecutionID

	require.NoError(t, o.PauseProcess(context.Background(), executionID))

	// Pausing a paused run is rejected.
	err := o.PauseProcess(context.Background(), executionID)
	require.ErrorIs(t, err, ErrProcessNotRunning)

	require.NoError(t, o.ResumeProcess(context.Background(), executionID))

	exec := <-done

	assert.Equal(t, models.ProcessCompleted, exec.Status)
	assert.Equal(t, []string{"w1", "w2"}, rec.executionOrder())
	require.Len(t, pub.byType(events.ProcessExecutionPausedEvent), 1)
	require.Len(t, pub.byType(events.ProcessExecutionResumedEvent), 1)
}
