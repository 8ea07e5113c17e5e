package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerflow/ledgerflow/pkg/models"
)

// scriptedSteps executes a fixed script per step name and records every
// engine callback in order.
type scriptedSteps struct {
	Base

	script    map[string]func(wc *Context) (*models.WorkflowResult, error)
	executed  []string
	rolledBck []string
	failRoll  map[string]bool
}

func newScripted() *scriptedSteps {
	return &scriptedSteps{
		script:   make(map[string]func(wc *Context) (*models.WorkflowResult, error)),
		failRoll: make(map[string]bool),
	}
}

func (s *scriptedSteps) ExecuteStep(_ context.Context, step string, wc *Context) (*models.WorkflowResult, error) {
	s.executed = append(s.executed, step)

	if fn, ok := s.script[step]; ok {
		return fn(wc)
	}

	return models.StepSuccess(step, map[string]any{"step": step}, "ok"), nil
}

func (s *scriptedSteps) RollbackStep(_ context.Context, step string, _ *Context) (*models.WorkflowResult, error) {
	s.rolledBck = append(s.rolledBck, step)

	if s.failRoll[step] {
		return models.StepFailure(step, "rollback exploded"), nil
	}

	return models.StepSuccess(step, nil, "rolled back"), nil
}

func TestNewRequiresStepsAndImplementation(t *testing.T) {
	_, err := New("billing", nil, newScripted())
	require.ErrorIs(t, err, ErrNoSteps)

	_, err = New("billing", []string{"a"}, nil)
	require.ErrorIs(t, err, ErrNilSteps)
}

func TestExecuteRunsStepsInDeclaredOrder(t *testing.T) {
	steps := newScripted()
	w, err := New("billing", []string{"first", "second", "third"}, steps)
	require.NoError(t, err)

	results, err := w.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second", "third"}, steps.executed)
	require.Len(t, results, 3)
	assert.True(t, w.IsCompleted())
	assert.InDelta(t, 100.0, w.ProgressPercentage(), 0.001)

	for i, step := range []string{"first", "second", "third"} {
		assert.Equal(t, step, results[i].StepName)
		assert.True(t, results[i].Success)
	}
}

func TestExecuteRejectsSecondRun(t *testing.T) {
	w, err := New("billing", []string{"only"}, newScripted())
	require.NoError(t, err)

	_, err = w.Execute(context.Background())
	require.NoError(t, err)

	_, err = w.Execute(context.Background())
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestStepFailureRollsBackSuccessfulPrefixInReverse(t *testing.T) {
	steps := newScripted()
	steps.script["charge"] = func(_ *Context) (*models.WorkflowResult, error) {
		return nil, errors.New("gateway unavailable")
	}

	w, err := New("billing", []string{"reserve", "rate", "charge"}, steps)
	require.NoError(t, err)

	results, err := w.Execute(context.Background())
	require.NoError(t, err)

	assert.True(t, w.IsFailed())
	require.Len(t, results, 3)
	assert.False(t, results[2].Success)
	assert.Contains(t, results[2].Error, "gateway unavailable")

	// Only the successful prefix is compensated, most recent first.
	assert.Equal(t, []string{"rate", "reserve"}, steps.rolledBck)
}

func TestRollbackDisabledLeavesStepsAlone(t *testing.T) {
	steps := newScripted()
	steps.script["b"] = func(_ *Context) (*models.WorkflowResult, error) {
		return models.StepFailure("b", "nope"), nil
	}

	w, err := New("billing", []string{"a", "b"}, steps, WithRollbackOnFailure(false))
	require.NoError(t, err)

	_, err = w.Execute(context.Background())
	require.NoError(t, err)

	assert.True(t, w.IsFailed())
	assert.Empty(t, steps.rolledBck)
}

func TestContinueOnStepFailureRunsRemainingSteps(t *testing.T) {
	steps := newScripted()
	steps.script["b"] = func(_ *Context) (*models.WorkflowResult, error) {
		return models.StepFailure("b", "soft failure"), nil
	}

	w, err := New("billing", []string{"a", "b", "c"}, steps,
		WithRollbackOnFailure(false),
		WithContinueOnStepFailure(true),
	)
	require.NoError(t, err)

	results, err := w.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, steps.executed)
	require.Len(t, results, 3)
	assert.True(t, w.IsCompleted())
}

func TestEndTimeSetExactlyOnce(t *testing.T) {
	w, err := New("billing", []string{"only"}, newScripted())
	require.NoError(t, err)

	_, err = w.Execute(context.Background())
	require.NoError(t, err)

	first := w.EndTime()
	require.NotNil(t, first)

	// A second terminal transition must not move the end time.
	err = w.Cancel(context.Background())
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, first, w.EndTime())
	require.NotNil(t, w.ExecutionTime())
}

func TestApprovalSuspendsAndResumesAtNextStep(t *testing.T) {
	steps := newScripted()
	steps.script["charge"] = func(_ *Context) (*models.WorkflowResult, error) {
		return models.StepApprovalRequired("charge",
			map[string]any{"amount": 5000.0},
			map[string]any{"reason": "over threshold"}), nil
	}

	var callbackStep string

	w, err := New("billing", []string{"rate", "charge", "confirm"}, steps,
		WithApprovalCallback(func(_ context.Context, _ *Workflow, r *models.WorkflowResult) {
			callbackStep = r.StepName
		}),
	)
	require.NoError(t, err)

	results, err := w.Execute(context.Background())
	require.NoError(t, err)

	assert.True(t, w.IsWaitingApproval())
	assert.Equal(t, "charge", callbackStep)
	assert.Equal(t, 1, w.CurrentStepIndex())
	require.Len(t, results, 2)

	// Another Execute while suspended is rejected.
	_, err = w.Execute(context.Background())
	require.ErrorIs(t, err, ErrInvalidState)

	results, err = w.ApproveAndContinue(context.Background(), map[string]any{"approved_by": "ops"})
	require.NoError(t, err)

	assert.True(t, w.IsCompleted())
	// The approved step is not re-executed; execution resumed at "confirm".
	assert.Equal(t, []string{"rate", "charge", "confirm"}, steps.executed)
	require.Len(t, results, 3)
	assert.Contains(t, results[1].Message, "[APPROVED]")
	assert.Equal(t, "ops", results[1].Data["approved_by"])
}

func TestRejectCancelsAndRollsBack(t *testing.T) {
	steps := newScripted()
	steps.script["charge"] = func(_ *Context) (*models.WorkflowResult, error) {
		return models.StepApprovalRequired("charge", nil, nil), nil
	}

	w, err := New("billing", []string{"rate", "charge", "confirm"}, steps)
	require.NoError(t, err)

	_, err = w.Execute(context.Background())
	require.NoError(t, err)
	require.True(t, w.IsWaitingApproval())

	results, err := w.RejectAndCancel(context.Background(), "amount not justified")
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowCancelled, w.Status())

	last := results[len(results)-1]
	assert.False(t, last.Success)
	assert.Equal(t, "amount not justified", last.Error)
	assert.Contains(t, last.Message, "[REJECTED]")

	// "charge" is no longer successful after rejection, so only "rate" is
	// compensated.
	assert.Equal(t, []string{"rate"}, steps.rolledBck)
}

func TestApproveRequiresSuspendedState(t *testing.T) {
	w, err := New("billing", []string{"only"}, newScripted())
	require.NoError(t, err)

	_, err = w.ApproveAndContinue(context.Background(), nil)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = w.RejectAndCancel(context.Background(), "no")
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestValidationFailureFailsWithoutExecutingSteps(t *testing.T) {
	steps := newScripted()

	w, err := New("billing", []string{"a", "b"}, steps)
	require.NoError(t, err)

	// Override validation through the script hook on the Base embed.
	impl := &failingValidation{scriptedSteps: steps}
	w.impl = impl

	results, err := w.Execute(context.Background())
	require.NoError(t, err)

	assert.True(t, w.IsFailed())
	assert.Empty(t, steps.executed)
	require.Len(t, results, 1)
	assert.Equal(t, "validate_business_rules", results[0].StepName)
	assert.InDelta(t, 0.0, w.ProgressPercentage(), 0.001)
}

type failingValidation struct {
	*scriptedSteps
}

func (f *failingValidation) ValidateBusinessRules(_ context.Context, _ *Context) (*models.WorkflowResult, error) {
	return models.StepFailure("validate_business_rules", "account is delinquent"), nil
}

func TestValidationApprovalResumesAtFirstStep(t *testing.T) {
	steps := newScripted()

	w, err := New("billing", []string{"a", "b"}, steps)
	require.NoError(t, err)

	w.impl = &approvalValidation{scriptedSteps: steps}

	_, err = w.Execute(context.Background())
	require.NoError(t, err)
	require.True(t, w.IsWaitingApproval())
	assert.Equal(t, -1, w.CurrentStepIndex())

	_, err = w.ApproveAndContinue(context.Background(), nil)
	require.NoError(t, err)

	assert.True(t, w.IsCompleted())
	assert.Equal(t, []string{"a", "b"}, steps.executed)
}

type approvalValidation struct {
	*scriptedSteps
}

func (a *approvalValidation) ValidateBusinessRules(_ context.Context, _ *Context) (*models.WorkflowResult, error) {
	return models.StepApprovalRequired("validate_business_rules", nil, map[string]any{"policy": "manual review"}), nil
}

func TestPanicInStepBecomesFailedResult(t *testing.T) {
	steps := newScripted()
	steps.script["boom"] = func(_ *Context) (*models.WorkflowResult, error) {
		panic("nil pointer somewhere")
	}

	w, err := New("billing", []string{"boom"}, steps)
	require.NoError(t, err)

	results, err := w.Execute(context.Background())
	require.NoError(t, err)

	assert.True(t, w.IsFailed())
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Error, "panic in step boom")
}

func TestRollbackFailuresAreRecordedNotRaised(t *testing.T) {
	steps := newScripted()
	steps.failRoll["reserve"] = true
	steps.script["charge"] = func(_ *Context) (*models.WorkflowResult, error) {
		return models.StepFailure("charge", "declined"), nil
	}

	w, err := New("billing", []string{"reserve", "charge"}, steps)
	require.NoError(t, err)

	_, err = w.Execute(context.Background())
	require.NoError(t, err)

	assert.True(t, w.IsFailed())
	require.Len(t, w.RollbackErrors(), 1)
	assert.Contains(t, w.RollbackErrors()[0], "reserve")
}

func TestRollbackAggregatesErrorsAndSkipsAlreadyRolledBack(t *testing.T) {
	steps := newScripted()
	steps.failRoll["a"] = true

	w, err := New("billing", []string{"a", "b"}, steps, WithRollbackOnFailure(false))
	require.NoError(t, err)

	_, err = w.Execute(context.Background())
	require.NoError(t, err)
	require.True(t, w.IsCompleted())

	err = w.Rollback(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rollback completed with errors")
	assert.Equal(t, []string{"b", "a"}, steps.rolledBck)

	// A second rollback finds nothing left to do but still reports the
	// recorded failure.
	err = w.Rollback(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"b", "a"}, steps.rolledBck)
}

func TestCancelStopsFurtherSteps(t *testing.T) {
	steps := newScripted()

	w, err := New("billing", []string{"a", "b"}, steps)
	require.NoError(t, err)

	steps.script["a"] = func(_ *Context) (*models.WorkflowResult, error) {
		// Cancellation mid-run: the loop observes the status change before
		// starting the next step.
		require.NoError(t, w.Cancel(context.Background()))

		return models.StepSuccess("a", nil, "ok"), nil
	}

	results, err := w.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowCancelled, w.Status())
	assert.Equal(t, []string{"a"}, steps.executed)
	require.Len(t, results, 1)
}

func TestOutputDataMergesResultsAndBusinessContext(t *testing.T) {
	steps := newScripted()
	steps.script["rate"] = func(wc *Context) (*models.WorkflowResult, error) {
		wc.Set("total", "110.00")

		return models.StepSuccess("rate", map[string]any{"subtotal": "100.00"}, "rated"), nil
	}

	w, err := New("billing", []string{"rate"}, steps, WithParameters(map[string]any{"customer_id": "c-1"}))
	require.NoError(t, err)

	_, err = w.Execute(context.Background())
	require.NoError(t, err)

	output := w.OutputData()
	assert.Equal(t, "100.00", output["subtotal"])
	assert.Equal(t, "110.00", output["total"])
}

func TestOptionsApplyToContext(t *testing.T) {
	w, err := New("billing", []string{"a"}, newScripted(),
		WithID("wf-fixed"),
		WithTenant("tenant-9"),
		WithApproval(1000),
		WithParameters(map[string]any{"amount": 1500.0}),
	)
	require.NoError(t, err)

	assert.Equal(t, "wf-fixed", w.ID())
	assert.Equal(t, "tenant-9", w.Context().TenantID)
	assert.True(t, w.Context().RequireApproval)
	assert.InDelta(t, 1000.0, w.Context().ApprovalThreshold, 0.001)
	assert.InDelta(t, 1500.0, w.Context().FloatParam("amount"), 0.001)
}
