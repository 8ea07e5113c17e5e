package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerflow/ledgerflow/pkg/channels/gochannel"
	"github.com/ledgerflow/ledgerflow/pkg/events"
	"github.com/ledgerflow/ledgerflow/pkg/models"
)

func testBus(t *testing.T) EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestPublishReachesSubscribedHandler(t *testing.T) {
	bus := testBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu       sync.Mutex
		received []*events.WorkflowExecutionFinished
	)

	bus.Handle(events.WorkflowExecutionCompletedEvent, func(_ context.Context, event any) error {
		finished, ok := event.(*events.WorkflowExecutionFinished)
		require.True(t, ok)

		mu.Lock()
		received = append(received, finished)
		mu.Unlock()

		return nil
	})

	require.NoError(t, bus.Subscribe(ctx))

	sent := events.WorkflowExecutionFinished{
		WorkflowID: "invoice",
		Status:     models.WorkflowCompleted,
		Duration:   3 * time.Second,
	}
	sent.BaseEvent = events.BaseEvent{
		ID:          bus.GenerateID(),
		Type:        events.WorkflowExecutionCompletedEvent,
		Timestamp:   time.Now().UTC(),
		ProcessID:   "monthly-billing-cycle",
		ExecutionID: "proc-abc12345",
	}

	require.NoError(t, bus.Publish(ctx, "invoice", sent))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	got := received[0]
	assert.Equal(t, "invoice", got.WorkflowID)
	assert.Equal(t, models.WorkflowCompleted, got.Status)
	assert.Equal(t, "proc-abc12345", got.ExecutionID)
	assert.Equal(t, 3*time.Second, got.Duration)
}

func TestEventsWithoutHandlerAreAcked(t *testing.T) {
	bus := testBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var handled int

	var mu sync.Mutex

	bus.Handle(events.ApprovalRequestedEvent, func(_ context.Context, _ any) error {
		mu.Lock()
		handled++
		mu.Unlock()

		return nil
	})

	require.NoError(t, bus.Subscribe(ctx))

	// No handler registered for this type; the message is acked and dropped.
	started := events.ProcessExecutionStarted{ProcessName: "billing"}
	started.BaseEvent = events.BaseEvent{ID: bus.GenerateID(), Type: events.ProcessExecutionStartedEvent}
	require.NoError(t, bus.Publish(ctx, "proc", started))

	requested := events.ApprovalRequested{WorkflowID: "collect-payment"}
	requested.BaseEvent = events.BaseEvent{ID: bus.GenerateID(), Type: events.ApprovalRequestedEvent}
	require.NoError(t, bus.Publish(ctx, "collect-payment", requested))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return handled == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDeserializeMapsEveryEventType(t *testing.T) {
	cases := []struct {
		eventType events.EventType
		payload   string
		check     func(t *testing.T, event any)
	}{
		{
			eventType: events.ProcessExecutionStartedEvent,
			payload:   `{"process_name":"billing","workflow_count":4}`,
			check: func(t *testing.T, event any) {
				started, ok := event.(*events.ProcessExecutionStarted)
				require.True(t, ok)
				assert.Equal(t, 4, started.WorkflowCount)
			},
		},
		{
			eventType: events.ProcessExecutionFailedEvent,
			payload:   `{"status":"failed","error":"boom"}`,
			check: func(t *testing.T, event any) {
				finished, ok := event.(*events.ProcessExecutionFinished)
				require.True(t, ok)
				assert.Equal(t, models.ProcessFailed, finished.Status)
			},
		},
		{
			eventType: events.WorkflowExecutionTimedOutEvent,
			payload:   `{"workflow_id":"invoice","status":"failed","timed_out":true}`,
			check: func(t *testing.T, event any) {
				finished, ok := event.(*events.WorkflowExecutionFinished)
				require.True(t, ok)
				assert.True(t, finished.TimedOut)
			},
		},
		{
			eventType: events.WorkflowExecutionRetriedEvent,
			payload:   `{"workflow_id":"invoice","attempt":2,"max_retries":3}`,
			check: func(t *testing.T, event any) {
				retried, ok := event.(*events.WorkflowExecutionRetried)
				require.True(t, ok)
				assert.Equal(t, 2, retried.Attempt)
			},
		},
		{
			eventType: events.ApprovalResolvedEvent,
			payload:   `{"workflow_id":"collect-payment","approved":false,"reason":"too expensive"}`,
			check: func(t *testing.T, event any) {
				resolved, ok := event.(*events.ApprovalResolved)
				require.True(t, ok)
				assert.False(t, resolved.Approved)
			},
		},
		{
			eventType: events.CompensationTriggeredEvent,
			payload:   `{"failed_workflow_id":"invoice","compensation_workflow_id":"notify-failure"}`,
			check: func(t *testing.T, event any) {
				triggered, ok := event.(*events.CompensationTriggered)
				require.True(t, ok)
				assert.Equal(t, "notify-failure", triggered.CompensationWorkflowID)
			},
		},
	}

	for _, tc := range cases {
		t.Run(string(tc.eventType), func(t *testing.T) {
			event, err := deserialize(tc.eventType, []byte(tc.payload))
			require.NoError(t, err)
			tc.check(t, event)
		})
	}
}

func TestDeserializeRejectsUnknownType(t *testing.T) {
	_, err := deserialize("workflow.execution.exploded", []byte(`{}`))
	require.Error(t, err)
}
