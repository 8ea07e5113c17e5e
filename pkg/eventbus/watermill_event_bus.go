package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ledgerflow/ledgerflow/pkg/events"
)

type WatermillEventBus struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) EventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(events.Topic, msg)
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) {
	eb.subscriptions[eventType] = handler
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

			handler, exists := eb.subscriptions[eventType]
			if !exists {
				msg.Ack()

				continue
			}

			event, err := deserialize(eventType, msg.Payload)
			if err != nil {
				msg.Nack()

				continue
			}

			if err := handler(ctx, event); err != nil {
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillEventBus) Close() error {
	if err := eb.publisher.Close(); err != nil {
		return err
	}

	return eb.subscriber.Close()
}

// deserialize maps a wire payload back to its concrete event struct.
func deserialize(eventType events.EventType, payload []byte) (any, error) {
	var event any

	switch eventType {
	case events.ProcessExecutionStartedEvent:
		event = &events.ProcessExecutionStarted{}
	case events.ProcessExecutionCompletedEvent,
		events.ProcessExecutionFailedEvent,
		events.ProcessExecutionCancelledEvent:
		event = &events.ProcessExecutionFinished{}
	case events.ProcessExecutionPausedEvent, events.ProcessExecutionResumedEvent:
		event = &events.ProcessExecutionStateChanged{}
	case events.WorkflowExecutionStartedEvent:
		event = &events.WorkflowExecutionStarted{}
	case events.WorkflowExecutionCompletedEvent,
		events.WorkflowExecutionFailedEvent,
		events.WorkflowExecutionTimedOutEvent:
		event = &events.WorkflowExecutionFinished{}
	case events.WorkflowExecutionRetriedEvent:
		event = &events.WorkflowExecutionRetried{}
	case events.ApprovalRequestedEvent:
		event = &events.ApprovalRequested{}
	case events.ApprovalResolvedEvent:
		event = &events.ApprovalResolved{}
	case events.CompensationTriggeredEvent:
		event = &events.CompensationTriggered{}
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	if err := json.Unmarshal(payload, event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s event: %w", eventType, err)
	}

	return event, nil
}
