// Package pubsub provides a generic publish/subscribe event system used to fan
// out journey progress changes to listeners such as the /events stream.
package pubsub

import (
	"context"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	// JourneyStartedEvent fires when a progress record is created.
	JourneyStartedEvent EventType = "journey.started"

	// StepCompletedEvent fires when one or more steps become completed.
	StepCompletedEvent EventType = "journey.step_completed"

	// JourneyPausedEvent fires on in_progress -> paused.
	JourneyPausedEvent EventType = "journey.paused"

	// JourneyResumedEvent fires on paused -> in_progress.
	JourneyResumedEvent EventType = "journey.resumed"

	// JourneyCompletedEvent fires once when a journey reaches 100%.
	JourneyCompletedEvent EventType = "journey.completed"
)

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
