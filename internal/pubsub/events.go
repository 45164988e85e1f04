// Package pubsub provides the notification plumbing used by the registry:
// an asynchronous, channel based Broker for observers and a synchronous
// Signal for lifecycle callbacks that must run before the caller continues.
package pubsub

import (
	"context"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	CreatedEvent      EventType = "created"
	RegisteredEvent   EventType = "registered"
	UnregisteredEvent EventType = "unregistered"
	ResetEvent        EventType = "reset"
	ShutdownEvent     EventType = "shutdown"
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
	Publish(eventType EventType, payload T) int
}
