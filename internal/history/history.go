// Package history exports execution lifecycle events to external stores.
// Sinks are best-effort: a failing sink is logged by the caller and never
// blocks or fails the execution itself.
package history

import (
	"context"
	"time"

	"github.com/procorg/procorg/internal/execution"
)

// EventType classifies a lifecycle event.
type EventType string

const (
	EventStarted  EventType = "started"
	EventFinished EventType = "finished"
	EventStopped  EventType = "stopped"
)

// Event is one lifecycle transition of an execution.
type Event struct {
	Type       EventType        `json:"type"`
	OccurredAt time.Time        `json:"occurred_at"`
	Execution  execution.Record `json:"execution"`
}

// Sink receives lifecycle events.
type Sink interface {
	Send(ctx context.Context, evt Event) error
	Close() error
}
