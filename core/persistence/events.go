package persistence

import (
	"context"
	"time"
)

// EventType names the lifecycle events a Context emits.
type EventType string

const (
	CommandEnqueued EventType = "command:enqueued"
	CommandStart    EventType = "command:start"
	CommandSuccess  EventType = "command:success"
	CommandFailed   EventType = "command:failed"
	CommitStart     EventType = "commit:start"
	CommitSuccess   EventType = "commit:success"
	CommitFailed    EventType = "commit:failed"
	ContextClosed   EventType = "context:closed"
)

// Event is emitted on the Context's bus.
type Event struct {
	Type         EventType `json:"type"`
	Timestamp    int64     `json:"timestamp"`           // Unix milliseconds
	CommandID    string    `json:"commandId,omitempty"` // empty for commit and context events
	Query        string    `json:"query,omitempty"`
	RowsAffected int64     `json:"rowsAffected,omitempty"`
	Pending      int       `json:"pending"` // commands still queued
	Error        *string   `json:"error,omitempty"`
	Duration     *int64    `json:"duration,omitempty"` // milliseconds
}

// CallbackFunction handles an Event.
type CallbackFunction func(ctx context.Context, event Event) error

// RegisterSubscriptionOptions describes a subscription to one event type.
type RegisterSubscriptionOptions struct {
	Event       EventType `json:"event"`
	Label       *string   `json:"label,omitempty"`
	Description *string   `json:"description,omitempty"`
	Callback    CallbackFunction
}

// SubscriptionInfo describes a registered subscription.
type SubscriptionInfo struct {
	Id          *string   `json:"id"`
	Event       EventType `json:"event"`
	Label       *string   `json:"label,omitempty"`
	Description *string   `json:"description,omitempty"`
	Unsubscribe func()    `json:"-"`
}

func createEvent(eventType EventType, cmd Command, pending int, rows int64, err error, startTime time.Time) Event {
	event := Event{
		Type:         eventType,
		Timestamp:    time.Now().UnixMilli(),
		RowsAffected: rows,
		Pending:      pending,
	}
	if cmd != nil {
		event.CommandID = cmd.ID()
		event.Query = cmd.String()
	}
	if err != nil {
		msg := err.Error()
		event.Error = &msg
	}
	if !startTime.IsZero() {
		d := time.Since(startTime).Milliseconds()
		event.Duration = &d
	}
	return event
}

// emit publishes event on the bus.
func (c *Context) emit(event Event) {
	if c.bus != nil {
		c.bus.Emit(string(event.Type), event)
	}
}
