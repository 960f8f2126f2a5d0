package audit

import (
	"context"
	"log/slog"
	"time"
)

// Publisher accepts audit events from domain logic and hands them to the
// background worker. Emission is fire-and-forget: a slow or failed sink must
// never roll back a ballot or credential transaction, so a full buffer drops
// the event with a warning rather than blocking the caller.
type Publisher struct {
	inbox  chan Event
	logger *slog.Logger
}

// NewPublisher creates a publisher with the given buffer size. The returned
// channel feeds the Worker.
func NewPublisher(bufferSize int, logger *slog.Logger) *Publisher {
	return &Publisher{
		inbox:  make(chan Event, bufferSize),
		logger: logger,
	}
}

// Emit enqueues an event, filling in timestamp and category defaults.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = event.Action.Category()
	}

	select {
	case p.inbox <- event:
	default:
		p.logger.WarnContext(ctx, "audit buffer full, dropping event",
			"action", event.Action,
			"actor_id", event.ActorID,
		)
	}
}

// Inbox exposes the event channel for the worker.
func (p *Publisher) Inbox() <-chan Event {
	return p.inbox
}
