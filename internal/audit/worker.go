package audit

import (
	"context"
	"log/slog"
)

// Sink receives audit events. Implementations: the in-memory store and the
// Kafka sink.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Worker consumes audit events from the publisher inbox and fans them out to
// every sink. Sink failures are logged and swallowed so one bad sink does not
// starve the others.
type Worker struct {
	inbox  <-chan Event
	sinks  []Sink
	logger *slog.Logger
}

func NewWorker(inbox <-chan Event, logger *slog.Logger, sinks ...Sink) *Worker {
	return &Worker{inbox: inbox, sinks: sinks, logger: logger}
}

// Run processes events until the context is cancelled, then drains whatever
// is already buffered before returning.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case event := <-w.inbox:
			w.dispatch(ctx, event)
		}
	}
}

func (w *Worker) drain() {
	// Detached context: the run context is already cancelled but buffered
	// events still deserve a best-effort write.
	ctx := context.Background()
	for {
		select {
		case event := <-w.inbox:
			w.dispatch(ctx, event)
		default:
			return
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, event Event) {
	for _, sink := range w.sinks {
		if err := sink.Append(ctx, event); err != nil {
			w.logger.ErrorContext(ctx, "audit sink append failed",
				"error", err,
				"action", event.Action,
			)
		}
	}
}
