package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyvote/backend-cyvote-sub001/internal/platform/logger"
)

func TestPublisherEmit(t *testing.T) {
	ctx := context.Background()
	log := logger.New()

	t.Run("fills timestamp and category defaults", func(t *testing.T) {
		p := NewPublisher(4, log)
		p.Emit(ctx, Event{Action: ActionVoteCast, ActorID: "voter-1"})

		event := <-p.Inbox()
		assert.False(t, event.Timestamp.IsZero())
		assert.Equal(t, CategoryCompliance, event.Category)
	})

	t.Run("full buffer drops instead of blocking", func(t *testing.T) {
		p := NewPublisher(1, log)
		p.Emit(ctx, Event{Action: ActionVoteCast})

		done := make(chan struct{})
		go func() {
			p.Emit(ctx, Event{Action: ActionVoteCast})
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Emit blocked on full buffer")
		}
	})
}

func TestWorkerDispatch(t *testing.T) {
	log := logger.New()
	p := NewPublisher(8, log)
	store := NewMemoryStore()
	worker := NewWorker(p.Inbox(), log, store)

	ctx, cancel := context.WithCancel(context.Background())
	workerDone := make(chan error, 1)
	go func() { workerDone <- worker.Run(ctx) }()

	p.Emit(ctx, Event{Action: ActionCredentialResent, ActorID: "admin-1"})
	p.Emit(ctx, Event{Action: ActionVoteCast, ActorID: "voter-1"})

	require.Eventually(t, func() bool {
		return len(store.All()) == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-workerDone

	events, err := store.ListByActor(ctx, "voter-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ActionVoteCast, events[0].Action)
}

func TestWorkerDrainsOnShutdown(t *testing.T) {
	log := logger.New()
	p := NewPublisher(8, log)
	store := NewMemoryStore()
	worker := NewWorker(p.Inbox(), log, store)

	// Enqueue before the worker starts, then cancel immediately: the buffered
	// events must still reach the sink.
	p.Emit(context.Background(), Event{Action: ActionVoteCast, ActorID: "voter-1"})
	p.Emit(context.Background(), Event{Action: ActionVoteConflict, ActorID: "voter-2"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = worker.Run(ctx)

	assert.Len(t, store.All(), 2)
}
