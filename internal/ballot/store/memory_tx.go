package store

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cyvote/backend-cyvote-sub001/internal/ballot/models"
	dErrors "github.com/cyvote/backend-cyvote-sub001/pkg/domain-errors"
)

const (
	numShards        = 128
	defaultTxTimeout = 5 * time.Second
)

// VoterMarker is the one voter mutation the cast transaction performs.
type VoterMarker interface {
	MarkVoted(ctx context.Context, id uuid.UUID, votedAt time.Time) error
}

// MemoryTx provides the cast transaction boundary over a MemoryStore. A
// shard mutex keyed by voter ID serializes concurrent casts for the same
// voter; the vote uniqueness check in InsertVote is what actually rejects
// the loser, same as the database unique index would.
type MemoryTx struct {
	shards  [numShards]sync.Mutex
	store   *MemoryStore
	voters  VoterMarker
	timeout time.Duration
}

func NewMemoryTx(store *MemoryStore, voters VoterMarker) *MemoryTx {
	return &MemoryTx{store: store, voters: voters}
}

func (t *MemoryTx) RunInTx(ctx context.Context, voterID uuid.UUID, fn func(store TxStore) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := shardFor(voterID)
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	// Callers order MarkVoterVoted last, so undoing the vote rows is enough
	// to leave no partial state behind.
	vote, records := t.store.snapshotVoter(voterID)
	if err := fn(&memoryTxStore{store: t.store, voters: t.voters}); err != nil {
		t.store.restoreVoter(voterID, vote, records)
		return err
	}
	return nil
}

type memoryTxStore struct {
	store  *MemoryStore
	voters VoterMarker
}

func (s *memoryTxStore) InsertVote(ctx context.Context, vote *models.Vote) error {
	return s.store.InsertVote(ctx, vote)
}

func (s *memoryTxStore) InsertIntegrityRecord(ctx context.Context, record *models.VoteIntegrityRecord) error {
	return s.store.InsertIntegrityRecord(ctx, record)
}

func (s *memoryTxStore) MarkVoterVoted(ctx context.Context, voterID uuid.UUID, votedAt time.Time) error {
	return s.voters.MarkVoted(ctx, voterID, votedAt)
}

func shardFor(voterID uuid.UUID) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(voterID.String()))
	return int(h.Sum32() % numShards)
}
