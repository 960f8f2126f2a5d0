package store

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cyvote/backend-cyvote-sub001/internal/credential/models"
	dErrors "github.com/cyvote/backend-cyvote-sub001/pkg/domain-errors"
)

// numShards spreads per-voter transaction locks across mutexes so unrelated
// voters' resends never contend.
const numShards = 128

// defaultTxTimeout bounds a memory transaction so a stuck callback cannot
// hold a shard forever.
const defaultTxTimeout = 5 * time.Second

// MemoryTx provides the transactional boundary over a MemoryStore. A shard
// mutex keyed by voter ID stands in for the database row lock: concurrent
// resends for the same voter serialize, others proceed in parallel.
type MemoryTx struct {
	shards  [numShards]sync.Mutex
	store   *MemoryStore
	timeout time.Duration
}

func NewMemoryTx(store *MemoryStore) *MemoryTx {
	return &MemoryTx{store: store}
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

	// Check again after acquiring the lock.
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	// The shard lock serializes all writers for this voter, so a snapshot
	// taken here is enough to undo the callback's writes on failure.
	snap := t.store.snapshotVoter(voterID)
	if err := fn(&memoryTxStore{store: t.store}); err != nil {
		t.store.restoreVoter(voterID, snap)
		return err
	}
	return nil
}

// memoryTxStore exposes the TxStore surface over the shared MemoryStore. The
// shard lock held by RunInTx provides the serialization; LockActiveByVoter is
// therefore a plain read here.
type memoryTxStore struct {
	store *MemoryStore
}

func (s *memoryTxStore) LockActiveByVoter(ctx context.Context, voterID uuid.UUID) (*models.Credential, error) {
	return s.store.FindActiveByVoter(ctx, voterID)
}

func (s *memoryTxStore) Insert(ctx context.Context, credential *models.Credential) error {
	return s.store.Insert(ctx, credential)
}

func (s *memoryTxStore) InvalidateAllForVoter(ctx context.Context, voterID uuid.UUID, at time.Time) (int, error) {
	return s.store.InvalidateAllForVoter(ctx, voterID, at)
}

func (s *memoryTxStore) MarkDelivered(ctx context.Context, id uuid.UUID, deliveredAt time.Time) error {
	return s.store.MarkDelivered(ctx, id, deliveredAt)
}

func shardFor(voterID uuid.UUID) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(voterID.String()))
	return int(h.Sum32() % numShards)
}
