package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyvote/backend-cyvote-sub001/internal/credential/models"
	"github.com/cyvote/backend-cyvote-sub001/pkg/hashutil"
	"github.com/cyvote/backend-cyvote-sub001/pkg/platform/sentinel"
)

func newTestCredential(voterID uuid.UUID, plaintext string) *models.Credential {
	return &models.Credential{
		ID:          uuid.New(),
		VoterID:     &voterID,
		Hash:        hashutil.CredentialHash(plaintext),
		GeneratedAt: time.Now(),
	}
}

func TestMemoryStoreActiveCredential(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	voterID := uuid.New()

	_, err := store.FindActiveByVoter(ctx, voterID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	credential := newTestCredential(voterID, "ABC12345")
	require.NoError(t, store.Insert(ctx, credential))

	active, err := store.FindActiveByVoter(ctx, voterID)
	require.NoError(t, err)
	assert.Equal(t, credential.ID, active.ID)

	t.Run("invalidate clears the active slot", func(t *testing.T) {
		invalidated, err := store.InvalidateAllForVoter(ctx, voterID, time.Now())
		require.NoError(t, err)
		assert.Equal(t, 1, invalidated)

		_, err = store.FindActiveByVoter(ctx, voterID)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestMemoryStoreMarkUsed(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	voterID := uuid.New()
	credential := newTestCredential(voterID, "ABC12345")
	require.NoError(t, store.Insert(ctx, credential))

	require.NoError(t, store.MarkUsed(ctx, credential.ID, time.Now()))

	t.Run("second consume reports already used", func(t *testing.T) {
		assert.ErrorIs(t, store.MarkUsed(ctx, credential.ID, time.Now()), sentinel.ErrAlreadyUsed)
	})

	t.Run("unknown credential is not found", func(t *testing.T) {
		assert.ErrorIs(t, store.MarkUsed(ctx, uuid.New(), time.Now()), sentinel.ErrNotFound)
	})

	t.Run("used credential still findable by hash", func(t *testing.T) {
		found, err := store.FindByVoterAndHash(ctx, voterID, hashutil.CredentialHash("abc12345"))
		require.NoError(t, err)
		assert.True(t, found.IsUsed)
		assert.NotNil(t, found.UsedAt)
	})
}

func TestMemoryStoreListUndelivered(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	older := newTestCredential(uuid.New(), "AAAA1111")
	older.GeneratedAt = time.Now().Add(-time.Hour)
	newer := newTestCredential(uuid.New(), "BBBB2222")
	delivered := newTestCredential(uuid.New(), "CCCC3333")
	now := time.Now()
	delivered.DeliveredAt = &now

	for _, c := range []*models.Credential{newer, older, delivered} {
		require.NoError(t, store.Insert(ctx, c))
	}

	pending, err := store.ListUndelivered(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, older.ID, pending[0].ID, "oldest first")

	require.NoError(t, store.MarkDelivered(ctx, newer.ID, time.Now()))
	pending, err = store.ListUndelivered(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestMemoryStoreReplaceHash(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	voterID := uuid.New()
	credential := newTestCredential(voterID, "OLD11111")
	require.NoError(t, store.Insert(ctx, credential))

	newHash := hashutil.CredentialHash("NEW22222")
	require.NoError(t, store.ReplaceHash(ctx, credential.ID, newHash, time.Now()))

	found, err := store.FindByVoterAndHash(ctx, voterID, newHash)
	require.NoError(t, err)
	assert.Equal(t, credential.ID, found.ID)

	exists, err := store.ExistsByHash(ctx, hashutil.CredentialHash("OLD11111"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryStoreUsedCredentialIsImmutable(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	voterID := uuid.New()
	credential := newTestCredential(voterID, "ABC12345")
	require.NoError(t, store.Insert(ctx, credential))
	require.NoError(t, store.MarkUsed(ctx, credential.ID, time.Now()))

	assert.ErrorIs(t, store.MarkDelivered(ctx, credential.ID, time.Now()), sentinel.ErrAlreadyUsed)
	assert.ErrorIs(t, store.ReplaceHash(ctx, credential.ID, hashutil.CredentialHash("NEW22222"), time.Now()), sentinel.ErrAlreadyUsed)

	found, err := store.FindByVoterAndHash(ctx, voterID, hashutil.CredentialHash("ABC12345"))
	require.NoError(t, err)
	assert.Nil(t, found.DeliveredAt)
	assert.Equal(t, hashutil.CredentialHash("ABC12345"), found.Hash)
}

func TestMemoryTxSerializesPerVoter(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	tx := NewMemoryTx(store)
	voterID := uuid.New()
	require.NoError(t, store.Insert(ctx, newTestCredential(voterID, "ABC12345")))

	const attempts = 20
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			results <- tx.RunInTx(ctx, voterID, func(s TxStore) error {
				active, err := s.LockActiveByVoter(ctx, voterID)
				if err != nil {
					return err
				}
				if _, err := s.InvalidateAllForVoter(ctx, voterID, time.Now()); err != nil {
					return err
				}
				replacement := newTestCredential(voterID, uuid.NewString()[:8])
				replacement.ResendCount = active.ResendCount + 1
				return s.Insert(ctx, replacement)
			})
		}()
	}
	for i := 0; i < attempts; i++ {
		require.NoError(t, <-results)
	}

	// Serialization must leave exactly one active credential standing.
	active, err := store.FindActiveByVoter(ctx, voterID)
	require.NoError(t, err)
	assert.Equal(t, attempts, active.ResendCount)
}
