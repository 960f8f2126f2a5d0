package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyvote/backend-cyvote-sub001/internal/voter/models"
	"github.com/cyvote/backend-cyvote-sub001/pkg/platform/sentinel"
)

func newTestVoter(registrationNumber string) *models.Voter {
	return &models.Voter{
		ID:                 uuid.New(),
		RegistrationNumber: registrationNumber,
		DisplayName:        "Voter " + registrationNumber,
		CohortYear:         2026,
		Email:              registrationNumber + "@example.org",
	}
}

func TestMemoryStoreInsertAndFind(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	voter := newTestVoter("REG-001")

	require.NoError(t, store.Insert(ctx, voter))

	t.Run("find by id", func(t *testing.T) {
		found, err := store.FindByID(ctx, voter.ID)
		require.NoError(t, err)
		assert.Equal(t, voter.RegistrationNumber, found.RegistrationNumber)
	})

	t.Run("find by registration number", func(t *testing.T) {
		found, err := store.FindByRegistrationNumber(ctx, "REG-001")
		require.NoError(t, err)
		assert.Equal(t, voter.ID, found.ID)
	})

	t.Run("duplicate registration number conflicts", func(t *testing.T) {
		dup := newTestVoter("REG-001")
		assert.ErrorIs(t, store.Insert(ctx, dup), sentinel.ErrConflict)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		_, err := store.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("mutating the returned voter does not touch the store", func(t *testing.T) {
		found, err := store.FindByID(ctx, voter.ID)
		require.NoError(t, err)
		found.DisplayName = "changed"

		again, err := store.FindByID(ctx, voter.ID)
		require.NoError(t, err)
		assert.Equal(t, "Voter REG-001", again.DisplayName)
	})
}

func TestMemoryStoreSoftDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	deleted := newTestVoter("REG-DEL")
	now := time.Now()
	deleted.DeletedAt = &now
	require.NoError(t, store.Insert(ctx, deleted))

	_, err := store.FindByID(ctx, deleted.ID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	_, err = store.FindByRegistrationNumber(ctx, "REG-DEL")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	voters, err := store.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, voters)
}

func TestMemoryStoreMarkVoted(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	voter := newTestVoter("REG-002")
	require.NoError(t, store.Insert(ctx, voter))

	votedAt := time.Now()
	require.NoError(t, store.MarkVoted(ctx, voter.ID, votedAt))

	found, err := store.FindByID(ctx, voter.ID)
	require.NoError(t, err)
	assert.True(t, found.HasVoted)
	require.NotNil(t, found.VotedAt)
	assert.WithinDuration(t, votedAt, *found.VotedAt, time.Second)

	assert.ErrorIs(t, store.MarkVoted(ctx, uuid.New(), votedAt), sentinel.ErrNotFound)
}

func TestMemoryStoreListActiveOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	for _, reg := range []string{"REG-3", "REG-1", "REG-2"} {
		require.NoError(t, store.Insert(ctx, newTestVoter(reg)))
	}

	voters, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, voters, 3)
	assert.Equal(t, "REG-1", voters[0].RegistrationNumber)
	assert.Equal(t, "REG-3", voters[2].RegistrationNumber)
}
