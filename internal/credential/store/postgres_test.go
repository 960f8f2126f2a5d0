package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyvote/backend-cyvote-sub001/pkg/hashutil"
	"github.com/cyvote/backend-cyvote-sub001/pkg/platform/sentinel"
)

func setupPostgresMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgres(db), mock
}

func credentialColumns() []string {
	return []string{"id", "voter_id", "credential_hash", "generated_at", "used_at", "is_used", "resend_count", "delivered_at"}
}

func TestPostgresFindActiveByVoter(t *testing.T) {
	store, mock := setupPostgresMock(t)
	voterID := uuid.New()
	credentialID := uuid.New()
	hash := hashutil.CredentialHash("ABC12345")

	t.Run("returns the active credential", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM credentials\s+WHERE voter_id = \$1 AND is_used = FALSE`).
			WithArgs(voterID).
			WillReturnRows(sqlmock.NewRows(credentialColumns()).
				AddRow(credentialID, voterID, hash, time.Now(), nil, false, 1, nil))

		credential, err := store.FindActiveByVoter(context.Background(), voterID)
		require.NoError(t, err)
		assert.Equal(t, credentialID, credential.ID)
		require.NotNil(t, credential.VoterID)
		assert.Equal(t, voterID, *credential.VoterID)
		assert.Equal(t, 1, credential.ResendCount)
		assert.False(t, credential.IsUsed)
	})

	t.Run("no active credential maps to sentinel not found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM credentials\s+WHERE voter_id = \$1 AND is_used = FALSE`).
			WithArgs(voterID).
			WillReturnRows(sqlmock.NewRows(credentialColumns()))

		_, err := store.FindActiveByVoter(context.Background(), voterID)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertUniqueViolation(t *testing.T) {
	store, mock := setupPostgresMock(t)
	voterID := uuid.New()
	credential := newTestCredential(voterID, "ABC12345")

	mock.ExpectExec(`INSERT INTO credentials`).
		WillReturnError(&pq.Error{Code: "23505"})

	err := store.Insert(context.Background(), credential)
	assert.ErrorIs(t, err, sentinel.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkUsed(t *testing.T) {
	store, mock := setupPostgresMock(t)
	credentialID := uuid.New()

	t.Run("consumes an unused credential", func(t *testing.T) {
		mock.ExpectExec(`UPDATE credentials SET is_used = TRUE, used_at = \$2 WHERE id = \$1 AND is_used = FALSE`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, store.MarkUsed(context.Background(), credentialID, time.Now()))
	})

	t.Run("zero rows plus existing row means already used", func(t *testing.T) {
		mock.ExpectExec(`UPDATE credentials SET is_used = TRUE`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM credentials WHERE id = \$1\)`).
			WithArgs(credentialID).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		err := store.MarkUsed(context.Background(), credentialID, time.Now())
		assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
	})

	t.Run("zero rows plus missing row means not found", func(t *testing.T) {
		mock.ExpectExec(`UPDATE credentials SET is_used = TRUE`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM credentials WHERE id = \$1\)`).
			WithArgs(credentialID).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		err := store.MarkUsed(context.Background(), credentialID, time.Now())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeliveryWritesGuardUsedRows(t *testing.T) {
	store, mock := setupPostgresMock(t)
	credentialID := uuid.New()

	t.Run("mark delivered refuses a used credential", func(t *testing.T) {
		mock.ExpectExec(`UPDATE credentials SET delivered_at = \$2 WHERE id = \$1 AND is_used = FALSE`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM credentials WHERE id = \$1\)`).
			WithArgs(credentialID).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		err := store.MarkDelivered(context.Background(), credentialID, time.Now())
		assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
	})

	t.Run("replace hash refuses a used credential", func(t *testing.T) {
		mock.ExpectExec(`UPDATE credentials SET credential_hash = \$2, generated_at = \$3 WHERE id = \$1 AND is_used = FALSE`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM credentials WHERE id = \$1\)`).
			WithArgs(credentialID).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		err := store.ReplaceHash(context.Background(), credentialID, hashutil.CredentialHash("NEW22222"), time.Now())
		assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
	})

	t.Run("replace hash on a missing credential is not found", func(t *testing.T) {
		mock.ExpectExec(`UPDATE credentials SET credential_hash`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM credentials WHERE id = \$1\)`).
			WithArgs(credentialID).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		err := store.ReplaceHash(context.Background(), credentialID, hashutil.CredentialHash("NEW22222"), time.Now())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLockActiveByVoterUsesRowLock(t *testing.T) {
	store, mock := setupPostgresMock(t)
	voterID := uuid.New()

	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs(voterID).
		WillReturnRows(sqlmock.NewRows(credentialColumns()).
			AddRow(uuid.New(), voterID, hashutil.CredentialHash("ABC12345"), time.Now(), nil, false, 0, nil))

	_, err := store.LockActiveByVoter(context.Background(), voterID)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInvalidateAllForVoter(t *testing.T) {
	store, mock := setupPostgresMock(t)
	voterID := uuid.New()

	mock.ExpectExec(`UPDATE credentials SET is_used = TRUE, used_at = \$2 WHERE voter_id = \$1 AND is_used = FALSE`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	invalidated, err := store.InvalidateAllForVoter(context.Background(), voterID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, invalidated)
	require.NoError(t, mock.ExpectationsWereMet())
}
