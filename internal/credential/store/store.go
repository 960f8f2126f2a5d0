// Package store persists credentials. Only hashes cross this boundary;
// plaintexts never reach storage.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cyvote/backend-cyvote-sub001/internal/credential/models"
)

// Store is the credential persistence contract. Implementations return
// sentinel.ErrNotFound when no row matches and sentinel.ErrAlreadyUsed when a
// consume races an already-consumed credential.
type Store interface {
	Insert(ctx context.Context, credential *models.Credential) error

	// FindActiveByVoter returns the voter's single unused credential.
	FindActiveByVoter(ctx context.Context, voterID uuid.UUID) (*models.Credential, error)

	// FindByVoterAndHash looks a credential up regardless of used state so
	// the caller can distinguish "unknown" from "replayed".
	FindByVoterAndHash(ctx context.Context, voterID uuid.UUID, hash string) (*models.Credential, error)

	// ExistsByHash reports whether any credential, used or not, carries the
	// hash. Backs the issuance collision check.
	ExistsByHash(ctx context.Context, hash string) (bool, error)

	// ListUndelivered returns unused credentials still awaiting delivery,
	// oldest first.
	ListUndelivered(ctx context.Context) ([]*models.Credential, error)

	// InvalidateAllForVoter marks every unused credential of the voter as
	// used without consumption, returning how many were invalidated.
	InvalidateAllForVoter(ctx context.Context, voterID uuid.UUID, at time.Time) (int, error)

	// MarkUsed consumes a credential. Fails with sentinel.ErrAlreadyUsed if
	// it was consumed concurrently.
	MarkUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) error

	// MarkDelivered stamps an active credential. Fails with
	// sentinel.ErrAlreadyUsed if the credential was consumed or invalidated
	// in the meantime.
	MarkDelivered(ctx context.Context, id uuid.UUID, deliveredAt time.Time) error

	// ReplaceHash overwrites the stored hash at distribution time, when a
	// fresh plaintext is minted for sending. Like MarkDelivered it refuses
	// to touch a used credential.
	ReplaceHash(ctx context.Context, id uuid.UUID, hash string, generatedAt time.Time) error
}

// TxStore is the slice of Store available inside a resend transaction, plus
// the row-lock primitive that serializes concurrent resends per voter.
type TxStore interface {
	// LockActiveByVoter re-reads the active credential under a row lock.
	// Concurrent callers for the same voter block until the holder commits.
	LockActiveByVoter(ctx context.Context, voterID uuid.UUID) (*models.Credential, error)
	Insert(ctx context.Context, credential *models.Credential) error
	InvalidateAllForVoter(ctx context.Context, voterID uuid.UUID, at time.Time) (int, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, deliveredAt time.Time) error
}

// Tx runs a function inside a transactional boundary. Any error rolls the
// whole transaction back.
type Tx interface {
	RunInTx(ctx context.Context, voterID uuid.UUID, fn func(store TxStore) error) error
}
