// Package store persists votes, their integrity records, and the candidate
// roster.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cyvote/backend-cyvote-sub001/internal/ballot/models"
)

// Store is the read surface plus the non-transactional writes. Vote writes
// happen only through TxStore. Implementations return sentinel.ErrNotFound
// when no row matches and sentinel.ErrConflict when a vote insert violates
// the one-vote-per-voter constraint.
type Store interface {
	InsertCandidate(ctx context.Context, candidate *models.Candidate) error
	FindCandidateByID(ctx context.Context, id uuid.UUID) (*models.Candidate, error)
	ListCandidates(ctx context.Context) ([]*models.Candidate, error)

	// FindVoteByVoter returns the voter's single vote, if any.
	FindVoteByVoter(ctx context.Context, voterID uuid.UUID) (*models.Vote, error)

	// CountByCandidate aggregates votes per candidate for the external
	// tally pass.
	CountByCandidate(ctx context.Context) ([]models.CandidateTally, error)
}

// TxStore is the write surface of the cast transaction: the vote, its
// integrity record, and the voter flag flip all commit or roll back together.
type TxStore interface {
	InsertVote(ctx context.Context, vote *models.Vote) error
	InsertIntegrityRecord(ctx context.Context, record *models.VoteIntegrityRecord) error
	MarkVoterVoted(ctx context.Context, voterID uuid.UUID, votedAt time.Time) error
}

// Tx runs a function inside the cast transaction. Any error rolls the whole
// transaction back.
type Tx interface {
	RunInTx(ctx context.Context, voterID uuid.UUID, fn func(store TxStore) error) error
}
