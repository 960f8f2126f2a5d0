package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/cyvote/backend-cyvote-sub001/internal/ballot/models"
	"github.com/cyvote/backend-cyvote-sub001/pkg/platform/sentinel"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists the ballot in PostgreSQL. The same type serves as
// TxStore when constructed over an open transaction; vote writes only happen
// that way.
type PostgresStore struct {
	q querier
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{q: db}
}

func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{q: tx}
}

const uniqueViolation = "23505"

func (s *PostgresStore) InsertCandidate(ctx context.Context, candidate *models.Candidate) error {
	query := `
		INSERT INTO candidates (id, full_name, platform)
		VALUES ($1, $2, $3)
	`
	_, err := s.q.ExecContext(ctx, query, candidate.ID, candidate.FullName, candidate.Platform)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert candidate: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindCandidateByID(ctx context.Context, id uuid.UUID) (*models.Candidate, error) {
	query := `
		SELECT id, full_name, platform
		FROM candidates
		WHERE id = $1
	`
	var c models.Candidate
	err := s.q.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.FullName, &c.Platform)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find candidate: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) ListCandidates(ctx context.Context) ([]*models.Candidate, error) {
	query := `
		SELECT id, full_name, platform
		FROM candidates
		ORDER BY full_name
	`
	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var out []*models.Candidate
	for rows.Next() {
		var c models.Candidate
		if err := rows.Scan(&c.ID, &c.FullName, &c.Platform); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return out, nil
}

// InsertVote relies on the unique index on votes(voter_id): a concurrent
// second cast for the same voter surfaces here as ErrConflict at commit.
func (s *PostgresStore) InsertVote(ctx context.Context, vote *models.Vote) error {
	query := `
		INSERT INTO votes (id, voter_id, candidate_id, vote_hash, receipt_code, cast_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.q.ExecContext(ctx, query,
		vote.ID, vote.VoterID, vote.CandidateID, vote.VoteHash, vote.ReceiptCode, vote.CastAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertIntegrityRecord(ctx context.Context, record *models.VoteIntegrityRecord) error {
	query := `
		INSERT INTO vote_integrity (id, vote_id, vote_hash, verification_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.q.ExecContext(ctx, query,
		record.ID, record.VoteID, record.VoteHash, record.VerificationHash, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert integrity record: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkVoterVoted(ctx context.Context, voterID uuid.UUID, votedAt time.Time) error {
	query := `
		UPDATE voters
		SET has_voted = TRUE, voted_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := s.q.ExecContext(ctx, query, voterID, votedAt)
	if err != nil {
		return fmt.Errorf("mark voter voted: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark voter voted: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindVoteByVoter(ctx context.Context, voterID uuid.UUID) (*models.Vote, error) {
	query := `
		SELECT id, voter_id, candidate_id, vote_hash, receipt_code, cast_at
		FROM votes
		WHERE voter_id = $1
	`
	var v models.Vote
	err := s.q.QueryRowContext(ctx, query, voterID).Scan(
		&v.ID, &v.VoterID, &v.CandidateID, &v.VoteHash, &v.ReceiptCode, &v.CastAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find vote: %w", err)
	}
	return &v, nil
}

func (s *PostgresStore) CountByCandidate(ctx context.Context) ([]models.CandidateTally, error) {
	query := `
		SELECT candidate_id, COUNT(*) AS votes
		FROM votes
		GROUP BY candidate_id
		ORDER BY votes DESC, candidate_id
	`
	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count votes: %w", err)
	}
	defer rows.Close()

	var out []models.CandidateTally
	for rows.Next() {
		var t models.CandidateTally
		if err := rows.Scan(&t.CandidateID, &t.Votes); err != nil {
			return nil, fmt.Errorf("scan tally: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tally: %w", err)
	}
	return out, nil
}
