package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/cyvote/backend-cyvote-sub001/internal/voter/models"
	"github.com/cyvote/backend-cyvote-sub001/pkg/platform/sentinel"
)

// querier is satisfied by both *sql.DB and *sql.Tx so the same store code
// serves direct calls and transaction-scoped calls.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists voters in PostgreSQL.
type PostgresStore struct {
	q querier
}

// NewPostgres constructs a store over a connection pool.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{q: db}
}

// NewPostgresTx constructs a store bound to an open transaction.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{q: tx}
}

const uniqueViolation = "23505"

func (s *PostgresStore) Insert(ctx context.Context, voter *models.Voter) error {
	query := `
		INSERT INTO voters (id, registration_number, display_name, cohort_year, email, has_voted, voted_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.q.ExecContext(ctx, query,
		voter.ID, voter.RegistrationNumber, voter.DisplayName, voter.CohortYear,
		voter.Email, voter.HasVoted, voter.VotedAt, voter.DeletedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert voter: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Voter, error) {
	query := voterSelect + ` WHERE id = $1 AND deleted_at IS NULL`
	return s.scanOne(s.q.QueryRowContext(ctx, query, id))
}

func (s *PostgresStore) FindByRegistrationNumber(ctx context.Context, registrationNumber string) (*models.Voter, error) {
	query := voterSelect + ` WHERE registration_number = $1 AND deleted_at IS NULL`
	return s.scanOne(s.q.QueryRowContext(ctx, query, registrationNumber))
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]*models.Voter, error) {
	query := voterSelect + ` WHERE deleted_at IS NULL ORDER BY registration_number`
	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list voters: %w", err)
	}
	defer rows.Close()

	var out []*models.Voter
	for rows.Next() {
		voter, err := scanVoter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, voter)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkVoted(ctx context.Context, id uuid.UUID, votedAt time.Time) error {
	query := `UPDATE voters SET has_voted = TRUE, voted_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	res, err := s.q.ExecContext(ctx, query, id, votedAt)
	if err != nil {
		return fmt.Errorf("mark voter voted: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark voter voted: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

const voterSelect = `
	SELECT id, registration_number, display_name, cohort_year, email, has_voted, voted_at, deleted_at
	FROM voters
`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanOne(row *sql.Row) (*models.Voter, error) {
	voter, err := scanVoter(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return voter, nil
}

func scanVoter(row rowScanner) (*models.Voter, error) {
	var voter models.Voter
	var votedAt, deletedAt sql.NullTime
	err := row.Scan(
		&voter.ID, &voter.RegistrationNumber, &voter.DisplayName, &voter.CohortYear,
		&voter.Email, &voter.HasVoted, &votedAt, &deletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan voter: %w", err)
	}
	if votedAt.Valid {
		voter.VotedAt = &votedAt.Time
	}
	if deletedAt.Valid {
		voter.DeletedAt = &deletedAt.Time
	}
	return &voter, nil
}
