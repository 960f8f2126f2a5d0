package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/cyvote/backend-cyvote-sub001/internal/credential/models"
	"github.com/cyvote/backend-cyvote-sub001/pkg/platform/sentinel"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists credentials in PostgreSQL. The same type serves as
// TxStore when constructed over an open transaction, which is the only place
// LockActiveByVoter is meaningful.
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

const credentialSelect = `
	SELECT id, voter_id, credential_hash, generated_at, used_at, is_used, resend_count, delivered_at
	FROM credentials
`

func (s *PostgresStore) Insert(ctx context.Context, credential *models.Credential) error {
	query := `
		INSERT INTO credentials (id, voter_id, credential_hash, generated_at, used_at, is_used, resend_count, delivered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.q.ExecContext(ctx, query,
		credential.ID, credential.VoterID, credential.Hash, credential.GeneratedAt,
		credential.UsedAt, credential.IsUsed, credential.ResendCount, credential.DeliveredAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindActiveByVoter(ctx context.Context, voterID uuid.UUID) (*models.Credential, error) {
	query := credentialSelect + ` WHERE voter_id = $1 AND is_used = FALSE`
	return scanOne(s.q.QueryRowContext(ctx, query, voterID))
}

// LockActiveByVoter re-reads the active credential FOR UPDATE. Concurrent
// resend transactions for the same voter block here until the winner commits.
func (s *PostgresStore) LockActiveByVoter(ctx context.Context, voterID uuid.UUID) (*models.Credential, error) {
	query := credentialSelect + ` WHERE voter_id = $1 AND is_used = FALSE FOR UPDATE`
	return scanOne(s.q.QueryRowContext(ctx, query, voterID))
}

func (s *PostgresStore) FindByVoterAndHash(ctx context.Context, voterID uuid.UUID, hash string) (*models.Credential, error) {
	// Prefer the unused match when a superseded credential shares the hash.
	query := credentialSelect + ` WHERE voter_id = $1 AND credential_hash = $2 ORDER BY is_used ASC, generated_at DESC LIMIT 1`
	return scanOne(s.q.QueryRowContext(ctx, query, voterID, hash))
}

func (s *PostgresStore) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM credentials WHERE credential_hash = $1)`, hash,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check credential hash: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListUndelivered(ctx context.Context) ([]*models.Credential, error) {
	query := credentialSelect + ` WHERE delivered_at IS NULL AND is_used = FALSE ORDER BY generated_at`
	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list undelivered credentials: %w", err)
	}
	defer rows.Close()

	var out []*models.Credential
	for rows.Next() {
		credential, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, credential)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InvalidateAllForVoter(ctx context.Context, voterID uuid.UUID, at time.Time) (int, error) {
	query := `UPDATE credentials SET is_used = TRUE, used_at = $2 WHERE voter_id = $1 AND is_used = FALSE`
	res, err := s.q.ExecContext(ctx, query, voterID, at)
	if err != nil {
		return 0, fmt.Errorf("invalidate credentials: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("invalidate credentials: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresStore) MarkUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) error {
	// The is_used guard in the WHERE clause makes consumption atomic: a
	// concurrent consumer sees zero rows affected, not a double spend.
	query := `UPDATE credentials SET is_used = TRUE, used_at = $2 WHERE id = $1 AND is_used = FALSE`
	return s.execOnActive(ctx, id, query, id, usedAt)
}

func (s *PostgresStore) MarkDelivered(ctx context.Context, id uuid.UUID, deliveredAt time.Time) error {
	query := `UPDATE credentials SET delivered_at = $2 WHERE id = $1 AND is_used = FALSE`
	return s.execOnActive(ctx, id, query, id, deliveredAt)
}

func (s *PostgresStore) ReplaceHash(ctx context.Context, id uuid.UUID, hash string, generatedAt time.Time) error {
	query := `UPDATE credentials SET credential_hash = $2, generated_at = $3 WHERE id = $1 AND is_used = FALSE`
	return s.execOnActive(ctx, id, query, id, hash, generatedAt)
}

// execOnActive runs an UPDATE whose WHERE clause includes is_used = FALSE.
// Zero affected rows means a concurrent writer consumed or invalidated the
// credential first, or the row never existed; callers get the sentinel that
// tells those apart.
func (s *PostgresStore) execOnActive(ctx context.Context, id uuid.UUID, query string, args ...any) error {
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := s.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM credentials WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("update credential: %w", err)
		}
		if exists {
			return sentinel.ErrAlreadyUsed
		}
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOne(row *sql.Row) (*models.Credential, error) {
	credential, err := scanCredential(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return credential, nil
}

func scanCredential(row rowScanner) (*models.Credential, error) {
	var c models.Credential
	var voterID uuid.NullUUID
	var usedAt, deliveredAt sql.NullTime
	err := row.Scan(&c.ID, &voterID, &c.Hash, &c.GeneratedAt, &usedAt, &c.IsUsed, &c.ResendCount, &deliveredAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan credential: %w", err)
	}
	if voterID.Valid {
		v := voterID.UUID
		c.VoterID = &v
	}
	if usedAt.Valid {
		c.UsedAt = &usedAt.Time
	}
	if deliveredAt.Valid {
		c.DeliveredAt = &deliveredAt.Time
	}
	return &c, nil
}
