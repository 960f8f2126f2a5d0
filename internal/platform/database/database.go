// Package database opens the PostgreSQL pool and applies the schema.
package database

import (
	"database/sql"
	"fmt"

	"github.com/cyvote/backend-cyvote-sub001/internal/platform/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS voters (
    id UUID PRIMARY KEY,
    registration_number TEXT NOT NULL UNIQUE,
    display_name TEXT NOT NULL,
    cohort_year INT NOT NULL,
    email TEXT NOT NULL,
    has_voted BOOLEAN NOT NULL DEFAULT FALSE,
    voted_at TIMESTAMPTZ,
    deleted_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS credentials (
    id UUID PRIMARY KEY,
    -- Nullable: removing a voter orphans the credential rather than erasing
    -- the issuance record.
    voter_id UUID REFERENCES voters(id) ON DELETE SET NULL,
    credential_hash TEXT NOT NULL,
    generated_at TIMESTAMPTZ NOT NULL,
    used_at TIMESTAMPTZ,
    is_used BOOLEAN NOT NULL DEFAULT FALSE,
    resend_count INT NOT NULL DEFAULT 0,
    delivered_at TIMESTAMPTZ
);

-- At most one usable credential per voter at any time.
CREATE UNIQUE INDEX IF NOT EXISTS idx_credentials_active_voter
    ON credentials(voter_id) WHERE is_used = FALSE;
CREATE INDEX IF NOT EXISTS idx_credentials_hash ON credentials(credential_hash);
CREATE INDEX IF NOT EXISTS idx_credentials_undelivered
    ON credentials(generated_at) WHERE delivered_at IS NULL AND is_used = FALSE;

CREATE TABLE IF NOT EXISTS candidates (
    id UUID PRIMARY KEY,
    full_name TEXT NOT NULL,
    platform TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS votes (
    id UUID PRIMARY KEY,
    voter_id UUID NOT NULL UNIQUE REFERENCES voters(id),
    candidate_id UUID NOT NULL REFERENCES candidates(id),
    vote_hash TEXT NOT NULL,
    receipt_code TEXT NOT NULL,
    cast_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_votes_candidate ON votes(candidate_id);

CREATE TABLE IF NOT EXISTS vote_integrity (
    id UUID PRIMARY KEY,
    vote_id UUID NOT NULL REFERENCES votes(id),
    vote_hash TEXT NOT NULL,
    verification_hash TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);
`

// Open connects to PostgreSQL, configures the pool, and applies the schema.
// Safe to call against an already initialized database.
func Open(cfg config.Postgres) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}
