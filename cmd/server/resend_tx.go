package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	credstore "github.com/cyvote/backend-cyvote-sub001/internal/credential/store"
	dErrors "github.com/cyvote/backend-cyvote-sub001/pkg/domain-errors"
)

const defaultTxTimeout = 5 * time.Second

// credentialPostgresTx runs the resend transaction against PostgreSQL. The
// row lock taken by LockActiveByVoter inside fn is what serializes
// concurrent resends for the same voter.
type credentialPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newCredentialPostgresTx(db *sql.DB) *credentialPostgresTx {
	return &credentialPostgresTx{db: db}
}

func (t *credentialPostgresTx) RunInTx(ctx context.Context, _ uuid.UUID, fn func(store credstore.TxStore) error) error {
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

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(credstore.NewPostgresTx(tx)); err != nil {
		return err
	}

	return tx.Commit()
}
