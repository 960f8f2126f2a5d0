package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	ballotstore "github.com/cyvote/backend-cyvote-sub001/internal/ballot/store"
	dErrors "github.com/cyvote/backend-cyvote-sub001/pkg/domain-errors"
)

// ballotPostgresTx runs the cast transaction against PostgreSQL. The unique
// index on votes(voter_id) is what rejects a concurrent second cast, so no
// explicit lock is taken here.
type ballotPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newBallotPostgresTx(db *sql.DB) *ballotPostgresTx {
	return &ballotPostgresTx{db: db}
}

func (t *ballotPostgresTx) RunInTx(ctx context.Context, _ uuid.UUID, fn func(store ballotstore.TxStore) error) error {
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

	if err := fn(ballotstore.NewPostgresTx(tx)); err != nil {
		return err
	}

	return tx.Commit()
}
