package main

import (
	"context"
	"database/sql"
	"time"

	dErrors "sebenza/pkg/domain-errors"
	txcontext "sebenza/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// postgresTx runs a state mutation and its audit append in one database
// transaction. The sql.Tx travels through the context so every store touched
// inside fn joins the same transaction.
type postgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newPostgresTx(db *sql.DB) *postgresTx {
	return &postgresTx{db: db}
}

func (t *postgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
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

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}

	return tx.Commit()
}
