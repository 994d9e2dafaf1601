package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type contextTxKey struct{}

// TxManager runs units of work inside a single database transaction.
// Repositories pick the transaction up from the context.
type TxManager struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTxManager creates a transaction runner; timeout <= 0 disables the deadline
func NewTxManager(db *sqlx.DB, timeout time.Duration) *TxManager {
	return &TxManager{db: db, timeout: timeout}
}

// WithinTx executes fn in a transaction. fn returning an error (or panicking)
// rolls back; otherwise the transaction commits. A nested call joins the
// outer transaction.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(contextTxKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, contextTxKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// querier returns the transaction carried by ctx, or the pool
func querier(ctx context.Context, db *sqlx.DB) sqlx.ExtContext {
	if tx, ok := ctx.Value(contextTxKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db
}

// InTx reports whether ctx carries a transaction
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(contextTxKey{}).(*sqlx.Tx)
	return ok
}
