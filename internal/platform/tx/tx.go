package tx

import (
	"context"
	"database/sql"
	"fmt"
)

// Manager runs fn inside one unit of work. Adapters that take part look up
// the active transaction with From.
type Manager interface {
	Within(ctx context.Context, fn func(context.Context) error) error
}

type NoopManager struct{}

func (NoopManager) Within(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type ctxKey struct{}

// SQLManager commits fn's writes in a single database transaction.
type SQLManager struct {
	DB *sql.DB
	// AfterCommit runs once the transaction is committed.
	AfterCommit func()
}

func (m SQLManager) Within(ctx context.Context, fn func(context.Context) error) error {
	if _, ok := ctx.Value(ctxKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}
	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(context.WithValue(ctx, ctxKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	if m.AfterCommit != nil {
		m.AfterCommit()
	}
	return nil
}

// Execer is satisfied by both *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// From returns the transaction carried by ctx, or db when there is none.
func From(ctx context.Context, db *sql.DB) Execer {
	if tx, ok := ctx.Value(ctxKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}

// Active reports whether ctx carries a transaction.
func Active(ctx context.Context) bool {
	_, ok := ctx.Value(ctxKey{}).(*sql.Tx)
	return ok
}
