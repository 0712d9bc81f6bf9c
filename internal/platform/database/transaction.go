package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TransactionProvider follows the pattern described in https://threedots.tech/post/database-transactions-in-go/
// It hides pgx transactions behind a callback that receives the transaction and a lock manager.
type TransactionProvider struct {
	pool *pgxpool.Pool
}

// NewTransactionProvider は新しいTransactionProviderを作成します
func NewTransactionProvider(pool *pgxpool.Pool) *TransactionProvider {
	return &TransactionProvider{pool: pool}
}

// Adapter bundles what a callback may use inside a single transaction.
type Adapter struct {
	Tx    pgx.Tx
	Locks *Manager
}

// Transact opens a transaction and passes it to fn. The transaction is committed
// when fn returns nil and rolled back otherwise.
func Transact[T any](ctx context.Context, p *TransactionProvider, fn func(*Adapter) (T, error)) (T, error) {
	return transact(ctx, p, pgx.TxOptions{}, fn)
}

// Snapshot runs fn in a read-only REPEATABLE READ transaction so that every
// query inside fn sees the same committed state.
func Snapshot[T any](ctx context.Context, p *TransactionProvider, fn func(*Adapter) (T, error)) (T, error) {
	return transact(ctx, p, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func transact[T any](ctx context.Context, p *TransactionProvider, opts pgx.TxOptions, fn func(*Adapter) (T, error)) (T, error) {
	var zero T
	tx, err := p.pool.BeginTx(ctx, opts)
	if err != nil {
		return zero, fmt.Errorf("failed to begin transaction: %w", err)
	}

	adapter := &Adapter{Tx: tx, Locks: NewManager(tx)}

	result, err := fn(adapter)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return zero, fmt.Errorf("tx rollback failed: %v (original err: %w)", rbErr, err)
		}
		return zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return zero, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}
