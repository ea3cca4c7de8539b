package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRetryable marks failures caused by lock contention. Callers should
// retry the whole operation.
var ErrRetryable = errors.New("platform/db: please try again")

// WithTx executes a function within a transaction using the RepeatableRead isolation level.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// WithSavepoint runs fn inside a named savepoint on an open transaction.
// On failure only the savepoint is rolled back; the outer transaction
// stays usable.
func WithSavepoint(ctx context.Context, tx pgx.Tx, name string, fn func(pgx.Tx) error) error {
	if _, err := tx.Exec(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("platform/db: savepoint %s: %w", name, err)
	}
	if err := fn(tx); err != nil {
		if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("platform/db: rollback to %s: %w", name, rbErr)
		}
		return err
	}
	if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("platform/db: release %s: %w", name, err)
	}
	return nil
}

// Postgres error codes signalling lock contention.
const (
	codeLockNotAvailable = "55P03"
	codeDeadlockDetected = "40P01"
	codeUniqueViolation  = "23505"
)

// IsRetryable reports whether err is a lock-wait timeout or deadlock.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeLockNotAvailable || pgErr.Code == codeDeadlockDetected
	}
	return errors.Is(err, ErrRetryable)
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeUniqueViolation
	}
	return false
}
