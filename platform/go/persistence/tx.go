package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrTransactionConflict marks serialization failures and deadlocks; callers may retry the whole unit.
var ErrTransactionConflict = errors.New("transaction conflict")

const (
	sqlStateUniqueViolation      = "23505"
	sqlStateForeignKeyViolation  = "23503"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateLockNotAvailable     = "55P03"
)

type txBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxRunner executes units of work in a single transaction and classifies retryable failures.
type TxRunner struct {
	pool txBeginner
}

// NewTxRunner wraps pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	if pool == nil {
		panic("TxRunner requires pool")
	}
	return &TxRunner{pool: pool}
}

// InTx runs fn inside a transaction. The transaction is committed when fn returns nil and
// rolled back otherwise; conflict errors come back wrapped with ErrTransactionConflict.
func (r *TxRunner) InTx(ctx context.Context, opts pgx.TxOptions, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, opts)
	if err != nil {
		return classify(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(tx); err != nil {
		return classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// IsTransactionConflict reports whether err is worth retrying as a whole transaction.
func IsTransactionConflict(err error) bool {
	return errors.Is(err, ErrTransactionConflict)
}

func classify(err error) error {
	if err == nil || errors.Is(err, ErrTransactionConflict) {
		return err
	}
	switch sqlState(err) {
	case sqlStateSerializationFailure, sqlStateDeadlockDetected, sqlStateLockNotAvailable:
		return fmt.Errorf("%w: %w", ErrTransactionConflict, err)
	}
	return err
}

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return sqlState(err) == sqlStateUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	return sqlState(err) == sqlStateForeignKeyViolation
}
