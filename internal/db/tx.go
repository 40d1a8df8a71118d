package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of database/sql methods shared by *sql.DB and *sql.Tx.
// Repositories are constructed over a Querier so services can rebind them to a
// transaction for multi-step invariant checks.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxRunner runs a function inside a serializable transaction, retrying on
// serialization conflicts. Services depend on this interface so tests can
// substitute a runner that passes mock-backed queriers through.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(q Querier) error) error
}

// ErrTxContention is returned when a transaction still conflicts after the
// bounded number of retry attempts.
var ErrTxContention = errors.New("transaction contention: retries exhausted")

// maxTxAttempts bounds automatic retries on serialization failure.
const maxTxAttempts = 3

// DB wraps *sql.DB with the TxRunner contract.
type DB struct {
	SQL *sql.DB
}

// New wraps an opened database handle.
func New(sqlDB *sql.DB) *DB {
	return &DB{SQL: sqlDB}
}

// Q returns the plain (non-transactional) querier, for single-row writes such
// as heartbeats where no cross-record invariant applies.
func (d *DB) Q() Querier {
	return d.SQL
}

// WithTx runs fn inside a serializable transaction. On SQLSTATE 40001
// (serialization_failure) or 40P01 (deadlock_detected) the whole function is
// retried up to maxTxAttempts times; the conflict then surfaces as
// ErrTxContention. Any other error from fn rolls back and is returned as-is.
func (d *DB) WithTx(ctx context.Context, fn func(q Querier) error) error {
	var lastErr error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		tx, err := d.SQL.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			if retryable(err) {
				lastErr = err
				continue
			}
			return err
		}
		if err := tx.Commit(); err != nil {
			if retryable(err) {
				lastErr = err
				continue
			}
			return err
		}
		return nil
	}
	return errors.Join(ErrTxContention, lastErr)
}

// IsContention reports whether err is the retries-exhausted contention failure.
func IsContention(err error) bool {
	return errors.Is(err, ErrTxContention)
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
