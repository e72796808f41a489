package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/apperr"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx, so repositories run the same
// statements inside and outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type TxFunc func(ctx context.Context, tx DBTX) error

type Transactor interface {
	WithinTx(ctx context.Context, fn TxFunc) error
}

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type pgTransactor struct {
	db       txBeginner
	attempts int
}

var _ txBeginner = (*pgxpool.Pool)(nil)

// NewTransactor returns a Transactor that retries serialization failures and
// deadlocks up to attempts times before reporting a transaction conflict.
func NewTransactor(pool *pgxpool.Pool, attempts int) Transactor {
	return newTransactor(pool, attempts)
}

func newTransactor(db txBeginner, attempts int) *pgTransactor {
	if attempts < 1 {
		attempts = 1
	}
	return &pgTransactor{db: db, attempts: attempts}
}

func (t *pgTransactor) WithinTx(ctx context.Context, fn TxFunc) error {
	var lastErr error

	for attempt := 1; attempt <= t.attempts; attempt++ {
		err := t.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}

		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", t.attempts).Msg("db: transaction conflict, retrying")

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}

	return apperr.Wrap(apperr.KindTransactionConflict, "db.WithinTx",
		fmt.Sprintf("transaction aborted after %d attempts", t.attempts), lastErr)
}

func (t *pgTransactor) runOnce(ctx context.Context, fn TxFunc) (err error) {
	tx, beginErr := t.db.Begin(ctx)
	if beginErr != nil {
		return fmt.Errorf("db: failed to begin transaction: %w", beginErr)
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic_value", p).Msg("db: panic recovered inside transaction, rolling back")
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Msg("db: failed to rollback transaction after panic")
			}
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Msg("db: failed to rollback transaction")
			}
		} else {
			if commitErr := tx.Commit(ctx); commitErr != nil {
				err = fmt.Errorf("db: failed to commit transaction: %w", commitErr)
			}
		}
	}()

	return fn(ctx, tx)
}

// IsRetryable reports whether err is a serialization failure or a deadlock.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// IsCheckViolation reports whether err is a check constraint violation.
func IsCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation
}
