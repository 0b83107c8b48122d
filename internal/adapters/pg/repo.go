// Package pg is the relational system of record: events, tickets,
// purchases, registrations, checkout attempts and the transactional
// outbox all live here.
package pg

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MadGotten/Eventio/internal/domain"
	"github.com/MadGotten/Eventio/internal/observability"
)

const (
	serializationFailureCode = "40001"
	uniqueViolationCode      = "23505"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a transaction and maps driver error codes onto
// domain sentinels. Rollback on any error, including a failed commit.
func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() {
		observability.DBTxDuration.Observe(time.Since(start).Seconds())
	}()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return mapPgError(err)
	}

	return tx.Commit(ctx)
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case serializationFailureCode:
			return errors.Mark(err, domain.ErrConflict)
		case uniqueViolationCode:
			return errors.Mark(err, domain.ErrConflict)
		}
	}
	return err
}
