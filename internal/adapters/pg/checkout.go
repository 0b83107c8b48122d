package pg

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MadGotten/Eventio/internal/domain"
)

func (r *Repository) CreateAttempt(ctx context.Context, a domain.CheckoutAttempt) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO checkout_attempts (id, event_id, user_id, quantity, amount_minor, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.EventID, a.UserID, a.Quantity, a.AmountMinor, a.State, a.CreatedAt, a.UpdatedAt)
	return err
}

// OpenAttemptSession binds the external session reference and moves the
// attempt from INITIATED to SESSION_OPEN.
func (r *Repository) OpenAttemptSession(ctx context.Context, attemptID uuid.UUID, sessionID string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE checkout_attempts
		SET session_id = $2, state = $3, updated_at = now()
		WHERE id = $1 AND state = $4
	`, attemptID, sessionID, domain.CheckoutSessionOpen, domain.CheckoutInitiated)
	if err != nil {
		return mapPgError(err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) AttemptBySession(ctx context.Context, sessionID string) (domain.CheckoutAttempt, error) {
	var a domain.CheckoutAttempt
	err := r.pool.QueryRow(ctx, `
		SELECT id, event_id, user_id, quantity, amount_minor, session_id, state, created_at, updated_at
		FROM checkout_attempts WHERE session_id = $1
	`, sessionID).Scan(&a.ID, &a.EventID, &a.UserID, &a.Quantity, &a.AmountMinor, &a.SessionID, &a.State, &a.CreatedAt, &a.UpdatedAt)
	if err == pgx.ErrNoRows {
		return domain.CheckoutAttempt{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.CheckoutAttempt{}, err
	}
	return a, nil
}

func (r *Repository) markAttemptBySession(ctx context.Context, tx pgx.Tx, sessionID string, state domain.CheckoutState) error {
	// Attempts are bookkeeping; a settlement observed through a session we
	// never recorded (e.g. after a crash) still settles. ABANDONED is
	// included because the expiry sweep can beat a slow payment: the
	// purchase wins and the attempt record follows it.
	_, err := tx.Exec(ctx, `
		UPDATE checkout_attempts SET state = $2, updated_at = now()
		WHERE session_id = $1 AND state IN ($3, $4)
	`, sessionID, state, domain.CheckoutSessionOpen, domain.CheckoutAbandoned)
	return err
}

// FailAttempt marks the attempt FAILED outside any settlement transaction.
func (r *Repository) FailAttempt(ctx context.Context, sessionID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE checkout_attempts SET state = $2, updated_at = now()
		WHERE session_id = $1 AND state = $3
	`, sessionID, domain.CheckoutFailed, domain.CheckoutSessionOpen)
	return err
}

// ExpireStaleAttempts sweeps SESSION_OPEN attempts the buyer walked away
// from. No stock was reserved for them, so this is bookkeeping only.
func (r *Repository) ExpireStaleAttempts(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE checkout_attempts SET state = $2, updated_at = now()
		WHERE state = $1 AND updated_at <= $3
	`, domain.CheckoutSessionOpen, domain.CheckoutAbandoned, olderThan)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
