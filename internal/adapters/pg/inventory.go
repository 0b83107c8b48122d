package pg

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MadGotten/Eventio/internal/domain"
)

// Reserve locks the event's ticket row and decrements remaining quantity.
// The decrement is durable only if the surrounding transaction commits;
// any later failure in the same transaction rolls it back.
//
// The UPDATE re-checks quantity so two reservers can never interleave
// between read and write even without the row lock; the FOR UPDATE keeps
// the losing transaction waiting instead of failing on serialization.
func (r *Repository) Reserve(ctx context.Context, tx pgx.Tx, eventID uuid.UUID, quantity int) (domain.Ticket, error) {
	if quantity <= 0 {
		return domain.Ticket{}, errors.WithDetail(domain.ErrInvalidInput, "quantity must be positive")
	}

	var t domain.Ticket
	err := tx.QueryRow(ctx, `
		SELECT id, event_id, price_minor, quantity
		FROM tickets WHERE event_id = $1
		FOR UPDATE
	`, eventID).Scan(&t.ID, &t.EventID, &t.PriceMinor, &t.Quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Ticket{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Ticket{}, err
	}

	if t.Quantity <= 0 || t.Quantity < quantity {
		return domain.Ticket{}, domain.ErrInsufficientStock
	}

	result, err := tx.Exec(ctx, `
		UPDATE tickets SET quantity = quantity - $2
		WHERE id = $1 AND quantity >= $2
	`, t.ID, quantity)
	if err != nil {
		return domain.Ticket{}, err
	}
	if result.RowsAffected() == 0 {
		return domain.Ticket{}, domain.ErrInsufficientStock
	}

	t.Quantity -= quantity
	return t, nil
}

// Restock is the administrative path back up; never reachable from the
// buyer-facing API.
func (r *Repository) Restock(ctx context.Context, eventID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return errors.WithDetail(domain.ErrInvalidInput, "quantity must be positive")
	}
	result, err := r.pool.Exec(ctx, `
		UPDATE tickets SET quantity = quantity + $2 WHERE event_id = $1
	`, eventID, quantity)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
