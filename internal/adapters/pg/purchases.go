package pg

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MadGotten/Eventio/internal/domain"
)

func (r *Repository) createPurchase(ctx context.Context, tx pgx.Tx, p domain.Purchase) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO purchases (id, ticket_id, user_id, quantity, event_name, amount_paid, session_id, purchased_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.TicketID, p.UserID, p.Quantity, p.EventName, p.AmountPaid, p.SessionID, p.PurchasedAt)
	return err
}

// GetPurchase is scoped to the buyer: a purchase is only visible to the
// user who made it.
func (r *Repository) GetPurchase(ctx context.Context, id, userID uuid.UUID) (domain.Purchase, error) {
	var p domain.Purchase
	err := r.pool.QueryRow(ctx, `
		SELECT id, ticket_id, user_id, quantity, event_name, amount_paid, session_id, purchased_at
		FROM purchases WHERE id = $1 AND user_id = $2
	`, id, userID).Scan(&p.ID, &p.TicketID, &p.UserID, &p.Quantity, &p.EventName, &p.AmountPaid, &p.SessionID, &p.PurchasedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Purchase{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Purchase{}, err
	}
	return p, nil
}

// PurchaseBySession returns nil when the session was never settled.
func (r *Repository) PurchaseBySession(ctx context.Context, sessionID string) (*domain.Purchase, error) {
	var p domain.Purchase
	err := r.pool.QueryRow(ctx, `
		SELECT id, ticket_id, user_id, quantity, event_name, amount_paid, session_id, purchased_at
		FROM purchases WHERE session_id = $1
	`, sessionID).Scan(&p.ID, &p.TicketID, &p.UserID, &p.Quantity, &p.EventName, &p.AmountPaid, &p.SessionID, &p.PurchasedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// HasPurchased reports whether the user holds any purchase for the event.
func (r *Repository) HasPurchased(ctx context.Context, userID, eventID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM purchases p
			JOIN tickets t ON t.id = p.ticket_id
			WHERE p.user_id = $1 AND t.event_id = $2
		)
	`, userID, eventID).Scan(&exists)
	return exists, err
}
