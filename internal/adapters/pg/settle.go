package pg

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MadGotten/Eventio/internal/domain"
)

// Settle converts a confirmed payment into a reservation plus purchase
// record as one transaction: lock-and-decrement stock, write the
// immutable receipt, flip the checkout attempt and queue the broker
// message through the outbox. Either all of it commits or none of it.
//
// purchases.session_id is unique, so a second settlement of the same
// session fails with ErrConflict and never reaches the decrement; the
// caller resolves it by reading the purchase that already exists.
func (r *Repository) Settle(ctx context.Context, eventID, userID uuid.UUID, quantity int, sessionID string) (domain.Purchase, error) {
	var purchase domain.Purchase

	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		ticket, err := r.Reserve(ctx, tx, eventID, quantity)
		if err != nil {
			return err
		}

		var title string
		if err := tx.QueryRow(ctx, `SELECT title FROM events WHERE id = $1`, eventID).Scan(&title); err != nil {
			return err
		}

		purchase = domain.NewPurchase(ticket, userID, quantity, title, sessionID)
		if err := r.createPurchase(ctx, tx, purchase); err != nil {
			return err
		}

		if err := r.markAttemptBySession(ctx, tx, sessionID, domain.CheckoutSettled); err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"purchase_id": purchase.ID,
			"event_id":    eventID,
			"user_id":     userID,
			"quantity":    quantity,
			"amount_paid": purchase.AmountPaid,
		})
		return r.InsertOutbox(ctx, tx, OutboxRecord{
			ID:            uuid.New(),
			AggregateType: "purchase",
			AggregateID:   purchase.ID,
			EventType:     "purchase.settled",
			Payload:       payload,
			DedupeKey:     sessionID,
		})
	})
	if err != nil {
		return domain.Purchase{}, err
	}
	return purchase, nil
}

// RecordRefundRequired queues the operator-facing broker message for a
// completed payment that could not be settled.
func (r *Repository) RecordRefundRequired(ctx context.Context, sessionID string, eventID, userID uuid.UUID, quantity int, amountMinor int64) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"session_id":   sessionID,
		"event_id":     eventID,
		"user_id":      userID,
		"quantity":     quantity,
		"amount_minor": amountMinor,
	})
	return r.InsertOutboxDirect(ctx, OutboxRecord{
		ID:            uuid.New(),
		AggregateType: "checkout",
		AggregateID:   eventID,
		EventType:     "checkout.refund_required",
		Payload:       payload,
		DedupeKey:     sessionID + ":refund",
	})
}
