package pg

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MadGotten/Eventio/internal/domain"
)

const eventColumns = `id, title, description, location, date, category,
	banner_url, banner_public_id, event_type, status, created_by, created_at, updated_at`

// CreateEvent inserts an event and, for paid events, its single ticket in
// one transaction. A free event never gets a ticket row.
func (r *Repository) CreateEvent(ctx context.Context, event domain.Event, ticket *domain.Ticket) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO events (id, title, description, location, date, category,
				banner_url, banner_public_id, event_type, status, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, event.ID, event.Title, event.Description, event.Location, event.Date, event.Category,
			event.BannerURL, event.BannerPublicID, event.Type, event.Status, event.CreatedBy,
			event.CreatedAt, event.UpdatedAt)
		if err != nil {
			return err
		}
		if ticket == nil {
			return nil
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO tickets (id, event_id, price_minor, quantity)
			VALUES ($1, $2, $3, $4)
		`, ticket.ID, ticket.EventID, ticket.PriceMinor, ticket.Quantity)
		return err
	})
}

func (r *Repository) GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	var e domain.Event
	err := r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id).Scan(
		&e.ID, &e.Title, &e.Description, &e.Location, &e.Date, &e.Category,
		&e.BannerURL, &e.BannerPublicID, &e.Type, &e.Status, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Event{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Event{}, err
	}
	return e, nil
}

// EventWithTicket returns the event and its ticket. The ticket is nil for
// free events.
func (r *Repository) EventWithTicket(ctx context.Context, id uuid.UUID) (domain.Event, *domain.Ticket, error) {
	event, err := r.GetEvent(ctx, id)
	if err != nil {
		return domain.Event{}, nil, err
	}

	var t domain.Ticket
	err = r.pool.QueryRow(ctx, `
		SELECT id, event_id, price_minor, quantity FROM tickets WHERE event_id = $1
	`, id).Scan(&t.ID, &t.EventID, &t.PriceMinor, &t.Quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return event, nil, nil
	}
	if err != nil {
		return domain.Event{}, nil, err
	}
	return event, &t, nil
}

// ListEvents filters by status and type; empty strings match everything.
// sort is "recent" (default) or "popular", which ranks by registrations
// plus tickets sold.
func (r *Repository) ListEvents(ctx context.Context, status, eventType, sort string, limit int) ([]domain.Event, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	orderBy := `e.created_at DESC`
	if sort == "popular" {
		orderBy = `(
			(SELECT count(*) FROM registrations reg WHERE reg.event_id = e.id) +
			(SELECT coalesce(sum(p.quantity), 0) FROM purchases p
				JOIN tickets t ON t.id = p.ticket_id WHERE t.event_id = e.id)
		) DESC, e.created_at DESC`
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM events e
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR event_type = $2)
		ORDER BY `+orderBy+`
		LIMIT $3
	`, status, eventType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &e.Date, &e.Category,
			&e.BannerURL, &e.BannerPublicID, &e.Type, &e.Status, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// UpdateEvent rewrites the mutable fields. Only the owner may update; the
// ownership check lives in the service layer. Switching a paid event to
// free drops its ticket row so free events never carry inventory.
func (r *Repository) UpdateEvent(ctx context.Context, event domain.Event, ticket *domain.Ticket) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE events
			SET title = $2, description = $3, location = $4, date = $5, category = $6,
				banner_url = $7, banner_public_id = $8, event_type = $9, status = $10, updated_at = now()
			WHERE id = $1
		`, event.ID, event.Title, event.Description, event.Location, event.Date, event.Category,
			event.BannerURL, event.BannerPublicID, event.Type, event.Status)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		if ticket == nil {
			if event.IsFree() {
				_, err = tx.Exec(ctx, `DELETE FROM tickets WHERE event_id = $1`, event.ID)
				return err
			}
			return nil
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO tickets (id, event_id, price_minor, quantity)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (event_id) DO UPDATE SET price_minor = $3, quantity = $4
		`, ticket.ID, ticket.EventID, ticket.PriceMinor, ticket.Quantity)
		return err
	})
}

// DeleteEvent removes the event; tickets, purchases, registrations and
// attempts go with it through ON DELETE CASCADE. The removed event is
// returned so the caller can run post-commit cleanup (banner, cache).
func (r *Repository) DeleteEvent(ctx context.Context, id, ownerID uuid.UUID) (domain.Event, error) {
	event, err := r.GetEvent(ctx, id)
	if err != nil {
		return domain.Event{}, err
	}
	if event.CreatedBy != ownerID {
		return domain.Event{}, domain.ErrNotFound
	}

	result, err := r.pool.Exec(ctx, `DELETE FROM events WHERE id = $1 AND created_by = $2`, id, ownerID)
	if err != nil {
		return domain.Event{}, err
	}
	if result.RowsAffected() == 0 {
		return domain.Event{}, domain.ErrNotFound
	}
	return event, nil
}
