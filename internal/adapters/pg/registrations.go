package pg

import (
	"context"

	"github.com/google/uuid"

	"github.com/MadGotten/Eventio/internal/domain"
)

// ToggleRegistration creates the registration if absent and removes it if
// present, reporting which happened. The UNIQUE (user_id, event_id)
// constraint guarantees at most one row per pair; ON CONFLICT DO NOTHING
// turns a concurrent duplicate into the delete branch.
func (r *Repository) ToggleRegistration(ctx context.Context, reg domain.Registration) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		INSERT INTO registrations (id, user_id, event_id, registered_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, event_id) DO NOTHING
	`, reg.ID, reg.UserID, reg.EventID, reg.RegisteredAt)
	if err != nil {
		return false, mapPgError(err)
	}
	if result.RowsAffected() > 0 {
		return true, nil
	}

	_, err = r.pool.Exec(ctx, `
		DELETE FROM registrations WHERE user_id = $1 AND event_id = $2
	`, reg.UserID, reg.EventID)
	return false, err
}

func (r *Repository) IsRegistered(ctx context.Context, userID, eventID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM registrations WHERE user_id = $1 AND event_id = $2)
	`, userID, eventID).Scan(&exists)
	return exists, err
}
