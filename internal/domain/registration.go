package domain

import (
	"time"

	"github.com/google/uuid"
)

// Registration joins a user to a free event. At most one per (user, event).
type Registration struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	EventID      uuid.UUID
	RegisteredAt time.Time
}

func NewRegistration(userID, eventID uuid.UUID) Registration {
	return Registration{
		ID:           uuid.New(),
		UserID:       userID,
		EventID:      eventID,
		RegisteredAt: time.Now().UTC(),
	}
}
