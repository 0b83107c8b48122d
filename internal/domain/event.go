package domain

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

type EventType string

const (
	EventFree EventType = "free"
	EventPaid EventType = "paid"
)

type EventStatus string

const (
	StatusPending  EventStatus = "pending"
	StatusApproved EventStatus = "approved"
	StatusRejected EventStatus = "rejected"
)

type Event struct {
	ID             uuid.UUID
	Title          string
	Description    string
	Location       string
	Date           time.Time
	Category       string
	BannerURL      string
	BannerPublicID string
	Type           EventType
	Status         EventStatus
	CreatedBy      uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (e Event) IsFree() bool   { return e.Type == EventFree }
func (e Event) IsPaid() bool   { return e.Type == EventPaid }
func (e Event) IsActive() bool { return e.Status == StatusApproved }

// NewEvent validates organizer input. Free events go live immediately,
// paid events wait for approval.
func NewEvent(title, description, location, category string, date time.Time, eventType EventType, createdBy uuid.UUID) (Event, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Event{}, errors.WithDetail(ErrInvalidInput, "title is required")
	}
	if len(title) > 200 {
		return Event{}, errors.WithDetail(ErrInvalidInput, "title exceeds 200 characters")
	}
	if eventType != EventFree && eventType != EventPaid {
		return Event{}, errors.WithDetail(ErrInvalidInput, "event type must be free or paid")
	}

	status := StatusApproved
	if eventType == EventPaid {
		status = StatusPending
	}

	now := time.Now().UTC()
	return Event{
		ID:          uuid.New(),
		Title:       title,
		Description: description,
		Location:    strings.TrimSpace(location),
		Date:        date,
		Category:    strings.TrimSpace(category),
		Type:        eventType,
		Status:      status,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
