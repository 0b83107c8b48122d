package domain

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Price and quantity bounds, in minor currency units and tickets.
const (
	MinPriceMinor = 100    // 1.00
	MaxPriceMinor = 100000 // 1000.00
	MaxQuantity   = 100000
)

// Ticket is the scarce stock for one paid event. Quantity only moves
// down, and only through the reservation path.
type Ticket struct {
	ID         uuid.UUID
	EventID    uuid.UUID
	PriceMinor int64
	Quantity   int
}

func NewTicket(eventID uuid.UUID, priceMinor int64, quantity int) (Ticket, error) {
	if priceMinor < MinPriceMinor || priceMinor > MaxPriceMinor {
		return Ticket{}, errors.WithDetail(ErrInvalidInput, "ticket price out of bounds")
	}
	if quantity < 1 || quantity > MaxQuantity {
		return Ticket{}, errors.WithDetail(ErrInvalidInput, "ticket quantity out of bounds")
	}
	return Ticket{
		ID:         uuid.New(),
		EventID:    eventID,
		PriceMinor: priceMinor,
		Quantity:   quantity,
	}, nil
}
