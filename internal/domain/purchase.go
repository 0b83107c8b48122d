package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Purchase is the receipt of truth. EventName and AmountPaid are copied
// at creation time so later event edits or price changes never rewrite
// what the buyer actually paid for.
type Purchase struct {
	ID          uuid.UUID
	TicketID    uuid.UUID
	UserID      uuid.UUID
	Quantity    int
	EventName   string
	AmountPaid  int64 // minor currency units
	SessionID   string
	PurchasedAt time.Time
}

// NewPurchase snapshots the event title and total at the moment of
// settlement. Callers have already reserved stock in the same transaction.
func NewPurchase(ticket Ticket, userID uuid.UUID, quantity int, eventName, sessionID string) Purchase {
	return Purchase{
		ID:          uuid.New(),
		TicketID:    ticket.ID,
		UserID:      userID,
		Quantity:    quantity,
		EventName:   eventName,
		AmountPaid:  ticket.PriceMinor * int64(quantity),
		SessionID:   sessionID,
		PurchasedAt: time.Now().UTC(),
	}
}

// Total renders the minor-unit amount as "major.minor", e.g. 583021 -> "5830.21".
func (p Purchase) Total() string {
	return FormatMinor(p.AmountPaid)
}

func FormatMinor(amount int64) string {
	return fmt.Sprintf("%d.%02d", amount/100, amount%100)
}
