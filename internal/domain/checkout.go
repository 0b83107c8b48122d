package domain

import (
	"time"

	"github.com/google/uuid"
)

type CheckoutState string

const (
	CheckoutInitiated   CheckoutState = "INITIATED"
	CheckoutSessionOpen CheckoutState = "SESSION_OPEN"
	CheckoutSettled     CheckoutState = "SETTLED"
	CheckoutFailed      CheckoutState = "FAILED"
	CheckoutAbandoned   CheckoutState = "ABANDONED"
)

// CheckoutAttempt tracks one buyer's trip through the payment gateway.
// An attempt that never leaves SESSION_OPEN is swept to ABANDONED by the
// expiry worker; nothing was reserved so there is nothing else to undo.
type CheckoutAttempt struct {
	ID          uuid.UUID
	EventID     uuid.UUID
	UserID      uuid.UUID
	Quantity    int
	AmountMinor int64
	SessionID   string
	State       CheckoutState
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewCheckoutAttempt(eventID, userID uuid.UUID, quantity int, amountMinor int64) CheckoutAttempt {
	now := time.Now().UTC()
	return CheckoutAttempt{
		ID:          uuid.New(),
		EventID:     eventID,
		UserID:      userID,
		Quantity:    quantity,
		AmountMinor: amountMinor,
		State:       CheckoutInitiated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
