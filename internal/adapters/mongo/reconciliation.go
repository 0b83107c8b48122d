package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/MadGotten/Eventio/internal/observability"
)

// ReconciliationLog keeps an operator-facing trail of settlement
// outcomes. Its most important job is the refund_required entry: a
// payment the gateway confirmed but that lost the race for stock. The
// money was taken and only a human can give it back.
type ReconciliationLog struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewReconciliationLog(db *mongo.Database, logger observability.Logger) *ReconciliationLog {
	return &ReconciliationLog{
		coll:   db.Collection("reconciliation"),
		logger: logger,
	}
}

type ReconciliationEntry struct {
	ID          uuid.UUID `bson:"_id"`
	Action      string    `bson:"action"`
	SessionID   string    `bson:"session_id"`
	EventID     uuid.UUID `bson:"event_id"`
	UserID      uuid.UUID `bson:"user_id"`
	Quantity    int       `bson:"quantity"`
	AmountMinor int64     `bson:"amount_minor"`
	Timestamp   time.Time `bson:"timestamp"`
	Data        bson.M    `bson:"data,omitempty"`
}

func (l *ReconciliationLog) record(ctx context.Context, entry ReconciliationEntry) error {
	entry.ID = uuid.New()
	entry.Timestamp = time.Now().UTC()
	_, err := l.coll.InsertOne(ctx, entry)
	if err != nil {
		l.logger.WithField("session_id", entry.SessionID).Error("failed to insert reconciliation entry", err)
		return err
	}
	return nil
}

// RefundRequired records everything an operator needs to refund a
// completed payment that could not be settled.
func (l *ReconciliationLog) RefundRequired(ctx context.Context, sessionID string, eventID, userID uuid.UUID, quantity int, amountMinor int64, reason string) error {
	return l.record(ctx, ReconciliationEntry{
		Action:      "checkout.refund_required",
		SessionID:   sessionID,
		EventID:     eventID,
		UserID:      userID,
		Quantity:    quantity,
		AmountMinor: amountMinor,
		Data:        bson.M{"reason": reason},
	})
}

func (l *ReconciliationLog) Settled(ctx context.Context, sessionID string, eventID, userID, purchaseID uuid.UUID, quantity int, amountMinor int64) error {
	return l.record(ctx, ReconciliationEntry{
		Action:      "checkout.settled",
		SessionID:   sessionID,
		EventID:     eventID,
		UserID:      userID,
		Quantity:    quantity,
		AmountMinor: amountMinor,
		Data:        bson.M{"purchase_id": purchaseID.String()},
	})
}
