// Package outbox relays committed domain events from the transactional
// outbox table to the broker. Writing the record happens inside the same
// transaction as the state change; publishing happens here, after commit,
// so a broker outage never rolls back a settlement.
package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/MadGotten/Eventio/internal/adapters/pg"
	"github.com/MadGotten/Eventio/internal/adapters/rabbit"
	"github.com/MadGotten/Eventio/internal/observability"
)

const (
	pollInterval = 5 * time.Second
	batchSize    = 10
)

type Publisher struct {
	repo      *pg.Repository
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
}

func NewPublisher(repo *pg.Repository, rabbitPub *rabbit.Publisher, logger observability.Logger) *Publisher {
	return &Publisher{repo: repo, rabbitPub: rabbitPub, logger: logger}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

func (p *Publisher) drain(ctx context.Context) {
	records, err := p.repo.GetUnpublishedOutbox(ctx, batchSize)
	if err != nil {
		p.logger.Error("failed to read outbox", err)
		return
	}

	for _, rec := range records {
		observability.OutboxLag.Set(time.Since(rec.CreatedAt).Seconds())

		msg := amqp.Publishing{
			MessageId:   rec.DedupeKey,
			ContentType: "application/json",
			Body:        rec.Payload,
		}
		if err := p.rabbitPub.Publish(ctx, rec.EventType, msg); err != nil {
			p.logger.WithField("outbox_id", rec.ID).Error("failed to publish outbox record", err)
			continue
		}
		if err := p.repo.MarkPublished(ctx, rec.ID, time.Now().UTC()); err != nil {
			p.logger.WithField("outbox_id", rec.ID).Error("failed to mark outbox record published", err)
		}
	}
}
