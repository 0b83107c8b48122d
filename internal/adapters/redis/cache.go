package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MadGotten/Eventio/internal/domain"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

func eventKey(id uuid.UUID) string { return "event:" + id.String() }

func (c *Cache) SetEvent(ctx context.Context, event domain.Event, ttl time.Duration) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, eventKey(event.ID), data, ttl).Err()
}

// GetEvent returns nil on a cache miss.
func (c *Cache) GetEvent(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	data, err := c.client.Get(ctx, eventKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var event domain.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (c *Cache) InvalidateEvent(ctx context.Context, id uuid.UUID) error {
	return c.client.Del(ctx, eventKey(id)).Err()
}
