// Package idempotency dedupes Pub/Sub deliveries of outbox events per consumer.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/instance"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

var (
	ErrMissingConsumer = errors.New("consumer name is required")
	ErrMissingEventID  = errors.New("event id is required")
)

// Tracker records which events each consumer has claimed. Claims expire
// after ttl; a zero ttl keeps them until deleted.
type Tracker struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewTracker(store redis.IdempotencyStore, ttl time.Duration) (*Tracker, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, fmt.Errorf("ttl must be non-negative, got %s", ttl)
	}
	return &Tracker{store: store, ttl: ttl}, nil
}

// Claim reports true when this is the first time consumer sees eventID.
// A redelivery returns false and should be acknowledged without work.
func (t *Tracker) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := t.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	holder := instance.GetID() + "@" + time.Now().UTC().Format(time.RFC3339)
	return t.store.SetNX(ctx, key, holder, t.ttl)
}

// Release drops a claim after the consumer failed, so the next delivery is
// handled again.
func (t *Tracker) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := t.key(consumer, eventID)
	if err != nil {
		return err
	}
	return t.store.Del(ctx, key)
}

func (t *Tracker) key(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", ErrMissingConsumer
	}
	if eventID == uuid.Nil {
		return "", ErrMissingEventID
	}
	return t.store.IdempotencyKey("evt:"+consumer, eventID.String()), nil
}
