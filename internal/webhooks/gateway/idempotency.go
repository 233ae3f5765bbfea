package gatewaywebhook

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type deliveryStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	WebhookDeliveryKey(event, sessionID string) string
}

// IdempotencyGuard short-circuits redelivered notifications before they reach
// the database. The payment row stays the authoritative check.
type IdempotencyGuard struct {
	store deliveryStore
	ttl   time.Duration
}

func NewIdempotencyGuard(store deliveryStore, ttl time.Duration) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &IdempotencyGuard{store: store, ttl: ttl}, nil
}

// CheckAndMark reports whether the delivery was already seen and claims it otherwise.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, event EventType, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, errors.New("session id is required")
	}
	set, err := g.store.SetNX(ctx, g.store.WebhookDeliveryKey(string(event), sessionID), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Delete releases the claim so the gateway's retry is processed.
func (g *IdempotencyGuard) Delete(ctx context.Context, event EventType, sessionID string) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}
	return g.store.Del(ctx, g.store.WebhookDeliveryKey(string(event), sessionID))
}
