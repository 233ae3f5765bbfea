package cron

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type memoryLockStore struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryLockStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memoryLockStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func TestRedisLockIsExclusive(t *testing.T) {
	store := newMemoryLockStore()
	a, _ := NewRedisLock(store, "lock:cron", 0)
	b, _ := NewRedisLock(store, "lock:cron", 0)
	ctx := context.Background()

	if ok, err := a.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire: %v %v", ok, err)
	}
	if store.ttls["lock:cron"] != defaultLockTTL {
		t.Fatalf("expected default ttl, got %s", store.ttls["lock:cron"])
	}
	if ok, _ := b.Acquire(ctx); ok {
		t.Fatal("second holder must not acquire")
	}
	if err := b.Release(ctx); err != nil {
		t.Fatalf("release without holding: %v", err)
	}
	if _, ok := store.values["lock:cron"]; !ok {
		t.Fatal("non-holder released the lock")
	}
	if err := a.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := b.Acquire(ctx); !ok {
		t.Fatal("lock should be free after release")
	}
}

func TestRedisLockLeavesForeignLease(t *testing.T) {
	store := newMemoryLockStore()
	lock, _ := NewRedisLock(store, "lock:cron", time.Minute)
	ctx := context.Background()
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("acquire")
	}
	// lease expired and another worker took it
	store.values["lock:cron"] = "worker-9:other"

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values["lock:cron"] != "worker-9:other" {
		t.Fatal("foreign lease was deleted")
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", 0); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := NewRedisLock(newMemoryLockStore(), "", 0); err == nil {
		t.Fatal("expected error for empty key")
	}
}
