package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	redislib "github.com/redis/go-redis/v9"
)

type mockStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string)}
}

func (m *mockStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *mockStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return val, nil
}

func (m *mockStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *mockStore) SessionKey(accessID string) string {
	return fmt.Sprintf("sess:%s", accessID)
}

func TestManagerCreateHasRevoke(t *testing.T) {
	store := newMockStore()
	manager := &Manager{
		store: store,
		keyer: store,
		ttl:   time.Hour,
	}

	ctx := context.Background()
	if err := manager.Create(ctx, "jti-1", "user-1"); err != nil {
		t.Fatalf("create: %v", err)
	}

	ok, err := manager.HasSession(ctx, "jti-1")
	if err != nil {
		t.Fatalf("has session: %v", err)
	}
	if !ok {
		t.Fatal("expected live session")
	}

	ok, err = manager.HasSession(ctx, "jti-missing")
	if err != nil {
		t.Fatalf("has session: %v", err)
	}
	if ok {
		t.Fatal("expected no session for unknown jti")
	}

	if err := manager.Revoke(ctx, "jti-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	ok, err = manager.HasSession(ctx, "jti-1")
	if err != nil {
		t.Fatalf("has session after revoke: %v", err)
	}
	if ok {
		t.Fatal("expected session gone after revoke")
	}
}

func TestManagerRejectsBlankAccessID(t *testing.T) {
	store := newMockStore()
	manager := &Manager{store: store, keyer: store, ttl: time.Hour}
	ctx := context.Background()

	if err := manager.Create(ctx, "  ", "user-1"); err == nil {
		t.Fatal("expected error for blank access id")
	}
	if _, err := manager.HasSession(ctx, ""); err == nil {
		t.Fatal("expected error for blank access id")
	}
	if err := manager.Revoke(ctx, ""); err == nil {
		t.Fatal("expected error for blank access id")
	}
}
