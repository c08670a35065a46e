package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestFormatKey(t *testing.T) {
	if got := FormatKey("application_created", "evt-1"); got != "idem:trigger:application_created:evt-1" {
		t.Errorf("FormatKey = %q", got)
	}
}

// --- MemoryStore ---

func TestMemoryStore_ClaimOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ok, err := s.Claim(ctx, "k1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first Claim = %v, %v; want true, nil", ok, err)
	}
	ok, err = s.Claim(ctx, "k1", time.Minute)
	if err != nil || ok {
		t.Fatalf("second Claim = %v, %v; want false, nil", ok, err)
	}
	ok, _ = s.Claim(ctx, "k2", time.Minute)
	if !ok {
		t.Error("distinct key should be claimable")
	}
}

func TestMemoryStore_ClaimAfterExpiry(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	if ok, _ := s.Claim(ctx, "k", time.Minute); !ok {
		t.Fatal("first claim failed")
	}
	now = now.Add(59 * time.Second)
	if ok, _ := s.Claim(ctx, "k", time.Minute); ok {
		t.Fatal("claim before expiry should fail")
	}
	now = now.Add(2 * time.Second)
	if ok, _ := s.Claim(ctx, "k", time.Minute); !ok {
		t.Fatal("claim after expiry should succeed")
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestMemoryStore_Release(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, _ = s.Claim(ctx, "k", time.Minute)
	if err := s.Release(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Claim(ctx, "k", time.Minute); !ok {
		t.Error("released key should be claimable")
	}
}

// --- RedisStore ---

func newTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStore_ClaimOnce(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()
	key := FormatKey("ai_score_calculated", "evt-9")

	ok, err := s.Claim(ctx, key, 5*time.Minute)
	if err != nil || !ok {
		t.Fatalf("first Claim = %v, %v", ok, err)
	}
	ok, err = s.Claim(ctx, key, 5*time.Minute)
	if err != nil || ok {
		t.Fatalf("second Claim = %v, %v", ok, err)
	}
	if ttl := mr.TTL(key); ttl != 5*time.Minute {
		t.Errorf("TTL = %v, want 5m", ttl)
	}
}

func TestRedisStore_Expiry(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()

	_, _ = s.Claim(ctx, "k", time.Minute)
	mr.FastForward(2 * time.Minute)
	if ok, _ := s.Claim(ctx, "k", time.Minute); !ok {
		t.Error("claim after TTL should succeed")
	}
}

func TestRedisStore_Release(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()

	_, _ = s.Claim(ctx, "k", time.Minute)
	if err := s.Release(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if mr.Exists("k") {
		t.Error("key still present after release")
	}
}

func TestRedisStore_HealthCheck(t *testing.T) {
	s, mr := newTestRedis(t)
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	mr.Close()
	if err := s.HealthCheck(context.Background()); err == nil {
		t.Error("expected error after redis shutdown")
	}
}

func TestRedisStore_ConnectionError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()
	s := NewRedisStore(client)
	if _, err := s.Claim(context.Background(), "k", time.Minute); err == nil {
		t.Error("expected connection error")
	}
}
