package store

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newMemoryStore() (*MemoryStore, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	s := NewMemoryStore()
	s.now = clk.now
	return s, clk
}

func TestMemoryStoreTTLLifecycle(t *testing.T) {
	s, clk := newMemoryStore()
	ctx := context.Background()

	if ttl, _ := s.TTL(ctx, "k"); ttl.Status != TTLAbsent {
		t.Fatalf("expected absent, got %v", ttl.Status)
	}
	_ = s.Set(ctx, "k", "v")
	if ttl, _ := s.TTL(ctx, "k"); ttl.Status != TTLNoExpiry {
		t.Fatalf("expected no-expiry, got %v", ttl.Status)
	}
	_ = s.Expire(ctx, "k", 300*time.Millisecond)
	ttl, _ := s.TTL(ctx, "k")
	if ttl.Status != TTLExpiring || ttl.Remaining != time.Second {
		t.Fatalf("expected 1s remaining, got %+v", ttl)
	}
	clk.advance(999 * time.Millisecond)
	if _, ok, _ := s.Get(ctx, "k"); !ok {
		t.Fatal("key expired too early")
	}
	clk.advance(time.Millisecond)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatal("key should be expired")
	}
}

func TestMemoryStoreSetClearsTTL(t *testing.T) {
	s, _ := newMemoryStore()
	ctx := context.Background()
	_ = s.Set(ctx, "k", "a")
	_ = s.Expire(ctx, "k", time.Minute)
	_ = s.Set(ctx, "k", "b")
	if ttl, _ := s.TTL(ctx, "k"); ttl.Status != TTLNoExpiry {
		t.Fatalf("set should clear ttl, got %v", ttl.Status)
	}
}

func TestMemoryStoreExpireAbsentAndZero(t *testing.T) {
	s, _ := newMemoryStore()
	ctx := context.Background()
	_ = s.Expire(ctx, "missing", time.Minute)
	if _, ok, _ := s.Get(ctx, "missing"); ok {
		t.Fatal("expire must not create a key")
	}
	_ = s.Set(ctx, "k", "v")
	_ = s.Expire(ctx, "k", 0)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatal("zero ttl should remove the key")
	}
}

func TestMemoryStoreSetIfAbsent(t *testing.T) {
	s, clk := newMemoryStore()
	ctx := context.Background()
	if ok, _ := s.SetIfAbsent(ctx, "k", "a", 2*time.Second); !ok {
		t.Fatal("first set should win")
	}
	if ok, _ := s.SetIfAbsent(ctx, "k", "b", 2*time.Second); ok {
		t.Fatal("second set should lose")
	}
	clk.advance(2 * time.Second)
	if ok, _ := s.SetIfAbsent(ctx, "k", "c", 0); !ok {
		t.Fatal("set after expiry should win")
	}
	if v, _, _ := s.Get(ctx, "k"); v != "c" {
		t.Fatalf("expected c, got %q", v)
	}
}

func TestMemoryStoreCancelledContext(t *testing.T) {
	s, _ := newMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Set(ctx, "k", "v"); err == nil {
		t.Fatal("expected context error")
	}
}
