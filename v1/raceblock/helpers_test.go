package raceblock

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"

	"github.com/joeyparis/race-block/v1/store"
)

var errBoom = errors.New("boom")

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// newRedisBlock returns a Block backed by a fresh miniredis server and the
// recorder observing it.
func newRedisBlock(t *testing.T, opts ...BlockOption) (*Block, *miniredis.Miniredis, *recorder) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	rec := &recorder{}
	opts = append([]BlockOption{WithLogger(discardLogger()), WithObserver(rec)}, opts...)
	return New(store.NewRedisStore(client), opts...), mr, rec
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Observe(_ context.Context, ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) first(kind EventKind) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Kind == kind {
			return ev, true
		}
	}
	return Event{}, false
}

// recordingStore records calls made to the wrapped store. Embedding the
// interface hides optional capabilities such as SetIfAbsent.
type recordingStore struct {
	store.Store

	mu      sync.Mutex
	calls   []string
	expires []time.Duration
	gets    int
	// failGet makes the n-th Get (1-based) fail with errBoom.
	failGet int
	// failExpire does the same for Expire.
	failExpire int
	expireN    int
}

func (s *recordingStore) record(op string) {
	s.mu.Lock()
	s.calls = append(s.calls, op)
	s.mu.Unlock()
}

func (s *recordingStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.record("get")
	s.mu.Lock()
	s.gets++
	fail := s.failGet != 0 && s.gets == s.failGet
	s.mu.Unlock()
	if fail {
		return "", false, errBoom
	}
	return s.Store.Get(ctx, key)
}

func (s *recordingStore) Set(ctx context.Context, key, value string) error {
	s.record("set")
	return s.Store.Set(ctx, key, value)
}

func (s *recordingStore) Del(ctx context.Context, key string) error {
	s.record("del")
	return s.Store.Del(ctx, key)
}

func (s *recordingStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.record("expire")
	s.mu.Lock()
	s.expires = append(s.expires, ttl)
	s.expireN++
	fail := s.failExpire != 0 && s.expireN == s.failExpire
	s.mu.Unlock()
	if fail {
		return errBoom
	}
	return s.Store.Expire(ctx, key, ttl)
}

func (s *recordingStore) TTL(ctx context.Context, key string) (store.TTL, error) {
	s.record("ttl")
	return s.Store.TTL(ctx, key)
}

func (s *recordingStore) snapshot() ([]string, []time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...), append([]time.Duration(nil), s.expires...)
}

// sleepRecorder replaces Block.sleep with an instant, recorded wait.
type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
	hook   func(d time.Duration)
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.sleeps = append(r.sleeps, d)
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		hook(d)
	}
	return ctx.Err()
}
