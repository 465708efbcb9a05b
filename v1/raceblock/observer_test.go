package raceblock

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestSlogObserverMessages(t *testing.T) {
	var buf bytes.Buffer
	o := NewSlogObserver(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	ctx := context.Background()

	o.Observe(ctx, Event{Kind: EventAlreadyHeld, Key: "a"})
	o.Observe(ctx, Event{Kind: EventTokenDesynced, Key: "b"})
	o.Observe(ctx, Event{Kind: EventRunning, Key: "c"})
	o.Observe(ctx, Event{Kind: EventStoreError, Key: "d", Op: "get", Err: errors.New("refused")})

	out := buf.String()
	for _, want := range []string{"Token already exists", "Token out of sync", "Running block", "op=get", "error=refused"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in log output:\n%s", want, out)
		}
	}
}

func TestObserversFanOut(t *testing.T) {
	r1, r2 := &recorder{}, &recorder{}
	o := Observers(r1, nil, r2, NopObserver())
	o.Observe(context.Background(), Event{Kind: EventRan})
	if r1.count(EventRan) != 1 || r2.count(EventRan) != 1 {
		t.Fatal("expected every observer to receive the event")
	}
}

func TestObserverFunc(t *testing.T) {
	var got EventKind = -1
	ObserverFunc(func(_ context.Context, ev Event) { got = ev.Kind }).Observe(context.Background(), Event{Kind: EventGuardApplied})
	if got != EventGuardApplied {
		t.Fatalf("expected guard event, got %v", got)
	}
}

func TestEventsCarryAttemptIdentity(t *testing.T) {
	b, _, rec := newRedisBlock(t)
	res, err := b.Start(context.Background(), "ident", func(context.Context) error { return nil }, WithSleepDelay(0))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	ev, ok := rec.first(EventRunning)
	if !ok {
		t.Fatal("missing running event")
	}
	if ev.AttemptID == "" || ev.AttemptID != res.AttemptID || ev.StoreKey != Key("ident") || ev.Key != "ident" {
		t.Fatalf("unexpected event identity %+v for result %+v", ev, res)
	}
}
