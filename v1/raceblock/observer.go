package raceblock

import (
	"context"
	"log/slog"
	"time"
)

// EventKind identifies an election event.
type EventKind int

const (
	// EventGuardApplied: the entry had no expiry and GuardTTL was forced on it.
	EventGuardApplied EventKind = iota
	// EventAlreadyHeld: the entry existed before this attempt wrote anything.
	EventAlreadyHeld
	// EventTokenDesynced: another candidate overwrote this attempt's token.
	EventTokenDesynced
	// EventRunning: this attempt won and the work is starting.
	EventRunning
	// EventRan: the work returned (or panicked) and the cooldown was applied.
	EventRan
	// EventStoreError: a store call failed; the error is returned to the caller.
	EventStoreError
)

func (k EventKind) String() string {
	switch k {
	case EventGuardApplied:
		return "guard_applied"
	case EventAlreadyHeld:
		return "already_held"
	case EventTokenDesynced:
		return "token_desynced"
	case EventRunning:
		return "running"
	case EventRan:
		return "ran"
	case EventStoreError:
		return "store_error"
	default:
		return "unknown"
	}
}

// Event describes one step of an election attempt.
type Event struct {
	Kind      EventKind
	Key       string
	StoreKey  string
	AttemptID string
	// Op names the failed store operation for EventStoreError.
	Op string
	// Duration is the work duration for EventRan.
	Duration time.Duration
	// Err is the store error for EventStoreError and the work error for
	// EventRan.
	Err error
}

// Observer receives election events. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

type nopObserver struct{}

func (nopObserver) Observe(context.Context, Event) {}

// NopObserver returns an Observer discarding every event.
func NopObserver() Observer { return nopObserver{} }

type multiObserver []Observer

func (m multiObserver) Observe(ctx context.Context, ev Event) {
	for _, o := range m {
		o.Observe(ctx, ev)
	}
}

// Observers fans events out to every non-nil observer in order.
func Observers(obs ...Observer) Observer {
	m := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}

type slogObserver struct {
	logger *slog.Logger
}

// NewSlogObserver returns an Observer logging events to l. Losing an
// election is routine and logged at debug level.
func NewSlogObserver(l *slog.Logger) Observer {
	if l == nil {
		l = slog.Default()
	}
	return slogObserver{logger: l}
}

func (o slogObserver) Observe(ctx context.Context, ev Event) {
	attrs := []any{"key", ev.Key, "attempt", ev.AttemptID}
	switch ev.Kind {
	case EventGuardApplied:
		o.logger.WarnContext(ctx, "Token had no expiry, guard ttl applied", attrs...)
	case EventAlreadyHeld:
		o.logger.DebugContext(ctx, "Token already exists", attrs...)
	case EventTokenDesynced:
		o.logger.DebugContext(ctx, "Token out of sync", attrs...)
	case EventRunning:
		o.logger.DebugContext(ctx, "Running block", attrs...)
	case EventRan:
		attrs = append(attrs, "duration", ev.Duration)
		if ev.Err != nil {
			o.logger.DebugContext(ctx, "Block failed", append(attrs, "error", ev.Err)...)
			return
		}
		o.logger.DebugContext(ctx, "Block finished", attrs...)
	case EventStoreError:
		o.logger.WarnContext(ctx, "raceblock: store operation failed", append(attrs, "op", ev.Op, "error", ev.Err)...)
	}
}
