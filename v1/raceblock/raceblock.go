package raceblock

import (
	"context"
	"encoding/hex"
	stdErrors "errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	guuid "github.com/hashicorp/go-uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	rberrors "github.com/joeyparis/race-block/v1/errors"
	"github.com/joeyparis/race-block/v1/store"
)

var tracer = otel.Tracer("github.com/joeyparis/race-block/v1/raceblock")

// tokenBytes is the amount of randomness in a candidate token.
const tokenBytes = 16

// errWorkPanicked is reported to observers when the work panics.
var errWorkPanicked = stdErrors.New("raceblock: work panicked")

// Reason tells why an election did not run the work.
type Reason int

const (
	// ReasonNone is set when the work ran.
	ReasonNone Reason = iota
	// ReasonAlreadyHeld: the key was taken before this attempt wrote anything.
	ReasonAlreadyHeld
	// ReasonTokenDesynced: another candidate's token replaced this attempt's
	// during the settling wait.
	ReasonTokenDesynced
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonAlreadyHeld:
		return "already_held"
	case ReasonTokenDesynced:
		return "token_desynced"
	default:
		return "unknown"
	}
}

// Result is the outcome of one election attempt.
type Result struct {
	// Ran reports whether this attempt won and ran the work.
	Ran bool
	// Reason is set when Ran is false.
	Reason    Reason
	Key       string
	StoreKey  string
	AttemptID string
}

// Outcome returns "ran" or the losing reason.
func (r Result) Outcome() string {
	if r.Ran {
		return "ran"
	}
	return r.Reason.String()
}

// Block runs units of work at most once across every caller sharing its
// store, per logical key and cooldown window.
type Block struct {
	store        store.Store
	settings     *Settings
	logger       *slog.Logger
	observers    []Observer
	observer     Observer
	traceEnabled bool

	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a Block coordinating through s. Without WithSettings or
// WithConfig it uses private settings initialised with DefaultConfig.
func New(s store.Store, opts ...BlockOption) *Block {
	b := &Block{store: s, sleep: sleepContext}
	for _, opt := range opts {
		opt(b)
	}
	if b.settings == nil {
		b.settings = NewSettings(DefaultConfig())
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.observer = Observers(append([]Observer{NewSlogObserver(b.logger)}, b.observers...)...)
	return b
}

// Settings returns the settings used by b.
func (b *Block) Settings() *Settings {
	return b.settings
}

// Reset deletes the entry of key unconditionally, whatever its TTL.
func (b *Block) Reset(ctx context.Context, key string) error {
	if key == "" {
		return rberrors.ErrInvalidKey
	}
	return b.store.Del(ctx, Key(key))
}

// Start runs work if this caller wins the election for key. Losing is not an
// error: the returned Result tells whether work ran and, if not, why.
//
// Errors returned by work are passed through unchanged. The cooldown TTL is
// applied whether work succeeds, fails or panics; a failure to apply it is
// joined to the returned error.
func (b *Block) Start(ctx context.Context, key string, work func(context.Context) error, opts ...Option) (Result, error) {
	if key == "" {
		return Result{}, rberrors.ErrInvalidKey
	}
	cfg := b.settings.Get()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	a := &attempt{
		b:   b,
		cfg: cfg,
		res: Result{Key: key, StoreKey: Key(key), AttemptID: uuid.NewString()},
	}

	var span trace.Span
	if b.traceEnabled {
		ctx, span = tracer.Start(ctx, "RaceBlock.Start", trace.WithAttributes(
			attribute.String("raceblock.key", key),
			attribute.String("raceblock.attempt_id", a.res.AttemptID),
			attribute.String("raceblock.mode", cfg.Mode.String()),
		))
		defer span.End()
	}

	err := a.run(ctx, work)
	if span != nil {
		span.SetAttributes(attribute.String("raceblock.outcome", a.res.Outcome()))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	return a.res, err
}

// Run is Start for work returning a value. The value is the zero value of T
// unless the work ran.
func Run[T any](ctx context.Context, b *Block, key string, work func(context.Context) (T, error), opts ...Option) (T, Result, error) {
	var v T
	res, err := b.Start(ctx, key, func(ctx context.Context) error {
		var err error
		v, err = work(ctx)
		return err
	}, opts...)
	return v, res, err
}

// attempt is a single election by a single caller.
type attempt struct {
	b   *Block
	cfg Config
	res Result
	// written is set once this attempt may have written its token.
	written bool
}

func (a *attempt) emit(ctx context.Context, ev Event) {
	ev.Key = a.res.Key
	ev.StoreKey = a.res.StoreKey
	ev.AttemptID = a.res.AttemptID
	a.b.observer.Observe(ctx, ev)
}

// storeFailed reports err and, when configured, puts the cooldown TTL on an
// entry this attempt may have written.
func (a *attempt) storeFailed(ctx context.Context, op string, err error) error {
	a.emit(ctx, Event{Kind: EventStoreError, Op: op, Err: err})
	if a.written && a.cfg.CooldownOnStoreError {
		cctx := context.WithoutCancel(ctx)
		if cerr := a.b.store.Expire(cctx, a.res.StoreKey, a.cfg.ExpirationDelay); cerr != nil {
			a.emit(cctx, Event{Kind: EventStoreError, Op: "cooldown", Err: cerr})
		}
	}
	return err
}

func (a *attempt) run(ctx context.Context, work func(context.Context) error) error {
	st := a.b.store
	key := a.res.StoreKey

	// An entry without expiry is left by a holder that died between its
	// write and its expire; bound it so the key cannot stay locked forever.
	ttl, err := st.TTL(ctx, key)
	if err != nil {
		return a.storeFailed(ctx, "ttl", err)
	}
	if ttl.Status == store.TTLNoExpiry {
		if err := st.Expire(ctx, key, a.cfg.GuardTTL); err != nil {
			return a.storeFailed(ctx, "expire", err)
		}
		a.emit(ctx, Event{Kind: EventGuardApplied})
	}

	_, held, err := st.Get(ctx, key)
	if err != nil {
		return a.storeFailed(ctx, "get", err)
	}
	if held {
		a.res.Reason = ReasonAlreadyHeld
		a.emit(ctx, Event{Kind: EventAlreadyHeld})
		return nil
	}

	if err := a.b.sleep(ctx, a.desync()); err != nil {
		return err
	}

	var won bool
	if a.cfg.Mode == ModeAtomic {
		won, err = a.claimAtomic(ctx)
	} else {
		won, err = a.claim(ctx)
	}
	if err != nil || !won {
		return err
	}
	return a.execute(ctx, work)
}

func (a *attempt) desync() time.Duration {
	d := a.cfg.DesyncDelay
	if a.cfg.DesyncJitter > 0 {
		d += rand.N(a.cfg.DesyncJitter)
	}
	return d
}

// claim writes a fresh token, waits for concurrent candidates to write
// theirs and checks which token survived. The store serialises the writes,
// so after the same wait every candidate reads the last writer's token.
func (a *attempt) claim(ctx context.Context) (bool, error) {
	st := a.b.store
	key := a.res.StoreKey

	token, err := newToken()
	if err != nil {
		return false, err
	}
	a.written = true
	if err := st.Set(ctx, key, token); err != nil {
		return false, a.storeFailed(ctx, "set", err)
	}
	if err := st.Expire(ctx, key, a.cfg.candidateTTL()); err != nil {
		return false, a.storeFailed(ctx, "expire", err)
	}

	if err := a.b.sleep(ctx, a.cfg.SleepDelay); err != nil {
		return false, err
	}

	current, ok, err := st.Get(ctx, key)
	if err != nil {
		return false, a.storeFailed(ctx, "get", err)
	}
	if !ok || current != token {
		// The winner owns the entry from here on; never touch it.
		a.res.Reason = ReasonTokenDesynced
		a.emit(ctx, Event{Kind: EventTokenDesynced})
		return false, nil
	}
	return true, nil
}

// claimAtomic writes the token only if the key is still absent.
func (a *attempt) claimAtomic(ctx context.Context) (bool, error) {
	sa, ok := a.b.store.(store.SetIfAbsenter)
	if !ok {
		return false, rberrors.ErrAtomicUnsupported
	}
	token, err := newToken()
	if err != nil {
		return false, err
	}
	won, err := sa.SetIfAbsent(ctx, a.res.StoreKey, token, a.cfg.candidateTTL())
	if err != nil {
		a.written = true
		return false, a.storeFailed(ctx, "setnx", err)
	}
	if !won {
		a.res.Reason = ReasonAlreadyHeld
		a.emit(ctx, Event{Kind: EventAlreadyHeld})
		return false, nil
	}
	a.written = true
	return true, nil
}

// execute runs work as the elected caller. The entry lives Expire while
// work runs and ExpirationDelay after it returns.
func (a *attempt) execute(ctx context.Context, work func(context.Context) error) (err error) {
	st := a.b.store
	key := a.res.StoreKey

	if err := st.Expire(ctx, key, a.cfg.Expire); err != nil {
		return a.storeFailed(ctx, "expire", err)
	}
	a.res.Ran = true
	a.emit(ctx, Event{Kind: EventRunning})

	start := time.Now()
	returned := false
	defer func() {
		workErr := err
		if !returned {
			workErr = errWorkPanicked
		}
		cctx := context.WithoutCancel(ctx)
		if cerr := st.Expire(cctx, key, a.cfg.ExpirationDelay); cerr != nil {
			a.emit(cctx, Event{Kind: EventStoreError, Op: "expire", Err: cerr})
			err = stdErrors.Join(err, cerr)
		}
		a.emit(cctx, Event{Kind: EventRan, Duration: time.Since(start), Err: workErr})
	}()

	err = work(ctx)
	returned = true
	return err
}

func newToken() (string, error) {
	buf, err := guuid.GenerateRandomBytes(tokenBytes)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
