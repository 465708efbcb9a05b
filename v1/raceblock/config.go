package raceblock

import (
	"fmt"
	"sync"
	"time"

	rberrors "github.com/joeyparis/race-block/v1/errors"
)

// Mode selects how a candidate claims the store key.
type Mode int

const (
	// ModeTiming writes a token, sleeps SleepDelay and keeps the election only
	// if the token survived. Concurrent candidates resolve to the last writer.
	ModeTiming Mode = iota
	// ModeAtomic claims the key with a single set-if-absent command and skips
	// the settling wait. The store must implement store.SetIfAbsenter.
	ModeAtomic
)

func (m Mode) String() string {
	switch m {
	case ModeTiming:
		return "timing"
	case ModeAtomic:
		return "atomic"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Default values used by DefaultConfig.
const (
	DefaultExpire          = 60 * time.Second
	DefaultExpirationDelay = 3 * time.Second
	DefaultSleepDelay      = 500 * time.Millisecond
	DefaultGuardTTL        = 10 * time.Second
	DefaultSettleMargin    = 15 * time.Second
)

// Config holds the tunables of an election.
type Config struct {
	// Expire is how long the entry lives once the work starts.
	Expire time.Duration
	// ExpirationDelay is the cooldown applied after the work returns. New
	// elections for the key are refused until it elapses. Zero removes the
	// entry as soon as the work is done.
	ExpirationDelay time.Duration
	// SleepDelay is the settling wait between the candidate write and the
	// ownership check.
	SleepDelay time.Duration
	// DesyncDelay is waited before the candidate write.
	DesyncDelay time.Duration
	// DesyncJitter adds a uniformly random wait in [0, DesyncJitter) on top of
	// DesyncDelay.
	DesyncJitter time.Duration
	// GuardTTL is forced on an entry found without any expiry.
	GuardTTL time.Duration
	// SettleMargin is added to SleepDelay to form the TTL of a candidate
	// token, so it cannot expire during the settling wait.
	SettleMargin time.Duration
	Mode         Mode
	// CooldownOnStoreError applies the ExpirationDelay TTL on a best effort
	// basis when a store call fails after the candidate token was written.
	CooldownOnStoreError bool
}

// DefaultConfig returns the default election configuration.
func DefaultConfig() Config {
	return Config{
		Expire:          DefaultExpire,
		ExpirationDelay: DefaultExpirationDelay,
		SleepDelay:      DefaultSleepDelay,
		GuardTTL:        DefaultGuardTTL,
		SettleMargin:    DefaultSettleMargin,
		Mode:            ModeTiming,
	}
}

// Validate reports whether c can drive an election.
func (c Config) Validate() error {
	switch {
	case c.Expire <= 0:
		return fmt.Errorf("%w: expire must be positive, got %v", rberrors.ErrInvalidConfig, c.Expire)
	case c.ExpirationDelay < 0:
		return fmt.Errorf("%w: expiration delay must not be negative, got %v", rberrors.ErrInvalidConfig, c.ExpirationDelay)
	case c.SleepDelay < 0:
		return fmt.Errorf("%w: sleep delay must not be negative, got %v", rberrors.ErrInvalidConfig, c.SleepDelay)
	case c.DesyncDelay < 0 || c.DesyncJitter < 0:
		return fmt.Errorf("%w: desync delays must not be negative", rberrors.ErrInvalidConfig)
	case c.GuardTTL <= 0:
		return fmt.Errorf("%w: guard ttl must be positive, got %v", rberrors.ErrInvalidConfig, c.GuardTTL)
	case c.SettleMargin < 0:
		return fmt.Errorf("%w: settle margin must not be negative, got %v", rberrors.ErrInvalidConfig, c.SettleMargin)
	case c.Mode != ModeTiming && c.Mode != ModeAtomic:
		return fmt.Errorf("%w: unknown mode %v", rberrors.ErrInvalidConfig, c.Mode)
	}
	return nil
}

// candidateTTL is the TTL of a freshly written token, rounded up to whole
// seconds so it never expires during the settling wait.
func (c Config) candidateTTL() time.Duration {
	d := c.SleepDelay + c.SettleMargin
	if r := d % time.Second; r != 0 {
		d += time.Second - r
	}
	if d < time.Second {
		d = time.Second
	}
	return d
}

// Settings is a Config shared by every Block holding it. Updates are seen by
// elections started afterwards; running elections keep their snapshot.
type Settings struct {
	mu  sync.RWMutex
	cfg Config
}

// NewSettings returns Settings initialised with cfg.
func NewSettings(cfg Config) *Settings {
	return &Settings{cfg: cfg}
}

// Get returns a snapshot of the current configuration.
func (s *Settings) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Update applies fn to a copy of the configuration and stores it if it is
// valid. An invalid result leaves the settings untouched.
func (s *Settings) Update(fn func(*Config)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.cfg
	fn(&cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.cfg = cfg
	return nil
}

// Reset restores DefaultConfig.
func (s *Settings) Reset() {
	s.mu.Lock()
	s.cfg = DefaultConfig()
	s.mu.Unlock()
}
