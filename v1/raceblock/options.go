package raceblock

import (
	"log/slog"
	"time"
)

// Option overrides the configuration of a single Start call.
type Option func(*Config)

// WithExpire overrides Config.Expire.
func WithExpire(d time.Duration) Option {
	return func(c *Config) { c.Expire = d }
}

// WithExpirationDelay overrides Config.ExpirationDelay.
func WithExpirationDelay(d time.Duration) Option {
	return func(c *Config) { c.ExpirationDelay = d }
}

// WithSleepDelay overrides Config.SleepDelay.
func WithSleepDelay(d time.Duration) Option {
	return func(c *Config) { c.SleepDelay = d }
}

// WithDesync waits d before writing the candidate token.
func WithDesync(d time.Duration) Option {
	return func(c *Config) { c.DesyncDelay = d }
}

// WithRandomDesync waits a random duration in [0, limit) before writing the
// candidate token, on top of any fixed desync delay.
func WithRandomDesync(limit time.Duration) Option {
	return func(c *Config) { c.DesyncJitter = limit }
}

// WithMode overrides Config.Mode.
func WithMode(m Mode) Option {
	return func(c *Config) { c.Mode = m }
}

// BlockOption configures a Block.
type BlockOption func(*Block)

// WithSettings shares s with the Block. Updates to s apply to every later
// election of every Block holding it.
func WithSettings(s *Settings) BlockOption {
	return func(b *Block) { b.settings = s }
}

// WithConfig gives the Block private settings initialised with cfg.
func WithConfig(cfg Config) BlockOption {
	return func(b *Block) { b.settings = NewSettings(cfg) }
}

// WithLogger sets the logger receiving election decisions.
func WithLogger(l *slog.Logger) BlockOption {
	return func(b *Block) { b.logger = l }
}

// WithObserver adds an observer notified of every election event.
func WithObserver(o Observer) BlockOption {
	return func(b *Block) { b.observers = append(b.observers, o) }
}

// WithTracing enables OpenTelemetry spans around elections.
func WithTracing() BlockOption {
	return func(b *Block) { b.traceEnabled = true }
}
