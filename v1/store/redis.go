package store

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	rberrors "github.com/joeyparis/race-block/v1/errors"
)

const defaultRedisOpTimeout = 5 * time.Second

// RedisStore implements Store using a Redis backend.
//
// A RedisStore created with Dial tolerates a server that is unreachable at
// startup: it stays in a not-connected state and pings again before each
// operation until the server answers.
type RedisStore struct {
	client  *redis.Client
	timeout time.Duration
	logger  *slog.Logger

	mu        sync.Mutex
	connected bool
}

// RedisOption configures a RedisStore.
type RedisOption func(*redisStoreOptions)

type redisStoreOptions struct {
	timeout time.Duration
	logger  *slog.Logger
}

// WithTimeout sets the operation timeout for Redis calls.
func WithTimeout(d time.Duration) RedisOption {
	return func(o *redisStoreOptions) {
		o.timeout = d
	}
}

// WithLogger sets the logger used to report connection failures.
func WithLogger(l *slog.Logger) RedisOption {
	return func(o *redisStoreOptions) {
		o.logger = l
	}
}

// NewRedisStore returns a new RedisStore using the provided Redis client.
// The client is assumed to be usable; no ping is performed.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	o := redisStoreOptions{timeout: defaultRedisOpTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &RedisStore{client: client, timeout: o.timeout, logger: o.logger, connected: true}
}

// Dial creates a client from opts and pings the server. A failed ping is
// logged and leaves the store not connected; it is reported by the next
// operation as ErrNotConnected instead of failing here.
func Dial(ctx context.Context, opts RedisOptions, storeOpts ...RedisOption) *RedisStore {
	s := NewRedisStore(redis.NewClient(opts.clientOptions()), storeOpts...)
	s.connected = false
	if err := s.ensureConnected(ctx); err != nil {
		s.logger.Warn("raceblock: redis connection failed", "addr", opts.address(), "error", err)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Connected reports whether the last connection attempt succeeded.
func (s *RedisStore) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) ensureConnected(ctx context.Context) error {
	if s.Connected() {
		return nil
	}
	// mu is not held while pinging: each caller waits at most its own timeout.
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.client.Ping(cctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", rberrors.ErrNotConnected, translate(err))
	}
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

// begin checks the caller context and the connection state and returns the
// per-operation context.
func (s *RedisStore) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, translate(err)
	}
	if err := s.ensureConnected(ctx); err != nil {
		return nil, nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	return cctx, cancel, nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case stdErrors.Is(err, context.DeadlineExceeded):
		return rberrors.ErrTimeout
	case stdErrors.Is(err, redis.ErrClosed):
		return rberrors.ErrConnectionClosed
	default:
		return err
	}
}

// Get implements Store.Get.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	cctx, cancel, err := s.begin(ctx)
	if err != nil {
		return "", false, err
	}
	defer cancel()
	v, err := s.client.Get(cctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, translate(err)
	}
	return v, true, nil
}

// Set implements Store.Set.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	cctx, cancel, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	return translate(s.client.Set(cctx, key, value, 0).Err())
}

// Del implements Store.Del.
func (s *RedisStore) Del(ctx context.Context, key string) error {
	cctx, cancel, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	return translate(s.client.Del(cctx, key).Err())
}

// Expire implements Store.Expire.
func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	cctx, cancel, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	if ttl <= 0 {
		return translate(s.client.Del(cctx, key).Err())
	}
	return translate(s.client.Expire(cctx, key, seconds(ttl)).Err())
}

// TTL implements Store.TTL.
func (s *RedisStore) TTL(ctx context.Context, key string) (TTL, error) {
	cctx, cancel, err := s.begin(ctx)
	if err != nil {
		return TTL{}, err
	}
	defer cancel()
	d, err := s.client.TTL(cctx, key).Result()
	if err != nil {
		return TTL{}, translate(err)
	}
	// TTL replies -2 for a missing key and -1 for a key without expiry.
	switch d {
	case -2:
		return TTL{Status: TTLAbsent}, nil
	case -1:
		return TTL{Status: TTLNoExpiry}, nil
	default:
		return TTL{Status: TTLExpiring, Remaining: d}, nil
	}
}

// SetIfAbsent implements SetIfAbsenter using SET NX.
func (s *RedisStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	cctx, cancel, err := s.begin(ctx)
	if err != nil {
		return false, err
	}
	defer cancel()
	ok, err := s.client.SetNX(cctx, key, value, seconds(ttl)).Result()
	if err != nil {
		return false, translate(err)
	}
	return ok, nil
}
