package presets

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joeyparis/race-block/v1/metrics"
	"github.com/joeyparis/race-block/v1/raceblock"
	"github.com/joeyparis/race-block/v1/store"
)

// NewRedis creates a Block coordinating through the Redis server described
// by opts. An unreachable server does not fail construction: the first
// election reports the connection error instead.
// The returned store must be closed by the caller.
func NewRedis(ctx context.Context, opts store.RedisOptions, blockOpts ...raceblock.BlockOption) (*raceblock.Block, *store.RedisStore) {
	s := store.Dial(ctx, opts)
	return raceblock.New(s, blockOpts...), s
}

// NewRedisFromEnv is NewRedis with the connection read from the
// RACE_BLOCK_REDIS_* environment variables.
func NewRedisFromEnv(ctx context.Context, blockOpts ...raceblock.BlockOption) (*raceblock.Block, *store.RedisStore, error) {
	opts, err := store.RedisOptionsFromEnv()
	if err != nil {
		return nil, nil, err
	}
	b, s := NewRedis(ctx, opts, blockOpts...)
	return b, s, nil
}

// NewRedisInstrumented is NewRedis with Prometheus metrics registered on reg
// and OpenTelemetry tracing enabled.
func NewRedisInstrumented(ctx context.Context, opts store.RedisOptions, reg prometheus.Registerer, blockOpts ...raceblock.BlockOption) (*raceblock.Block, *store.RedisStore) {
	metrics.RegisterCoreMetrics(reg)
	blockOpts = append([]raceblock.BlockOption{
		raceblock.WithObserver(metrics.Observer()),
		raceblock.WithTracing(),
	}, blockOpts...)
	return NewRedis(ctx, opts, blockOpts...)
}

// NewInMemoryStandalone creates a Block coordinating the goroutines of this
// process only, with no external dependencies.
func NewInMemoryStandalone(blockOpts ...raceblock.BlockOption) *raceblock.Block {
	return raceblock.New(store.NewMemoryStore(), blockOpts...)
}
