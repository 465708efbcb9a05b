// Command raceblock-sim simulates a fleet of instances firing the same cron
// job at the same instant and reports how many of them ran it per tick.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/joeyparis/race-block/v1/metrics"
	"github.com/joeyparis/race-block/v1/presets"
	"github.com/joeyparis/race-block/v1/raceblock"
	"github.com/joeyparis/race-block/v1/store"
)

func main() {
	instances := flag.Int("instances", 10, "Number of simulated instances")
	ticks := flag.Int("ticks", 3, "Number of cron ticks to simulate")
	key := flag.String("key", "sim-job", "Logical key of the simulated job")
	redisAddr := flag.String("redis-addr", "", "Redis address (defaults to RACE_BLOCK_REDIS_* variables)")
	sleepDelay := flag.Duration("sleep-delay", raceblock.DefaultSleepDelay, "Settling wait")
	expirationDelay := flag.Duration("expiration-delay", raceblock.DefaultExpirationDelay, "Cooldown after the job")
	desync := flag.Duration("desync", 0, "Upper bound of the random wait before the candidate write")
	atomicMode := flag.Bool("atomic", false, "Use SET NX instead of the timing based election")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	trace := flag.Bool("trace", false, "Print OpenTelemetry spans to stdout")
	debug := flag.Bool("debug", false, "Log every election decision")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, simOptions{
		instances:       *instances,
		ticks:           *ticks,
		key:             *key,
		redisAddr:       *redisAddr,
		sleepDelay:      *sleepDelay,
		expirationDelay: *expirationDelay,
		desync:          *desync,
		atomic:          *atomicMode,
		metricsAddr:     *metricsAddr,
		trace:           *trace,
		logger:          logger,
	}); err != nil {
		logger.Error("simulation failed", "error", err)
		os.Exit(1)
	}
}

type simOptions struct {
	instances       int
	ticks           int
	key             string
	redisAddr       string
	sleepDelay      time.Duration
	expirationDelay time.Duration
	desync          time.Duration
	atomic          bool
	metricsAddr     string
	trace           bool
	logger          *slog.Logger
}

func run(ctx context.Context, o simOptions) error {
	if o.instances <= 0 || o.ticks <= 0 {
		return fmt.Errorf("instances and ticks must be positive")
	}

	if o.trace {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return err
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
		defer func() { _ = tp.Shutdown(context.Background()) }()
		otel.SetTracerProvider(tp)
	}

	redisOpts, err := store.RedisOptionsFromEnv()
	if err != nil {
		return err
	}
	if o.redisAddr != "" {
		redisOpts.Addr = o.redisAddr
	}

	reg := metrics.NewRegistry()
	b, s := presets.NewRedisInstrumented(ctx, redisOpts, reg, raceblock.WithLogger(o.logger))
	defer s.Close()

	if o.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: o.metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				o.logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() { _ = srv.Shutdown(context.Background()) }()
		o.logger.Info("serving metrics", "addr", o.metricsAddr)
	}

	if err := b.Reset(ctx, o.key); err != nil {
		return fmt.Errorf("reset %s: %w", o.key, err)
	}

	callOpts := []raceblock.Option{
		raceblock.WithSleepDelay(o.sleepDelay),
		raceblock.WithExpirationDelay(o.expirationDelay),
		raceblock.WithRandomDesync(o.desync),
	}
	if o.atomic {
		callOpts = append(callOpts, raceblock.WithMode(raceblock.ModeAtomic))
	}

	for tick := 1; tick <= o.ticks; tick++ {
		runs, err := fire(ctx, b, o, callOpts)
		if err != nil {
			return err
		}
		level := slog.LevelInfo
		if runs != 1 {
			level = slog.LevelWarn
		}
		o.logger.Log(ctx, level, "tick finished", "tick", tick, "instances", o.instances, "runs", runs)

		// Wait out the cooldown so the next tick can elect again.
		select {
		case <-time.After(o.expirationDelay + time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// fire starts every instance at once and returns how many ran the job.
func fire(ctx context.Context, b *raceblock.Block, o simOptions, callOpts []raceblock.Option) (int32, error) {
	var runs atomic.Int32
	start := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < o.instances; i++ {
		instance := i
		g.Go(func() error {
			<-start
			_, err := b.Start(gctx, o.key, func(context.Context) error {
				runs.Add(1)
				o.logger.Debug("job executed", "instance", instance)
				return nil
			}, callOpts...)
			return err
		})
	}
	close(start)
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return runs.Load(), nil
}
