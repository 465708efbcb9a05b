package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joeyparis/race-block/v1/raceblock"
)

var (
	// ElectionCounter counts finished elections by outcome: ran,
	// already_held or token_desynced.
	ElectionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "raceblock_elections_total",
		Help: "Total number of elections by outcome",
	}, []string{"outcome"})
	// GuardCounter counts entries found without expiry and bounded.
	GuardCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "raceblock_guard_applied_total",
		Help: "Total number of entries without expiry that received the guard TTL",
	})
	// StoreErrorCounter counts failed store operations.
	StoreErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "raceblock_store_errors_total",
		Help: "Total number of failed store operations",
	}, []string{"op"})
	// WorkFailureCounter counts elected work that returned an error or panicked.
	WorkFailureCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "raceblock_work_failures_total",
		Help: "Total number of failed work executions",
	})
	// RunningGauge reports the number of work executions in progress.
	RunningGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "raceblock_running",
		Help: "Current number of work executions in progress",
	})
	// WorkDuration observes the duration of elected work.
	WorkDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "raceblock_work_duration_seconds",
		Help:    "Duration of elected work",
		Buckets: prometheus.DefBuckets,
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterCoreMetrics registers race block metrics on the provided registry.
func RegisterCoreMetrics(reg prometheus.Registerer) {
	reg.MustRegister(ElectionCounter, GuardCounter, StoreErrorCounter, WorkFailureCounter, RunningGauge, WorkDuration)
}

type observer struct{}

// Observer returns a raceblock.Observer feeding the core metrics.
func Observer() raceblock.Observer {
	return observer{}
}

func (observer) Observe(_ context.Context, ev raceblock.Event) {
	switch ev.Kind {
	case raceblock.EventGuardApplied:
		GuardCounter.Inc()
	case raceblock.EventAlreadyHeld:
		ElectionCounter.WithLabelValues(raceblock.ReasonAlreadyHeld.String()).Inc()
	case raceblock.EventTokenDesynced:
		ElectionCounter.WithLabelValues(raceblock.ReasonTokenDesynced.String()).Inc()
	case raceblock.EventRunning:
		RunningGauge.Inc()
	case raceblock.EventRan:
		RunningGauge.Dec()
		ElectionCounter.WithLabelValues("ran").Inc()
		WorkDuration.Observe(ev.Duration.Seconds())
		if ev.Err != nil {
			WorkFailureCounter.Inc()
		}
	case raceblock.EventStoreError:
		StoreErrorCounter.WithLabelValues(ev.Op).Inc()
	}
}
