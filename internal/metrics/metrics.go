package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	sessionStateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hermod",
			Subsystem: "session",
			Name:      "state_transitions_total",
			Help:      "Number of connection state transitions.",
		}, []string{"from", "to"},
	)
	sessionCurrentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "hermod",
			Subsystem: "session",
			Name:      "current_state",
			Help:      "Current connection state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
	reconnectAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hermod",
			Subsystem: "session",
			Name:      "reconnect_attempts_total",
			Help:      "Number of automatic reconnection attempts scheduled.",
		},
	)
	disconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hermod",
			Subsystem: "session",
			Name:      "disconnects_total",
			Help:      "Number of observed disconnects by classified cause.",
		}, []string{"cause"},
	)
	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hermod",
			Subsystem: "webhook",
			Name:      "deliveries_total",
			Help:      "Number of webhook delivery attempts by result.",
		}, []string{"result"},
	)
	deliveryRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hermod",
			Subsystem: "webhook",
			Name:      "delivery_retries_total",
			Help:      "Number of delivery tasks re-enqueued for retry.",
		},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hermod",
			Subsystem: "webhook",
			Name:      "queue_depth",
			Help:      "Current number of pending delivery tasks.",
		},
	)
	breakerOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hermod",
			Subsystem: "webhook",
			Name:      "breaker_open",
			Help:      "Whether the delivery circuit breaker is open (1) or closed (0).",
		},
	)
	deliveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hermod",
			Subsystem: "webhook",
			Name:      "delivery_duration_seconds",
			Help:      "Observed wall time of webhook HTTP delivery attempts.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		sessionStateTransitions, sessionCurrentState, reconnectAttempts,
		disconnects, deliveries, deliveryRetries, queueDepth, breakerOpen,
		deliveryDuration,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func RecordStateTransition(from, to string) {
	if regOK.Load() {
		sessionStateTransitions.WithLabelValues(from, to).Inc()
	}
}

func SetCurrentState(state string, active bool) {
	if regOK.Load() {
		v := 0.0
		if active {
			v = 1.0
		}
		sessionCurrentState.WithLabelValues(state).Set(v)
	}
}

func IncReconnectAttempt() {
	if regOK.Load() {
		reconnectAttempts.Inc()
	}
}

func IncDisconnect(cause string) {
	if regOK.Load() {
		disconnects.WithLabelValues(cause).Inc()
	}
}

func IncDelivery(result string) {
	if regOK.Load() {
		deliveries.WithLabelValues(result).Inc()
	}
}

func IncDeliveryRetry() {
	if regOK.Load() {
		deliveryRetries.Inc()
	}
}

func SetQueueDepth(n int) {
	if regOK.Load() {
		queueDepth.Set(float64(n))
	}
}

func SetBreakerOpen(open bool) {
	if regOK.Load() {
		v := 0.0
		if open {
			v = 1.0
		}
		breakerOpen.Set(v)
	}
}

func ObserveDeliveryDuration(seconds float64) {
	if regOK.Load() {
		deliveryDuration.Observe(seconds)
	}
}
