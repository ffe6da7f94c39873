package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the sync core
type Metrics struct {
	// Subscription metrics
	SubscriptionOpensTotal  *prometheus.CounterVec
	SubscriptionEventsTotal *prometheus.CounterVec
	ActiveSubscriptions     prometheus.Gauge

	// Cache metrics
	CacheResyncsTotal *prometheus.CounterVec

	// Mutation metrics
	OptimisticMutationsTotal *prometheus.CounterVec

	// Content gate metrics
	ScanVerdictsTotal *prometheus.CounterVec

	// Realtime transport metrics
	RealtimeReconnectsTotal prometheus.Counter
	RealtimeDroppedTotal    *prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers all Prometheus metrics
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			SubscriptionOpensTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "daredrop_subscription_opens_total",
					Help: "Subscription open attempts by table and result",
				},
				[]string{"table", "result"},
			),
			SubscriptionEventsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "daredrop_subscription_events_total",
					Help: "Change events received by table and outcome (applied, stale, dropped)",
				},
				[]string{"table", "outcome"},
			),
			ActiveSubscriptions: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "daredrop_active_subscriptions",
					Help: "Currently open scoped subscriptions",
				},
			),
			CacheResyncsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "daredrop_cache_resyncs_total",
					Help: "Authoritative bulk reloads triggered by resync signals",
				},
				[]string{"cache"},
			),
			OptimisticMutationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "daredrop_optimistic_mutations_total",
					Help: "Optimistic mutations by kind and result",
				},
				[]string{"kind", "result"},
			),
			ScanVerdictsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "daredrop_scan_verdicts_total",
					Help: "Content gate outcomes by state",
				},
				[]string{"state"},
			),
			RealtimeReconnectsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "daredrop_realtime_reconnects_total",
					Help: "Realtime websocket reconnects",
				},
			),
			RealtimeDroppedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "daredrop_realtime_dropped_total",
					Help: "Change frames dropped because a channel buffer was full",
				},
				[]string{"topic"},
			),
		}
	})
	return instance
}

// Get returns the metrics instance, initializing it on first use
func Get() *Metrics {
	return Initialize()
}

// SubscriptionOpened records an open attempt
func SubscriptionOpened(table, result string) {
	Get().SubscriptionOpensTotal.WithLabelValues(table, result).Inc()
}

// SubscriptionEvent records the outcome of one change event
func SubscriptionEvent(table, outcome string) {
	Get().SubscriptionEventsTotal.WithLabelValues(table, outcome).Inc()
}

// CacheResynced records a bulk reload
func CacheResynced(cache string) {
	Get().CacheResyncsTotal.WithLabelValues(cache).Inc()
}

// Mutation records the outcome of an optimistic mutation
func Mutation(kind, result string) {
	Get().OptimisticMutationsTotal.WithLabelValues(kind, result).Inc()
}

// ScanVerdict records a content gate outcome
func ScanVerdict(state string) {
	Get().ScanVerdictsTotal.WithLabelValues(state).Inc()
}
