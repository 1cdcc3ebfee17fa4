package metrics

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/fadedpez/royalcharge/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const namespace = "royalcharge"

// Metrics holds the Prometheus collectors for the storefront. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	TransactionCounter  *prometheus.CounterVec
	TransactionDuration *prometheus.HistogramVec
	BalanceMoved        *prometheus.CounterVec
	RequestCounter      *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	SyncSubscribers     *prometheus.GaugeVec
	DBConnPoolStats     *prometheus.GaugeVec
	ArchiveRuns         *prometheus.CounterVec
}

// New creates the collectors on a fresh registry
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		TransactionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "transactions_total",
				Help:      "Ledger operations by outcome code",
			},
			[]string{"operation", "code"},
		),
		TransactionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "transaction_duration_seconds",
				Help:      "Ledger operation duration in seconds, retries included",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		BalanceMoved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "balance_moved_usd_total",
				Help:      "USD debited from or credited to wallets",
			},
			[]string{"direction"},
		),
		RequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		SyncSubscribers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "livesync",
				Name:      "subscribers",
				Help:      "Open live sync subscriptions by topic",
			},
			[]string{"topic"},
		),
		DBConnPoolStats: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "db",
				Name:      "connection_pool",
				Help:      "Database connection pool statistics",
			},
			[]string{"stat"},
		),
		ArchiveRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "archive",
				Name:      "reindex_runs_total",
				Help:      "Order archive reindex runs by result",
			},
			[]string{"result"},
		),
	}
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTransaction records the outcome and duration of a ledger operation
func (m *Metrics) ObserveTransaction(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	code := "OK"
	if err != nil {
		code = string(types.CodeOf(err))
	}
	m.TransactionCounter.WithLabelValues(operation, code).Inc()
	m.TransactionDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveBalanceDelta records a committed balance change
func (m *Metrics) ObserveBalanceDelta(delta decimal.Decimal) {
	if m == nil || delta.IsZero() {
		return
	}
	direction := "credit"
	if delta.IsNegative() {
		direction = "debit"
	}
	amount, _ := delta.Abs().Float64()
	m.BalanceMoved.WithLabelValues(direction).Add(amount)
}

// ObserveRequest records one served HTTP request
func (m *Metrics) ObserveRequest(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestCounter.WithLabelValues(route, http.StatusText(status)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// SubscriberAdded increments the live sync gauge for topic
func (m *Metrics) SubscriberAdded(topic string) {
	if m == nil {
		return
	}
	m.SyncSubscribers.WithLabelValues(topic).Inc()
}

// SubscriberRemoved decrements the live sync gauge for topic
func (m *Metrics) SubscriberRemoved(topic string) {
	if m == nil {
		return
	}
	m.SyncSubscribers.WithLabelValues(topic).Dec()
}

// ObserveArchiveRun counts a reindex run
func (m *Metrics) ObserveArchiveRun(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ArchiveRuns.WithLabelValues(result).Inc()
}

// RecordDBPoolStats records database connection pool statistics
func (m *Metrics) RecordDBPoolStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnPoolStats.WithLabelValues("open").Set(float64(stats.OpenConnections))
	m.DBConnPoolStats.WithLabelValues("in_use").Set(float64(stats.InUse))
	m.DBConnPoolStats.WithLabelValues("idle").Set(float64(stats.Idle))
	m.DBConnPoolStats.WithLabelValues("wait_count").Set(float64(stats.WaitCount))
	m.DBConnPoolStats.WithLabelValues("wait_duration_ms").Set(float64(stats.WaitDuration.Milliseconds()))
}
