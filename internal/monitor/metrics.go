package monitor

import (
	"context"
	"database/sql"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the marketplace collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// fulfillment
	orderPlacedTotal       *prometheus.CounterVec
	orderTransitionTotal   *prometheus.CounterVec
	orderTransitionRetries prometheus.Counter

	// vendors
	vendorDecisionTotal *prometheus.CounterVec
	planChangeTotal     *prometheus.CounterVec
	badgeAwardTotal     *prometheus.CounterVec
	recomputeDuration   *prometheus.HistogramVec

	// messaging and support
	messageTotal      *prometheus.CounterVec
	ticketTotal       *prometheus.CounterVec
	notificationTotal *prometheus.CounterVec

	// http
	httpRequestTotal    *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// resources
	dbConnectionsOpen  prometheus.Gauge
	dbConnectionsInUse prometheus.Gauge
	dbConnectionsIdle  prometheus.Gauge
	goroutineCount     prometheus.Gauge
	memoryUsage        prometheus.Gauge
}

// NewMetrics registers the collectors on a fresh registry
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		orderPlacedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_placed_total",
			Help:      "Orders placed at checkout",
		}, []string{"result"}),
		orderTransitionTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transition_total",
			Help:      "Fulfillment transition requests by target status, actor role and result",
		}, []string{"to", "actor", "result"}),
		orderTransitionRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transition_retries_total",
			Help:      "Transitions retried after an optimistic conflict",
		}),

		vendorDecisionTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vendor_decision_total",
			Help:      "Vendor applications, approvals and rejections",
		}, []string{"decision"}),
		planChangeTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vendor_plan_change_total",
			Help:      "Vendor plan changes by source and new plan",
		}, []string{"source", "plan"}),
		badgeAwardTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vendor_badge_award_total",
			Help:      "Badges newly awarded",
		}, []string{"badge"}),
		recomputeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vendor_recompute_duration_seconds",
			Help:      "Duration of vendor aggregate recomputation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),

		messageTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "message_total",
			Help:      "Message operations by kind and result",
		}, []string{"op", "result"}),
		ticketTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "support_ticket_total",
			Help:      "Support tickets created by channel and routing outcome",
		}, []string{"channel", "outcome"}),
		notificationTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_total",
			Help:      "Notification deliveries by kind and result",
		}, []string{"kind", "result"}),

		httpRequestTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "path"}),

		dbConnectionsOpen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Open database connections",
		}),
		dbConnectionsInUse: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_in_use",
			Help:      "Database connections in use",
		}),
		dbConnectionsIdle: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Idle database connections",
		}),
		goroutineCount: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goroutines",
			Help:      "Number of goroutines",
		}),
		memoryUsage: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_alloc_bytes",
			Help:      "Bytes of allocated heap objects",
		}),
	}
}

// Registry returns the registry backing the collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordOrderPlaced counts a checkout attempt
func (m *Metrics) RecordOrderPlaced(err error) {
	if m == nil {
		return
	}
	m.orderPlacedTotal.WithLabelValues(result(err)).Inc()
}

// RecordTransition counts a transition request
func (m *Metrics) RecordTransition(to, actor string, err error) {
	if m == nil {
		return
	}
	m.orderTransitionTotal.WithLabelValues(to, actor, result(err)).Inc()
}

// RecordTransitionRetry counts an optimistic retry
func (m *Metrics) RecordTransitionRetry() {
	if m == nil {
		return
	}
	m.orderTransitionRetries.Inc()
}

// RecordVendorDecision counts apply, approve and reject
func (m *Metrics) RecordVendorDecision(decision string) {
	if m == nil {
		return
	}
	m.vendorDecisionTotal.WithLabelValues(decision).Inc()
}

// RecordPlanChange counts a plan change
func (m *Metrics) RecordPlanChange(source, plan string) {
	if m == nil {
		return
	}
	m.planChangeTotal.WithLabelValues(source, plan).Inc()
}

// RecordBadgeAward counts a newly awarded badge
func (m *Metrics) RecordBadgeAward(badge string) {
	if m == nil {
		return
	}
	m.badgeAwardTotal.WithLabelValues(badge).Inc()
}

// RecordRecompute observes one vendor recomputation
func (m *Metrics) RecordRecompute(duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.recomputeDuration.WithLabelValues(result(err)).Observe(duration.Seconds())
}

// RecordMessage counts a message operation (append, edit, delete)
func (m *Metrics) RecordMessage(op string, err error) {
	if m == nil {
		return
	}
	m.messageTotal.WithLabelValues(op, result(err)).Inc()
}

// RecordTicket counts a created ticket and how it was routed
func (m *Metrics) RecordTicket(channel, outcome string) {
	if m == nil {
		return
	}
	m.ticketTotal.WithLabelValues(channel, outcome).Inc()
}

// RecordNotification counts a notification delivery. outcome is ok, error,
// or skipped when the notifier's breaker is open.
func (m *Metrics) RecordNotification(kind, outcome string) {
	if m == nil {
		return
	}
	m.notificationTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordHTTPRequest observes a served request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateDBStats copies connection pool stats
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.dbConnectionsOpen.Set(float64(stats.OpenConnections))
	m.dbConnectionsInUse.Set(float64(stats.InUse))
	m.dbConnectionsIdle.Set(float64(stats.Idle))
}

// UpdateSystemMetrics samples goroutines and heap usage
func (m *Metrics) UpdateSystemMetrics() {
	if m == nil {
		return
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.memoryUsage.Set(float64(ms.Alloc))
	m.goroutineCount.Set(float64(runtime.NumGoroutine()))
}

// StartSystemMetricsCollection samples resources every interval until ctx is done.
// dbStats may be nil.
func (m *Metrics) StartSystemMetricsCollection(ctx context.Context, interval time.Duration, dbStats func() sql.DBStats) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.UpdateSystemMetrics()
			if dbStats != nil {
				m.UpdateDBStats(dbStats())
			}
		}
	}
}
