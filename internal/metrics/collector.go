// Package metrics collects Prometheus metrics for the dialogue engine:
// turn outcomes, handoffs, routing, compaction, store operations, and the
// HTTP surface.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector registers and updates all engine metrics.
type Collector struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	turnsTotal        *prometheus.CounterVec
	turnDuration      *prometheus.HistogramVec
	handoffsTotal     *prometheus.CounterVec
	routingTotal      *prometheus.CounterVec
	compactionsTotal  prometheus.Counter
	compactedMessages prometheus.Counter

	storeOpsTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers the metric families on reg. Pass a fresh registry
// in tests; nil falls back to the default registerer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	return &Collector{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		turnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_total",
				Help:      "Total number of dialog turns by outcome",
			},
			[]string{"status"},
		),
		turnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "turn_duration_seconds",
				Help:      "Turn processing duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"handler"},
		),
		handoffsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handoffs_total",
				Help:      "Total number of resolved handoffs by reason",
			},
			[]string{"reason"},
		),
		routingTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "routing_total",
				Help:      "Total number of routed turns by detected intent",
			},
			[]string{"intent"},
		),
		compactionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compactions_total",
				Help:      "Total number of context window compactions",
			},
		),
		compactedMessages: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compacted_messages_total",
				Help:      "Total number of messages folded into summaries",
			},
		),
		storeOpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "Total number of dialog store operations",
			},
			[]string{"op", "status"},
		),
		logger: logger.With(zap.String("component", "metrics")),
	}
}

// ObserveHTTPRequest records one served request.
func (c *Collector) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveTurn records one processed turn. handler may be empty on failure.
func (c *Collector) ObserveTurn(handler string, duration time.Duration, err error) {
	status := "resolved"
	if err != nil {
		status = "failed"
	}
	c.turnsTotal.WithLabelValues(status).Inc()
	if handler != "" {
		c.turnDuration.WithLabelValues(handler).Observe(duration.Seconds())
	}
}

// RecordHandoff records one completed ownership transfer.
func (c *Collector) RecordHandoff(reason string) {
	c.handoffsTotal.WithLabelValues(reason).Inc()
}

// RecordRouting records one router invocation by detected intent.
func (c *Collector) RecordRouting(intent string) {
	c.routingTotal.WithLabelValues(intent).Inc()
}

// RecordCompaction records one window compaction folding dropped messages.
func (c *Collector) RecordCompaction(dropped int) {
	c.compactionsTotal.Inc()
	c.compactedMessages.Add(float64(dropped))
}

// RecordStoreOp records one dialog store operation outcome.
func (c *Collector) RecordStoreOp(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.storeOpsTotal.WithLabelValues(op, status).Inc()
}
