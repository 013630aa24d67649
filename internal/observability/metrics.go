package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CyclesTotal         = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_pooling", Name: "cycles_total", Help: "Total matching cycles run"})
	CyclesSkipped       = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_pooling", Name: "cycles_skipped_total", Help: "Ticks dropped because a cycle was still running"})
	CycleDuration       = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "ride_pooling", Name: "cycle_duration_seconds", Help: "Matching cycle duration"})
	PoolsCreated        = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_pooling", Name: "pools_created_total", Help: "Pools committed"})
	PoolsCompleted      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_pooling", Name: "pools_completed_total", Help: "Pools completed"})
	RequestsAssigned    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_pooling", Name: "requests_assigned_total", Help: "Requests transitioned to assigned"})
	RequestsCancelled   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_pooling", Name: "requests_cancelled_total", Help: "Requests cancelled while pending"})
	NotifyFailures      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_pooling", Name: "notify_failures_total", Help: "Rider notifications that failed to deliver"})
	InvariantViolations = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_pooling", Name: "invariant_violations_total", Help: "Pool proposals rejected for violating capacity invariants"})
	QueueDepth          = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_pooling", Name: "queue_depth", Help: "Pending requests waiting in the queue"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_pooling", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_pooling",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
