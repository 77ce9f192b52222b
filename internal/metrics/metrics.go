package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RefreshCycles counts completed refresh cycles
	RefreshCycles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "birdnest_refresh_cycles_total",
			Help: "Total number of completed refresh cycles",
		},
	)

	// RefreshDuration tracks how long a refresh cycle takes
	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "birdnest_refresh_duration_seconds",
			Help:    "Refresh cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// EmptyReports counts feed fetches that produced no drones
	EmptyReports = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "birdnest_empty_reports_total",
			Help: "Total number of empty or missing feed reports",
		},
	)

	// UpstreamRequests tracks upstream calls per operation and outcome
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birdnest_upstream_requests_total",
			Help: "Total number of upstream requests",
		},
		[]string{"operation", "outcome"},
	)

	// UpstreamLatency tracks upstream call latency
	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "birdnest_upstream_latency_seconds",
			Help:    "Upstream request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// BackoffDelay is the current retry delay per wrapped operation
	BackoffDelay = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "birdnest_backoff_delay_seconds",
			Help: "Current adaptive retry delay in seconds",
		},
		[]string{"operation"},
	)

	// Violations is the number of tracked violation records
	Violations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "birdnest_violations",
			Help: "Number of violation records currently tracked",
		},
	)

	// ViolationsPurged counts records removed after going quiet
	ViolationsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "birdnest_violations_purged_total",
			Help: "Total number of violation records purged after the TTL",
		},
	)

	// PilotLookups counts pilot enrichment attempts per outcome
	PilotLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birdnest_pilot_lookups_total",
			Help: "Total number of pilot lookups",
		},
		[]string{"outcome"},
	)

	// WatchdogRestarts counts runs started by the stall watchdog
	WatchdogRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "birdnest_watchdog_restarts_total",
			Help: "Total number of stalled runs replaced by the watchdog",
		},
	)

	// EventsDropped counts update events dropped for slow subscribers
	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "birdnest_events_dropped_total",
			Help: "Total number of update events dropped because a subscriber was full",
		},
	)

	// SinkWrites counts exported update events per sink and outcome
	SinkWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birdnest_sink_writes_total",
			Help: "Total number of update events written to export sinks",
		},
		[]string{"sink", "outcome"},
	)
)
