package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TriggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sherox_triggers_total",
		Help: "Emergency triggers, labelled by source and outcome (sent, buffered, lost).",
	}, []string{"source", "outcome"})

	TriggersEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sherox_triggers_enqueued_total",
		Help: "Total number of async triggers placed on the worker queue.",
	})

	TriggersDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sherox_triggers_dropped_total",
		Help: "Total number of async triggers rejected due to a full queue.",
	})

	EventsBuffered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sherox_events_buffered_total",
		Help: "Total number of events written to the offline buffer.",
	})

	PendingEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sherox_pending_events",
		Help: "Events awaiting delivery as of the last buffer or drain.",
	})

	DrainRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sherox_drain_runs_total",
		Help: "Drain runs, labelled by result (completed, partial, skipped).",
	}, []string{"result"})

	DrainItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sherox_drain_items_total",
		Help: "Buffered events processed by drains, labelled by result (sent, stale, failed).",
	}, []string{"result"})

	DrainDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sherox_drain_duration_ms",
		Help:    "Drain run latency in milliseconds.",
		Buckets: []float64{5, 25, 100, 250, 500, 1000, 2500, 5000, 15000, 60000},
	})

	TransmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sherox_transmissions_total",
		Help: "Send attempts per transmitter, labelled by status.",
	}, []string{"transmitter", "status"})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sherox_queue_utilization_ratio",
		Help: "Current trigger queue utilization (0–1).",
	})
)
