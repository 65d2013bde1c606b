package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Domain counters for the orchestration engine.
var (
	ExecutionsTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_executions_triggered_total",
			Help: "Executions created, labeled by trigger type",
		},
		[]string{"trigger_type"},
	)

	ExecutionsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_executions_finished_total",
			Help: "Executions that reached a terminal status",
		},
		[]string{"status"},
	)

	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_worker_events_total",
			Help: "Worker lifecycle events received, labeled by event type and outcome",
		},
		[]string{"event_type", "outcome"},
	)

	EvaluatorTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_cron_evaluations_total",
			Help: "Cron evaluator tick runs",
		},
	)

	EvaluatorFires = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_cron_fires_total",
			Help: "Jobs fired by the cron evaluator",
		},
	)

	ReconcilerSweeps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_reconciler_sweeps_total",
			Help: "Stale execution reconciler sweep runs",
		},
	)

	StaleExecutions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orchestrator_stale_executions",
			Help: "Executions found stale in the last reconciler sweep",
		},
	)
)
