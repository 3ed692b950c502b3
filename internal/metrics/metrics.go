// Package metrics exposes the Prometheus counters, histograms, and gauges
// every pipeline component increments as events, incidents, decisions,
// approvals, and actions flow through. Grounded on
// kubilitics-ai/internal/metrics/metrics.go's promauto package-level
// variable pattern, relabeled for this tree's own stages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Guardian metrics
	EventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orion_guardian_events_received_total",
			Help: "Total number of events received by Guardian",
		},
		[]string{"event_type", "severity"},
	)

	EventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orion_guardian_events_dropped_total",
			Help: "Total number of events dropped (buffer full, validation failure)",
		},
		[]string{"reason"},
	)

	IncidentsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orion_guardian_incidents_created_total",
			Help: "Total number of incidents correlated and published",
		},
		[]string{"incident_type", "severity"},
	)

	IncidentsDeduplicatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orion_guardian_incidents_deduplicated_total",
			Help: "Total number of would-be incidents suppressed by fingerprint dedup",
		},
		[]string{"incident_type"},
	)

	CorrelationBufferSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orion_guardian_correlation_buffer_size",
			Help: "Current number of events held in the correlation buffer",
		},
	)

	// Brain / decision metrics
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orion_brain_decisions_total",
			Help: "Total number of decisions made, by decision type and autonomy level",
		},
		[]string{"decision_type", "autonomy_level", "classification"},
	)

	DecisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orion_brain_decision_duration_seconds",
			Help:    "Time spent reasoning over one incident, including any Council validation",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		},
		[]string{"decision_type"},
	)

	CouncilValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orion_brain_council_validations_total",
			Help: "Total number of Council validations, by verdict",
		},
		[]string{"verdict"},
	)

	CouncilBlockedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orion_brain_council_blocked_total",
			Help: "Total number of decisions the Council downgraded to NO_ACTION",
		},
		[]string{"decision_type"},
	)

	// Cooldown / circuit breaker metrics
	CooldownBlockedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orion_cooldown_blocked_total",
			Help: "Total number of actions blocked by an active cooldown",
		},
		[]string{"action_type"},
	)

	CircuitBreakerTripsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orion_circuit_breaker_trips_total",
			Help: "Total number of times a circuit breaker opened",
		},
		[]string{"action_type"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orion_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=open)",
		},
		[]string{"action_type"},
	)

	// Approval metrics
	ApprovalRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orion_approval_requests_total",
			Help: "Total number of approval requests issued",
		},
		[]string{"action_type", "risk_level"},
	)

	ApprovalDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orion_approval_decisions_total",
			Help: "Total number of approval decisions recorded, by verdict",
		},
		[]string{"verdict", "channel"},
	)

	ApprovalLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orion_approval_latency_seconds",
			Help:    "Time between an approval request being issued and settled",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34min
		},
		[]string{"verdict"},
	)

	ApprovalExpiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orion_approval_expired_total",
			Help: "Total number of approval requests that expired before settlement",
		},
		[]string{"action_type"},
	)

	// Commander / execution metrics
	ActionsExecutedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orion_commander_actions_executed_total",
			Help: "Total number of actions executed, by action type and outcome status",
		},
		[]string{"action_type", "status"},
	)

	ActionExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orion_commander_action_duration_seconds",
			Help:    "Action execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"action_type"},
	)

	ActionsRolledBackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orion_commander_actions_rolled_back_total",
			Help: "Total number of actions whose rollback ran after a failed execution",
		},
		[]string{"action_type"},
	)

	// Host metrics watcher
	HostMetricEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orion_hostmetrics_events_total",
			Help: "Total number of host resource events published, by severity",
		},
		[]string{"severity"},
	)

	HostCPUPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orion_hostmetrics_cpu_percent",
			Help: "Most recently observed host CPU utilization percentage",
		},
	)

	HostMemPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orion_hostmetrics_mem_percent",
			Help: "Most recently observed host memory utilization percentage",
		},
	)

	HostDiskPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orion_hostmetrics_disk_percent",
			Help: "Most recently observed host disk utilization percentage",
		},
	)

	// Audit store
	AuditAppendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orion_audit_appends_total",
			Help: "Total number of records appended to the audit store, by kind",
		},
		[]string{"kind"},
	)
)
