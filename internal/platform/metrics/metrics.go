package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the onboarding core.
type Metrics struct {
	TransitionsTotal      *prometheus.CounterVec
	OverridesTotal        prometheus.Counter
	SessionsLockedTotal   prometheus.Counter
	ResponseLimitRejects  prometheus.Counter
	ChecklistCompletions  prometheus.Counter
	ChecklistInvalidation prometheus.Counter
	AuditEntriesTotal     *prometheus.CounterVec
	AuditPublishFailures  prometheus.Counter
	IntegrityFailures     prometheus.Counter
	EventsProcessed       *prometheus.CounterVec
	RequestDuration       *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		TransitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sebenza_session_transitions_total",
			Help: "State transitions executed, labelled by target state",
		}, []string{"to_state"}),
		OverridesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sebenza_session_overrides_total",
			Help: "Transitions taken outside the normal graph with a reason code",
		}),
		SessionsLockedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sebenza_sessions_locked_total",
			Help: "Sessions locked, including response-limit auto-locks",
		}),
		ResponseLimitRejects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sebenza_response_limit_rejects_total",
			Help: "Increments rejected because the response ceiling was reached",
		}),
		ChecklistCompletions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sebenza_checklist_completions_total",
			Help: "Checklist items completed (first completion only)",
		}),
		ChecklistInvalidation: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sebenza_checklist_invalidations_total",
			Help: "Checklist items invalidated, including repeats",
		}),
		AuditEntriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sebenza_audit_entries_total",
			Help: "Audit entries appended, labelled by action",
		}, []string{"action"}),
		AuditPublishFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sebenza_audit_publish_failures_total",
			Help: "Audit change-feed publish failures (store append still succeeded)",
		}),
		IntegrityFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sebenza_audit_integrity_failures_total",
			Help: "Integrity verifications that reported at least one issue",
		}),
		EventsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sebenza_events_processed_total",
			Help: "Domain events processed, labelled by event and result",
		}, []string{"event", "result"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sebenza_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
}
