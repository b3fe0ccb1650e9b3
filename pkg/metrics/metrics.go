package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Sequence generator
	SequenceIssued    *prometheus.CounterVec
	SequenceRetries   *prometheus.CounterVec
	SequenceExhausted *prometheus.CounterVec

	// Intake
	Registrations       *prometheus.CounterVec
	UnassignedVisits    prometheus.Counter
	RegistrationLatency prometheus.Histogram

	// Admission / bed ledger
	AdmissionDecisions *prometheus.CounterVec
	BedTransitions     *prometheus.CounterVec
	LedgerRetries      prometheus.Counter
	WardRepairs        prometheus.Counter

	// Notifications and outbox
	NotificationFailures    prometheus.Counter
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram
	OutboxRetries           *prometheus.CounterVec

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
}

// New creates the application metrics and registers them on reg. A nil reg leaves
// them unregistered, which is what tests want.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SequenceIssued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sequence_issued_total",
			Help:      "Sequence numbers issued, by scope kind",
		}, []string{"kind"}),
		SequenceRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sequence_retries_total",
			Help:      "Retries caused by transient counter contention",
		}, []string{"kind"}),
		SequenceExhausted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sequence_exhausted_total",
			Help:      "Requests that overflowed a daily sequence",
		}, []string{"kind"}),

		Registrations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Patient registrations by outcome",
		}, []string{"patient"}),
		UnassignedVisits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visits_unassigned_total",
			Help:      "Visits created without an available doctor",
		}),
		RegistrationLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "registration_duration_seconds",
			Help:      "Time spent registering a patient",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),

		AdmissionDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_decisions_total",
			Help:      "Admission decisions by action and outcome",
		}, []string{"action", "outcome"}),
		BedTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bed_transitions_total",
			Help:      "Bed status transitions",
		}, []string{"from", "to"}),
		LedgerRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bed_ledger_retries_total",
			Help:      "Bed ledger transactions retried after transient failures",
		}),
		WardRepairs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ward_counter_repairs_total",
			Help:      "Ward available_beds counters rewritten by reconciliation",
		}),

		NotificationFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Notifications that could not be enqueued",
		}),
		OutboxEventsProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_processed_total",
			Help:      "Total number of successfully processed outbox events",
		}),
		OutboxEventsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_failed_total",
			Help:      "Total number of failed outbox events",
		}),
		OutboxProcessingLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbox_processing_duration_seconds",
			Help:      "Time spent processing outbox events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		OutboxRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_retry_attempts_total",
			Help:      "Total number of retry attempts for outbox events",
		}, []string{"event_type"}),

		DatabaseOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
	}
}
