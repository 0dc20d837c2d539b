package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	NominationsSubmitted prometheus.Counter
	NominationsRejected  *prometheus.CounterVec
	SubmitDuration       prometheus.Histogram
	Transitions          *prometheus.CounterVec
	ElectionsDeleted     prometheus.Counter
	QuotaCacheLookups    *prometheus.CounterVec
	OutboxPublished      prometheus.Counter
	OutboxFailures       prometheus.Counter
}

func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		NominationsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "electa_nominations_submitted_total",
			Help: "Total number of nominations admitted to the ledger",
		}),
		NominationsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "electa_nominations_rejected_total",
			Help: "Total number of rejected nomination attempts by reason",
		}, []string{"reason"}),
		SubmitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "electa_nomination_submit_duration_seconds",
			Help:    "Time spent in the nomination submit gate, including lock waits",
			Buckets: prometheus.DefBuckets,
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "electa_election_transitions_total",
			Help: "Total number of election status transitions",
		}, []string{"from", "to"}),
		ElectionsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "electa_elections_deleted_total",
			Help: "Total number of elections deleted with their ledger",
		}),
		QuotaCacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "electa_quota_cache_lookups_total",
			Help: "Remaining-quota cache lookups by result",
		}, []string{"result"}),
		OutboxPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "electa_outbox_published_total",
			Help: "Total number of outbox events relayed to the broker",
		}),
		OutboxFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "electa_outbox_failures_total",
			Help: "Total number of failed outbox relay attempts",
		}),
	}
}

func (m *Metrics) IncrementSubmitted() {
	if m == nil {
		return
	}
	m.NominationsSubmitted.Inc()
}

func (m *Metrics) IncrementRejected(reason string) {
	if m == nil {
		return
	}
	m.NominationsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveSubmitDuration(seconds float64) {
	if m == nil {
		return
	}
	m.SubmitDuration.Observe(seconds)
}

func (m *Metrics) IncrementTransition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncrementDeleted() {
	if m == nil {
		return
	}
	m.ElectionsDeleted.Inc()
}

func (m *Metrics) IncrementCacheLookup(result string) {
	if m == nil {
		return
	}
	m.QuotaCacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) AddOutboxPublished(n int) {
	if m == nil {
		return
	}
	m.OutboxPublished.Add(float64(n))
}

func (m *Metrics) IncrementOutboxFailures() {
	if m == nil {
		return
	}
	m.OutboxFailures.Inc()
}
