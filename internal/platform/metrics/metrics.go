package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the credential and ballot pipeline.
type Metrics struct {
	CredentialsIssued    prometheus.Counter
	CredentialsDelivered prometheus.Counter
	DeliveryFailures     prometheus.Counter
	CredentialResends    prometheus.Counter
	HandshakeOutcomes    *prometheus.CounterVec
	VotesCast            prometheus.Counter
	VoteConflicts        prometheus.Counter
	RequestDuration      *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return newWith(prometheus.DefaultRegisterer)
}

// NewForTest registers metrics on an isolated registry so parallel tests do
// not collide on metric names.
func NewForTest() *Metrics {
	return newWith(prometheus.NewRegistry())
}

func newWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CredentialsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "cyvote_credentials_issued_total",
			Help: "Total number of voting credentials issued",
		}),
		CredentialsDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "cyvote_credentials_delivered_total",
			Help: "Total number of credentials successfully delivered",
		}),
		DeliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "cyvote_credential_delivery_failures_total",
			Help: "Total number of credential delivery failures",
		}),
		CredentialResends: factory.NewCounter(prometheus.CounterOpts{
			Name: "cyvote_credential_resends_total",
			Help: "Total number of administrator-triggered credential resends",
		}),
		HandshakeOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cyvote_handshake_outcomes_total",
			Help: "Handshake step outcomes by step and result",
		}, []string{"step", "result"}),
		VotesCast: factory.NewCounter(prometheus.CounterOpts{
			Name: "cyvote_votes_cast_total",
			Help: "Total number of votes successfully cast",
		}),
		VoteConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "cyvote_vote_conflicts_total",
			Help: "Cast attempts rejected because the voter had already voted",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cyvote_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}
