package events

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"govsync/internal/ports"
)

// Metrics counts governance activity and owns the registry served on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	proposalsCreated *prometheus.CounterVec
	votesCast        *prometheus.CounterVec
	voteWeight       *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	signalsSent      *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

var _ ports.EventPublisher = (*Metrics)(nil)

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		proposalsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "govsync_proposals_created_total",
			Help: "Proposals materialized, by operation category.",
		}, []string{"category"}),
		votesCast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "govsync_votes_cast_total",
			Help: "Votes recorded, by choice.",
		}, []string{"choice"}),
		voteWeight: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "govsync_vote_weight_total",
			Help: "Voting power cast, by choice.",
		}, []string{"choice"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "govsync_proposal_transitions_total",
			Help: "Proposal status transitions.",
		}, []string{"from", "to"}),
		signalsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "govsync_request_signals_total",
			Help: "Approve/reject calls delivered to the request source.",
		}, []string{"status"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "govsync_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "govsync_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.proposalsCreated,
		m.votesCast,
		m.voteWeight,
		m.transitions,
		m.signalsSent,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

func (m *Metrics) Publish(_ context.Context, event ports.GovernanceEvent) error {
	switch event.Kind {
	case ports.EventProposalCreated:
		m.proposalsCreated.WithLabelValues(event.Category).Inc()
	case ports.EventVoteCast:
		m.votesCast.WithLabelValues(event.Choice).Inc()
		m.voteWeight.WithLabelValues(event.Choice).Add(float64(event.Weight))
	case ports.EventStatusChanged:
		m.transitions.WithLabelValues(event.FromStatus, event.Status).Inc()
	case ports.EventSignalSent:
		m.signalsSent.WithLabelValues(event.Status).Inc()
	}
	return nil
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
