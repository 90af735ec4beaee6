// Package metrics provides Prometheus-based instrumentation for the workflow
// engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records workflow-level metrics.
type Recorder struct {
	requestsTotal        *prometheus.CounterVec
	failuresTotal        *prometheus.CounterVec
	clarificationRounds  prometheus.Histogram
	collaboratorDuration *prometheus.HistogramVec
	requestDuration      prometheus.Histogram
}

// NewRecorder creates a recorder registered against reg; a nil reg uses the
// default registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "medflow_requests_total",
				Help: "Total workflow requests by classified intent and terminal status",
			},
			[]string{"intent", "status"},
		),
		failuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "medflow_failures_total",
				Help: "Total failed workflow requests by error kind",
			},
			[]string{"kind"},
		),
		clarificationRounds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "medflow_clarification_rounds",
				Help:    "Clarification rounds needed per diagnostic request",
				Buckets: []float64{0, 1, 2, 3, 4, 5},
			},
		),
		collaboratorDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "medflow_collaborator_duration_seconds",
				Help:    "Duration of external collaborator calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"collaborator", "status"},
		),
		requestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "medflow_request_duration_seconds",
				Help:    "End-to-end workflow request duration",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// ObserveRequest records one completed workflow request.
func (r *Recorder) ObserveRequest(intent, status string, duration time.Duration) {
	r.requestsTotal.WithLabelValues(intent, status).Inc()
	r.requestDuration.Observe(duration.Seconds())
}

// ObserveFailure records a terminal failure by kind.
func (r *Recorder) ObserveFailure(kind string) {
	r.failuresTotal.WithLabelValues(kind).Inc()
}

// ObserveClarificationRounds records how many rounds a diagnostic request used.
func (r *Recorder) ObserveClarificationRounds(rounds int) {
	r.clarificationRounds.Observe(float64(rounds))
}

// ObserveCollaborator records one external call.
func (r *Recorder) ObserveCollaborator(collaborator string, ok bool, duration time.Duration) {
	status := "ok"
	if !ok {
		status = "error"
	}
	r.collaboratorDuration.WithLabelValues(collaborator, status).Observe(duration.Seconds())
}
