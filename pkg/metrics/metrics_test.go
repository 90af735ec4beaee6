package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.ObserveRequest("diagnosis", "report", 120*time.Millisecond)
	r.ObserveRequest("diagnosis", "failed", 80*time.Millisecond)
	r.ObserveFailure("not_found")

	assert.Equal(t, float64(1), testutil.ToFloat64(r.requestsTotal.WithLabelValues("diagnosis", "report")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.requestsTotal.WithLabelValues("diagnosis", "failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.failuresTotal.WithLabelValues("not_found")))
}

func TestRecorderHistograms(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.ObserveClarificationRounds(2)
	r.ObserveCollaborator("gateway", true, 40*time.Millisecond)
	r.ObserveCollaborator("gateway", false, 40*time.Millisecond)

	assert.Equal(t, 1, testutil.CollectAndCount(r.clarificationRounds))
	assert.Equal(t, 2, testutil.CollectAndCount(r.collaboratorDuration))
}

func TestNewRecorderIndependentRegistries(t *testing.T) {
	// Separate registries must not collide on metric names.
	assert.NotPanics(t, func() {
		NewRecorder(prometheus.NewRegistry())
		NewRecorder(prometheus.NewRegistry())
	})
}
