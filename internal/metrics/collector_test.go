package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// Collectors register against a Registerer at construction; tests use a fresh
// registry per case so duplicate registration cannot panic.
func newTestCollector() *Collector {
	return NewCollectorWith(prometheus.NewRegistry(), "flowcore", nil)
}

func TestCollector_RecordExecution(t *testing.T) {
	c := newTestCollector()

	c.RecordExecution("quality", "success")
	c.RecordExecution("quality", "success")
	c.RecordExecution("quality", "failure")

	assert.Equal(t, float64(2), testutil.ToFloat64(
		c.workflowExecutionsTotal.With(prometheus.Labels{"workflow": "quality", "outcome": "success"}),
	))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		c.workflowExecutionsTotal.With(prometheus.Labels{"workflow": "quality", "outcome": "failure"}),
	))
}

func TestCollector_RecordStep(t *testing.T) {
	c := newTestCollector()

	c.RecordStep("quality", "analyze", "success", 150*time.Millisecond)
	c.RecordStep("quality", "analyze", "error", 10*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(
		c.workflowStepsTotal.With(prometheus.Labels{"workflow": "quality", "step": "analyze", "outcome": "success"}),
	))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		c.workflowStepsTotal.With(prometheus.Labels{"workflow": "quality", "step": "analyze", "outcome": "error"}),
	))
}

func TestCollector_RecordTrackingFailure(t *testing.T) {
	c := newTestCollector()

	c.RecordTrackingFailure("record_workflow_step")
	c.RecordTrackingFailure("record_workflow_step")

	assert.Equal(t, float64(2), testutil.ToFloat64(
		c.trackingFailuresTotal.With(prometheus.Labels{"operation": "record_workflow_step"}),
	))
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c := newTestCollector()

	c.RecordHTTPRequest("GET", "/v1/workflows", "200", 5*time.Millisecond)
	c.RecordHTTPRequest("GET", "/v1/workflows", "200", 7*time.Millisecond)
	c.RecordHTTPRequest("POST", "/v1/workflows/x/execute", "422", 3*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(
		c.httpRequestsTotal.With(prometheus.Labels{"method": "GET", "path": "/v1/workflows", "status": "200"}),
	))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		c.httpRequestsTotal.With(prometheus.Labels{"method": "POST", "path": "/v1/workflows/x/execute", "status": "422"}),
	))
}

func TestCollector_RegistersAllMetricFamilies(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectorWith(reg, "flowcore", nil)

	c.RecordExecution("wf", "success")
	c.RecordStep("wf", "s", "success", time.Millisecond)
	c.RecordTrackingFailure("op")
	c.RecordHTTPRequest("GET", "/", "200", time.Millisecond)

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.Len(t, families, 6)
}
