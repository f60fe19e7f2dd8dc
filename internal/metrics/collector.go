// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
// Collector implements workflow.ExecutionMetrics and additionally records
// HTTP request metrics for the service binary.
type Collector struct {
	// 工作流指标
	workflowExecutionsTotal *prometheus.CounterVec
	workflowStepsTotal      *prometheus.CounterVec
	workflowStepDuration    *prometheus.HistogramVec

	// 追踪失败指标
	trackingFailuresTotal *prometheus.CounterVec

	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器，注册到默认 Registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWith(prometheus.DefaultRegisterer, namespace, logger)
}

// NewCollectorWith 创建指标收集器并注册到指定 Registerer
func NewCollectorWith(reg prometheus.Registerer, namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}
	factory := promauto.With(reg)

	c.workflowExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_executions_total",
			Help:      "Total number of instrumented workflow executions",
		},
		[]string{"workflow", "outcome"},
	)

	c.workflowStepsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_steps_total",
			Help:      "Total number of workflow step attempts",
		},
		[]string{"workflow", "step", "outcome"},
	)

	c.workflowStepDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_step_duration_seconds",
			Help:      "Workflow step execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"workflow", "step"},
	)

	c.trackingFailuresTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracking_failures_total",
			Help:      "Total number of swallowed session tracking failures",
		},
		[]string{"operation"},
	)

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	return c
}

// RecordExecution 记录一次工作流执行结果
func (c *Collector) RecordExecution(workflow string, outcome string) {
	c.workflowExecutionsTotal.WithLabelValues(workflow, outcome).Inc()
}

// RecordStep 记录一次步骤执行
func (c *Collector) RecordStep(workflow, step, outcome string, duration time.Duration) {
	c.workflowStepsTotal.WithLabelValues(workflow, step, outcome).Inc()
	c.workflowStepDuration.WithLabelValues(workflow, step).Observe(duration.Seconds())
}

// RecordTrackingFailure 记录一次被吞掉的追踪调用失败
func (c *Collector) RecordTrackingFailure(operation string) {
	c.trackingFailuresTotal.WithLabelValues(operation).Inc()
}

// RecordHTTPRequest 记录一次 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
