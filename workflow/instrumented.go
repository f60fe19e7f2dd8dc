package workflow

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/tracking"
)

// stepMetricKeys is the allow-list of per-step metric keys extracted from
// the context a step returns. Absent keys are omitted.
var stepMetricKeys = []string{"improvements", "fixes", "passed", "failures", "complexity"}

// finalMetricKeys is the allow-list of top-level metric keys extracted from
// the final context of a fully successful run.
var finalMetricKeys = []string{"improvements", "complexity_reduction", "coverage_improvement", "fixes_applied", "tests_passing"}

// ExecutionMetrics receives execution counters from the instrumented
// executor. Implemented by internal/metrics; kept as a local interface so
// the workflow package stays decoupled from the Prometheus wiring.
type ExecutionMetrics interface {
	RecordExecution(workflow string, outcome string)
	RecordStep(workflow, step, outcome string, duration time.Duration)
	RecordTrackingFailure(operation string)
}

// InstrumentedExecutor 带追踪的工作流执行器
// InstrumentedExecutor runs a workflow's steps sequentially and records a
// durable trace of every attempt under a tracking session. The observability
// side never changes the business result: only session bootstrap failures
// abort the call, every other tracking failure is logged and swallowed.
type InstrumentedExecutor struct {
	tracker tracking.Tracker
	logger  *zap.Logger
	metrics ExecutionMetrics
	tracer  trace.Tracer
}

// InstrumentedOption configures an InstrumentedExecutor.
type InstrumentedOption func(*InstrumentedExecutor)

// WithExecutionMetrics attaches a metrics sink.
func WithExecutionMetrics(m ExecutionMetrics) InstrumentedOption {
	return func(e *InstrumentedExecutor) { e.metrics = m }
}

// WithTracer overrides the OTel tracer used for per-step spans.
func WithTracer(t trace.Tracer) InstrumentedOption {
	return func(e *InstrumentedExecutor) { e.tracer = t }
}

// NewInstrumentedExecutor 创建带追踪的执行器
func NewInstrumentedExecutor(tracker tracking.Tracker, logger *zap.Logger, opts ...InstrumentedOption) *InstrumentedExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &InstrumentedExecutor{
		tracker: tracker,
		logger:  logger.With(zap.String("component", "instrumented_executor")),
		tracer:  otel.Tracer("flowcore/workflow"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteWithRCA 执行工作流并记录每个步骤的追踪信息
// The session is finalized exactly once per invocation, regardless of where
// in the step sequence the failure occurred.
func (e *InstrumentedExecutor) ExecuteWithRCA(ctx context.Context, wf Workflow, input Context) (Context, error) {
	cfg := wf.Config()
	sess, err := e.tracker.StartSession(ctx, tracking.SessionParams{
		InitialPrompt:   "Executing " + wf.Name(),
		AgentID:         cfg.AgentID,
		TemplateID:      cfg.TemplateID,
		AgentVersion:    cfg.AgentVersion,
		ParentSessionID: cfg.ParentSessionID,
	})
	if err != nil {
		e.logger.Error("session bootstrap failed",
			zap.String("workflow", wf.Name()),
			zap.Error(err),
		)
		return nil, &StepError{
			Code:   ErrCodeBootstrap,
			Reason: fmt.Sprintf("failed to start session: %v", err),
			Cause:  err,
		}
	}

	log := e.logger.With(
		zap.String("workflow", wf.Name()),
		zap.String("session_id", sess.ID),
	)

	if err := e.tracker.TrackWorkflowStart(ctx, sess.ID, wf.Name()); err != nil {
		log.Warn("track workflow start failed", zap.Error(err))
		e.trackingFailure("track_workflow_start")
	}

	current := input
	for i, step := range wf.Steps() {
		index := i + 1
		start := time.Now()
		next, stepErr := e.runStep(ctx, step, current)
		elapsed := time.Since(start)

		if stepErr != nil {
			log.Warn("step failed",
				zap.Int("index", index),
				zap.String("step", step.Name()),
				zap.Duration("duration", elapsed),
				zap.Error(stepErr),
			)
			e.recordStep(ctx, log, tracking.StepRecord{
				SessionID:   sess.ID,
				StepIndex:   index,
				StepName:    step.Name(),
				Description: "Failed: " + stepErr.Reason,
				Outcome:     tracking.StepOutcomeError,
				DurationMS:  elapsed.Milliseconds(),
			})
			e.observeStep(wf.Name(), step.Name(), "error", elapsed)
			e.recordCompletion(ctx, log, sess.ID, tracking.OutcomeFailure, map[string]any{"error": stepErr.Reason})
			e.observeExecution(wf.Name(), "failure")
			return nil, stepErr
		}

		tokens, metrics := extractStepMetrics(next)
		e.recordStep(ctx, log, tracking.StepRecord{
			SessionID:   sess.ID,
			StepIndex:   index,
			StepName:    step.Name(),
			Description: "Completed " + step.Name(),
			TokensUsed:  tokens,
			Metrics:     metrics,
			Outcome:     tracking.StepOutcomeSuccess,
			DurationMS:  elapsed.Milliseconds(),
		})
		e.observeStep(wf.Name(), step.Name(), "success", elapsed)
		log.Debug("step completed",
			zap.Int("index", index),
			zap.String("step", step.Name()),
			zap.Duration("duration", elapsed),
		)
		current = next
	}

	e.recordCompletion(ctx, log, sess.ID, tracking.OutcomeSuccess, extractFinalMetrics(current))
	e.observeExecution(wf.Name(), "success")
	return current, nil
}

// runStep executes one step behind a panic guard. Unlike the plain
// executor's whole-run guard, the step identity is retained for panics here.
func (e *InstrumentedExecutor) runStep(ctx context.Context, step Step, in Context) (out Context, serr *StepError) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			serr = &StepError{
				Code:   ErrCodeStepException,
				Step:   step.Name(),
				Reason: fmt.Sprintf("%v", r),
			}
		}
	}()

	ctx, span := e.tracer.Start(ctx, "workflow.step",
		trace.WithAttributes(attribute.String("workflow.step.name", step.Name())),
	)
	defer span.End()

	next, err := step.Execute(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &StepError{
			Code:   ErrCodeStepExecution,
			Step:   step.Name(),
			Reason: err.Error(),
			Cause:  err,
		}
	}
	return next, nil
}

func (e *InstrumentedExecutor) recordStep(ctx context.Context, log *zap.Logger, rec tracking.StepRecord) {
	if err := e.tracker.RecordWorkflowStep(ctx, rec); err != nil {
		log.Warn("record workflow step failed",
			zap.Int("index", rec.StepIndex),
			zap.String("step", rec.StepName),
			zap.Error(err),
		)
		e.trackingFailure("record_workflow_step")
	}
}

func (e *InstrumentedExecutor) recordCompletion(ctx context.Context, log *zap.Logger, sessionID string, outcome tracking.Outcome, metrics map[string]any) {
	if err := e.tracker.RecordWorkflowCompletion(ctx, sessionID, outcome, metrics); err != nil {
		log.Warn("record workflow completion failed",
			zap.String("outcome", string(outcome)),
			zap.Error(err),
		)
		e.trackingFailure("record_workflow_completion")
	}
}

func (e *InstrumentedExecutor) observeStep(workflow, step, outcome string, d time.Duration) {
	if e.metrics != nil {
		e.metrics.RecordStep(workflow, step, outcome, d)
	}
}

func (e *InstrumentedExecutor) observeExecution(workflow, outcome string) {
	if e.metrics != nil {
		e.metrics.RecordExecution(workflow, outcome)
	}
}

func (e *InstrumentedExecutor) trackingFailure(operation string) {
	if e.metrics != nil {
		e.metrics.RecordTrackingFailure(operation)
	}
}

// extractStepMetrics pulls the per-step allow-listed metrics out of the
// context a step returned. tokens_used defaults to 0 when absent.
func extractStepMetrics(c Context) (int, map[string]any) {
	if c == nil {
		return 0, map[string]any{}
	}
	metrics := make(map[string]any)
	for _, key := range stepMetricKeys {
		if v, ok := c[key]; ok {
			metrics[key] = v
		}
	}
	return c.GetInt("tokens_used"), metrics
}

// extractFinalMetrics pulls the top-level allow-listed metrics out of the
// final context of a successful run.
func extractFinalMetrics(c Context) map[string]any {
	metrics := make(map[string]any)
	for _, key := range finalMetricKeys {
		if v, ok := c[key]; ok {
			metrics[key] = v
		}
	}
	return metrics
}
