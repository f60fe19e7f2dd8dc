package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/flowcore/tracking"
)

// ============================================================
// Test fixtures
// ============================================================

// testWorkflow is a minimal Workflow implementation for tests.
type testWorkflow struct {
	name  string
	steps []Step
	cfg   Config
}

func (w *testWorkflow) Name() string   { return w.name }
func (w *testWorkflow) Steps() []Step  { return w.steps }
func (w *testWorkflow) Config() Config { return w.cfg }

// flakyTracker delegates to a memory tracker but fails the configured
// operations, to prove tracking failures never change the business result.
type flakyTracker struct {
	*tracking.MemoryTracker
	failStart      bool
	failTrackStart bool
	failStep       bool
	failCompletion bool
}

var errTrackerDown = errors.New("tracker backend down")

func (f *flakyTracker) StartSession(ctx context.Context, params tracking.SessionParams) (*tracking.Session, error) {
	if f.failStart {
		return nil, errTrackerDown
	}
	return f.MemoryTracker.StartSession(ctx, params)
}

func (f *flakyTracker) TrackWorkflowStart(ctx context.Context, sessionID, workflowName string) error {
	if f.failTrackStart {
		return errTrackerDown
	}
	return f.MemoryTracker.TrackWorkflowStart(ctx, sessionID, workflowName)
}

func (f *flakyTracker) RecordWorkflowStep(ctx context.Context, record tracking.StepRecord) error {
	if f.failStep {
		return errTrackerDown
	}
	return f.MemoryTracker.RecordWorkflowStep(ctx, record)
}

func (f *flakyTracker) RecordWorkflowCompletion(ctx context.Context, sessionID string, outcome tracking.Outcome, metrics map[string]any) error {
	if f.failCompletion {
		return errTrackerDown
	}
	return f.MemoryTracker.RecordWorkflowCompletion(ctx, sessionID, outcome, metrics)
}

// recordingMetrics counts calls into the ExecutionMetrics interface.
type recordingMetrics struct {
	mu               sync.Mutex
	executions       map[string]int
	steps            map[string]int
	trackingFailures map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		executions:       make(map[string]int),
		steps:            make(map[string]int),
		trackingFailures: make(map[string]int),
	}
}

func (m *recordingMetrics) RecordExecution(workflow, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions[workflow+"/"+outcome]++
}

func (m *recordingMetrics) RecordStep(workflow, step, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps[step+"/"+outcome]++
}

func (m *recordingMetrics) RecordTrackingFailure(operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trackingFailures[operation]++
}

func lastSession(t *testing.T, tracker tracking.Tracker, sessionID string) *tracking.Session {
	t.Helper()
	sess, err := tracker.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	return sess
}

// ============================================================
// ExecuteWithRCA tests
// ============================================================

func TestInstrumentedExecutor_SuccessRecordsFullTrace(t *testing.T) {
	tracker := tracking.NewMemoryTracker()
	exec := NewInstrumentedExecutor(tracker, nil)

	wf := &testWorkflow{
		name: "quality improvement",
		cfg:  Config{AgentID: "agent-1", TemplateID: "tmpl-1"},
		steps: []Step{
			NewFuncStep("analyze", func(_ context.Context, wctx Context) (Context, error) {
				return wctx.With("tokens_used", 120).With("improvements", 3), nil
			}),
			NewFuncStep("apply", func(_ context.Context, wctx Context) (Context, error) {
				return wctx.With("fixes_applied", 2), nil
			}),
		},
	}

	out, err := exec.ExecuteWithRCA(context.Background(), wf, Context{"code": "x"})
	require.NoError(t, err)
	assert.Equal(t, 3, out.GetInt("improvements"))

	sessionID := findOnlySession(t, tracker)
	sess := lastSession(t, tracker, sessionID)
	assert.Equal(t, "Executing quality improvement", sess.InitialPrompt)
	assert.Equal(t, "agent-1", sess.AgentID)
	assert.Equal(t, "quality improvement", sess.WorkflowName)
	assert.Equal(t, tracking.OutcomeSuccess, sess.Outcome)
	require.NotNil(t, sess.CompletedAt)
	// Only allow-listed keys survive into the final session metrics.
	assert.Equal(t, map[string]any{"improvements": 3, "fixes_applied": 2}, sess.Metrics)

	steps, err := tracker.ListSteps(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, 1, steps[0].StepIndex)
	assert.Equal(t, "analyze", steps[0].StepName)
	assert.Equal(t, "Completed analyze", steps[0].Description)
	assert.Equal(t, 120, steps[0].TokensUsed)
	assert.Equal(t, map[string]any{"improvements": 3}, steps[0].Metrics)
	assert.Equal(t, tracking.StepOutcomeSuccess, steps[0].Outcome)
	assert.Equal(t, 2, steps[1].StepIndex)
	assert.Equal(t, "apply", steps[1].StepName)
}

func TestInstrumentedExecutor_StepFailureAccounting(t *testing.T) {
	tracker := tracking.NewMemoryTracker()
	metrics := newRecordingMetrics()
	exec := NewInstrumentedExecutor(tracker, nil, WithExecutionMetrics(metrics))

	wf := &testWorkflow{
		name: "pipeline",
		steps: []Step{
			NewFuncStep("first", func(_ context.Context, wctx Context) (Context, error) {
				return wctx, nil
			}),
			NewFuncStep("second", func(_ context.Context, _ Context) (Context, error) {
				return nil, errors.New("validation blew up")
			}),
			NewFuncStep("third", func(_ context.Context, wctx Context) (Context, error) {
				t.Fatal("third step must not run after a failure")
				return wctx, nil
			}),
		},
	}

	out, err := exec.ExecuteWithRCA(context.Background(), wf, NewContext())
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Equal(t, "step second: validation blew up", err.Error())

	sessionID := findOnlySession(t, tracker)
	steps, listErr := tracker.ListSteps(context.Background(), sessionID)
	require.NoError(t, listErr)
	// Exactly two records: one success, one error. Nothing for the third step.
	require.Len(t, steps, 2)
	assert.Equal(t, tracking.StepOutcomeSuccess, steps[0].Outcome)
	assert.Equal(t, tracking.StepOutcomeError, steps[1].Outcome)
	assert.Equal(t, "Failed: validation blew up", steps[1].Description)

	sess := lastSession(t, tracker, sessionID)
	assert.Equal(t, tracking.OutcomeFailure, sess.Outcome)
	assert.Equal(t, map[string]any{"error": "validation blew up"}, sess.Metrics)
	require.NotNil(t, sess.CompletedAt)

	assert.Equal(t, 1, metrics.executions["pipeline/failure"])
	assert.Equal(t, 1, metrics.steps["second/error"])
}

func TestInstrumentedExecutor_PanicKeepsStepIdentity(t *testing.T) {
	tracker := tracking.NewMemoryTracker()
	exec := NewInstrumentedExecutor(tracker, nil)

	wf := &testWorkflow{
		name: "panicky",
		steps: []Step{
			NewFuncStep("prepare", func(_ context.Context, wctx Context) (Context, error) {
				return wctx, nil
			}),
			NewFuncStep("detonate", func(_ context.Context, _ Context) (Context, error) {
				panic("index out of range")
			}),
		},
	}

	_, err := exec.ExecuteWithRCA(context.Background(), wf, NewContext())
	require.Error(t, err)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, ErrCodeStepException, stepErr.Code)
	// Per-step recover guard retains attribution, unlike the plain executor.
	assert.Equal(t, "detonate", stepErr.Step)
	assert.Equal(t, "step detonate: index out of range", err.Error())

	sessionID := findOnlySession(t, tracker)
	steps, listErr := tracker.ListSteps(context.Background(), sessionID)
	require.NoError(t, listErr)
	require.Len(t, steps, 2)
	assert.Equal(t, "detonate", steps[1].StepName)
	assert.Equal(t, tracking.StepOutcomeError, steps[1].Outcome)
}

func TestInstrumentedExecutor_BootstrapFailureAborts(t *testing.T) {
	tracker := &flakyTracker{MemoryTracker: tracking.NewMemoryTracker(), failStart: true}
	ran := false
	exec := NewInstrumentedExecutor(tracker, nil)

	wf := &testWorkflow{
		name: "never-runs",
		steps: []Step{
			NewFuncStep("only", func(_ context.Context, wctx Context) (Context, error) {
				ran = true
				return wctx, nil
			}),
		},
	}

	out, err := exec.ExecuteWithRCA(context.Background(), wf, NewContext())
	require.Error(t, err)
	assert.Nil(t, out)
	assert.False(t, ran, "no step may run when the session cannot be created")

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, ErrCodeBootstrap, stepErr.Code)
	assert.ErrorIs(t, err, errTrackerDown)
}

func TestInstrumentedExecutor_TrackingFailuresAreSwallowed(t *testing.T) {
	tracker := &flakyTracker{
		MemoryTracker:  tracking.NewMemoryTracker(),
		failTrackStart: true,
		failStep:       true,
		failCompletion: true,
	}
	metrics := newRecordingMetrics()
	exec := NewInstrumentedExecutor(tracker, nil, WithExecutionMetrics(metrics))

	wf := &testWorkflow{
		name: "best-effort",
		steps: []Step{
			NewFuncStep("double", func(_ context.Context, wctx Context) (Context, error) {
				return wctx.With("x", wctx.GetInt("x")*2), nil
			}),
		},
	}

	out, err := exec.ExecuteWithRCA(context.Background(), wf, Context{"x": 21})
	require.NoError(t, err, "tracking failures must not surface as the workflow result")
	assert.Equal(t, 42, out.GetInt("x"))

	assert.Equal(t, 1, metrics.trackingFailures["track_workflow_start"])
	assert.Equal(t, 1, metrics.trackingFailures["record_workflow_step"])
	assert.Equal(t, 1, metrics.trackingFailures["record_workflow_completion"])
	assert.Equal(t, 1, metrics.executions["best-effort/success"])
}

func TestInstrumentedExecutor_EmptyWorkflowCompletesSuccessfully(t *testing.T) {
	tracker := tracking.NewMemoryTracker()
	exec := NewInstrumentedExecutor(tracker, nil)

	wf := &testWorkflow{name: "empty"}
	out, err := exec.ExecuteWithRCA(context.Background(), wf, Context{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, out.GetInt("x"))

	sess := lastSession(t, tracker, findOnlySession(t, tracker))
	assert.Equal(t, tracking.OutcomeSuccess, sess.Outcome)
}

// findOnlySession asserts the tracker holds exactly one session and returns
// its id.
func findOnlySession(t *testing.T, tracker *tracking.MemoryTracker) string {
	t.Helper()
	ids := tracker.SessionIDs()
	require.Len(t, ids, 1)
	return ids[0]
}
