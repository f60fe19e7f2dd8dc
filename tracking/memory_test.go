package tracking

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTracker_SessionLifecycle(t *testing.T) {
	tracker := NewMemoryTracker()
	ctx := context.Background()

	sess, err := tracker.StartSession(ctx, SessionParams{
		InitialPrompt: "Executing quality improvement",
		AgentID:       "agent-1",
		TemplateID:    "tmpl-1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	assert.False(t, sess.StartedAt.IsZero())
	assert.Nil(t, sess.CompletedAt)

	require.NoError(t, tracker.TrackWorkflowStart(ctx, sess.ID, "quality improvement"))

	require.NoError(t, tracker.RecordWorkflowStep(ctx, StepRecord{
		SessionID:   sess.ID,
		StepIndex:   1,
		StepName:    "analyze",
		Description: "Completed analyze",
		TokensUsed:  55,
		Outcome:     StepOutcomeSuccess,
	}))
	require.NoError(t, tracker.RecordWorkflowCompletion(ctx, sess.ID, OutcomeSuccess, map[string]any{"improvements": 2}))

	got, err := tracker.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "quality improvement", got.WorkflowName)
	assert.Equal(t, OutcomeSuccess, got.Outcome)
	assert.Equal(t, map[string]any{"improvements": 2}, got.Metrics)
	require.NotNil(t, got.CompletedAt)

	steps, err := tracker.ListSteps(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, "analyze", steps[0].StepName)
	assert.Equal(t, 55, steps[0].TokensUsed)
	assert.False(t, steps[0].RecordedAt.IsZero())
}

func TestMemoryTracker_NotFound(t *testing.T) {
	tracker := NewMemoryTracker()
	ctx := context.Background()

	_, err := tracker.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = tracker.ListSteps(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = tracker.TrackWorkflowStart(ctx, "missing", "wf")
	assert.ErrorIs(t, err, ErrNotFound)

	err = tracker.RecordWorkflowCompletion(ctx, "missing", OutcomeSuccess, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	err = tracker.RecordWorkflowStep(ctx, StepRecord{SessionID: "missing", StepIndex: 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryTracker_InvalidStepRecord(t *testing.T) {
	tracker := NewMemoryTracker()
	ctx := context.Background()

	err := tracker.RecordWorkflowStep(ctx, StepRecord{SessionID: "", StepIndex: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = tracker.RecordWorkflowStep(ctx, StepRecord{SessionID: "s", StepIndex: 0})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMemoryTracker_ListStepsSortedByIndex(t *testing.T) {
	tracker := NewMemoryTracker()
	ctx := context.Background()

	sess, err := tracker.StartSession(ctx, SessionParams{AgentID: "a"})
	require.NoError(t, err)

	for _, idx := range []int{3, 1, 2} {
		require.NoError(t, tracker.RecordWorkflowStep(ctx, StepRecord{
			SessionID: sess.ID,
			StepIndex: idx,
			StepName:  "step",
		}))
	}

	steps, err := tracker.ListSteps(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, 1, steps[0].StepIndex)
	assert.Equal(t, 2, steps[1].StepIndex)
	assert.Equal(t, 3, steps[2].StepIndex)
}

func TestMemoryTracker_ReturnedSessionIsACopy(t *testing.T) {
	tracker := NewMemoryTracker()
	ctx := context.Background()

	sess, err := tracker.StartSession(ctx, SessionParams{AgentID: "a"})
	require.NoError(t, err)

	got, err := tracker.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	got.AgentID = "mutated"

	again, err := tracker.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", again.AgentID)
}

func TestMemoryTracker_ClosedStoreRejectsEverything(t *testing.T) {
	tracker := NewMemoryTracker()
	ctx := context.Background()

	sess, err := tracker.StartSession(ctx, SessionParams{AgentID: "a"})
	require.NoError(t, err)
	require.NoError(t, tracker.Close())

	assert.ErrorIs(t, tracker.Ping(ctx), ErrStoreClosed)

	_, err = tracker.StartSession(ctx, SessionParams{})
	assert.ErrorIs(t, err, ErrStoreClosed)

	_, err = tracker.GetSession(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrStoreClosed)

	err = tracker.RecordWorkflowStep(ctx, StepRecord{SessionID: sess.ID, StepIndex: 1})
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestMemoryTracker_ConcurrentSessions(t *testing.T) {
	tracker := NewMemoryTracker()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := tracker.StartSession(ctx, SessionParams{AgentID: "a"})
			if err != nil {
				t.Error(err)
				return
			}
			for idx := 1; idx <= 4; idx++ {
				if err := tracker.RecordWorkflowStep(ctx, StepRecord{
					SessionID: sess.ID,
					StepIndex: idx,
				}); err != nil {
					t.Error(err)
				}
			}
			if err := tracker.RecordWorkflowCompletion(ctx, sess.ID, OutcomeSuccess, nil); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, tracker.SessionIDs(), 16)
}
