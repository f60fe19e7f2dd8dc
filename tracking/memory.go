package tracking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryTracker is an in-memory implementation of Tracker.
// Suitable for development and testing. Data is lost on restart.
type MemoryTracker struct {
	sessions map[string]*Session
	steps    map[string][]StepRecord
	mu       sync.RWMutex
	closed   bool
}

// NewMemoryTracker creates a new in-memory tracker
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{
		sessions: make(map[string]*Session),
		steps:    make(map[string][]StepRecord),
	}
}

// Close closes the tracker
func (t *MemoryTracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Ping checks if the tracker is healthy
func (t *MemoryTracker) Ping(ctx context.Context) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return ErrStoreClosed
	}
	return nil
}

// StartSession creates a new session
func (t *MemoryTracker) StartSession(ctx context.Context, params SessionParams) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrStoreClosed
	}

	sess := &Session{
		ID:              uuid.New().String(),
		InitialPrompt:   params.InitialPrompt,
		AgentID:         params.AgentID,
		TemplateID:      params.TemplateID,
		AgentVersion:    params.AgentVersion,
		ParentSessionID: params.ParentSessionID,
		StartedAt:       time.Now(),
	}
	t.sessions[sess.ID] = sess

	out := *sess
	return &out, nil
}

// TrackWorkflowStart attaches the workflow name to a session
func (t *MemoryTracker) TrackWorkflowStart(ctx context.Context, sessionID, workflowName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrStoreClosed
	}
	sess, ok := t.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	sess.WorkflowName = workflowName
	return nil
}

// RecordWorkflowStep persists one step attempt
func (t *MemoryTracker) RecordWorkflowStep(ctx context.Context, record StepRecord) error {
	if record.SessionID == "" || record.StepIndex < 1 {
		return ErrInvalidInput
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrStoreClosed
	}
	if _, ok := t.sessions[record.SessionID]; !ok {
		return ErrNotFound
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now()
	}
	t.steps[record.SessionID] = append(t.steps[record.SessionID], record)
	return nil
}

// RecordWorkflowCompletion finalizes a session with a terminal outcome
func (t *MemoryTracker) RecordWorkflowCompletion(ctx context.Context, sessionID string, outcome Outcome, metrics map[string]any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrStoreClosed
	}
	sess, ok := t.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	sess.Outcome = outcome
	sess.Metrics = metrics
	sess.CompletedAt = &now
	return nil
}

// GetSession returns a session by id
func (t *MemoryTracker) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return nil, ErrStoreClosed
	}
	sess, ok := t.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *sess
	return &out, nil
}

// SessionIDs returns the ids of all sessions in creation-time order.
func (t *MemoryTracker) SessionIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.sessions))
	for id := range t.sessions {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return t.sessions[out[i]].StartedAt.Before(t.sessions[out[j]].StartedAt)
	})
	return out
}

// ListSteps returns the step records of a session ordered by step index
func (t *MemoryTracker) ListSteps(ctx context.Context, sessionID string) ([]StepRecord, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return nil, ErrStoreClosed
	}
	if _, ok := t.sessions[sessionID]; !ok {
		return nil, ErrNotFound
	}

	out := append([]StepRecord(nil), t.steps[sessionID]...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StepIndex < out[j].StepIndex
	})
	return out, nil
}
