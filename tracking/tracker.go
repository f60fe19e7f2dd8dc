package tracking

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// Outcome is the terminal result recorded for a session.
type Outcome string

const (
	// OutcomeSuccess 所有步骤成功完成
	OutcomeSuccess Outcome = "success"
	// OutcomeFailure 执行过程中某个步骤失败
	OutcomeFailure Outcome = "failure_execution"
)

// StepOutcome is the result of a single step attempt.
type StepOutcome string

const (
	StepOutcomeSuccess StepOutcome = "success"
	StepOutcomeError   StepOutcome = "error"
)

// SessionParams carries the identity fields for a new session.
type SessionParams struct {
	InitialPrompt   string `json:"initial_prompt"`
	AgentID         string `json:"agent_id"`
	TemplateID      string `json:"template_id,omitempty"`
	AgentVersion    string `json:"agent_version,omitempty"`
	ParentSessionID string `json:"parent_session_id,omitempty"`
}

// Session is the durable record of one instrumented workflow execution.
// It is created once per execution and terminated exactly once.
type Session struct {
	ID              string         `json:"id"`
	InitialPrompt   string         `json:"initial_prompt"`
	AgentID         string         `json:"agent_id"`
	TemplateID      string         `json:"template_id,omitempty"`
	AgentVersion    string         `json:"agent_version,omitempty"`
	ParentSessionID string         `json:"parent_session_id,omitempty"`
	WorkflowName    string         `json:"workflow_name,omitempty"`
	Outcome         Outcome        `json:"outcome,omitempty"`
	Metrics         map[string]any `json:"metrics,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
}

// StepRecord is the durable record of one step attempt. StepIndex is 1-based
// and follows declaration order within the workflow.
type StepRecord struct {
	SessionID   string         `json:"session_id"`
	StepIndex   int            `json:"step_index"`
	StepName    string         `json:"step_name"`
	Description string         `json:"description"`
	TokensUsed  int            `json:"tokens_used"`
	Metrics     map[string]any `json:"metrics,omitempty"`
	Outcome     StepOutcome    `json:"outcome"`
	DurationMS  int64          `json:"duration_ms"`
	RecordedAt  time.Time      `json:"recorded_at"`
}

// Tracker records sessions, step attempts and terminal outcomes. Callers on
// the business path treat every method except StartSession as best-effort:
// failures are logged by the caller and never surfaced as the workflow's
// result.
type Tracker interface {
	// StartSession creates a new session. This is the only tracking call
	// whose failure aborts an instrumented execution.
	StartSession(ctx context.Context, params SessionParams) (*Session, error)

	// TrackWorkflowStart attaches the workflow name to a session.
	TrackWorkflowStart(ctx context.Context, sessionID, workflowName string) error

	// RecordWorkflowStep persists one step attempt.
	RecordWorkflowStep(ctx context.Context, record StepRecord) error

	// RecordWorkflowCompletion finalizes a session with a terminal outcome.
	RecordWorkflowCompletion(ctx context.Context, sessionID string, outcome Outcome, metrics map[string]any) error

	// GetSession returns a session by id, or ErrNotFound.
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// ListSteps returns the step records of a session ordered by step index.
	ListSteps(ctx context.Context, sessionID string) ([]StepRecord, error)

	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the backing store.
	Close() error
}
