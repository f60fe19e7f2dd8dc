package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Step 工作流步骤接口
// A step is the atomic unit of workflow execution: a named function from
// Context to a new Context or an error.
type Step interface {
	// Name 返回步骤名称
	Name() string
	// Execute runs the step against the context produced by its predecessor.
	Execute(ctx context.Context, wctx Context) (Context, error)
}

// StepFunc 步骤函数类型
type StepFunc func(ctx context.Context, wctx Context) (Context, error)

// FuncStep 函数步骤实现
type FuncStep struct {
	name string
	fn   StepFunc
}

// NewFuncStep 创建函数步骤
func NewFuncStep(name string, fn StepFunc) *FuncStep {
	return &FuncStep{
		name: name,
		fn:   fn,
	}
}

func (s *FuncStep) Execute(ctx context.Context, wctx Context) (Context, error) {
	return s.fn(ctx, wctx)
}

func (s *FuncStep) Name() string {
	return s.name
}

// Config carries the identity fields a workflow contributes to its tracking
// session. TemplateID, AgentVersion and ParentSessionID are optional.
type Config struct {
	AgentID         string `json:"agent_id" yaml:"agent_id"`
	TemplateID      string `json:"template_id,omitempty" yaml:"template_id"`
	AgentVersion    string `json:"agent_version,omitempty" yaml:"agent_version"`
	ParentSessionID string `json:"parent_session_id,omitempty" yaml:"parent_session_id"`
}

// Workflow 工作流接口
// A workflow exposes its ordered step list and its tracking identity.
// Implementations are plain structs composed with the executors; no
// execution behavior is injected into workflow types themselves.
type Workflow interface {
	// Name 返回工作流名称
	Name() string
	// Steps returns the ordered step list. The slice must not change after
	// the workflow is registered.
	Steps() []Step
	// Config returns the tracking identity for instrumented runs.
	Config() Config
}

// ValidateInput checks that the required keys are present in the context.
// Steps call this voluntarily at their own entry; the executors do not
// enforce it.
func ValidateInput(stepName string, wctx Context, required []string) error {
	var missing []string
	for _, key := range required {
		if !wctx.Has(key) {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &StepError{
		Code:   ErrCodeStepValidation,
		Step:   stepName,
		Reason: fmt.Sprintf("Missing required fields in %s: %s", stepName, strings.Join(missing, ", ")),
	}
}
