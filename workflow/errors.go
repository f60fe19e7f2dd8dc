package workflow

import "fmt"

// ErrorCode classifies workflow execution failures.
type ErrorCode string

const (
	// ErrCodeStepExecution 步骤显式返回错误
	ErrCodeStepExecution ErrorCode = "STEP_EXECUTION"
	// ErrCodeStepException 步骤内部 panic
	ErrCodeStepException ErrorCode = "STEP_EXCEPTION"
	// ErrCodeStepValidation 步骤必需字段缺失
	ErrCodeStepValidation ErrorCode = "STEP_VALIDATION"
	// ErrCodeBootstrap 会话创建失败，任何步骤都未运行
	ErrCodeBootstrap ErrorCode = "WORKFLOW_BOOTSTRAP"
)

// StepError is the terminal error shape returned by the executors. Step is
// empty when the failure could not be attributed to a specific step (the
// whole-run panic guard in StepExecutor, and session bootstrap failures).
type StepError struct {
	Code   ErrorCode
	Step   string
	Reason string
	Cause  error
}

func (e *StepError) Error() string {
	switch {
	case e.Code == ErrCodeStepValidation:
		return e.Reason
	case e.Code == ErrCodeBootstrap:
		return fmt.Sprintf("workflow_bootstrap: %s", e.Reason)
	case e.Step == "":
		return fmt.Sprintf("workflow_execution: %s", e.Reason)
	default:
		return fmt.Sprintf("step %s: %s", e.Step, e.Reason)
	}
}

// Unwrap returns the underlying cause.
func (e *StepError) Unwrap() error {
	return e.Cause
}
