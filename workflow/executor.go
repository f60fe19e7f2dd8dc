package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// StepExecutor 顺序步骤执行器
// StepExecutor folds an ordered step list over a Context, stopping at the
// first failure. It carries no timeout, retry or cancellation of its own;
// a cancelled context is honored between steps, never inside one.
type StepExecutor struct {
	logger *zap.Logger
}

// NewStepExecutor 创建顺序步骤执行器
func NewStepExecutor(logger *zap.Logger) *StepExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StepExecutor{
		logger: logger.With(zap.String("component", "step_executor")),
	}
}

// Execute 按顺序执行步骤，遇到第一个失败立即停止
// On an explicit step error the returned *StepError carries the step name.
// A panic anywhere in the run is converted by the whole-run guard into an
// error without step identity; callers that need per-step attribution for
// panics should run through InstrumentedExecutor instead.
func (e *StepExecutor) Execute(ctx context.Context, steps []Step, input Context) (out Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("workflow panicked", zap.Any("panic", r))
			out = nil
			err = &StepError{
				Code:   ErrCodeStepException,
				Reason: fmt.Sprintf("%v", r),
			}
		}
	}()

	current := input
	for i, step := range steps {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		start := time.Now()
		e.logger.Debug("step started",
			zap.Int("index", i+1),
			zap.String("step", step.Name()),
		)

		next, stepErr := step.Execute(ctx, current)
		if stepErr != nil {
			e.logger.Warn("step failed",
				zap.Int("index", i+1),
				zap.String("step", step.Name()),
				zap.Duration("duration", time.Since(start)),
				zap.Error(stepErr),
			)
			return nil, &StepError{
				Code:   ErrCodeStepExecution,
				Step:   step.Name(),
				Reason: stepErr.Error(),
				Cause:  stepErr,
			}
		}

		e.logger.Debug("step completed",
			zap.Int("index", i+1),
			zap.String("step", step.Name()),
			zap.Duration("duration", time.Since(start)),
		)
		current = next
	}

	return current, nil
}
