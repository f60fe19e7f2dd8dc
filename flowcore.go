// Package flowcore provides a top-level convenience entry point for wiring
// the workflow orchestration core with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/flowcore"
//
//	app, err := flowcore.New()
//	app, err := flowcore.New(flowcore.WithConfig(cfg), flowcore.WithLogger(logger))
//
//	app.Register("quality_improvement", qualityWorkflow)
//	out, err := app.Execute(ctx, "quality_improvement", input)
package flowcore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/config"
	"github.com/BaSui01/flowcore/registry"
	"github.com/BaSui01/flowcore/tracking"
	"github.com/BaSui01/flowcore/workflow"
)

// App bundles the orchestration core: session tracker, registry, dispatcher
// and the two executors, all sharing one logger and configuration.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Tracker    tracking.Tracker
	Registry   *registry.Registry
	Dispatcher *registry.Dispatcher
	Runner     *workflow.StepExecutor
	Executor   *workflow.InstrumentedExecutor
}

// Option configures the App created by [New].
type Option func(*options)

type options struct {
	cfg     *config.Config
	logger  *zap.Logger
	tracker tracking.Tracker
	metrics workflow.ExecutionMetrics
}

// WithConfig sets a pre-loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTracker sets a pre-built session tracker, bypassing the configured
// backend.
func WithTracker(t tracking.Tracker) Option {
	return func(o *options) { o.tracker = t }
}

// WithMetrics attaches an execution metrics sink to the instrumented
// executor.
func WithMetrics(m workflow.ExecutionMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// New wires the orchestration core from configuration. With no options it
// uses defaults: in-memory tracking and a no-op logger.
func New(opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := o.cfg
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tracker := o.tracker
	if tracker == nil {
		var err error
		tracker, err = tracking.NewTracker(cfg.Tracking, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create tracker: %w", err)
		}
	}

	reg := registry.New(logger)
	reg.Init(cfg.Registry.Aliases)

	var execOpts []workflow.InstrumentedOption
	if o.metrics != nil {
		execOpts = append(execOpts, workflow.WithExecutionMetrics(o.metrics))
	}

	return &App{
		Config:     cfg,
		Logger:     logger,
		Tracker:    tracker,
		Registry:   reg,
		Dispatcher: registry.NewDispatcher(reg, logger),
		Runner:     workflow.NewStepExecutor(logger),
		Executor:   workflow.NewInstrumentedExecutor(tracker, logger, execOpts...),
	}, nil
}

// Register upserts a workflow module under a type.
func (a *App) Register(workflowType string, wf workflow.Workflow) {
	a.Registry.Register(workflowType, wf)
}

// Execute resolves a type and runs its workflow through the instrumented
// executor.
func (a *App) Execute(ctx context.Context, workflowType string, input workflow.Context) (workflow.Context, error) {
	wf, err := a.Registry.Get(workflowType)
	if err != nil {
		return nil, err
	}
	return a.Executor.ExecuteWithRCA(ctx, wf, input)
}

// Close releases the tracker's backing store.
func (a *App) Close() error {
	return a.Tracker.Close()
}
