// Package workflow implements the sequential step execution core of flowcore.
//
// A workflow is an ordered list of named steps. Each step receives the
// Context produced by its predecessor and returns a new Context or an error.
// Execution is strictly sequential and fail-fast: the first failing step
// terminates the run and no later step is invoked.
//
// Two executors are provided:
//
//   - StepExecutor runs steps with no observability beyond logging.
//   - InstrumentedExecutor wraps the same step contract and records a
//     durable trace of every step attempt (timing, outcome, metrics) through
//     a tracking.Tracker session. Tracking failures are logged and swallowed;
//     they never change the business outcome returned to the caller.
//
// Declarative scheduling metadata carried on Definition (depends_on, next,
// timeout_ms, concurrency) belongs to an external durable DAG engine and is
// not interpreted by the executors in this package.
package workflow
