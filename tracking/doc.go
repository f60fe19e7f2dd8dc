// Package tracking provides durable session and step recording for
// instrumented workflow executions.
//
// A Tracker owns the Session lifecycle: one session is created per
// instrumented execution and finalized exactly once with a terminal outcome.
// Every step attempt produces exactly one StepRecord, in order; records are
// never retried or overwritten.
//
// Supported backends:
//   - Memory: for development and testing (default)
//   - Redis: for distributed deployments
//   - Database: gorm-backed SQL storage (sqlite, mysql, postgres)
//   - Mongo: document storage
package tracking
