// Package log wraps zerolog to provide a single global structured
// logger, configured once via Init, with component-scoped child
// loggers (WithComponent) and domain-specific child loggers
// (WithJobID, WithExecutionID) for attaching identifiers to every log
// line in a reconciliation or scheduled execution.
package log
