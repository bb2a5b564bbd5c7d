// Package logger provides structured logging functionality for the application.
//
// It builds on the standard library log/slog package with a JSON handler at a
// configurable level, and carries request-scoped loggers through
// context.Context so that trace and component attributes follow a call chain
// across package boundaries.
package logger
