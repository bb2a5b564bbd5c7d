// Package api exposes the prediction service over HTTP: registration and
// login, prediction submission and lookup, balance top-ups and the
// transaction log. Handlers translate requests into service calls and map
// service errors to sanitized JSON error bodies carrying a trace ID.
package api
