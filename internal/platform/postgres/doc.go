// Package postgres provides PostgreSQL-specific implementations for the data
// storage interfaces defined in the internal/store package: users, credit
// accounts with their transaction log, and prediction tasks. It also owns the
// embedded goose migrations and the connection bootstrap.
package postgres
