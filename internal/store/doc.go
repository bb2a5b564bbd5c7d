// Package store defines interfaces for data persistence operations.
//
// The interfaces cover users, credit accounts with their transaction log, and
// prediction tasks. Implementations live under internal/platform; the
// Transactor interface lets services group writes to several stores into one
// atomic unit without depending on a specific database.
package store
