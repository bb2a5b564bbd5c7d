// Package domain contains the core business entities of the prediction
// service: users and their credit accounts, the append-only transaction log,
// and prediction tasks with their lifecycle. It is independent of any
// storage or delivery mechanism.
package domain
