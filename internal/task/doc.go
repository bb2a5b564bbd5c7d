// Package task consumes queued prediction tasks and writes their outcome.
//
// A WorkerPool runs a fixed number of consume loops, each handling one
// delivery at a time. For every delivery the Worker decodes the envelope,
// picks the Predictor registered for the task kind, records the result (or
// the failure) in the task store and only then acknowledges the message. A
// delivery whose outcome could not be stored is left unacknowledged so the
// broker hands it out again.
package task
