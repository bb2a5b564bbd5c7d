// Package gemini implements a sentiment Predictor backed by Google's Gemini
// API.
//
// The predictor renders the task text into a prompt, asks the model for a
// JSON answer of the form {"prediction": ..., "confidence": ...} and
// normalizes it to the labels used by the rest of the service. Transient API
// errors are retried with the service-wide backoff policy; blocked or
// unparseable answers fail the task immediately.
package gemini
