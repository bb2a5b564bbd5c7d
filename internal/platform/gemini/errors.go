package gemini

import "errors"

// Error definitions for the gemini package.
var (
	// ErrInvalidConfig is returned when the predictor cannot be constructed.
	ErrInvalidConfig = errors.New("invalid gemini configuration")

	// ErrEmptyText is returned when the task input carries no text.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrInvalidResponse is returned when the model answer cannot be used.
	ErrInvalidResponse = errors.New("invalid response from gemini")

	// ErrContentBlocked is returned when safety filters stopped the answer.
	ErrContentBlocked = errors.New("content blocked by safety filters")
)
