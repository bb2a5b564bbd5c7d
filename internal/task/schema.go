package task

import (
	"encoding/json"
	"fmt"

	"github.com/DimeNiceTry/EmotionClassifier/internal/domain"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const predictionInputSchema = `{
  "type": "object",
  "required": ["text"],
  "properties": {
    "text": {"type": "string", "minLength": 1, "maxLength": 10000}
  }
}`

const predictionOutputSchema = `{
  "type": "object",
  "required": ["prediction", "confidence"],
  "properties": {
    "prediction": {"type": "string", "enum": ["positive", "negative", "neutral"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  }
}`

// ErrInvalidInput is returned by ValidateInput. It wraps domain.ErrValidation.
var ErrInvalidInput = fmt.Errorf("%w: data must be an object with a text string of 1 to 10000 characters", domain.ErrValidation)

var (
	inputSchema  = jsonschema.MustCompileString("prediction_input.json", predictionInputSchema)
	outputSchema = jsonschema.MustCompileString("prediction_output.json", predictionOutputSchema)
)

// ValidateInput checks a prediction payload. The error wraps ErrInvalidInput.
func ValidateInput(input json.RawMessage) error {
	if err := validateAgainst(inputSchema, input); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return nil
}

// ValidateOutput checks a predictor result. The error wraps
// domain.ErrValidation.
func ValidateOutput(output json.RawMessage) error {
	if err := validateAgainst(outputSchema, output); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return nil
}

func validateAgainst(schema *jsonschema.Schema, raw json.RawMessage) error {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return err
	}
	return nil
}
