package task

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/DimeNiceTry/EmotionClassifier/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestValidateInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "text", input: `{"text":"what a day"}`},
		{name: "extra fields allowed", input: `{"text":"ok","lang":"en"}`},
		{name: "missing text", input: `{"body":"x"}`, wantErr: true},
		{name: "empty text", input: `{"text":""}`, wantErr: true},
		{name: "text not a string", input: `{"text":5}`, wantErr: true},
		{name: "too long", input: `{"text":"` + strings.Repeat("a", 10001) + `"}`, wantErr: true},
		{name: "array", input: `["text"]`, wantErr: true},
		{name: "not json", input: `{"text":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInput(json.RawMessage(tt.input))
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestValidateOutput(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateOutput(json.RawMessage(`{"prediction":"neutral","confidence":0.4}`)))
	assert.ErrorIs(t, ValidateOutput(json.RawMessage(`{"prediction":"angry","confidence":0.4}`)), domain.ErrValidation)
	assert.ErrorIs(t, ValidateOutput(json.RawMessage(`{"prediction":"neutral","confidence":1.5}`)), domain.ErrValidation)
}
