package queue

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DimeNiceTry/EmotionClassifier/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageAckOnce(t *testing.T) {
	acks := 0
	msg := NewMessage([]byte("x"), false, func() error { acks++; return nil }, func(bool) error { return nil })

	require.NoError(t, msg.Ack())
	assert.ErrorIs(t, msg.Ack(), ErrAlreadyAcknowledged)
	assert.ErrorIs(t, msg.Nack(true), ErrAlreadyAcknowledged)
	assert.Equal(t, 1, acks)
	assert.True(t, msg.Settled())
	assert.True(t, msg.Acked())
}

func TestMessageAckFailureLeavesUnsettled(t *testing.T) {
	fail := true
	msg := NewMessage(nil, true, func() error {
		if fail {
			return errors.New("channel closed")
		}
		return nil
	}, func(bool) error { return nil })

	assert.Error(t, msg.Ack())
	assert.False(t, msg.Settled())

	fail = false
	assert.NoError(t, msg.Ack())
}

func TestMessageNack(t *testing.T) {
	var requeued bool
	msg := NewMessage(nil, false, func() error { return nil }, func(r bool) error { requeued = r; return nil })

	require.NoError(t, msg.Nack(true))
	assert.True(t, requeued)
	assert.True(t, msg.Settled())
	assert.False(t, msg.Acked())
}

func TestTaskEnvelopeRoundTrip(t *testing.T) {
	task, err := domain.NewTask(uuid.Nil, 42, json.RawMessage(`{"text":"I love it"}`), decimal.NewFromInt(1))
	require.NoError(t, err)

	body, err := NewTaskEnvelope(task).Encode()
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(body, &wire))
	assert.Equal(t, task.ID.String(), wire["prediction_id"])
	assert.EqualValues(t, 42, wire["user_id"])
	assert.Contains(t, wire, "data")
	assert.Contains(t, wire, "timestamp")

	env, err := DecodeTaskEnvelope(body)
	require.NoError(t, err)
	assert.Equal(t, task.ID, env.TaskUUID())
	assert.Equal(t, domain.KindPrediction, env.EffectiveKind())
	assert.JSONEq(t, `{"text":"I love it"}`, string(env.Data))
}

func TestDecodeTaskEnvelopeRejects(t *testing.T) {
	id := uuid.NewString()
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{{{`},
		{"missing id", `{"user_id":1,"data":{"text":"a"}}`},
		{"bad id", `{"prediction_id":"nope","user_id":1,"data":{"text":"a"}}`},
		{"missing user", `{"prediction_id":"` + id + `","data":{"text":"a"}}`},
		{"missing data", `{"prediction_id":"` + id + `","user_id":1}`},
		{"data not object", `{"prediction_id":"` + id + `","user_id":1,"data":"text"}`},
		{"data null", `{"prediction_id":"` + id + `","user_id":1,"data":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTaskEnvelope([]byte(tt.body))
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr), "got %v", err)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestDecodeTaskEnvelopeKeepsKind(t *testing.T) {
	body := `{"prediction_id":"` + uuid.NewString() + `","user_id":3,"kind":"sentiment","data":{},"timestamp":"2024-01-01T00:00:00Z"}`
	env, err := DecodeTaskEnvelope([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "sentiment", env.EffectiveKind())
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), env.Timestamp)
}

func TestResultEnvelope(t *testing.T) {
	env := ResultEnvelope{
		TaskID:    uuid.NewString(),
		Status:    string(domain.TaskStatusCompleted),
		Result:    json.RawMessage(`{"prediction":"positive"}`),
		WorkerID:  "worker-1",
		Timestamp: time.Now().UTC(),
	}
	body, err := env.Encode()
	require.NoError(t, err)

	got, err := DecodeResultEnvelope(body)
	require.NoError(t, err)
	assert.Equal(t, env.TaskID, got.TaskID)
	assert.Equal(t, "worker-1", got.WorkerID)

	_, err = DecodeResultEnvelope([]byte(`{"prediction_id":"x"}`))
	assert.ErrorIs(t, err, domain.ErrValidation)
}
