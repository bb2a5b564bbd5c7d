package riverqueue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DimeNiceTry/EmotionClassifier/internal/queue"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func job(attempt int, body string) *river.Job[envelopeArgs] {
	return &river.Job[envelopeArgs]{
		JobRow: &rivertype.JobRow{Attempt: attempt},
		Args:   envelopeArgs{Body: json.RawMessage(body)},
	}
}

func TestEnvelopeArgsKind(t *testing.T) {
	assert.Equal(t, "queue_envelope", envelopeArgs{}.Kind())
}

func TestWorkAckCompletesJob(t *testing.T) {
	var got *queue.Message
	w := &envelopeWorker{handler: func(ctx context.Context, msg *queue.Message) {
		got = msg
		require.NoError(t, msg.Ack())
	}}

	err := w.Work(context.Background(), job(1, `{"a":1}`))
	assert.NoError(t, err)
	require.NotNil(t, got)
	assert.JSONEq(t, `{"a":1}`, string(got.Body))
	assert.False(t, got.Redelivered)
}

func TestWorkUnackedFailsAttempt(t *testing.T) {
	w := &envelopeWorker{handler: func(ctx context.Context, msg *queue.Message) {
		assert.True(t, msg.Redelivered)
	}}

	err := w.Work(context.Background(), job(2, `{}`))
	assert.True(t, errors.Is(err, errNotAcknowledged))
}

func TestWorkNackRequeueRetries(t *testing.T) {
	w := &envelopeWorker{handler: func(ctx context.Context, msg *queue.Message) {
		require.NoError(t, msg.Nack(true))
	}}

	assert.ErrorIs(t, w.Work(context.Background(), job(1, `{}`)), errNotAcknowledged)
}

func TestWorkNackDropCancelsJob(t *testing.T) {
	w := &envelopeWorker{handler: func(ctx context.Context, msg *queue.Message) {
		require.NoError(t, msg.Nack(false))
	}}

	err := w.Work(context.Background(), job(1, `{}`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, errNotAcknowledged)
}
