package task

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

// Sentiment labels produced by the predictors.
const (
	LabelPositive = "positive"
	LabelNegative = "negative"
	LabelNeutral  = "neutral"
)

var (
	positiveWords = []string{"good", "great", "love", "success", "excellent", "happy", "хорошо", "успех", "положительно"}
	negativeWords = []string{"bad", "awful", "hate", "failure", "terrible", "sad", "плохо", "неудача", "отрицательно"}
)

// confidence ranges per label, [lo, hi).
var confidenceRange = map[string][2]float64{
	LabelPositive: {0.70, 0.95},
	LabelNegative: {0.60, 0.85},
	LabelNeutral:  {0.40, 0.60},
}

// Prediction is the result document written for a prediction task.
type Prediction struct {
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
	InputText  string  `json:"input_text,omitempty"`
}

// KeywordPredictor is a stand-in sentiment classifier: it looks for known
// positive and negative words and otherwise picks a label at random
// (30% positive, 30% negative, 40% neutral). Each call sleeps for a random
// duration in [MinLatency, MaxLatency] to mimic model inference.
type KeywordPredictor struct {
	MinLatency time.Duration
	MaxLatency time.Duration

	mu    sync.Mutex
	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
}

// NewKeywordPredictor returns a predictor with a time-seeded random source.
func NewKeywordPredictor(minLatency, maxLatency time.Duration) *KeywordPredictor {
	seed := uint64(time.Now().UnixNano())
	return NewKeywordPredictorWithSource(minLatency, maxLatency, rand.NewPCG(seed, seed>>1))
}

// NewKeywordPredictorWithSource returns a predictor drawing from src.
func NewKeywordPredictorWithSource(minLatency, maxLatency time.Duration, src rand.Source) *KeywordPredictor {
	if maxLatency < minLatency {
		maxLatency = minLatency
	}
	return &KeywordPredictor{
		MinLatency: minLatency,
		MaxLatency: maxLatency,
		rng:        rand.New(src),
		sleep:      sleepContext,
	}
}

// Predict implements Predictor.
func (p *KeywordPredictor) Predict(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	if err := ValidateInput(input); err != nil {
		return nil, err
	}
	var in struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	text := strings.ToLower(in.Text)

	p.mu.Lock()
	delay := p.MinLatency
	if span := p.MaxLatency - p.MinLatency; span > 0 {
		delay += time.Duration(p.rng.Int64N(int64(span)))
	}
	label := classify(text, p.rng.Float64())
	r := confidenceRange[label]
	confidence := r[0] + p.rng.Float64()*(r[1]-r[0])
	p.mu.Unlock()

	if err := p.sleep(ctx, delay); err != nil {
		return nil, err
	}

	return json.Marshal(Prediction{
		Prediction: label,
		Confidence: math.Round(confidence*100) / 100,
		InputText:  in.Text,
	})
}

// classify picks the label for text; roll in [0,1) decides texts without
// any known word.
func classify(text string, roll float64) string {
	switch {
	case containsAny(text, positiveWords):
		return LabelPositive
	case containsAny(text, negativeWords):
		return LabelNegative
	case roll < 0.3:
		return LabelPositive
	case roll < 0.6:
		return LabelNegative
	default:
		return LabelNeutral
	}
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
