package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"text/template"

	"github.com/DimeNiceTry/EmotionClassifier/internal/config"
	"github.com/DimeNiceTry/EmotionClassifier/internal/platform/backoff"
	"github.com/DimeNiceTry/EmotionClassifier/internal/platform/logger"
	"google.golang.org/genai"
)

const promptText = `Classify the sentiment of the text between the markers.
Answer with a single JSON object and nothing else:
{"prediction": "positive" | "negative" | "neutral", "confidence": number between 0 and 1}

<<<
{{.Text}}
>>>`

var promptTemplate = template.Must(template.New("sentiment").Parse(promptText))

// contentGenerator is the subset of *genai.Models the predictor calls.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Predictor classifies text sentiment with a Gemini model.
type Predictor struct {
	models contentGenerator
	model  string
	retry  config.RetryConfig
	logger *slog.Logger
}

// NewPredictor creates a Gemini client for cfg.
func NewPredictor(ctx context.Context, cfg config.LLMConfig, retry config.RetryConfig, log *slog.Logger) (*Predictor, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}
	return newPredictor(client.Models, cfg.ModelName, retry, log), nil
}

func newPredictor(models contentGenerator, model string, retry config.RetryConfig, log *slog.Logger) *Predictor {
	if log == nil {
		log = slog.Default()
	}
	return &Predictor{
		models: models,
		model:  model,
		retry:  retry,
		logger: log.With(slog.String("component", "gemini_predictor"), slog.String("model", model)),
	}
}

type sentiment struct {
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
	InputText  string  `json:"input_text,omitempty"`
}

// Predict implements the worker predictor contract.
func (p *Predictor) Predict(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	if strings.TrimSpace(in.Text) == "" {
		return nil, ErrEmptyText
	}

	var prompt bytes.Buffer
	if err := promptTemplate.Execute(&prompt, struct{ Text string }{in.Text}); err != nil {
		return nil, fmt.Errorf("failed to execute prompt template: %w", err)
	}

	log := logger.FromContextOrDefault(ctx, p.logger)
	var answer string
	err := backoff.Retry(ctx, p.retry, log, "gemini", func(ctx context.Context) error {
		var err error
		answer, err = p.generate(ctx, prompt.String())
		return err
	}, isPermanent)
	if err != nil {
		return nil, err
	}

	s, err := parseSentiment(answer)
	if err != nil {
		return nil, err
	}
	s.InputText = in.Text
	return json.Marshal(s)
}

func (p *Predictor) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := p.models.GenerateContent(ctx, p.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrInvalidResponse)
	}
	c := resp.Candidates[0]
	if c.FinishReason == genai.FinishReasonSafety {
		return "", ErrContentBlocked
	}
	if c.Content == nil {
		return "", fmt.Errorf("%w: empty content", ErrInvalidResponse)
	}
	var sb strings.Builder
	for _, part := range c.Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}

func isPermanent(err error) bool {
	return errors.Is(err, ErrContentBlocked) ||
		errors.Is(err, ErrInvalidResponse) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// parseSentiment reads the model answer, tolerating a Markdown code fence
// and label synonyms.
func parseSentiment(answer string) (sentiment, error) {
	answer = strings.TrimSpace(answer)
	answer = strings.TrimPrefix(answer, "```json")
	answer = strings.TrimPrefix(answer, "```")
	answer = strings.TrimSuffix(answer, "```")

	var s sentiment
	if err := json.Unmarshal([]byte(strings.TrimSpace(answer)), &s); err != nil {
		return sentiment{}, fmt.Errorf("%w: failed to parse JSON response: %v", ErrInvalidResponse, err)
	}

	switch strings.ToLower(strings.TrimSpace(s.Prediction)) {
	case "positive", "pos":
		s.Prediction = "positive"
	case "negative", "neg":
		s.Prediction = "negative"
	case "neutral", "mixed":
		s.Prediction = "neutral"
	default:
		return sentiment{}, fmt.Errorf("%w: unknown label %q", ErrInvalidResponse, s.Prediction)
	}
	if math.IsNaN(s.Confidence) || s.Confidence < 0 || s.Confidence > 1 {
		return sentiment{}, fmt.Errorf("%w: confidence %v out of range", ErrInvalidResponse, s.Confidence)
	}
	s.Confidence = math.Round(s.Confidence*100) / 100
	return s, nil
}
