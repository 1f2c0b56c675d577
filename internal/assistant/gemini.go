package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"google.golang.org/genai"

	"github.com/i474232898/weather-assistant/internal/common"
	"github.com/i474232898/weather-assistant/internal/session"
	"github.com/i474232898/weather-assistant/internal/weather"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gemini-2.5-flash"

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini answers through the Gemini API. All calls share one circuit breaker.
type Gemini struct {
	models  contentGenerator
	model   string
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time
}

// NewGemini creates a client for the Gemini developer API.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return newGemini(client.Models, model), nil
}

func newGemini(models contentGenerator, model string) *Gemini {
	if model == "" {
		model = DefaultModel
	}
	return &Gemini{
		models: models,
		model:  model,
		circuit: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "gemini",
			MaxRequests: 3,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
		}),
		now: time.Now,
	}
}

// Model returns the model name in use.
func (g *Gemini) Model() string {
	return g.model
}

func (g *Gemini) generate(ctx context.Context, prompt string, temperature float32, mimeType string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(1024),
	}
	if mimeType != "" {
		cfg.ResponseMIMEType = mimeType
	}

	result, err := g.circuit.Execute(func() (interface{}, error) {
		res, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
		if err != nil {
			return nil, err
		}
		return res.Text(), nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("gemini unavailable: %w", err)
		}
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	text := strings.TrimSpace(result.(string))
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Reply answers a typed chat message.
func (g *Gemini) Reply(ctx context.Context, message string, c Context) (ChatReply, error) {
	raw, err := g.generate(ctx, chatPrompt(message, c), 0.7, "")
	if err != nil {
		return ChatReply{}, err
	}
	return ChatReply{
		Text:      common.TruncateWords(raw, MaxWords),
		Timestamp: g.now().UTC(),
	}, nil
}

// Classify reads the intent of a spoken request and drafts the spoken answer.
func (g *Gemini) Classify(ctx context.Context, transcript string, c Context) (VoiceIntent, error) {
	raw, err := g.generate(ctx, voicePrompt(transcript, c), 0.3, "application/json")
	if err != nil {
		return VoiceIntent{}, err
	}
	return parseVoiceIntent(raw), nil
}

// Suggest writes a theme suggestion for the weather in snap.
func (g *Gemini) Suggest(ctx context.Context, snap weather.WeatherSnapshot, prefs session.Preferences) (session.Suggestion, error) {
	prefs = prefs.WithDefaults()
	raw, err := g.generate(ctx, suggestionPrompt(snap, prefs), 0.7, "")
	if err != nil {
		return session.Suggestion{}, err
	}
	return session.Suggestion{
		Theme:          prefs.Theme,
		Suggestion:     common.TruncateWords(raw, MaxWords),
		Confidence:     Confidence(snap),
		WeatherContext: weatherContext(snap),
		Timestamp:      g.now().UTC(),
	}, nil
}
