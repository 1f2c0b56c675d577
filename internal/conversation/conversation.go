// Package conversation runs chat turns against a session: it persists the user's message,
// gathers weather, asks the assistant for a reply and, when the weather allows, a suggestion.
package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/i474232898/weather-assistant/internal/assistant"
	"github.com/i474232898/weather-assistant/internal/session"
	"github.com/i474232898/weather-assistant/internal/weather"
)

// ErrInvalidInput is returned for requests missing a session id or message.
var ErrInvalidInput = errors.New("invalid input")

// Dependency names used in degradations, logs and metrics.
const (
	DependencyWeather    = "weather"
	DependencyChat       = "chat"
	DependencyVoice      = "voice_intent"
	DependencySuggestion = "suggestion"
	DependencyStore      = "store"
)

type WeatherProvider interface {
	Current(ctx context.Context, loc weather.Location) (weather.WeatherSnapshot, error)
}

type ChatResponder interface {
	Reply(ctx context.Context, message string, c assistant.Context) (assistant.ChatReply, error)
}

type VoiceIntentClassifier interface {
	Classify(ctx context.Context, transcript string, c assistant.Context) (assistant.VoiceIntent, error)
}

type SuggestionGenerator interface {
	Suggest(ctx context.Context, snap weather.WeatherSnapshot, prefs session.Preferences) (session.Suggestion, error)
}

// FatalError reports a persistence failure that aborted a turn before the user's message
// was safely stored.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("conversation: %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Degradation is a best-effort step that failed without failing the turn.
type Degradation struct {
	Dependency string `json:"dependency"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

// MessageRequest is one inbound user message.
type MessageRequest struct {
	SessionID    string
	Message      string
	IsVoiceInput bool
	// Language of the message; empty means the session's preferred language.
	Language string
	// Location overrides the session's preferred location for this turn.
	Location *session.Location
}

// Turn is the result of HandleMessage.
type Turn struct {
	UserMessage      session.Message        `json:"userMessage"`
	AssistantMessage session.Message        `json:"assistantMessage"`
	WeatherData      *session.WeatherData   `json:"weatherData"`
	Suggestion       *session.Suggestion    `json:"suggestion"`
	Intent           *assistant.VoiceIntent `json:"intent,omitempty"`
	Degradations     []Degradation          `json:"degradations,omitempty"`
}

// Degraded reports whether any best-effort step failed.
func (t *Turn) Degraded() bool {
	return len(t.Degradations) > 0
}
