// Package assistant produces the natural-language side of a conversation turn: chat replies,
// voice intent classification and weather-based suggestions.
package assistant

import (
	"errors"
	"time"

	"github.com/i474232898/weather-assistant/internal/session"
)

// ErrEmptyResponse is returned when the model answered with no text.
var ErrEmptyResponse = errors.New("assistant returned an empty response")

// MaxWords caps every reply and suggestion.
const MaxWords = 100

// Voice intents.
const (
	IntentWeatherQuery     = "weather_query"
	IntentTravelSuggestion = "travel_suggestion"
	IntentGeneralChat      = "general_chat"
)

const (
	unknownTimeframe = "不明"
	generalActivity  = "一般"
)

// Context is what a reply may draw on. Weather is nil when no weather was resolved for the turn.
type Context struct {
	Weather     *session.WeatherData
	Preferences session.Preferences
	// Language of the user's message; replies use it.
	Language string
}

type ChatReply struct {
	Text      string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// VoiceIntent is the structured reading of a spoken request.
type VoiceIntent struct {
	Intent       string `json:"intent"`
	Location     string `json:"location,omitempty"`
	Timeframe    string `json:"timeframe"`
	ActivityType string `json:"activity_type"`
	Response     string `json:"response"`
}

// WeatherRelated reports whether the intent is about weather or going out.
func (v VoiceIntent) WeatherRelated() bool {
	return v.Intent == IntentWeatherQuery || v.Intent == IntentTravelSuggestion
}
