// Package session holds the conversation record shared by the chat endpoints and the
// orchestrator, together with its storage backends.
package session

import (
	"time"
)

// AnonymousUser is the user id of sessions created without a signed-in user.
const AnonymousUser = "anonymous"

// MessageType tells who authored a message.
type MessageType string

const (
	MessageUser      MessageType = "user"
	MessageAssistant MessageType = "assistant"
)

// Suggestion themes.
const (
	ThemeTravel      = "travel"
	ThemeFashion     = "fashion"
	ThemeSports      = "sports"
	ThemeMusic       = "music"
	ThemeAgriculture = "agriculture"
	ThemeGeneral     = "general"
)

// Themes lists every supported suggestion theme.
var Themes = []string{ThemeTravel, ThemeFashion, ThemeSports, ThemeMusic, ThemeAgriculture, ThemeGeneral}

const DefaultLanguage = "ja"

type Location struct {
	City    string `json:"city" bson:"city"`
	Country string `json:"country" bson:"country"`
}

type Preferences struct {
	Language string    `json:"language" bson:"language"`
	Theme    string    `json:"theme" bson:"theme"`
	Location *Location `json:"location,omitempty" bson:"location,omitempty"`
}

// WithDefaults fills the language and theme when they are unset.
func (p Preferences) WithDefaults() Preferences {
	if p.Language == "" {
		p.Language = DefaultLanguage
	}
	if p.Theme == "" {
		p.Theme = ThemeTravel
	}
	return p.clone()
}

func (p Preferences) clone() Preferences {
	if p.Location != nil {
		loc := *p.Location
		p.Location = &loc
	}
	return p
}

// HasLocation reports whether a city is stored.
func (p Preferences) HasLocation() bool {
	return p.Location != nil && p.Location.City != ""
}

// Message is immutable once appended.
type Message struct {
	Type         MessageType `json:"type" bson:"type"`
	Content      string      `json:"content" bson:"content"`
	Language     string      `json:"language" bson:"language"`
	IsVoiceInput bool        `json:"isVoiceInput" bson:"isVoiceInput"`
	Timestamp    time.Time   `json:"timestamp" bson:"timestamp"`
}

// WeatherData is the session's latest successful weather snapshot.
type WeatherData struct {
	Location    string    `json:"location" bson:"location"`
	Country     string    `json:"country,omitempty" bson:"country,omitempty"`
	Temperature float64   `json:"temperature" bson:"temperature"`
	Description string    `json:"description" bson:"description"`
	Humidity    float64   `json:"humidity" bson:"humidity"`
	WindSpeed   float64   `json:"windSpeed" bson:"windSpeed"`
	Timestamp   time.Time `json:"timestamp" bson:"timestamp"`
}

// WeatherContext is the weather a suggestion was based on.
type WeatherContext struct {
	Temperature float64 `json:"temperature" bson:"temperature"`
	Description string  `json:"description" bson:"description"`
	Location    string  `json:"location" bson:"location"`
}

// Suggestion is immutable once appended.
type Suggestion struct {
	Theme          string         `json:"theme" bson:"theme"`
	Suggestion     string         `json:"suggestion" bson:"suggestion"`
	Confidence     float64        `json:"confidence" bson:"confidence"`
	WeatherContext WeatherContext `json:"weatherContext" bson:"weatherContext"`
	Timestamp      time.Time      `json:"timestamp" bson:"timestamp"`
}

type Session struct {
	SessionID     string       `json:"sessionId" bson:"sessionId"`
	UserID        string       `json:"userId" bson:"userId"`
	Preferences   Preferences  `json:"preferences" bson:"preferences"`
	Messages      []Message    `json:"messages" bson:"messages"`
	WeatherData   *WeatherData `json:"weatherData" bson:"weatherData,omitempty"`
	AISuggestions []Suggestion `json:"aiSuggestions" bson:"aiSuggestions"`
	CreatedAt     time.Time    `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt" bson:"updatedAt"`
}

// LatestSuggestion returns the most recent suggestion, or nil.
func (s *Session) LatestSuggestion() *Suggestion {
	if len(s.AISuggestions) == 0 {
		return nil
	}
	last := s.AISuggestions[len(s.AISuggestions)-1]
	return &last
}

// Clone returns a deep copy so callers never share slices with a store.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Preferences = s.Preferences.clone()
	c.Messages = append([]Message(nil), s.Messages...)
	c.AISuggestions = append([]Suggestion(nil), s.AISuggestions...)
	if s.WeatherData != nil {
		w := *s.WeatherData
		c.WeatherData = &w
	}
	return &c
}

// Summary is the list view of a session.
type Summary struct {
	SessionID    string      `json:"sessionId"`
	Preferences  Preferences `json:"preferences"`
	MessageCount int         `json:"messageCount"`
	LastMessage  *Message    `json:"lastMessage"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// Summarize builds the list view of s.
func (s *Session) Summarize() Summary {
	sum := Summary{
		SessionID:    s.SessionID,
		Preferences:  s.Preferences.clone(),
		MessageCount: len(s.Messages),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
	if n := len(s.Messages); n > 0 {
		last := s.Messages[n-1]
		sum.LastMessage = &last
	}
	return sum
}
