package conversation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/weather-assistant/internal/session"
)

const (
	DefaultHistoryLimit  = 50
	DefaultSessionsLimit = 10
)

// Dependencies are the collaborators of a Service.
type Dependencies struct {
	Store       session.Store
	Weather     WeatherProvider
	Chat        ChatResponder
	Voice       VoiceIntentClassifier
	Suggestions SuggestionGenerator
}

// Service owns session lifecycle and chat turns. Turns for the same session run one at a time.
type Service struct {
	store       session.Store
	weather     WeatherProvider
	chat        ChatResponder
	voice       VoiceIntentClassifier
	suggestions SuggestionGenerator

	locks *sessionLocks
	now   func() time.Time
	newID func() string
}

func NewService(deps Dependencies) *Service {
	return &Service{
		store:       deps.Store,
		weather:     deps.Weather,
		chat:        deps.Chat,
		voice:       deps.Voice,
		suggestions: deps.Suggestions,
		locks:       newSessionLocks(),
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// CreateSession starts a session for userID, or for the anonymous user when it is empty.
func (s *Service) CreateSession(ctx context.Context, userID string, prefs session.Preferences) (*session.Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = session.AnonymousUser
	}
	prefs = prefs.WithDefaults()
	if err := validatePreferences(prefs); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sess := &session.Session{
		SessionID:     s.newID(),
		UserID:        userID,
		Preferences:   prefs,
		Messages:      []session.Message{},
		AISuggestions: []session.Suggestion{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

func (s *Service) GetSession(ctx context.Context, id string) (*session.Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: sessionId is required", ErrInvalidInput)
	}
	return s.store.Get(ctx, id)
}

// History is one page of a session's messages plus its current state.
type History struct {
	SessionID     string               `json:"sessionId"`
	Messages      []session.Message    `json:"messages"`
	WeatherData   *session.WeatherData `json:"weatherData"`
	Suggestions   []session.Suggestion `json:"suggestions"`
	Preferences   session.Preferences  `json:"preferences"`
	TotalMessages int                  `json:"totalMessages"`
}

// History returns messages[offset:offset+limit] of the session.
func (s *Service) History(ctx context.Context, id string, limit, offset int) (*History, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	offset = max(offset, 0)

	total := len(sess.Messages)
	start := min(offset, total)
	end := min(start+limit, total)

	suggestions := sess.AISuggestions
	if suggestions == nil {
		suggestions = []session.Suggestion{}
	}
	return &History{
		SessionID:     sess.SessionID,
		Messages:      append([]session.Message{}, sess.Messages[start:end]...),
		WeatherData:   sess.WeatherData,
		Suggestions:   suggestions,
		Preferences:   sess.Preferences,
		TotalMessages: total,
	}, nil
}

// UpdatePreferences replaces the session's preferences. Unset language and theme take defaults.
func (s *Service) UpdatePreferences(ctx context.Context, id string, prefs session.Preferences) (*session.Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: sessionId is required", ErrInvalidInput)
	}
	prefs = prefs.WithDefaults()
	if err := validatePreferences(prefs); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()
	return s.store.Update(ctx, id, session.Patch{Preferences: &prefs})
}

// ListSessions returns one page of userID's sessions, most recently active first.
func (s *Service) ListSessions(ctx context.Context, userID string, limit, offset int) ([]session.Summary, int, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, 0, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultSessionsLimit
	}
	return s.store.ListByUser(ctx, userID, limit, max(offset, 0))
}

// CleanupIdle deletes sessions that have not changed for ttl.
func (s *Service) CleanupIdle(ctx context.Context, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}
	return s.store.DeleteIdle(ctx, s.now().UTC().Add(-ttl))
}

func validatePreferences(p session.Preferences) error {
	if !slices.Contains(session.Themes, p.Theme) {
		return fmt.Errorf("%w: unknown theme %q", ErrInvalidInput, p.Theme)
	}
	if p.Location != nil && strings.TrimSpace(p.Location.City) == "" {
		return fmt.Errorf("%w: location requires a city", ErrInvalidInput)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, session.ErrNotFound)
}
