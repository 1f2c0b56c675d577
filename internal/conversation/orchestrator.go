package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/i474232898/weather-assistant/internal/assistant"
	"github.com/i474232898/weather-assistant/internal/observability"
	"github.com/i474232898/weather-assistant/internal/session"
	"github.com/i474232898/weather-assistant/internal/weather"
)

var fallbackReplies = map[string]string{
	"ja": "申し訳ありません。ただいま返答を作成できませんでした。もう一度お試しください。",
	"en": "Sorry, I couldn't put together an answer just now. Please try again.",
	"zh": "抱歉，暂时无法生成回复，请稍后再试。",
}

// HandleMessage runs one chat turn. The user's message is stored before anything else;
// only that step, or a missing session, fails the call. Weather, reply and suggestion
// failures are logged and listed in Turn.Degradations.
func (s *Service) HandleMessage(ctx context.Context, req MessageRequest) (*Turn, error) {
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		return nil, fmt.Errorf("%w: sessionId is required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}

	unlock := s.locks.Lock(req.SessionID)
	defer unlock()

	log := observability.LoggerFromContext(ctx).With().
		Str("session_id", req.SessionID).
		Bool("voice", req.IsVoiceInput).
		Logger()

	sess, err := s.store.Get(ctx, req.SessionID)
	if err != nil {
		if isNotFound(err) {
			return nil, err
		}
		observability.TurnsTotal.WithLabelValues("failed").Inc()
		return nil, &FatalError{Op: "load session", Err: err}
	}

	prefs := sess.Preferences.WithDefaults()
	// Both messages carry the language of this request; the session preference never fills it in.
	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = session.DefaultLanguage
	}

	userMsg := session.Message{
		Type:         session.MessageUser,
		Content:      req.Message,
		Language:     language,
		IsVoiceInput: req.IsVoiceInput,
		Timestamp:    s.now().UTC(),
	}
	if err := s.store.AppendMessage(ctx, req.SessionID, userMsg); err != nil {
		if isNotFound(err) {
			return nil, err
		}
		observability.TurnsTotal.WithLabelValues("failed").Inc()
		log.Error().Err(err).Msg("failed to store user message")
		return nil, &FatalError{Op: "append user message", Err: err}
	}

	t := &turn{log: log, Turn: &Turn{UserMessage: userMsg, WeatherData: sess.WeatherData}}

	var snap *weather.WeatherSnapshot
	if loc := resolveLocation(req.Location, prefs); loc != nil {
		snap = s.fetchWeather(ctx, t, req.SessionID, *loc)
	}

	aiCtx := assistant.Context{Preferences: prefs, Language: language}
	if snap != nil {
		aiCtx.Weather = t.WeatherData
	}

	reply := s.reply(ctx, t, req, aiCtx)
	t.AssistantMessage = session.Message{
		Type:      session.MessageAssistant,
		Content:   reply,
		Language:  language,
		Timestamp: s.now().UTC(),
	}
	if err := s.store.AppendMessage(ctx, req.SessionID, t.AssistantMessage); err != nil {
		t.degrade(DependencyStore, err)
	}

	if snap != nil && !(req.IsVoiceInput && t.Intent != nil && !t.Intent.WeatherRelated()) {
		t.Suggestion = s.suggest(ctx, t, req.SessionID, *snap, prefs)
	}
	if t.Suggestion == nil {
		t.Suggestion = sess.LatestSuggestion()
	}

	outcome := "ok"
	if t.Degraded() {
		outcome = "degraded"
	}
	observability.TurnsTotal.WithLabelValues(outcome).Inc()
	log.Debug().Str("outcome", outcome).Msg("turn handled")
	return t.Turn, nil
}

// turn carries a Turn under construction with its logger.
type turn struct {
	*Turn
	log zerolog.Logger
}

func (t *turn) degrade(dependency string, err error) {
	t.Degradations = append(t.Degradations, Degradation{Dependency: dependency, Message: err.Error(), Err: err})
	observability.DependencyFailures.WithLabelValues(dependency).Inc()
	t.log.Warn().Str("dependency", dependency).Err(err).Msg("dependency failed; continuing")
}

// keepFallback records a primary assistant failure whose fallback result is
// still usable and clears it; any other error is returned unchanged.
func (t *turn) keepFallback(dependency string, err error) error {
	if assistant.FellBack(err) {
		t.degrade(dependency, err)
		return nil
	}
	return err
}

// resolveLocation picks the explicit location, then the preferred one.
func resolveLocation(explicit *session.Location, prefs session.Preferences) *session.Location {
	if explicit != nil && strings.TrimSpace(explicit.City) != "" {
		return explicit
	}
	if prefs.HasLocation() {
		return prefs.Location
	}
	return nil
}

// fetchWeather returns nil on failure and leaves the stored weather alone.
func (s *Service) fetchWeather(ctx context.Context, t *turn, id string, loc session.Location) *weather.WeatherSnapshot {
	snap, err := s.weather.Current(ctx, weather.Location{City: loc.City, Country: loc.Country})
	if err != nil {
		t.degrade(DependencyWeather, err)
		return nil
	}

	data := toWeatherData(snap)
	t.WeatherData = &data
	if _, err := s.store.Update(ctx, id, session.Patch{WeatherData: &data}); err != nil {
		t.degrade(DependencyStore, err)
	}
	return &snap
}

func (s *Service) reply(ctx context.Context, t *turn, req MessageRequest, aiCtx assistant.Context) string {
	var (
		text string
		err  error
		dep  string
	)
	if req.IsVoiceInput {
		dep = DependencyVoice
		var intent assistant.VoiceIntent
		intent, err = s.voice.Classify(ctx, req.Message, aiCtx)
		if err = t.keepFallback(dep, err); err == nil {
			t.Intent = &intent
			text = intent.Response
		}
	} else {
		dep = DependencyChat
		var r assistant.ChatReply
		r, err = s.chat.Reply(ctx, req.Message, aiCtx)
		if err = t.keepFallback(dep, err); err == nil {
			text = r.Text
		}
	}

	if err == nil && strings.TrimSpace(text) == "" {
		err = assistant.ErrEmptyResponse
	}
	if err != nil {
		t.degrade(dep, err)
		return fallbackReply(aiCtx.Language)
	}
	return text
}

func (s *Service) suggest(ctx context.Context, t *turn, id string, snap weather.WeatherSnapshot, prefs session.Preferences) *session.Suggestion {
	sug, err := s.suggestions.Suggest(ctx, snap, prefs)
	if err = t.keepFallback(DependencySuggestion, err); err != nil {
		t.degrade(DependencySuggestion, err)
		return nil
	}
	if sug.Timestamp.IsZero() {
		sug.Timestamp = s.now().UTC()
	}
	if err := s.store.AppendSuggestion(ctx, id, sug); err != nil {
		t.degrade(DependencyStore, err)
		return nil
	}
	return &sug
}

func toWeatherData(snap weather.WeatherSnapshot) session.WeatherData {
	return session.WeatherData{
		Location:    snap.Location.City,
		Country:     snap.Location.Country,
		Temperature: snap.Temperature,
		Description: snap.Description,
		Humidity:    snap.Humidity,
		WindSpeed:   snap.WindSpeed,
		Timestamp:   snap.Timestamp,
	}
}

func fallbackReply(language string) string {
	base := strings.SplitN(language, "-", 2)[0]
	if r, ok := fallbackReplies[base]; ok {
		return r
	}
	return fallbackReplies[session.DefaultLanguage]
}
