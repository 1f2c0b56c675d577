package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-assistant/internal/assistant"
	"github.com/i474232898/weather-assistant/internal/session"
	"github.com/i474232898/weather-assistant/internal/weather"
)

type fakeWeather struct {
	mu    sync.Mutex
	err   error
	calls []weather.Location
}

func (f *fakeWeather) Current(ctx context.Context, loc weather.Location) (weather.WeatherSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, loc)
	if f.err != nil {
		return weather.WeatherSnapshot{}, f.err
	}
	return weather.WeatherSnapshot{
		Location:    loc,
		Timestamp:   time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		Temperature: 21,
		Humidity:    55,
		WindSpeed:   3,
		Description: "晴れ for " + loc.City,
	}, nil
}

type fakeAssistant struct {
	mu          sync.Mutex
	chatErr     error
	voiceErr    error
	suggestErr  error
	intent      string
	chatCalls   int
	voiceCalls  int
	contexts    []assistant.Context
	suggestions int
}

func (f *fakeAssistant) Reply(ctx context.Context, message string, c assistant.Context) (assistant.ChatReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatCalls++
	f.contexts = append(f.contexts, c)
	if f.chatErr != nil {
		return assistant.ChatReply{}, f.chatErr
	}
	return assistant.ChatReply{Text: "reply to " + message}, nil
}

func (f *fakeAssistant) Classify(ctx context.Context, transcript string, c assistant.Context) (assistant.VoiceIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voiceCalls++
	f.contexts = append(f.contexts, c)
	if f.voiceErr != nil {
		return assistant.VoiceIntent{}, f.voiceErr
	}
	intent := f.intent
	if intent == "" {
		intent = assistant.IntentWeatherQuery
	}
	return assistant.VoiceIntent{Intent: intent, Response: "voice reply to " + transcript}, nil
}

func (f *fakeAssistant) Suggest(ctx context.Context, snap weather.WeatherSnapshot, prefs session.Preferences) (session.Suggestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suggestions++
	if f.suggestErr != nil {
		return session.Suggestion{}, f.suggestErr
	}
	return session.Suggestion{
		Theme:      prefs.Theme,
		Suggestion: "go outside",
		Confidence: 0.9,
		WeatherContext: session.WeatherContext{
			Temperature: snap.Temperature,
			Description: snap.Description,
			Location:    snap.Location.City,
		},
	}, nil
}

// failingStore rejects appends of user messages.
type failingStore struct {
	*session.MemoryStore
	err error
}

func (s *failingStore) AppendMessage(ctx context.Context, id string, msg session.Message) error {
	if msg.Type == session.MessageUser {
		return s.err
	}
	return s.MemoryStore.AppendMessage(ctx, id, msg)
}

type fixture struct {
	svc     *Service
	store   *session.MemoryStore
	weather *fakeWeather
	ai      *fakeAssistant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   session.NewMemoryStore(),
		weather: &fakeWeather{},
		ai:      &fakeAssistant{},
	}
	f.svc = NewService(Dependencies{
		Store:       f.store,
		Weather:     f.weather,
		Chat:        f.ai,
		Voice:       f.ai,
		Suggestions: f.ai,
	})
	return f
}

func (f *fixture) session(t *testing.T, prefs session.Preferences) string {
	t.Helper()
	sess, err := f.svc.CreateSession(context.Background(), "u1", prefs)
	require.NoError(t, err)
	return sess.SessionID
}

func TestHandleMessageInvalidInput(t *testing.T) {
	f := newFixture(t)
	id := f.session(t, session.Preferences{})

	_, err := f.svc.HandleMessage(context.Background(), MessageRequest{Message: "hi"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.HandleMessage(context.Background(), MessageRequest{SessionID: id, Message: "   "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	sess, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, sess.Messages)
}

func TestHandleMessageUnknownSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.HandleMessage(context.Background(), MessageRequest{SessionID: "missing", Message: "hi"})
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Zero(t, f.ai.chatCalls)
	assert.Zero(t, f.store.Count())
}

func TestHandleMessageTextTurnWithLocation(t *testing.T) {
	f := newFixture(t)
	id := f.session(t, session.Preferences{Location: &session.Location{City: "Tokyo", Country: "JP"}})

	turn, err := f.svc.HandleMessage(context.Background(), MessageRequest{
		SessionID: id,
		Message:   "What should I do today?",
		Language:  "en",
		Location:  &session.Location{City: "Osaka", Country: "JP"},
	})
	require.NoError(t, err)
	assert.False(t, turn.Degraded())

	assert.Equal(t, session.MessageUser, turn.UserMessage.Type)
	assert.Equal(t, "en", turn.UserMessage.Language)
	assert.Equal(t, session.MessageAssistant, turn.AssistantMessage.Type)
	assert.Equal(t, "en", turn.AssistantMessage.Language)
	assert.Equal(t, "reply to What should I do today?", turn.AssistantMessage.Content)

	require.Len(t, f.weather.calls, 1)
	assert.Equal(t, "Osaka", f.weather.calls[0].City)
	require.NotNil(t, turn.WeatherData)
	assert.Equal(t, "Osaka", turn.WeatherData.Location)

	require.NotNil(t, turn.Suggestion)
	assert.Equal(t, "Osaka", turn.Suggestion.WeatherContext.Location)
	assert.Equal(t, session.ThemeTravel, turn.Suggestion.Theme)
	assert.Nil(t, turn.Intent)
	assert.Zero(t, f.ai.voiceCalls)

	require.Len(t, f.ai.contexts, 1)
	require.NotNil(t, f.ai.contexts[0].Weather)
	assert.Equal(t, "Osaka", f.ai.contexts[0].Weather.Location)

	sess, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	require.Len(t, sess.AISuggestions, 1)
	assert.Equal(t, "Osaka", sess.AISuggestions[0].WeatherContext.Location)
	require.NotNil(t, sess.WeatherData)
	assert.Equal(t, "Osaka", sess.WeatherData.Location)
}

func TestHandleMessageFallsBackToPreferredLocation(t *testing.T) {
	f := newFixture(t)
	id := f.session(t, session.Preferences{Location: &session.Location{City: "Sapporo", Country: "JP"}})

	turn, err := f.svc.HandleMessage(context.Background(), MessageRequest{SessionID: id, Message: "天気は？"})
	require.NoError(t, err)
	require.Len(t, f.weather.calls, 1)
	assert.Equal(t, "Sapporo", f.weather.calls[0].City)
	assert.Equal(t, "ja", turn.AssistantMessage.Language)
	require.NotNil(t, turn.Suggestion)
}

func TestHandleMessageMissingLanguageIgnoresSessionPreference(t *testing.T) {
	f := newFixture(t)
	id := f.session(t, session.Preferences{Language: "en"})

	turn, err := f.svc.HandleMessage(context.Background(), MessageRequest{SessionID: id, Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, session.DefaultLanguage, turn.UserMessage.Language)
	assert.Equal(t, session.DefaultLanguage, turn.AssistantMessage.Language)
	require.Len(t, f.ai.contexts, 1)
	assert.Equal(t, session.DefaultLanguage, f.ai.contexts[0].Language)
	assert.Equal(t, "en", f.ai.contexts[0].Preferences.Language)
}

func TestHandleMessageAssistantFallbackStillAnswers(t *testing.T) {
	f := newFixture(t)
	primary := &fakeAssistant{
		chatErr:    errors.New("gemini quota exceeded"),
		voiceErr:   errors.New("gemini quota exceeded"),
		suggestErr: errors.New("gemini quota exceeded"),
	}
	ai := assistant.WithFallback(primary, assistant.NewMock())
	f.svc = NewService(Dependencies{
		Store:       f.store,
		Weather:     f.weather,
		Chat:        ai,
		Voice:       ai,
		Suggestions: ai,
	})
	id := f.session(t, session.Preferences{Location: &session.Location{City: "Tokyo", Country: "JP"}, Theme: session.ThemeFashion})

	turn, err := f.svc.HandleMessage(context.Background(), MessageRequest{SessionID: id, Message: "hi", Language: "en"})
	require.NoError(t, err)
	assert.NotEmpty(t, turn.AssistantMessage.Content)
	assert.NotEqual(t, fallbackReplies["en"], turn.AssistantMessage.Content)
	require.NotNil(t, turn.Suggestion)
	assert.Equal(t, session.ThemeFashion, turn.Suggestion.Theme)
	assert.Equal(t, "Tokyo", turn.Suggestion.WeatherContext.Location)

	deps := []string{}
	for _, d := range turn.Degradations {
		deps = append(deps, d.Dependency)
		assert.True(t, assistant.FellBack(d.Err))
	}
	assert.ElementsMatch(t, []string{DependencyChat, DependencySuggestion}, deps)

	voiceTurn, err := f.svc.HandleMessage(context.Background(), MessageRequest{
		SessionID:    id,
		Message:      "明日の東京の天気は？",
		IsVoiceInput: true,
		Language:     "ja",
	})
	require.NoError(t, err)
	require.NotNil(t, voiceTurn.Intent)
	assert.Equal(t, assistant.IntentWeatherQuery, voiceTurn.Intent.Intent)
	assert.Equal(t, voiceTurn.Intent.Response, voiceTurn.AssistantMessage.Content)
	require.NotNil(t, voiceTurn.Suggestion)
	assert.Len(t, voiceTurn.Degradations, 2)

	sess, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, sess.Messages, 4)
	assert.Len(t, sess.AISuggestions, 2)
}

func TestHandleMessageWithoutLocationSkipsWeather(t *testing.T) {
	f := newFixture(t)
	id := f.session(t, session.Preferences{})

	turn, err := f.svc.HandleMessage(context.Background(), MessageRequest{SessionID: id, Message: "hello"})
	require.NoError(t, err)
	assert.Empty(t, f.weather.calls)
	assert.Nil(t, turn.WeatherData)
	assert.Nil(t, turn.Suggestion)
	assert.Zero(t, f.ai.suggestions)
	assert.Nil(t, f.ai.contexts[0].Weather)
}

func TestHandleMessageKeepsUserMessageWhenEverythingFails(t *testing.T) {
	f := newFixture(t)
	f.weather.err = errors.New("weather down")
	f.ai.chatErr = errors.New("ai down")
	id := f.session(t, session.Preferences{Location: &session.Location{City: "Tokyo"}})

	turn, err := f.svc.HandleMessage(context.Background(), MessageRequest{SessionID: id, Message: "hi", Language: "en"})
	require.NoError(t, err)
	assert.True(t, turn.Degraded())

	deps := []string{}
	for _, d := range turn.Degradations {
		deps = append(deps, d.Dependency)
	}
	assert.ElementsMatch(t, []string{DependencyWeather, DependencyChat}, deps)
	assert.Equal(t, fallbackReplies["en"], turn.AssistantMessage.Content)
	assert.Nil(t, turn.Suggestion)
	assert.Zero(t, f.ai.suggestions)

	sess, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "hi", sess.Messages[0].Content)
	assert.Empty(t, sess.AISuggestions)
}

func TestHandleMessageWeatherFailureKeepsStoredSnapshotOutOfPrompt(t *testing.T) {
	f := newFixture(t)
	id := f.session(t, session.Preferences{})
	ctx := context.Background()

	_, err := f.svc.HandleMessage(ctx, MessageRequest{SessionID: id, Message: "first", Location: &session.Location{City: "Tokyo"}})
	require.NoError(t, err)

	f.weather.err = weather.ErrLocationNotFound
	turn, err := f.svc.HandleMessage(ctx, MessageRequest{SessionID: id, Message: "second", Location: &session.Location{City: "Atlantis"}})
	require.NoError(t, err)

	last := f.ai.contexts[len(f.ai.contexts)-1]
	assert.Nil(t, last.Weather)

	require.NotNil(t, turn.WeatherData)
	assert.Equal(t, "Tokyo", turn.WeatherData.Location)
	require.NotNil(t, turn.Suggestion)
	assert.Equal(t, "Tokyo", turn.Suggestion.WeatherContext.Location)
	assert.Equal(t, 1, f.ai.suggestions)

	sess, err := f.store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Tokyo", sess.WeatherData.Location)
	assert.Len(t, sess.AISuggestions, 1)
}

func TestHandleMessageVoiceGeneralChatSkipsSuggestion(t *testing.T) {
	f := newFixture(t)
	f.ai.intent = assistant.IntentGeneralChat
	id := f.session(t, session.Preferences{})

	turn, err := f.svc.HandleMessage(context.Background(), MessageRequest{
		SessionID:    id,
		Message:      "京都の旅程を組んで",
		IsVoiceInput: true,
		Location:     &session.Location{City: "Kyoto"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.ai.voiceCalls)
	assert.Zero(t, f.ai.chatCalls)
	require.NotNil(t, turn.Intent)
	assert.Equal(t, assistant.IntentGeneralChat, turn.Intent.Intent)
	assert.Equal(t, "voice reply to 京都の旅程を組んで", turn.AssistantMessage.Content)
	assert.True(t, turn.UserMessage.IsVoiceInput)
	assert.False(t, turn.AssistantMessage.IsVoiceInput)

	require.NotNil(t, turn.WeatherData)
	assert.Nil(t, turn.Suggestion)
	assert.Zero(t, f.ai.suggestions)
}

func TestHandleMessageVoiceWeatherIntentSuggests(t *testing.T) {
	f := newFixture(t)
	f.ai.intent = assistant.IntentTravelSuggestion
	id := f.session(t, session.Preferences{})

	turn, err := f.svc.HandleMessage(context.Background(), MessageRequest{
		SessionID:    id,
		Message:      "週末どこか出かけたい",
		IsVoiceInput: true,
		Location:     &session.Location{City: "Nagoya"},
	})
	require.NoError(t, err)
	require.NotNil(t, turn.Suggestion)
	assert.Equal(t, "Nagoya", turn.Suggestion.WeatherContext.Location)
}

func TestHandleMessageReturnsPriorSuggestion(t *testing.T) {
	f := newFixture(t)
	id := f.session(t, session.Preferences{})
	ctx := context.Background()

	_, err := f.svc.HandleMessage(ctx, MessageRequest{SessionID: id, Message: "one", Location: &session.Location{City: "Fukuoka"}})
	require.NoError(t, err)

	f.ai.suggestErr = errors.New("suggestion failed")
	turn, err := f.svc.HandleMessage(ctx, MessageRequest{SessionID: id, Message: "two", Location: &session.Location{City: "Sendai"}})
	require.NoError(t, err)
	require.Len(t, turn.Degradations, 1)
	assert.Equal(t, DependencySuggestion, turn.Degradations[0].Dependency)
	require.NotNil(t, turn.Suggestion)
	assert.Equal(t, "Fukuoka", turn.Suggestion.WeatherContext.Location)
	assert.Equal(t, "Sendai", turn.WeatherData.Location)
}

func TestHandleMessageUserAppendFailureIsFatal(t *testing.T) {
	mem := session.NewMemoryStore()
	ai := &fakeAssistant{}
	svc := NewService(Dependencies{
		Store:       &failingStore{MemoryStore: mem, err: errors.New("disk full")},
		Weather:     &fakeWeather{},
		Chat:        ai,
		Voice:       ai,
		Suggestions: ai,
	})
	sess, err := svc.CreateSession(context.Background(), "", session.Preferences{})
	require.NoError(t, err)

	_, err = svc.HandleMessage(context.Background(), MessageRequest{SessionID: sess.SessionID, Message: "hi"})
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "append user message", fatal.Op)
	assert.Zero(t, ai.chatCalls)
}

func TestHandleMessageSequentialTurnsKeepOrder(t *testing.T) {
	f := newFixture(t)
	id := f.session(t, session.Preferences{})
	ctx := context.Background()

	const n = 5
	for i := 0; i < n; i++ {
		_, err := f.svc.HandleMessage(ctx, MessageRequest{SessionID: id, Message: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
	}

	sess, err := f.store.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2*n)
	for i := 0; i < n; i++ {
		assert.Equal(t, fmt.Sprintf("m%d", i), sess.Messages[2*i].Content)
		assert.Equal(t, session.MessageUser, sess.Messages[2*i].Type)
		assert.Equal(t, "reply to "+fmt.Sprintf("m%d", i), sess.Messages[2*i+1].Content)
	}
}

func TestHandleMessageConcurrentTurnsDoNotInterleave(t *testing.T) {
	f := newFixture(t)
	id := f.session(t, session.Preferences{})
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.HandleMessage(ctx, MessageRequest{SessionID: id, Message: fmt.Sprintf("m%d", i)})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	sess, err := f.store.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2*n)
	for i := 0; i < n; i++ {
		user, reply := sess.Messages[2*i], sess.Messages[2*i+1]
		assert.Equal(t, session.MessageUser, user.Type)
		assert.Equal(t, "reply to "+user.Content, reply.Content)
	}
	assert.Zero(t, f.svc.locks.size())
}
