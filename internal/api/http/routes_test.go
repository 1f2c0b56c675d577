package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-assistant/internal/assistant"
	"github.com/i474232898/weather-assistant/internal/conversation"
	"github.com/i474232898/weather-assistant/internal/session"
	"github.com/i474232898/weather-assistant/internal/store"
	"github.com/i474232898/weather-assistant/internal/weather"
	"github.com/i474232898/weather-assistant/internal/weather/providers"
)

type testEnv struct {
	app      *fiber.App
	chat     *conversation.Service
	sessions *session.MemoryStore
	weather  *weather.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	memStore := store.NewMemoryStore(10, time.Hour)
	weatherSvc := weather.NewService(memStore, []weather.Provider{providers.NewMockProvider()})
	ai := assistant.NewMock()
	sessions := session.NewMemoryStore()
	chat := conversation.NewService(conversation.Dependencies{
		Store:       sessions,
		Weather:     weatherSvc,
		Chat:        ai,
		Voice:       ai,
		Suggestions: ai,
	})

	app := NewApp("weather-assistant-test")
	RegisterRoutes(app, Dependencies{Weather: weatherSvc, Chat: chat, Assistant: ai})
	return &testEnv{app: app, chat: chat, sessions: sessions, weather: weatherSvc}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func (e *testEnv) createSession(t *testing.T, body any) string {
	t.Helper()
	status, out := e.do(t, http.MethodPost, "/api/chat/session", body)
	require.Equal(t, http.StatusCreated, status)
	return out["data"].(map[string]any)["sessionId"].(string)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	status, out := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", out["status"])

	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))
}

func TestCreateSessionDefaults(t *testing.T) {
	env := newTestEnv(t)

	status, out := env.do(t, http.MethodPost, "/api/chat/session", nil)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, true, out["success"])
	data := out["data"].(map[string]any)
	assert.NotEmpty(t, data["sessionId"])
	assert.Equal(t, session.AnonymousUser, data["userId"])
	prefs := data["preferences"].(map[string]any)
	assert.Equal(t, "ja", prefs["language"])
	assert.Equal(t, "travel", prefs["theme"])
}

func TestCreateSessionRejectsUnknownTheme(t *testing.T) {
	env := newTestEnv(t)

	status, out := env.do(t, http.MethodPost, "/api/chat/session", map[string]any{
		"userId":      "u1",
		"preferences": map[string]any{"theme": "gardening"},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, true, out["error"])
}

func TestSendMessageTurn(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t, map[string]any{
		"userId":      "u1",
		"preferences": map[string]any{"language": "en", "theme": "sports"},
	})

	status, out := env.do(t, http.MethodPost, "/api/chat/message", map[string]any{
		"sessionId": id,
		"message":   "What is the weather like?",
		"language":  "en",
		"location":  map[string]any{"city": "Tokyo", "country": "JP"},
	})
	require.Equal(t, http.StatusOK, status)
	data := out["data"].(map[string]any)

	assert.Equal(t, "What is the weather like?", data["userMessage"].(map[string]any)["content"])
	assert.NotEmpty(t, data["assistantMessage"].(map[string]any)["content"])
	assert.Equal(t, "Tokyo", data["weatherData"].(map[string]any)["location"])
	suggestion := data["suggestion"].(map[string]any)
	assert.Equal(t, "sports", suggestion["theme"])
	assert.Equal(t, "Tokyo", suggestion["weatherContext"].(map[string]any)["location"])

	sess, err := env.sessions.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, sess.Messages, 2)
	assert.Len(t, sess.AISuggestions, 1)
}

func TestSendMessageErrors(t *testing.T) {
	env := newTestEnv(t)

	status, _ := env.do(t, http.MethodPost, "/api/chat/message", map[string]any{"message": "hi"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, out := env.do(t, http.MethodPost, "/api/chat/message", map[string]any{"sessionId": "missing", "message": "hi"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "session not found", out["message"])

	req := httptest.NewRequest(http.MethodPost, "/api/chat/message", bytes.NewBufferString("{not json"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := env.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHistoryPaging(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t, map[string]any{"userId": "u1"})
	for _, msg := range []string{"こんにちは", "ありがとう"} {
		status, _ := env.do(t, http.MethodPost, "/api/chat/message", map[string]any{"sessionId": id, "message": msg})
		require.Equal(t, http.StatusOK, status)
	}

	status, out := env.do(t, http.MethodGet, "/api/chat/history/"+id+"?limit=2&offset=1", nil)
	require.Equal(t, http.StatusOK, status)
	data := out["data"].(map[string]any)
	assert.EqualValues(t, 4, data["totalMessages"])
	msgs := data["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "assistant", msgs[0].(map[string]any)["type"])
	assert.Equal(t, "ありがとう", msgs[1].(map[string]any)["content"])

	status, _ = env.do(t, http.MethodGet, "/api/chat/history/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUpdatePreferences(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t, nil)

	status, out := env.do(t, http.MethodPut, "/api/chat/preferences/"+id, map[string]any{
		"language": "zh",
		"theme":    "music",
		"location": map[string]any{"city": "Beijing", "country": "CN"},
	})
	require.Equal(t, http.StatusOK, status)
	prefs := out["data"].(map[string]any)["preferences"].(map[string]any)
	assert.Equal(t, "zh", prefs["language"])
	assert.Equal(t, "music", prefs["theme"])
	assert.Equal(t, "Beijing", prefs["location"].(map[string]any)["city"])

	status, _ = env.do(t, http.MethodPut, "/api/chat/preferences/"+id, map[string]any{"location": map[string]any{"country": "CN"}})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPut, "/api/chat/preferences/missing", map[string]any{"theme": "music"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestListSessions(t *testing.T) {
	env := newTestEnv(t)
	env.createSession(t, map[string]any{"userId": "u1"})
	second := env.createSession(t, map[string]any{"userId": "u1"})
	env.createSession(t, map[string]any{"userId": "u2"})

	status, _ := env.do(t, http.MethodPost, "/api/chat/message", map[string]any{"sessionId": second, "message": "hello"})
	require.Equal(t, http.StatusOK, status)

	status, out := env.do(t, http.MethodGet, "/api/chat/sessions/u1?limit=1", nil)
	require.Equal(t, http.StatusOK, status)
	data := out["data"].(map[string]any)
	assert.EqualValues(t, 2, data["total"])
	sessions := data["sessions"].([]any)
	require.Len(t, sessions, 1)
	first := sessions[0].(map[string]any)
	assert.Equal(t, second, first["sessionId"])
	assert.EqualValues(t, 2, first["messageCount"])
}

func TestCurrentWeather(t *testing.T) {
	env := newTestEnv(t)

	status, out := env.do(t, http.MethodGet, "/api/weather/current/Tokyo?country=JP", nil)
	require.Equal(t, http.StatusOK, status)
	data := out["data"].(map[string]any)
	assert.Equal(t, "Tokyo", data["location"].(map[string]any)["city"])
	assert.EqualValues(t, 22, data["temperatureC"])

	status, _ = env.do(t, http.MethodGet, "/api/weather/current?city=London", nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = env.do(t, http.MethodGet, "/api/weather/current", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	// The live lookup recorded a snapshot.
	status, stored := env.do(t, http.MethodGet, "/api/v1/weather/current?city=Tokyo&country=JP", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 22, stored["temperatureC"])
}

func TestCurrentWeatherByCoordinates(t *testing.T) {
	env := newTestEnv(t)

	status, out := env.do(t, http.MethodGet, "/api/weather/current?lat=35.68&lon=139.69", nil)
	require.Equal(t, http.StatusOK, status)
	loc := out["data"].(map[string]any)["location"].(map[string]any)
	assert.Equal(t, currentLocation, loc["city"])
	assert.InDelta(t, 35.68, loc["lat"], 0.0001)

	status, _ = env.do(t, http.MethodGet, "/api/weather/current?lat=35.68", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = env.do(t, http.MethodGet, "/api/weather/current?lat=135&lon=10", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestForecast(t *testing.T) {
	env := newTestEnv(t)

	status, out := env.do(t, http.MethodGet, "/api/weather/forecast/Tokyo?country=JP", nil)
	require.Equal(t, http.StatusOK, status)
	data := out["data"].(map[string]any)
	assert.EqualValues(t, 5, data["days"])
	days := data["forecast"].([]any)
	require.Len(t, days, 5)
	first := days[0].(map[string]any)
	assert.EqualValues(t, 22, first["temperatureC"])
	assert.Equal(t, "Tokyo", first["location"].(map[string]any)["city"])
	assert.Equal(t, string(weather.ConditionRain), days[2].(map[string]any)["condition"])

	status, out = env.do(t, http.MethodGet, "/api/weather/forecast/Tokyo?days=7", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, out["data"].(map[string]any)["forecast"], 7)

	for _, days := range []string{"0", "8"} {
		status, out = env.do(t, http.MethodGet, "/api/weather/forecast/Tokyo?days="+days, nil)
		assert.Equal(t, http.StatusBadRequest, status, days)
		assert.Equal(t, true, out["error"])
	}
}

func TestGeocode(t *testing.T) {
	env := newTestEnv(t)

	status, _ := env.do(t, http.MethodGet, "/api/weather/geocode/Tokyo", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)

	env.weather.WithGeocoder(providers.MockGeocode)

	status, out := env.do(t, http.MethodGet, "/api/weather/geocode/Tokyo?country=JP", nil)
	require.Equal(t, http.StatusOK, status)
	loc := out["data"].(map[string]any)
	assert.Equal(t, "Tokyo", loc["city"])
	assert.Equal(t, "JP", loc["country"])
	assert.InDelta(t, 35.68, loc["lat"], 0.0001)
	assert.InDelta(t, 139.69, loc["lon"], 0.0001)

	status, _ = env.do(t, http.MethodGet, "/api/weather/geocode/Atlantis", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestStoredWeatherNotFound(t *testing.T) {
	env := newTestEnv(t)

	status, _ := env.do(t, http.MethodGet, "/api/v1/weather/current?city=Paris&country=FR", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = env.do(t, http.MethodGet, "/api/v1/weather/current?city=Paris", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHistoryValidation(t *testing.T) {
	env := newTestEnv(t)

	status, _ := env.do(t, http.MethodGet, "/api/v1/weather/history?city=Paris&country=FR", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	// to before from
	status, _ = env.do(t, http.MethodGet, "/api/v1/weather/history?city=Paris&country=FR&from=200&to=100", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodGet, "/api/v1/weather/history?city=Paris&country=FR&from=yesterday&to=100", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	_, err := env.weather.Current(context.Background(), weather.Location{City: "Paris", Country: "FR"})
	require.NoError(t, err)
	to := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	status, out := env.do(t, http.MethodGet, "/api/v1/weather/history?city=Paris&country=FR&from=0&to="+to, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, out["snapshots"], 1)
}

func TestAIEndpoints(t *testing.T) {
	env := newTestEnv(t)

	status, out := env.do(t, http.MethodPost, "/api/ai/chat", map[string]any{
		"message": "hello",
		"context": map[string]any{"language": "en"},
	})
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, out["data"].(map[string]any)["response"])

	status, out = env.do(t, http.MethodPost, "/api/ai/voice", map[string]any{"transcript": "明日の東京の天気は？"})
	require.Equal(t, http.StatusOK, status)
	intent := out["data"].(map[string]any)
	assert.Equal(t, assistant.IntentWeatherQuery, intent["intent"])
	assert.Equal(t, "東京", intent["location"])

	status, out = env.do(t, http.MethodPost, "/api/ai/suggestions", map[string]any{
		"city":        "Osaka",
		"country":     "JP",
		"preferences": map[string]any{"theme": "fashion"},
	})
	require.Equal(t, http.StatusOK, status)
	data := out["data"].(map[string]any)
	suggestion := data["suggestion"].(map[string]any)
	assert.Equal(t, "fashion", suggestion["theme"])
	assert.Equal(t, "Osaka", suggestion["weatherContext"].(map[string]any)["location"])

	status, _ = env.do(t, http.MethodPost, "/api/ai/chat", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = env.do(t, http.MethodPost, "/api/ai/suggestions", map[string]any{"country": "JP"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAISuggestionsByCoordinates(t *testing.T) {
	env := newTestEnv(t)

	status, out := env.do(t, http.MethodPost, "/api/ai/suggestions/coordinates", map[string]any{
		"lat":         34.69,
		"lon":         135.50,
		"preferences": map[string]any{"theme": "sports"},
	})
	require.Equal(t, http.StatusOK, status)
	data := out["data"].(map[string]any)
	assert.Equal(t, "sports", data["suggestion"].(map[string]any)["theme"])
	loc := data["weather"].(map[string]any)["location"].(map[string]any)
	assert.Equal(t, currentLocation, loc["city"])
	assert.InDelta(t, 135.50, loc["lon"], 0.0001)

	// Zero is a valid coordinate.
	status, _ = env.do(t, http.MethodPost, "/api/ai/suggestions/coordinates", map[string]any{"lat": 0, "lon": 0})
	assert.Equal(t, http.StatusOK, status)

	status, _ = env.do(t, http.MethodPost, "/api/ai/suggestions/coordinates", map[string]any{"lat": 35.0})
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = env.do(t, http.MethodPost, "/api/ai/suggestions/coordinates", map[string]any{"lat": 95.0, "lon": 10.0})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{fiber.NewError(fiber.StatusTeapot, "tea"), fiber.StatusTeapot},
		{conversation.ErrInvalidInput, fiber.StatusBadRequest},
		{session.ErrNotFound, fiber.StatusNotFound},
		{session.ErrExists, fiber.StatusConflict},
		{store.ErrNotFound, fiber.StatusNotFound},
		{weather.ErrNoReadings, fiber.StatusBadGateway},
		{weather.ErrInvalidForecastDays, fiber.StatusBadRequest},
		{weather.ErrGeocodingUnavailable, fiber.StatusServiceUnavailable},
		{&conversation.FatalError{Op: "append user message", Err: assert.AnError}, fiber.StatusInternalServerError},
		{assert.AnError, fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		code, msg := classify(tt.err)
		assert.Equal(t, tt.code, code, tt.err.Error())
		assert.NotEmpty(t, msg)
	}
}
