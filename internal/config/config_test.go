package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-assistant/internal/weather"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"OPENWEATHER_API_KEY", "WEATHERAPI_API_KEY", "GEOCODER_API_KEY",
		"WEATHER_LOCATION_CITY", "WEATHER_LOCATION_COUNTRY", "SESSION_BACKEND", "WEATHER_MOCK"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendMemory, cfg.SessionBackend)
	assert.True(t, cfg.WeatherMock, "mock weather is on when no provider keys are set")
	assert.Empty(t, cfg.Locations)
	assert.Equal(t, 2*time.Second, cfg.VoiceSilenceTimeout)
	assert.Equal(t, 60*time.Second, cfg.VoiceMaxDuration)
	assert.Equal(t, time.Hour, cfg.SessionIdleTTL)
}

func TestLoadLocations(t *testing.T) {
	t.Setenv("WEATHER_LOCATION_CITY", "Tokyo, Paris")
	t.Setenv("WEATHER_LOCATION_COUNTRY", "JP,FR")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []weather.Location{{City: "Tokyo", Country: "JP"}, {City: "Paris", Country: "FR"}}, cfg.Locations)
}

func TestLoadRejectsMismatchedLocations(t *testing.T) {
	t.Setenv("WEATHER_LOCATION_CITY", "Tokyo,Paris")
	t.Setenv("WEATHER_LOCATION_COUNTRY", "JP")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadInput(t *testing.T) {
	t.Setenv("VOICE_SILENCE_TIMEOUT", "soon")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("VOICE_SILENCE_TIMEOUT", "2s")
	t.Setenv("SESSION_BACKEND", "redis")
	_, err = Load()
	assert.Error(t, err)
}
