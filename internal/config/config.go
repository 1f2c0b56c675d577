package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/i474232898/weather-assistant/internal/observability"
	"github.com/i474232898/weather-assistant/internal/weather"
)

// Session storage backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
)

type AppConfig struct {
	Port      string
	VoicePort string
	LogLevel  string

	// HTTPTimeout bounds every outbound provider call.
	HTTPTimeout time.Duration

	OpenWeatherAPIKey string
	WeatherAPIKey     string
	GeocoderAPIKey    string
	// WeatherMock serves canned readings instead of calling real providers.
	WeatherMock bool

	// FetchInterval controls how often we refresh data for each tracked location.
	FetchInterval time.Duration

	// Locations to keep warm in the weather history store.
	Locations []weather.Location

	// In-memory weather store retention.
	StoreMaxHistory int           // max number of snapshots per location (0 = unlimited)
	StoreMaxAge     time.Duration // max age of snapshots (0 = unlimited)

	GeminiAPIKey string
	GeminiModel  string

	SessionBackend         string
	SQLiteDSN              string
	MongoURI               string
	MongoDatabase          string
	SessionIdleTTL         time.Duration // 0 disables cleanup
	SessionCleanupInterval time.Duration

	VoiceLanguage       string
	VoiceSilenceTimeout time.Duration
	VoiceMaxDuration    time.Duration
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		observability.Logger().Info().Err(err).Msg("no .env file found or error loading it")
	}
	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.VoicePort = getenvDefault("VOICE_PORT", "8081")
	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return nil, err
	}

	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.WeatherAPIKey = os.Getenv("WEATHERAPI_API_KEY")
	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")
	noKeys := cfg.OpenWeatherAPIKey == "" && cfg.WeatherAPIKey == "" && cfg.GeocoderAPIKey == ""
	cfg.WeatherMock = getenvBool("WEATHER_MOCK", noKeys)

	// Refresh interval: default 15 minutes.
	if cfg.FetchInterval, err = getenvDuration("FETCH_INTERVAL", "15m"); err != nil {
		return nil, err
	}

	// Store retention.
	cfg.StoreMaxHistory = getenvInt("STORE_MAX_HISTORY", 96) // roughly 24h at 15-minute intervals
	if cfg.StoreMaxAge, err = getenvDuration("STORE_MAX_AGE", "24h"); err != nil {
		return nil, err
	}

	locs, err := loadTrackedLocations()
	if err != nil {
		return nil, err
	}
	cfg.Locations = locs

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.GeminiModel = getenvDefault("GEMINI_MODEL", "gemini-2.5-flash")

	cfg.SessionBackend = strings.ToLower(getenvDefault("SESSION_BACKEND", BackendMemory))
	switch cfg.SessionBackend {
	case BackendMemory, BackendSQLite, BackendMongo:
	default:
		return nil, fmt.Errorf("invalid SESSION_BACKEND %q", cfg.SessionBackend)
	}
	cfg.SQLiteDSN = getenvDefault("SQLITE_DSN", "file:weather-assistant.db")
	cfg.MongoURI = getenvDefault("MONGO_URI", "mongodb://localhost:27017")
	cfg.MongoDatabase = getenvDefault("MONGO_DATABASE", "weather_assistant")
	if cfg.SessionIdleTTL, err = getenvDuration("SESSION_IDLE_TTL", "1h"); err != nil {
		return nil, err
	}
	if cfg.SessionCleanupInterval, err = getenvDuration("SESSION_CLEANUP_INTERVAL", "10m"); err != nil {
		return nil, err
	}

	cfg.VoiceLanguage = getenvDefault("VOICE_LANGUAGE", "auto")
	if cfg.VoiceSilenceTimeout, err = getenvDuration("VOICE_SILENCE_TIMEOUT", "2s"); err != nil {
		return nil, err
	}
	if cfg.VoiceMaxDuration, err = getenvDuration("VOICE_MAX_DURATION", "60s"); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadTrackedLocations() ([]weather.Location, error) {
	city := strings.TrimSpace(os.Getenv("WEATHER_LOCATION_CITY"))
	country := strings.TrimSpace(os.Getenv("WEATHER_LOCATION_COUNTRY"))
	if city == "" && country == "" {
		return nil, nil
	}
	cities := strings.Split(city, ",")
	countries := strings.Split(country, ",")
	if len(cities) != len(countries) {
		return nil, fmt.Errorf("number of cities and countries must be the same")
	}
	var locs []weather.Location
	for i := range cities {
		locs = append(locs, weather.Location{
			City:    strings.TrimSpace(cities[i]),
			Country: strings.TrimSpace(countries[i]),
		})
	}

	return locs, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
