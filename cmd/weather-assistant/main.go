package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/i474232898/weather-assistant/internal/api/http"
	"github.com/i474232898/weather-assistant/internal/assistant"
	"github.com/i474232898/weather-assistant/internal/config"
	"github.com/i474232898/weather-assistant/internal/conversation"
	"github.com/i474232898/weather-assistant/internal/observability"
	"github.com/i474232898/weather-assistant/internal/scheduler"
	"github.com/i474232898/weather-assistant/internal/session"
	"github.com/i474232898/weather-assistant/internal/store"
	"github.com/i474232898/weather-assistant/internal/voicegateway"
	"github.com/i474232898/weather-assistant/internal/weather"
	"github.com/i474232898/weather-assistant/internal/weather/providers"
)

func main() {
	log := observability.Logger()

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	observability.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// In-memory snapshot history with configured retention.
	memStore := store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge)
	weatherService := weather.NewService(memStore, weatherProviders(cfg, httpClient)).
		WithGeocoder(geocoderFor(cfg))

	sessions, err := openSessionStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.SessionBackend).Msg("failed to open session store")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sessions.Close(closeCtx); err != nil {
			log.Error().Err(err).Msg("error closing session store")
		}
	}()

	ai := newAssistant(ctx, cfg)

	chat := conversation.NewService(conversation.Dependencies{
		Store:       sessions,
		Weather:     weatherService,
		Chat:        ai,
		Voice:       ai,
		Suggestions: ai,
	})

	// Background jobs: warm tracked locations, drop idle sessions.
	sched := scheduler.New(scheduler.Config{
		Locations:       cfg.Locations,
		FetchInterval:   cfg.FetchInterval,
		SessionIdleTTL:  cfg.SessionIdleTTL,
		CleanupInterval: cfg.SessionCleanupInterval,
	}, weatherService, memStore, chat)
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	app := httpapi.NewApp("weather-assistant")
	httpapi.RegisterRoutes(app, httpapi.Dependencies{
		Weather:   weatherService,
		Chat:      chat,
		Assistant: ai,
	})

	voice := &http.Server{
		Addr: ":" + cfg.VoicePort,
		Handler: voicegateway.NewHandler(voicegateway.Config{
			Language:       cfg.VoiceLanguage,
			SilenceTimeout: cfg.VoiceSilenceTimeout,
			MaxDuration:    cfg.VoiceMaxDuration,
		}, chat).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("http server listening")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("fiber server stopped")
		}
	}()
	go func() {
		log.Info().Str("port", cfg.VoicePort).Str("path", voicegateway.Path).Msg("voice gateway listening")
		if err := voice.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("voice gateway stopped")
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during http shutdown")
	}
	if err := voice.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during voice gateway shutdown")
	}
}

// weatherProviders returns the mock provider, or every real provider with credentials.
func weatherProviders(cfg *config.AppConfig, client *http.Client) []weather.Provider {
	if cfg.WeatherMock {
		observability.Logger().Warn().Msg("no weather provider keys configured; serving mock weather")
		return []weather.Provider{providers.NewMockProvider()}
	}

	var provs []weather.Provider
	if cfg.OpenWeatherAPIKey != "" {
		provs = append(provs, providers.NewOpenWeatherProvider(client, cfg.OpenWeatherAPIKey, "ja"))
	}
	if cfg.WeatherAPIKey != "" {
		provs = append(provs, providers.NewWeatherAPIProvider(client, cfg.WeatherAPIKey))
	}
	// Open-Meteo needs no key, but city lookups need the geocoder.
	if cfg.GeocoderAPIKey != "" {
		provs = append(provs, providers.NewOpenMeteoProvider(client, cfg.GeocoderAPIKey))
	}
	return provs
}

// geocoderFor pairs with weatherProviders: canned coordinates in mock mode,
// Google geocoding when a key is configured.
func geocoderFor(cfg *config.AppConfig) weather.GeocodeFunc {
	switch {
	case cfg.WeatherMock:
		return providers.MockGeocode
	case cfg.GeocoderAPIKey != "":
		// NewOpenMeteoProvider has already set geocoder.ApiKey.
		return providers.GoogleGeocode
	default:
		return nil
	}
}

func openSessionStore(ctx context.Context, cfg *config.AppConfig) (session.Store, error) {
	switch cfg.SessionBackend {
	case config.BackendSQLite:
		s, err := session.NewSQLiteStore(cfg.SQLiteDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		s, err := session.NewMongoStore(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return session.NewMemoryStore(), nil
	}
}

func newAssistant(ctx context.Context, cfg *config.AppConfig) httpapi.Assistant {
	if cfg.GeminiAPIKey == "" {
		observability.Logger().Warn().Msg("GEMINI_API_KEY not set; using mock assistant")
		return assistant.NewMock()
	}
	g, err := assistant.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		observability.Logger().Error().Err(err).Msg("failed to create gemini client; using mock assistant")
		return assistant.NewMock()
	}
	observability.Logger().Info().Str("model", g.Model()).Msg("gemini assistant ready")
	return assistant.WithFallback(g, assistant.NewMock())
}
