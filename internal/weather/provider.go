package weather

import (
	"context"
	"time"
)

// ProviderReading represents a single provider's normalized reading
// that can be aggregated into a WeatherSnapshot.
type ProviderReading struct {
	ProviderName string
	Timestamp    time.Time

	TemperatureC float64
	FeelsLikeC   float64
	HumidityPct  float64
	WindSpeedMS  float64
	PressureHpa  float64
	PrecipMm     float64
	CloudPct     float64
	Condition    Condition
	Description  string
}

// Provider abstracts a weather data source (e.g. OpenWeatherMap, WeatherAPI, Open-Meteo).
type Provider interface {
	Name() string
	Fetch(ctx context.Context, loc Location) (ProviderReading, error)
}

// ForecastProvider is implemented by providers that can return daily forecasts.
// Each returned reading covers one day; Timestamp falls on that day in UTC.
type ForecastProvider interface {
	FetchForecast(ctx context.Context, loc Location, days int) ([]ProviderReading, error)
}

// GeocodeFunc resolves a city to coordinates.
type GeocodeFunc func(ctx context.Context, loc Location) (lat, lon float64, err error)

// Store is the contract the in-memory snapshot history (and any future persistent store) must satisfy.
type Store interface {
	SaveSnapshot(loc Location, snapshot WeatherSnapshot)
	GetLatest(loc Location) (WeatherSnapshot, error)
	GetRange(loc Location, from, to time.Time) ([]WeatherSnapshot, error)
}
