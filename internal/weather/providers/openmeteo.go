package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/kelvins/geocoder"
	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-assistant/internal/weather"
)

// OpenMeteoProvider implements the weather.Provider interface for Open-Meteo.
// Open-Meteo only accepts coordinates, so city lookups go through geocoding first.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	geocode weather.GeocodeFunc

	mu     sync.Mutex
	coords map[string][2]float64
}

// NewOpenMeteoProvider uses the Google geocoding API (via kelvins/geocoder) when
// geocoderAPIKey is set; without it only locations with coordinates can be served.
func NewOpenMeteoProvider(client *http.Client, geocoderAPIKey string) *OpenMeteoProvider {
	p := &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: "https://api.open-meteo.com/v1/forecast",
		httpCfg: defaultHTTPConfig(client),
		circuit: newCircuit("openmeteo"),
		coords:  make(map[string][2]float64),
	}
	if geocoderAPIKey != "" {
		geocoder.ApiKey = geocoderAPIKey
		p.geocode = GoogleGeocode
	}
	return p
}

// WithGeocoder replaces the geocoding function.
func (p *OpenMeteoProvider) WithGeocoder(fn weather.GeocodeFunc) *OpenMeteoProvider {
	p.geocode = fn
	return p
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

func (p *OpenMeteoProvider) Fetch(ctx context.Context, loc weather.Location) (weather.ProviderReading, error) {
	lat, lon, err := p.resolve(ctx, loc)
	if err != nil {
		return weather.ProviderReading{}, err
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", lat))
		values.Set("longitude", fmt.Sprintf("%f", lon))
		values.Set("current", "temperature_2m,apparent_temperature,relative_humidity_2m,wind_speed_10m,surface_pressure,precipitation,cloud_cover,weather_code")
		values.Set("wind_speed_unit", "ms")
		values.Set("timeformat", "unixtime")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.ProviderReading{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Current struct {
			Time          int64   `json:"time"`
			Temperature   float64 `json:"temperature_2m"`
			Apparent      float64 `json:"apparent_temperature"`
			Humidity      float64 `json:"relative_humidity_2m"`
			WindSpeed     float64 `json:"wind_speed_10m"`
			Pressure      float64 `json:"surface_pressure"`
			Precipitation float64 `json:"precipitation"`
			CloudCover    float64 `json:"cloud_cover"`
			WeatherCode   int     `json:"weather_code"`
		} `json:"current"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.ProviderReading{}, err
	}

	ts := time.Unix(payload.Current.Time, 0).UTC()
	if payload.Current.Time == 0 {
		ts = time.Now().UTC()
	}

	cond := mapOpenMeteoCondition(payload.Current.WeatherCode)

	return weather.ProviderReading{
		ProviderName: p.name,
		Timestamp:    ts,
		TemperatureC: payload.Current.Temperature,
		FeelsLikeC:   payload.Current.Apparent,
		HumidityPct:  payload.Current.Humidity,
		WindSpeedMS:  payload.Current.WindSpeed,
		PressureHpa:  payload.Current.Pressure,
		PrecipMm:     payload.Current.Precipitation,
		CloudPct:     payload.Current.CloudCover,
		Condition:    cond,
		// WMO codes carry no text, so the normalized condition doubles as description.
		Description: string(cond),
	}, nil
}

// FetchForecast returns one reading per day from the daily forecast endpoint.
func (p *OpenMeteoProvider) FetchForecast(ctx context.Context, loc weather.Location, days int) ([]weather.ProviderReading, error) {
	lat, lon, err := p.resolve(ctx, loc)
	if err != nil {
		return nil, err
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", lat))
		values.Set("longitude", fmt.Sprintf("%f", lon))
		values.Set("daily", "temperature_2m_max,temperature_2m_min,apparent_temperature_max,precipitation_sum,wind_speed_10m_max,relative_humidity_2m_mean,cloud_cover_mean,weather_code")
		values.Set("forecast_days", fmt.Sprintf("%d", days))
		values.Set("wind_speed_unit", "ms")
		values.Set("timeformat", "unixtime")
		values.Set("timezone", "UTC")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Daily struct {
			Time        []int64   `json:"time"`
			TempMax     []float64 `json:"temperature_2m_max"`
			TempMin     []float64 `json:"temperature_2m_min"`
			ApparentMax []float64 `json:"apparent_temperature_max"`
			Precip      []float64 `json:"precipitation_sum"`
			WindMax     []float64 `json:"wind_speed_10m_max"`
			Humidity    []float64 `json:"relative_humidity_2m_mean"`
			CloudCover  []float64 `json:"cloud_cover_mean"`
			WeatherCode []int     `json:"weather_code"`
		} `json:"daily"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	d := payload.Daily
	// Missing series decode as short slices; at reads them as zero.
	at := func(xs []float64, i int) float64 {
		if i < len(xs) {
			return xs[i]
		}
		return 0
	}

	readings := make([]weather.ProviderReading, 0, len(d.Time))
	for i, ts := range d.Time {
		code := 0
		if i < len(d.WeatherCode) {
			code = d.WeatherCode[i]
		}
		cond := mapOpenMeteoCondition(code)
		readings = append(readings, weather.ProviderReading{
			ProviderName: p.name,
			Timestamp:    time.Unix(ts, 0).UTC(),
			TemperatureC: (at(d.TempMax, i) + at(d.TempMin, i)) / 2,
			FeelsLikeC:   at(d.ApparentMax, i),
			HumidityPct:  at(d.Humidity, i),
			WindSpeedMS:  at(d.WindMax, i),
			PrecipMm:     at(d.Precip, i),
			CloudPct:     at(d.CloudCover, i),
			Condition:    cond,
			Description:  string(cond),
		})
	}
	return readings, nil
}

func (p *OpenMeteoProvider) resolve(ctx context.Context, loc weather.Location) (float64, float64, error) {
	if loc.Lat != nil && loc.Lon != nil {
		return *loc.Lat, *loc.Lon, nil
	}
	if p.geocode == nil {
		return 0, 0, fmt.Errorf("openmeteo requires latitude and longitude")
	}

	key := loc.Key()
	p.mu.Lock()
	c, ok := p.coords[key]
	p.mu.Unlock()
	if ok {
		return c[0], c[1], nil
	}

	lat, lon, err := p.geocode(ctx, loc)
	if err != nil {
		return 0, 0, fmt.Errorf("geocode %s: %w", key, err)
	}

	p.mu.Lock()
	p.coords[key] = [2]float64{lat, lon}
	p.mu.Unlock()
	return lat, lon, nil
}

// GoogleGeocode resolves loc through the Google geocoding API. It runs the
// blocking geocoder call and gives up when ctx ends. geocoder.ApiKey must be set.
func GoogleGeocode(ctx context.Context, loc weather.Location) (float64, float64, error) {
	type result struct {
		loc geocoder.Location
		err error
	}
	ch := make(chan result, 1)
	go func() {
		l, err := geocoder.Geocoding(geocoder.Address{City: loc.City, Country: loc.Country})
		ch <- result{loc: l, err: err}
	}()

	select {
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return 0, 0, fmt.Errorf("%w: %v", weather.ErrLocationNotFound, r.err)
		}
		return r.loc.Latitude, r.loc.Longitude, nil
	}
}

func mapOpenMeteoCondition(code int) weather.Condition {
	// Mapping based on WMO weather codes (simplified).
	switch {
	case code == 0:
		return weather.ConditionClear
	case code >= 1 && code <= 3:
		return weather.ConditionCloudy
	case code == 45 || code == 48:
		return weather.ConditionMist
	case (code >= 51 && code <= 67) || (code >= 80 && code <= 82):
		return weather.ConditionRain
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return weather.ConditionSnow
	case code >= 95:
		return weather.ConditionStorm
	default:
		return weather.ConditionUnknown
	}
}
