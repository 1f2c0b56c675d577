package providers

import (
	"context"
	"hash/fnv"
	"strings"
	"time"

	"github.com/i474232898/weather-assistant/internal/weather"
)

type mockCity struct {
	lat, lon    float64
	temp        float64
	humidity    float64
	cloud       float64
	cond        weather.Condition
	description string
}

var mockCities = map[string]mockCity{
	"tokyo":       {35.68, 139.69, 22, 65, 10, weather.ConditionClear, "晴れ"},
	"osaka":       {34.69, 135.50, 23, 62, 20, weather.ConditionClear, "晴れ"},
	"beijing":     {39.90, 116.41, 18, 55, 40, weather.ConditionCloudy, "多云"},
	"shanghai":    {31.23, 121.47, 25, 78, 75, weather.ConditionRain, "小雨"},
	"seoul":       {37.57, 126.98, 16, 58, 15, weather.ConditionClear, "맑음"},
	"singapore":   {1.35, 103.82, 30, 85, 80, weather.ConditionStorm, "Thunderstorm"},
	"bangkok":     {13.76, 100.50, 32, 75, 20, weather.ConditionClear, "Hot"},
	"london":      {51.51, -0.13, 12, 75, 85, weather.ConditionRain, "Drizzle"},
	"paris":       {48.86, 2.35, 15, 68, 70, weather.ConditionCloudy, "Nuageux"},
	"berlin":      {52.52, 13.40, 11, 72, 80, weather.ConditionCloudy, "Bewölkt"},
	"moscow":      {55.76, 37.62, 5, 80, 90, weather.ConditionSnow, "Снег"},
	"new york":    {40.71, -74.01, 16, 65, 45, weather.ConditionCloudy, "Partly Cloudy"},
	"los angeles": {34.05, -118.24, 24, 55, 10, weather.ConditionClear, "Sunny"},
	"sydney":      {-33.87, 151.21, 23, 65, 20, weather.ConditionClear, "Pleasant"},
	"dubai":       {25.20, 55.27, 35, 60, 5, weather.ConditionClear, "Very Hot"},
}

// MockProvider serves canned readings; it stands in for real providers when no API key is configured.
type MockProvider struct {
	now func() time.Time
}

func NewMockProvider() *MockProvider {
	return &MockProvider{now: time.Now}
}

func (p *MockProvider) Name() string {
	return "mock"
}

// lookupMockCity returns the canned entry for loc. Unknown places get stable
// pseudo-values derived from the key; known reports whether the city is in the table.
func lookupMockCity(loc weather.Location) (c mockCity, known bool) {
	c, ok := mockCities[strings.ToLower(strings.TrimSpace(loc.City))]
	if ok {
		return c, true
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(loc.Key())))
	seed := h.Sum32()
	return mockCity{
		temp:        float64(10 + seed%21),
		humidity:    float64(60 + seed%30),
		cloud:       float64(seed % 50),
		cond:        weather.ConditionClear,
		description: "Pleasant",
	}, false
}

func (p *MockProvider) Fetch(ctx context.Context, loc weather.Location) (weather.ProviderReading, error) {
	if err := ctx.Err(); err != nil {
		return weather.ProviderReading{}, err
	}

	c, _ := lookupMockCity(loc)
	return weather.ProviderReading{
		ProviderName: p.Name(),
		Timestamp:    p.now().UTC(),
		TemperatureC: c.temp,
		FeelsLikeC:   c.temp + 2,
		HumidityPct:  c.humidity,
		WindSpeedMS:  3.5,
		PressureHpa:  1013,
		CloudPct:     c.cloud,
		Condition:    c.cond,
		Description:  c.description,
	}, nil
}

// mockForecastCycle varies the canned conditions day by day.
var mockForecastCycle = []struct {
	delta float64
	cond  weather.Condition
}{
	{0, ""},
	{1, weather.ConditionCloudy},
	{-2, weather.ConditionRain},
	{-1, weather.ConditionCloudy},
	{2, ""},
}

// FetchForecast returns days daily readings starting today (UTC).
func (p *MockProvider) FetchForecast(ctx context.Context, loc weather.Location, days int) ([]weather.ProviderReading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, _ := lookupMockCity(loc)
	now := p.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 12, 0, 0, 0, time.UTC)

	readings := make([]weather.ProviderReading, 0, days)
	for i := 0; i < days; i++ {
		step := mockForecastCycle[i%len(mockForecastCycle)]
		cond, desc := c.cond, c.description
		if step.cond != "" {
			cond, desc = step.cond, string(step.cond)
		}
		readings = append(readings, weather.ProviderReading{
			ProviderName: p.Name(),
			Timestamp:    today.AddDate(0, 0, i),
			TemperatureC: c.temp + step.delta,
			FeelsLikeC:   c.temp + step.delta + 2,
			HumidityPct:  c.humidity,
			WindSpeedMS:  3.5,
			PressureHpa:  1013,
			CloudPct:     c.cloud,
			Condition:    cond,
			Description:  desc,
		})
	}
	return readings, nil
}

// MockGeocode resolves cities from the canned table; any other place is not found.
func MockGeocode(ctx context.Context, loc weather.Location) (float64, float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	c, known := lookupMockCity(loc)
	if !known {
		return 0, 0, weather.ErrLocationNotFound
	}
	return c.lat, c.lon, nil
}
