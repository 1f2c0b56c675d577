package weather

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/i474232898/weather-assistant/internal/observability"
)

var (
	// ErrNoReadings is returned when every provider failed for a location.
	ErrNoReadings = errors.New("no weather provider returned a reading")
	// ErrLocationNotFound is returned when providers do not know the requested place.
	ErrLocationNotFound = errors.New("location not found")
	// ErrInvalidLocation is returned for a location with neither a city nor coordinates.
	ErrInvalidLocation = errors.New("location requires a city or coordinates")
	// ErrInvalidForecastDays is returned for a forecast request outside 1..MaxForecastDays.
	ErrInvalidForecastDays = fmt.Errorf("days must be between 1 and %d", MaxForecastDays)
	// ErrGeocodingUnavailable is returned when no geocoder is configured.
	ErrGeocodingUnavailable = errors.New("geocoding is not configured")
)

// MaxForecastDays bounds forecast requests.
const MaxForecastDays = 7

// Service orchestrates fetching from multiple providers and persisting snapshots.
type Service struct {
	store     Store
	providers []Provider
	geocode   GeocodeFunc
}

// NewService creates a new Service.
func NewService(store Store, providers []Provider) *Service {
	return &Service{
		store:     store,
		providers: providers,
	}
}

// WithGeocoder sets the function used by Geocode.
func (s *Service) WithGeocoder(fn GeocodeFunc) *Service {
	s.geocode = fn
	return s
}

func normalize(loc Location) (Location, error) {
	loc.City = strings.TrimSpace(loc.City)
	loc.Country = strings.TrimSpace(loc.Country)
	if loc.City == "" && !loc.HasCoordinates() {
		return loc, ErrInvalidLocation
	}
	return loc, nil
}

// Current fetches data from all providers concurrently for the given location,
// aggregates successful readings, records the snapshot and returns it.
// A failed fetch never overwrites the last good snapshot.
func (s *Service) Current(ctx context.Context, loc Location) (WeatherSnapshot, error) {
	loc, err := normalize(loc)
	if err != nil {
		return WeatherSnapshot{}, err
	}

	log := observability.LoggerFromContext(ctx).With().
		Str("location", loc.Key()).
		Int("providers", len(s.providers)).
		Logger()

	if len(s.providers) == 0 {
		log.Error().Msg("no providers available to fetch weather data")
		return WeatherSnapshot{}, fmt.Errorf("%w: no weather providers configured", ErrNoReadings)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		readings []ProviderReading
		errs     []error
	)

	for _, p := range s.providers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			r, err := p.Fetch(ctx, loc)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Log and continue; we want partial success when possible.
				log.Warn().Str("provider", p.Name()).Err(err).Msg("provider fetch failed")
				errs = append(errs, err)
				return
			}
			readings = append(readings, r)
		}()
	}

	wg.Wait()

	if len(readings) == 0 {
		log.Warn().Msg("no successful provider readings; keeping last good snapshot if any")
		return WeatherSnapshot{}, classifyFailure(errs)
	}

	snapshot := AggregateReadings(loc, readings)
	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = time.Now().UTC()
	}
	if s.store != nil {
		s.store.SaveSnapshot(loc, snapshot)
	}
	log.Debug().Int("readings", len(readings)).Msg("weather snapshot stored")
	return snapshot, nil
}

// FetchAndStore refreshes the snapshot for loc; used by the scheduler.
func (s *Service) FetchAndStore(ctx context.Context, loc Location) error {
	_, err := s.Current(ctx, loc)
	return err
}

// GetLatest delegates to the underlying store.
func (s *Service) GetLatest(loc Location) (WeatherSnapshot, error) {
	return s.store.GetLatest(loc)
}

// GetRange delegates to the underlying store.
func (s *Service) GetRange(loc Location, from, to time.Time) ([]WeatherSnapshot, error) {
	return s.store.GetRange(loc, from, to)
}

// GetForecast fetches multi-day forecasts from providers that support it,
// aggregates them per UTC day and returns at most days entries.
func (s *Service) GetForecast(ctx context.Context, loc Location, days int) (Forecast, error) {
	loc, err := normalize(loc)
	if err != nil {
		return nil, err
	}
	if days < 1 || days > MaxForecastDays {
		return nil, ErrInvalidForecastDays
	}

	log := observability.LoggerFromContext(ctx).With().
		Str("location", loc.Key()).
		Int("days", days).
		Logger()

	var (
		wg            sync.WaitGroup
		mu            sync.Mutex
		dayReadings   = make(map[string][]ProviderReading)
		dayTimestamps = make(map[string]time.Time)
		errs          []error
	)

	for _, p := range s.providers {
		fp, ok := p.(ForecastProvider)
		if !ok {
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			readings, err := fp.FetchForecast(ctx, loc, days)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn().Str("provider", p.Name()).Err(err).Msg("provider forecast failed")
				errs = append(errs, err)
				return
			}

			for _, r := range readings {
				ts := r.Timestamp.UTC()
				k := ts.Format(time.DateOnly)
				dayReadings[k] = append(dayReadings[k], r)
				if _, exists := dayTimestamps[k]; !exists {
					dayTimestamps[k] = time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
				}
			}
		}()
	}

	wg.Wait()

	if len(dayReadings) == 0 {
		log.Warn().Msg("no successful forecast readings")
		return nil, classifyFailure(errs)
	}

	keys := make([]string, 0, len(dayReadings))
	for k := range dayReadings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	forecast := make(Forecast, 0, days)
	for _, k := range keys {
		if len(forecast) >= days {
			break
		}
		snapshot := AggregateReadings(loc, dayReadings[k])
		snapshot.Timestamp = dayTimestamps[k]
		forecast = append(forecast, snapshot)
	}
	return forecast, nil
}

// Geocode fills in the coordinates of loc. Locations that already carry
// coordinates are returned unchanged.
func (s *Service) Geocode(ctx context.Context, loc Location) (Location, error) {
	loc, err := normalize(loc)
	if err != nil {
		return loc, err
	}
	if loc.HasCoordinates() {
		return loc, nil
	}
	if s.geocode == nil {
		return loc, ErrGeocodingUnavailable
	}

	lat, lon, err := s.geocode(ctx, loc)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn().
			Str("location", loc.Key()).
			Err(err).
			Msg("geocoding failed")
		if errors.Is(err, ErrLocationNotFound) {
			return loc, err
		}
		return loc, fmt.Errorf("%w: %v", ErrLocationNotFound, err)
	}
	loc.Lat, loc.Lon = &lat, &lon
	return loc, nil
}

func classifyFailure(errs []error) error {
	if len(errs) == 0 {
		return ErrNoReadings
	}
	allNotFound := true
	for _, err := range errs {
		if !errors.Is(err, ErrLocationNotFound) {
			allNotFound = false
			break
		}
	}
	joined := errors.Join(errs...)
	if allNotFound {
		return fmt.Errorf("%w: %v", ErrLocationNotFound, joined)
	}
	return fmt.Errorf("%w: %v", ErrNoReadings, joined)
}
