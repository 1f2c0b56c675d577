package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/weather-assistant/internal/weather"
)

var (
	// ErrNotFound is returned when no data is available for a given location.
	ErrNotFound = errors.New("no weather data for location")
)

// SnapshotHistory holds a time-ordered list of weather snapshots for a location.
type SnapshotHistory struct {
	Location  weather.Location
	Snapshots []weather.WeatherSnapshot
}

// MemoryStore is a concurrency-safe in-memory history of weather snapshots.
type MemoryStore struct {
	mu sync.RWMutex

	// key: location key, value: history
	data map[string]*SnapshotHistory

	maxHistory int           // max number of snapshots per location
	maxAge     time.Duration // optional max age for snapshots
	now        func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]*SnapshotHistory),
		maxHistory: maxHistory,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// SaveSnapshot appends a new snapshot for a location and enforces retention.
func (s *MemoryStore) SaveSnapshot(loc weather.Location, snapshot weather.WeatherSnapshot) {
	key := loc.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.data[key]
	if !ok {
		history = &SnapshotHistory{Location: loc}
		s.data[key] = history
	}

	history.Snapshots = append(history.Snapshots, snapshot)

	// Enforce retention by count.
	if s.maxHistory > 0 && len(history.Snapshots) > s.maxHistory {
		over := len(history.Snapshots) - s.maxHistory
		history.Snapshots = history.Snapshots[over:]
	}

	s.pruneLocked(history)
}

// Prune drops expired snapshots everywhere and forgets empty locations.
// It returns the number of snapshots removed.
func (s *MemoryStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, history := range s.data {
		before := len(history.Snapshots)
		s.pruneLocked(history)
		removed += before - len(history.Snapshots)
		if len(history.Snapshots) == 0 {
			delete(s.data, key)
		}
	}
	return removed
}

// pruneLocked enforces retention by age. The newest snapshot of a location survives
// so that GetLatest keeps serving the last good reading.
func (s *MemoryStore) pruneLocked(history *SnapshotHistory) {
	if s.maxAge <= 0 || len(history.Snapshots) == 0 {
		return
	}
	cutoff := s.now().Add(-s.maxAge)
	i := sort.Search(len(history.Snapshots), func(i int) bool {
		return !history.Snapshots[i].Timestamp.Before(cutoff)
	})
	if i >= len(history.Snapshots) {
		i = len(history.Snapshots) - 1
	}
	if i > 0 {
		history.Snapshots = append([]weather.WeatherSnapshot(nil), history.Snapshots[i:]...)
	}
}

// GetLatest returns the most recent snapshot for a location.
func (s *MemoryStore) GetLatest(loc weather.Location) (weather.WeatherSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[loc.Key()]
	if !ok || len(history.Snapshots) == 0 {
		return weather.WeatherSnapshot{}, ErrNotFound
	}
	return history.Snapshots[len(history.Snapshots)-1], nil
}

// GetRange returns all snapshots for a location between from and to (inclusive).
func (s *MemoryStore) GetRange(loc weather.Location, from, to time.Time) ([]weather.WeatherSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[loc.Key()]
	if !ok || len(history.Snapshots) == 0 {
		return nil, ErrNotFound
	}

	var result []weather.WeatherSnapshot
	for _, snap := range history.Snapshots {
		if !snap.Timestamp.Before(from) && !snap.Timestamp.After(to) {
			result = append(result, snap)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}

	return result, nil
}
