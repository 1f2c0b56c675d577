package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-assistant/internal/weather"
)

var tokyo = weather.Location{City: "Tokyo", Country: "JP"}

func snapAt(ts time.Time, temp float64) weather.WeatherSnapshot {
	return weather.WeatherSnapshot{Location: tokyo, Timestamp: ts, Temperature: temp}
}

func TestMemoryStoreLatestAndRange(t *testing.T) {
	s := NewMemoryStore(10, 0)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		s.SaveSnapshot(tokyo, snapAt(base.Add(time.Duration(i)*time.Hour), float64(i)))
	}

	latest, err := s.GetLatest(tokyo)
	require.NoError(t, err)
	assert.Equal(t, 3.0, latest.Temperature)

	got, err := s.GetRange(tokyo, base.Add(time.Hour), base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1.0, got[0].Temperature)

	_, err = s.GetRange(tokyo, base.Add(10*time.Hour), base.Add(11*time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetLatest(weather.Location{City: "Paris"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreRetentionByCount(t *testing.T) {
	s := NewMemoryStore(2, 0)
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		s.SaveSnapshot(tokyo, snapAt(base.Add(time.Duration(i)*time.Minute), float64(i)))
	}
	got, err := s.GetRange(tokyo, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 3.0, got[0].Temperature)
}

func TestMemoryStorePruneKeepsNewest(t *testing.T) {
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(0, time.Hour)
	s.now = func() time.Time { return now }

	s.SaveSnapshot(tokyo, snapAt(now.Add(-3*time.Hour), 1))
	s.SaveSnapshot(tokyo, snapAt(now.Add(-2*time.Hour), 2))

	latest, err := s.GetLatest(tokyo)
	require.NoError(t, err)
	assert.Equal(t, 2.0, latest.Temperature)

	s.SaveSnapshot(weather.Location{City: "Paris"}, weather.WeatherSnapshot{Timestamp: now})
	assert.Equal(t, 0, s.Prune())
}
