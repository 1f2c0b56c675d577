package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-assistant/internal/weather"
)

type fakeRefresher struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
	done  chan struct{}
}

func (f *fakeRefresher) FetchAndStore(_ context.Context, loc weather.Location) error {
	f.mu.Lock()
	f.calls = append(f.calls, loc.City)
	f.mu.Unlock()
	if f.done != nil {
		select {
		case f.done <- struct{}{}:
		default:
		}
	}
	if f.fail[loc.City] {
		return weather.ErrNoReadings
	}
	return nil
}

type fakePruner struct{ calls int }

func (p *fakePruner) Prune() int {
	p.calls++
	return 1
}

type fakeCleaner struct {
	ttl   time.Duration
	calls int
}

func (c *fakeCleaner) CleanupIdle(_ context.Context, ttl time.Duration) (int, error) {
	c.calls++
	c.ttl = ttl
	return 2, nil
}

func TestRefreshWeatherFetchesEveryLocationThenPrunes(t *testing.T) {
	ref := &fakeRefresher{fail: map[string]bool{"Osaka": true}}
	pruner := &fakePruner{}
	s := New(Config{Locations: []weather.Location{
		{City: "Tokyo", Country: "JP"},
		{City: "Osaka", Country: "JP"},
	}}, ref, pruner, nil)

	s.refreshWeather()

	assert.ElementsMatch(t, []string{"Tokyo", "Osaka"}, ref.calls)
	assert.Equal(t, 1, pruner.calls)
}

func TestCleanupSessionsUsesIdleTTL(t *testing.T) {
	cleaner := &fakeCleaner{}
	s := New(Config{SessionIdleTTL: time.Hour}, nil, nil, cleaner)

	s.cleanupSessions()

	assert.Equal(t, 1, cleaner.calls)
	assert.Equal(t, time.Hour, cleaner.ttl)
}

func TestStartWithoutJobsDoesNotRun(t *testing.T) {
	s := New(Config{}, &fakeRefresher{}, nil, &fakeCleaner{})
	require.NoError(t, s.Start())
	assert.False(t, s.scheduler.IsRunning())
	s.Stop()
}

func TestStartRunsRefreshImmediately(t *testing.T) {
	ref := &fakeRefresher{done: make(chan struct{}, 1)}
	s := New(Config{
		Locations:     []weather.Location{{City: "Tokyo", Country: "JP"}},
		FetchInterval: time.Hour,
	}, ref, nil, nil)
	require.NoError(t, s.Start())
	defer s.Stop()

	select {
	case <-ref.done:
	case <-time.After(2 * time.Second):
		t.Fatal("weather refresh did not run")
	}
	assert.True(t, s.scheduler.IsRunning())
}
