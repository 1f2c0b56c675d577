package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weather_assistant_turns_total",
		Help: "Chat turns handled, by outcome (ok, degraded, failed).",
	}, []string{"outcome"})

	DependencyFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weather_assistant_dependency_failures_total",
		Help: "Best-effort dependency failures during chat turns.",
	}, []string{"dependency"})

	VoiceCommits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weather_assistant_voice_commits_total",
		Help: "Committed voice utterances, by trigger.",
	}, []string{"trigger"})

	VoiceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weather_assistant_voice_errors_total",
		Help: "Recognition errors surfaced to users, by kind.",
	}, []string{"kind"})
)
