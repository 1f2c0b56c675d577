package observability

import (
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// basic global logger, JSON to stdout.
var logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", "weather-assistant").Logger()

func init() {
	zerolog.DefaultContextLogger = &logger
}

func Logger() *zerolog.Logger {
	return &logger
}

// SetLevel adjusts the global level; unknown names keep the current level.
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		return
	}
	zerolog.SetGlobalLevel(lvl)
}

// WithRequestID returns a context carrying a logger tagged with request_id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	l := logger.With().Str("request_id", requestID).Logger()
	return l.WithContext(ctx)
}

// LoggerFromContext returns the request logger if present, otherwise the global one.
func LoggerFromContext(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		return &logger
	}
	return zerolog.Ctx(ctx)
}
