package assistant

import (
	"context"
	"errors"
	"fmt"

	"github.com/i474232898/weather-assistant/internal/observability"
	"github.com/i474232898/weather-assistant/internal/session"
	"github.com/i474232898/weather-assistant/internal/weather"
)

// Model is everything a conversation turn asks of an assistant.
type Model interface {
	Reply(ctx context.Context, message string, c Context) (ChatReply, error)
	Classify(ctx context.Context, transcript string, c Context) (VoiceIntent, error)
	Suggest(ctx context.Context, snap weather.WeatherSnapshot, prefs session.Preferences) (session.Suggestion, error)
}

// FallbackError accompanies a usable result produced by the fallback model
// after the primary failed. Callers keep the result and may record Err.
type FallbackError struct {
	Op  string
	Err error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("assistant %s failed, served fallback: %v", e.Op, e.Err)
}

func (e *FallbackError) Unwrap() error {
	return e.Err
}

// FellBack reports whether err only signals that the result came from the fallback model.
func FellBack(err error) bool {
	var fe *FallbackError
	return errors.As(err, &fe)
}

// Fallback answers from primary and switches to fallback for any call primary fails.
// If both fail the joined errors are returned.
type Fallback struct {
	primary  Model
	fallback Model
}

func WithFallback(primary, fallback Model) *Fallback {
	return &Fallback{primary: primary, fallback: fallback}
}

func (f *Fallback) Reply(ctx context.Context, message string, c Context) (ChatReply, error) {
	r, err := f.primary.Reply(ctx, message, c)
	if err == nil {
		return r, nil
	}
	return fallbackResult(ctx, "reply", err, func() (ChatReply, error) {
		return f.fallback.Reply(ctx, message, c)
	})
}

func (f *Fallback) Classify(ctx context.Context, transcript string, c Context) (VoiceIntent, error) {
	v, err := f.primary.Classify(ctx, transcript, c)
	if err == nil {
		return v, nil
	}
	return fallbackResult(ctx, "classify", err, func() (VoiceIntent, error) {
		return f.fallback.Classify(ctx, transcript, c)
	})
}

func (f *Fallback) Suggest(ctx context.Context, snap weather.WeatherSnapshot, prefs session.Preferences) (session.Suggestion, error) {
	s, err := f.primary.Suggest(ctx, snap, prefs)
	if err == nil {
		return s, nil
	}
	return fallbackResult(ctx, "suggest", err, func() (session.Suggestion, error) {
		return f.fallback.Suggest(ctx, snap, prefs)
	})
}

func fallbackResult[T any](ctx context.Context, op string, primaryErr error, call func() (T, error)) (T, error) {
	log := observability.LoggerFromContext(ctx)
	log.Warn().Str("op", op).Err(primaryErr).Msg("primary assistant failed; using fallback")

	v, err := call()
	if err != nil {
		var zero T
		return zero, errors.Join(primaryErr, err)
	}
	return v, &FallbackError{Op: op, Err: primaryErr}
}
