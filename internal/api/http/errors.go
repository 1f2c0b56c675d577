package httpapi

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-assistant/internal/conversation"
	"github.com/i474232898/weather-assistant/internal/observability"
	"github.com/i474232898/weather-assistant/internal/session"
	"github.com/i474232898/weather-assistant/internal/store"
	"github.com/i474232898/weather-assistant/internal/weather"
)

// ErrorHandler is the centralized error response for every route.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code, message := classify(err)
	if code >= fiber.StatusInternalServerError {
		observability.LoggerFromContext(c.UserContext()).Error().
			Err(err).
			Str("path", c.Path()).
			Msg("request failed")
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}

func classify(err error) (int, string) {
	var (
		fe    *fiber.Error
		vErrs validator.ValidationErrors
		fatal *conversation.FatalError
	)
	switch {
	case errors.As(err, &fe):
		return fe.Code, fe.Message
	case errors.As(err, &vErrs):
		return fiber.StatusBadRequest, vErrs.Error()
	case errors.Is(err, conversation.ErrInvalidInput),
		errors.Is(err, weather.ErrInvalidLocation),
		errors.Is(err, weather.ErrInvalidForecastDays):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, session.ErrNotFound):
		return fiber.StatusNotFound, "session not found"
	case errors.Is(err, store.ErrNotFound):
		return fiber.StatusNotFound, "no weather data for requested location"
	case errors.Is(err, weather.ErrLocationNotFound):
		return fiber.StatusNotFound, "location not found"
	case errors.Is(err, session.ErrExists):
		return fiber.StatusConflict, "session already exists"
	case errors.Is(err, weather.ErrGeocodingUnavailable):
		return fiber.StatusServiceUnavailable, "geocoding is not configured"
	case errors.Is(err, weather.ErrNoReadings):
		return fiber.StatusBadGateway, "weather providers are unavailable"
	case errors.As(err, &fatal):
		return fiber.StatusInternalServerError, "failed to save message; please retry"
	default:
		return fiber.StatusInternalServerError, "internal server error"
	}
}
