package httpapi

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-assistant/internal/conversation"
	"github.com/i474232898/weather-assistant/internal/weather"
)

var validate = validator.New()

// Assistant is the AI surface exposed by the pass-through endpoints.
type Assistant interface {
	conversation.ChatResponder
	conversation.VoiceIntentClassifier
	conversation.SuggestionGenerator
}

// Dependencies are the services behind the API.
type Dependencies struct {
	Weather   *weather.Service
	Chat      *conversation.Service
	Assistant Assistant
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Dependencies) {
	api := app.Group("/api")

	registerWeatherRoutes(api, deps.Weather)
	registerChatRoutes(api.Group("/chat"), deps.Chat)
	registerAIRoutes(api.Group("/ai"), deps.Assistant, deps.Weather)
}

// ok wraps a successful payload.
func ok(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

// bindJSON parses and validates a request body.
func bindJSON(c *fiber.Ctx, v any) error {
	if err := c.BodyParser(v); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return validate.Struct(v)
}
