package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-assistant/internal/assistant"
	"github.com/i474232898/weather-assistant/internal/session"
	"github.com/i474232898/weather-assistant/internal/weather"
)

type aiContextRequest struct {
	Weather     *session.WeatherData `json:"weather"`
	Preferences preferencesRequest   `json:"preferences"`
	Language    string               `json:"language" validate:"omitempty,max=16"`
}

func (r aiContextRequest) toContext() assistant.Context {
	prefs := r.Preferences.toPreferences().WithDefaults()
	lang := r.Language
	if lang == "" {
		lang = prefs.Language
	}
	return assistant.Context{Weather: r.Weather, Preferences: prefs, Language: lang}
}

type aiChatRequest struct {
	Message string           `json:"message" validate:"required,max=4000"`
	Context aiContextRequest `json:"context"`
}

type aiVoiceRequest struct {
	Transcript string           `json:"transcript" validate:"required,max=4000"`
	Context    aiContextRequest `json:"context"`
}

type aiSuggestionRequest struct {
	City        string             `json:"city" validate:"required"`
	Country     string             `json:"country"`
	Preferences preferencesRequest `json:"preferences"`
}

type aiCoordinatesSuggestionRequest struct {
	Lat         *float64           `json:"lat" validate:"required,latitude"`
	Lon         *float64           `json:"lon" validate:"required,longitude"`
	Preferences preferencesRequest `json:"preferences"`
}

func registerAIRoutes(ai fiber.Router, model Assistant, weatherService *weather.Service) {
	ai.Post("/chat", func(c *fiber.Ctx) error {
		var req aiChatRequest
		if err := bindJSON(c, &req); err != nil {
			return err
		}
		reply, err := model.Reply(c.UserContext(), req.Message, req.Context.toContext())
		if err != nil && !assistant.FellBack(err) {
			return fiber.NewError(fiber.StatusBadGateway, "failed to generate a reply")
		}
		return ok(c, fiber.StatusOK, reply)
	})

	ai.Post("/voice", func(c *fiber.Ctx) error {
		var req aiVoiceRequest
		if err := bindJSON(c, &req); err != nil {
			return err
		}
		intent, err := model.Classify(c.UserContext(), req.Transcript, req.Context.toContext())
		if err != nil && !assistant.FellBack(err) {
			return fiber.NewError(fiber.StatusBadGateway, "failed to process voice input")
		}
		return ok(c, fiber.StatusOK, intent)
	})

	suggest := func(c *fiber.Ctx, loc weather.Location, prefs preferencesRequest) error {
		snap, err := weatherService.Current(c.UserContext(), loc)
		if err != nil {
			return err
		}
		suggestion, err := model.Suggest(c.UserContext(), snap, prefs.toPreferences().WithDefaults())
		if err != nil && !assistant.FellBack(err) {
			return fiber.NewError(fiber.StatusBadGateway, "failed to generate a suggestion")
		}
		return ok(c, fiber.StatusOK, fiber.Map{
			"suggestion": suggestion,
			"weather":    snap,
		})
	}

	ai.Post("/suggestions", func(c *fiber.Ctx) error {
		var req aiSuggestionRequest
		if err := bindJSON(c, &req); err != nil {
			return err
		}
		return suggest(c, weather.Location{City: req.City, Country: req.Country}, req.Preferences)
	})

	ai.Post("/suggestions/coordinates", func(c *fiber.Ctx) error {
		var req aiCoordinatesSuggestionRequest
		if err := bindJSON(c, &req); err != nil {
			return err
		}
		return suggest(c, weather.Location{City: currentLocation, Lat: req.Lat, Lon: req.Lon}, req.Preferences)
	})
}
