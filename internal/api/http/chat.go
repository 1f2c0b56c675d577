package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-assistant/internal/conversation"
	"github.com/i474232898/weather-assistant/internal/session"
)

type createSessionRequest struct {
	UserID      string             `json:"userId" validate:"omitempty,max=128"`
	Preferences preferencesRequest `json:"preferences"`
}

type preferencesRequest struct {
	Language string           `json:"language" validate:"omitempty,max=16"`
	Theme    string           `json:"theme" validate:"omitempty,oneof=travel fashion sports music agriculture general"`
	Location *locationRequest `json:"location" validate:"omitempty"`
}

func (p preferencesRequest) toPreferences() session.Preferences {
	return session.Preferences{
		Language: p.Language,
		Theme:    p.Theme,
		Location: p.Location.toLocation(),
	}
}

type locationRequest struct {
	City    string `json:"city" validate:"required"`
	Country string `json:"country"`
}

func (l *locationRequest) toLocation() *session.Location {
	if l == nil {
		return nil
	}
	return &session.Location{City: l.City, Country: l.Country}
}

type messageRequest struct {
	SessionID    string           `json:"sessionId" validate:"required"`
	Message      string           `json:"message" validate:"required,max=4000"`
	IsVoiceInput bool             `json:"isVoiceInput"`
	Language     string           `json:"language" validate:"omitempty,max=16"`
	Location     *locationRequest `json:"location" validate:"omitempty"`
}

func registerChatRoutes(chat fiber.Router, service *conversation.Service) {
	chat.Post("/session", func(c *fiber.Ctx) error {
		var req createSessionRequest
		// An empty body creates an anonymous session with default preferences.
		if len(c.Body()) > 0 {
			if err := bindJSON(c, &req); err != nil {
				return err
			}
		}
		sess, err := service.CreateSession(c.UserContext(), req.UserID, req.Preferences.toPreferences())
		if err != nil {
			return err
		}
		return ok(c, fiber.StatusCreated, fiber.Map{
			"sessionId":   sess.SessionID,
			"userId":      sess.UserID,
			"preferences": sess.Preferences,
			"createdAt":   sess.CreatedAt,
		})
	})

	chat.Post("/message", func(c *fiber.Ctx) error {
		var req messageRequest
		if err := bindJSON(c, &req); err != nil {
			return err
		}
		turn, err := service.HandleMessage(c.UserContext(), conversation.MessageRequest{
			SessionID:    req.SessionID,
			Message:      req.Message,
			IsVoiceInput: req.IsVoiceInput,
			Language:     req.Language,
			Location:     req.Location.toLocation(),
		})
		if err != nil {
			return err
		}
		return ok(c, fiber.StatusOK, turn)
	})

	chat.Get("/history/:sessionId", func(c *fiber.Ctx) error {
		history, err := service.History(c.UserContext(), c.Params("sessionId"), c.QueryInt("limit", conversation.DefaultHistoryLimit), c.QueryInt("offset"))
		if err != nil {
			return err
		}
		return ok(c, fiber.StatusOK, history)
	})

	chat.Put("/preferences/:sessionId", func(c *fiber.Ctx) error {
		var req preferencesRequest
		if err := bindJSON(c, &req); err != nil {
			return err
		}
		sess, err := service.UpdatePreferences(c.UserContext(), c.Params("sessionId"), req.toPreferences())
		if err != nil {
			return err
		}
		return ok(c, fiber.StatusOK, fiber.Map{
			"sessionId":   sess.SessionID,
			"preferences": sess.Preferences,
		})
	})

	chat.Get("/sessions/:userId", func(c *fiber.Ctx) error {
		sessions, total, err := service.ListSessions(c.UserContext(), c.Params("userId"), c.QueryInt("limit", conversation.DefaultSessionsLimit), c.QueryInt("offset"))
		if err != nil {
			return err
		}
		return ok(c, fiber.StatusOK, fiber.Map{
			"sessions": sessions,
			"total":    total,
		})
	})
}
