package stream

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/teslashibe/posture-guard/pkg/protocol"
)

// RegisterAPIRoutes registers REST routes for session management
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	sessions := api.Group("/sessions")

	// List live sessions
	sessions.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"sessions": h.GetSessionInfos(),
			"count":    h.SessionCount(),
		})
	})

	// Get hub stats
	sessions.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})

	// Get one session
	sessions.Get("/:id", func(c *fiber.Ctx) error {
		conn := h.GetConnection(c.Params("id"))
		if conn == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": ErrSessionNotFound.Error()})
		}
		return c.JSON(SessionInfo{Info: conn.Session.Info(), Connected: conn.Connected})
	})

	// Update session settings
	sessions.Put("/:id/settings", func(c *fiber.Ctx) error {
		var update protocol.SettingsData
		if err := c.BodyParser(&update); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}

		settings, err := h.Configure(c.Params("id"), update)
		switch {
		case errors.Is(err, ErrSessionNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		case err != nil:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}

		return c.JSON(protocol.SettingsStateFrom(settings))
	})

	// Recalibrate session
	sessions.Post("/:id/restart", func(c *fiber.Ctx) error {
		if err := h.Restart(c.Params("id")); err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"status": "restarting"})
	})
}
