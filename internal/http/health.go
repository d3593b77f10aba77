package http

import (
	"github.com/gofiber/fiber/v2"
)

// HealthIndexAction answers liveness probes.
func HealthIndexAction(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
