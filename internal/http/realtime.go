package http

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"veilytics/internal/http/middleware"
	"veilytics/internal/realtime"
)

// GetRealtimeAction reports the sessions currently inside the activity TTL.
func GetRealtimeAction(window *realtime.Window, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		site := middleware.Site(c)
		snapshot, err := window.Active(site.PublicID)
		if err != nil {
			return handleError(c, logger, err)
		}
		return c.JSON(snapshot)
	}
}
