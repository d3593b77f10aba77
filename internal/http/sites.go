package http

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"veilytics/internal/http/middleware"
	"veilytics/internal/sites"
)

type createSiteRequest struct {
	Domain string `json:"domain"`
}

// CreateSiteAction registers a new tracked site for the caller.
func CreateSiteAction(db *gorm.DB, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := new(createSiteRequest)
		if err := c.BodyParser(req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
		}
		if req.Domain == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "domain is required", "field": "domain"})
		}

		site, err := sites.Create(db, middleware.UserID(c), req.Domain)
		if err != nil {
			return handleError(c, logger, err)
		}
		return c.Status(fiber.StatusCreated).JSON(site)
	}
}

// ListSitesAction lists the caller's sites.
func ListSitesAction(db *gorm.DB, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		result, err := sites.ListByOwner(db, middleware.UserID(c))
		if err != nil {
			return handleError(c, logger, err)
		}
		return c.JSON(result)
	}
}
