package middleware

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"veilytics/internal/sites"
)

// SiteKey is the ctx local holding the authorized *sites.Site.
const SiteKey = "site"

// RequireSiteOwnership resolves the :siteID route param against the
// authenticated user. Unknown ids and foreign sites both answer 403 so the
// response never reveals whether the site exists.
func RequireSiteOwnership(db *gorm.DB, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		site, err := sites.Authorize(db, c.Params("siteID"), UserID(c))
		if err != nil {
			var notOwner *sites.NotOwnerError
			if errors.As(err, &notOwner) {
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not authorized for this site"})
			}
			logger.Error("Site authorization lookup failed", slog.Any("error", err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		}
		c.Locals(SiteKey, site)
		return c.Next()
	}
}

// Site reads the authorized site set by RequireSiteOwnership.
func Site(c *fiber.Ctx) *sites.Site {
	site, _ := c.Locals(SiteKey).(*sites.Site)
	return site
}
