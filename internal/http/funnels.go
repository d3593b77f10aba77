package http

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"veilytics/internal/funnels"
	"veilytics/internal/http/middleware"
)

type createFunnelRequest struct {
	Name  string         `json:"name"`
	Steps []funnels.Step `json:"steps"`
}

// CreateFunnelAction stores a new funnel definition for the site.
func CreateFunnelAction(db *gorm.DB, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		site := middleware.Site(c)

		req := new(createFunnelRequest)
		if err := c.BodyParser(req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
		}

		funnel, err := funnels.Create(db, site.PublicID, req.Name, req.Steps)
		if err != nil {
			return handleError(c, logger, err)
		}
		return c.Status(fiber.StatusCreated).JSON(funnel)
	}
}

// ListFunnelsAction lists the site's funnel definitions.
func ListFunnelsAction(db *gorm.DB, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		site := middleware.Site(c)
		result, err := funnels.ListBySite(db, site.PublicID)
		if err != nil {
			return handleError(c, logger, err)
		}
		return c.JSON(result)
	}
}

// GetFunnelResultsAction evaluates one funnel over a period.
func GetFunnelResultsAction(db *gorm.DB, evaluator *funnels.Evaluator, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		site := middleware.Site(c)

		funnel, err := funnels.GetByPublicID(db, site.PublicID, c.Params("funnelID"))
		if err != nil {
			return handleError(c, logger, err)
		}
		period, err := periodFrom(c)
		if err != nil {
			return handleError(c, logger, err)
		}

		steps, err := evaluator.Evaluate(c.UserContext(), funnel, period)
		if err != nil {
			return handleError(c, logger, err)
		}
		return c.JSON(fiber.Map{
			"funnel": funnel,
			"period": period,
			"steps":  steps,
		})
	}
}
