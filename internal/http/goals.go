package http

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"veilytics/internal/goals"
	"veilytics/internal/http/middleware"
	"veilytics/internal/query"
)

type createGoalRequest struct {
	Name       string           `json:"name"`
	Metric     string           `json:"metric"`
	Target     float64          `json:"target"`
	Comparator goals.Comparator `json:"comparator"`
	Period     string           `json:"period"`
	Notify     bool             `json:"notify"`
}

// CreateGoalAction stores a new goal definition for the site.
func CreateGoalAction(db *gorm.DB, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		site := middleware.Site(c)

		req := new(createGoalRequest)
		if err := c.BodyParser(req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
		}

		goal, err := goals.Create(db, site.PublicID, req.Name, req.Metric, req.Target, req.Comparator, req.Period, req.Notify)
		if err != nil {
			return handleError(c, logger, err)
		}
		return c.Status(fiber.StatusCreated).JSON(goal)
	}
}

// ListGoalsAction lists the site's goal definitions.
func ListGoalsAction(db *gorm.DB, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		site := middleware.Site(c)
		result, err := goals.ListBySite(db, site.PublicID)
		if err != nil {
			return handleError(c, logger, err)
		}
		return c.JSON(result)
	}
}

// GetGoalProgressAction evaluates one goal against its own stored period.
func GetGoalProgressAction(db *gorm.DB, engine *query.Engine, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		site := middleware.Site(c)

		goal, err := goals.GetByPublicID(db, site.PublicID, c.Params("goalID"))
		if err != nil {
			return handleError(c, logger, err)
		}
		period, err := query.ParsePeriod(goal.Period, "", "", time.Now())
		if err != nil {
			return handleError(c, logger, err)
		}

		result, err := engine.Query(c.UserContext(), query.Params{SiteID: site.PublicID, Period: period})
		if err != nil {
			return handleError(c, logger, err)
		}
		return c.JSON(fiber.Map{
			"goal":       goal,
			"period":     period,
			"evaluation": goal.Evaluate(result),
		})
	}
}
