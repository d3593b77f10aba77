package http

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"veilytics/internal/http/middleware"
	"veilytics/internal/query"
)

// GetStatsAction answers the range query API. Query params: period (defaults
// to 30d), startDate/endDate for custom periods, breakdown, filters as
// comma-separated property:value pairs, limit.
func GetStatsAction(engine *query.Engine, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		site := middleware.Site(c)

		period, err := periodFrom(c)
		if err != nil {
			return handleError(c, logger, err)
		}
		filters, err := filtersFrom(c)
		if err != nil {
			return handleError(c, logger, err)
		}

		limit, _ := strconv.Atoi(c.Query("limit"))
		result, err := engine.Query(c.UserContext(), query.Params{
			SiteID:    site.PublicID,
			Period:    period,
			Breakdown: c.Query("breakdown"),
			Filters:   filters,
			Limit:     limit,
		})
		if err != nil {
			return handleError(c, logger, err)
		}
		return c.JSON(result)
	}
}

func periodFrom(c *fiber.Ctx) (query.Period, error) {
	token := c.Query("period", query.Period30d)
	return query.ParsePeriod(token, c.Query("startDate"), c.Query("endDate"), time.Now())
}

// filtersFrom parses the filters query param. Each entry is property:value;
// the value may itself contain colons, so only the first one splits.
func filtersFrom(c *fiber.Ctx) ([]query.Filter, error) {
	raw := c.Query("filters")
	if raw == "" {
		return nil, nil
	}
	var filters []query.Filter
	for _, pair := range strings.Split(raw, ",") {
		property, value, found := strings.Cut(pair, ":")
		if !found || property == "" || value == "" {
			return nil, &query.ValidationError{Field: "filters", Message: "expected property:value pairs"}
		}
		filters = append(filters, query.Filter{Property: property, Value: value})
	}
	return filters, nil
}
