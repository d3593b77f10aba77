package http

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"veilytics/internal/heatmap"
	"veilytics/internal/http/middleware"
	"veilytics/internal/query"
)

// GetHeatmapAction returns merged click or scroll buckets for one page over
// a period. Query params: kind (click|scroll), path (required), plus the
// standard period params.
func GetHeatmapAction(heatmaps *heatmap.Aggregator, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		site := middleware.Site(c)

		path := c.Query("path")
		if path == "" {
			return handleError(c, logger, &query.ValidationError{Field: "path", Message: "path is required"})
		}
		period, err := periodFrom(c)
		if err != nil {
			return handleError(c, logger, err)
		}

		switch kind := c.Query("kind", heatmap.KindClick); kind {
		case heatmap.KindClick:
			bucket, err := heatmaps.QueryClicks(site.PublicID, path, period.Dates())
			if err != nil {
				return handleError(c, logger, err)
			}
			return c.JSON(bucket)
		case heatmap.KindScroll:
			bucket, err := heatmaps.QueryScroll(site.PublicID, path, period.Dates())
			if err != nil {
				return handleError(c, logger, err)
			}
			return c.JSON(bucket)
		default:
			return handleError(c, logger, &query.ValidationError{Field: "kind", Message: "expected click or scroll"})
		}
	}
}
