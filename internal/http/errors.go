// Package http carries the thin Fiber handlers in front of the engine.
package http

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"veilytics/internal/funnels"
	"veilytics/internal/goals"
	"veilytics/internal/query"
	"veilytics/internal/sites"
	"veilytics/internal/store"
)

// handleError maps the engine's error taxonomy onto HTTP statuses. Store
// failures are logged with detail and answered generically; ownership
// failures never reveal whether the site exists under a different owner.
func handleError(c *fiber.Ctx, logger *slog.Logger, err error) error {
	var queryValidation *query.ValidationError
	var funnelValidation *funnels.ValidationError
	var goalValidation *goals.ValidationError
	var notOwner *sites.NotOwnerError
	var siteNotFound *sites.SiteNotFoundError
	var funnelNotFound *funnels.NotFoundError
	var goalNotFound *goals.NotFoundError
	var unavailable *store.UnavailableError

	switch {
	case errors.As(err, &queryValidation),
		errors.As(err, &funnelValidation),
		errors.As(err, &goalValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &notOwner):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not authorized for this site"})
	case errors.As(err, &siteNotFound),
		errors.As(err, &funnelNotFound),
		errors.As(err, &goalNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	case errors.As(err, &unavailable):
		logger.Error("Store unavailable", slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "temporary storage failure"})
	default:
		logger.Error("Unhandled error", slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}
