package http

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"veilytics/internal/ingest"
)

// CreateEventAction ingests one tracker payload. Bot traffic is answered
// with the same success shape as accepted events so trackers never learn
// they were filtered; malformed and PII payloads are client errors carrying
// the offending field, origin mismatches are forbidden.
func CreateEventAction(collector *ingest.Collector, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := new(ingest.Payload)
		if err := c.BodyParser(payload); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
		}

		outcome, err := collector.Collect(payload, headersFrom(c))
		if err != nil {
			return handleError(c, logger, err)
		}
		return respondOutcome(c, outcome)
	}
}

// HeartbeatAction refreshes the realtime window for the caller's session
// without counting a pageview.
func HeartbeatAction(collector *ingest.Collector, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := new(ingest.Payload)
		if err := c.BodyParser(payload); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
		}

		outcome, err := collector.Heartbeat(payload, headersFrom(c))
		if err != nil {
			return handleError(c, logger, err)
		}
		return respondOutcome(c, outcome)
	}
}

func headersFrom(c *fiber.Ctx) ingest.Headers {
	return ingest.Headers{
		UserAgent: c.Get(fiber.HeaderUserAgent),
		Origin:    c.Get(fiber.HeaderOrigin),
		Referer:   c.Get(fiber.HeaderReferer),
		ClientIP:  c.IP(),
	}
}

func respondOutcome(c *fiber.Ctx, outcome *ingest.Outcome) error {
	if outcome.Status != "" {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": outcome.Status})
	}

	rej := outcome.Rejection
	switch rej.Kind {
	case ingest.RejectOrigin:
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": rej.Detail})
	default: // malformed, pii
		body := fiber.Map{"error": rej.Detail}
		if rej.Field != "" {
			body["field"] = rej.Field
		}
		return c.Status(fiber.StatusBadRequest).JSON(body)
	}
}
