package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"veilytics/internal/http"
	"veilytics/internal/http/middleware"
)

// publicCORSConfig is shared by every public ingest endpoint. Trackers post
// cross-origin from arbitrary pages, so the policy is permissive; origin
// enforcement happens in the classifier against the registered site domain.
var publicCORSConfig = cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, Referer, User-Agent",
}

// buildServer assembles the Fiber app and mounts every route.
func (a *Application) buildServer() *fiber.App {
	srv := fiber.New(fiber.Config{
		AppName:               a.Config.AppName,
		DisableStartupMessage: true,
	})
	srv.Use(recover.New())

	// Rate limiting would interfere with development and test traffic, so it
	// only engages in production.
	conditionalRateLimiter := func(h fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if a.Config.IsProduction() {
				return h(c)
			}
			return c.Next()
		}
	}
	publicRateLimiter := conditionalRateLimiter(limiter.New(limiter.Config{
		Max:        a.Config.IngestRateLimitPerMinute,
		Expiration: time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
		},
	}))

	srv.Get("/_health", http.HealthIndexAction)
	srv.Head("/_health", http.HealthIndexAction)
	srv.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Public ingest API. The limiter is attached per route, not on the group:
	// group middleware registers prefix-wide and would throttle the
	// authenticated query API sharing the /api/v1 prefix.
	public := srv.Group("/api/v1", cors.New(publicCORSConfig))
	public.Post("/event", publicRateLimiter, http.CreateEventAction(a.Collector, a.Logger))
	public.Post("/heartbeat", publicRateLimiter, http.HeartbeatAction(a.Collector, a.Logger))
	public.Options("/event", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })
	public.Options("/heartbeat", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	// Authenticated query API
	db := a.DBManager.GetConnection()
	authed := srv.Group("/api/v1", middleware.RequireAuth(a.Config.PrivateKey, a.Logger))
	authed.Post("/sites", http.CreateSiteAction(db, a.Logger))
	authed.Get("/sites", http.ListSitesAction(db, a.Logger))

	site := authed.Group("/sites/:siteID", middleware.RequireSiteOwnership(db, a.Logger))
	site.Get("/stats", http.GetStatsAction(a.Engine, a.Logger))
	site.Get("/realtime", http.GetRealtimeAction(a.Window, a.Logger))
	site.Get("/heatmap", http.GetHeatmapAction(a.Heatmaps, a.Logger))

	site.Post("/funnels", http.CreateFunnelAction(db, a.Logger))
	site.Get("/funnels", http.ListFunnelsAction(db, a.Logger))
	site.Get("/funnels/:funnelID/results", http.GetFunnelResultsAction(db, a.FunnelEval, a.Logger))

	site.Post("/goals", http.CreateGoalAction(db, a.Logger))
	site.Get("/goals", http.ListGoalsAction(db, a.Logger))
	site.Get("/goals/:goalID/progress", http.GetGoalProgressAction(db, a.Engine, a.Logger))

	return srv
}
