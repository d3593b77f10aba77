// Package internal wires the aggregation engine together.
package internal

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"veilytics/internal/config"
	"veilytics/internal/database"
	"veilytics/internal/funnels"
	"veilytics/internal/heatmap"
	"veilytics/internal/ingest"
	"veilytics/internal/jobs"
	"veilytics/internal/logging"
	"veilytics/internal/pkg/geoip"
	"veilytics/internal/query"
	"veilytics/internal/realtime"
	"veilytics/internal/rollup"
	"veilytics/internal/store"
	"veilytics/internal/visitors"
)

// Application holds every long-lived component of a running instance.
type Application struct {
	Config    *config.Config
	Logger    *slog.Logger
	DBManager *database.Manager
	KV        store.Store
	Geo       *geoip.Resolver

	Collector  *ingest.Collector
	Engine     *query.Engine
	Window     *realtime.Window
	Heatmaps   *heatmap.Aggregator
	FunnelEval *funnels.Evaluator
	Jobs       *jobs.Scheduler

	fiber *fiber.App
}

// NewApp creates an application instance with the default config.
func NewApp() (*Application, error) {
	return NewAppWithConfig(config.GetConfig())
}

// NewAppWithConfig builds and wires every component. Nothing starts serving
// or ticking until Start is called.
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	logger := logging.NewLogger(cfg)

	dbManager := database.NewManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize registry: %w", err)
	}

	kv, err := store.OpenBadger(cfg.KVPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open key-value store: %w", err)
	}

	sigs, err := ingest.LoadSignatures(cfg.BotSignaturesPath, cfg.PIIPatternsPath, cfg.ClientSignaturesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load signature sets: %w", err)
	}
	botVersion, piiVersion, clientVersion := sigs.Versions()
	logger.Info("Signature sets loaded",
		slog.Int("bot_version", botVersion),
		slog.Int("pii_version", piiVersion),
		slog.Int("client_version", clientVersion))

	geo := geoip.NewResolver(cfg.GeoDBPath, logger)

	sessionWindow := time.Duration(cfg.SessionWindow()) * time.Second
	anonymizer, err := visitors.NewAnonymizer(kv, logger, sessionWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to create anonymizer: %w", err)
	}

	rollups := rollup.NewAggregator(kv, logger)
	heatmaps := heatmap.NewAggregator(kv, logger, cfg.HeatmapPointCap)
	window := realtime.NewWindow(kv, logger, time.Duration(cfg.RealtimeTTLSeconds)*time.Second)

	classifier := ingest.NewClassifier(sigs, geo, cfg.Environment)
	retention := time.Duration(cfg.VisitorMemoryRetentionDays) * 24 * time.Hour
	collector := ingest.NewCollector(classifier, anonymizer, rollups, heatmaps, window, dbManager.GetConnection(), logger, retention)

	engine := query.NewEngine(rollups, logger)

	scheduler, err := jobs.NewScheduler(cfg, dbManager, kv, window, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize jobs: %w", err)
	}

	app := &Application{
		Config:     cfg,
		Logger:     logger,
		DBManager:  dbManager,
		KV:         kv,
		Geo:        geo,
		Collector:  collector,
		Engine:     engine,
		Window:     window,
		Heatmaps:   heatmaps,
		FunnelEval: funnels.NewEvaluator(engine),
		Jobs:       scheduler,
	}
	app.fiber = app.buildServer()
	return app, nil
}

// Start runs background jobs and blocks serving HTTP.
func (a *Application) Start() error {
	if err := a.Jobs.Start(); err != nil {
		return fmt.Errorf("failed to start background jobs: %w", err)
	}
	a.Logger.Info("Server listening", slog.String("port", a.Config.AppPort))
	return a.fiber.Listen(":" + a.Config.AppPort)
}

// Shutdown stops jobs, drains the server and releases storage.
func (a *Application) Shutdown() error {
	a.Jobs.Stop()

	if err := a.fiber.Shutdown(); err != nil {
		a.Logger.Error("Failed to drain server", slog.Any("error", err))
	}

	a.Geo.Close()
	if err := a.KV.Close(); err != nil {
		a.Logger.Error("Failed to close key-value store", slog.Any("error", err))
	}
	return a.DBManager.Close()
}

// Fiber exposes the router, mainly for tests driving requests in-process.
func (a *Application) Fiber() *fiber.App {
	return a.fiber
}
