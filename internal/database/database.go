// Package database manages the sqlite registry holding sites, funnels and
// goals. Aggregates never live here; they belong to the key-value store.
package database

import (
	"fmt"
	"log/slog"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"veilytics/internal/config"
	"veilytics/internal/funnels"
	"veilytics/internal/goals"
	"veilytics/internal/sites"
)

// Manager owns the registry connection lifecycle.
type Manager struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *gorm.DB
}

func NewManager(cfg *config.Config, log *slog.Logger) *Manager {
	return &Manager{cfg: cfg, logger: log}
}

// Init opens the registry with WAL enabled and runs migrations.
func (m *Manager) Init() error {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", m.cfg.RegistryPath())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open registry: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access registry pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	m.db = db
	m.logger.Info("Registry initialized", slog.String("path", m.cfg.RegistryPath()))
	return m.Migrate()
}

// Migrate runs every registry migration inside one transaction.
func (m *Manager) Migrate() error {
	return m.db.Transaction(func(tx *gorm.DB) error {
		if err := sites.Migrate(tx); err != nil {
			return err
		}
		if err := funnels.Migrate(tx); err != nil {
			return err
		}
		return goals.Migrate(tx)
	})
}

// GetConnection returns the shared gorm handle.
func (m *Manager) GetConnection() *gorm.DB {
	return m.db
}

// Close releases the underlying pool.
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
