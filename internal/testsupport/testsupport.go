// Package testsupport provides shared fixtures for package tests.
package testsupport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"veilytics/internal/events"
	"veilytics/internal/funnels"
	"veilytics/internal/goals"
	"veilytics/internal/logging"
	"veilytics/internal/sites"
	"veilytics/internal/store"
)

// NewTestDB opens an isolated in-memory registry with all migrations run.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// One connection keeps every query on the same in-memory database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, sites.Migrate(db))
	require.NoError(t, funnels.Migrate(db))
	require.NoError(t, goals.Migrate(db))

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// NewTestStore returns an empty in-memory key-value store.
func NewTestStore(t *testing.T) store.Store {
	t.Helper()
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	return s
}

// NewTestSite registers a site owned by "test-user".
func NewTestSite(t *testing.T, db *gorm.DB, domain string) *sites.Site {
	t.Helper()
	site, err := sites.Create(db, "test-user", domain)
	require.NoError(t, err)
	return site
}

// Pageview builds a minimal pageview event for fold tests.
func Pageview(siteID, path string, at time.Time) *events.Event {
	return &events.Event{
		SiteID:       siteID,
		Kind:         events.KindPageview,
		Hostname:     "example.com",
		Path:         path,
		Source:       events.DirectSource,
		Device:       "desktop",
		Browser:      "chrome",
		OS:           "macos",
		Screen:       "1920x1080",
		Language:     "en-us",
		Country:      "United States",
		IdentityHash: "visitor-1",
		SessionHash:  "session-1",
		Timestamp:    at,
	}
}

// TestLogger is a logger that discards everything.
var TestLogger = logging.NewTestLogger()
