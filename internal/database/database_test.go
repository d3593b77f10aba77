package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veilytics/internal/config"
	"veilytics/internal/funnels"
	"veilytics/internal/goals"
	"veilytics/internal/logging"
	"veilytics/internal/sites"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	cfg := &config.Config{
		StoragePath:  t.TempDir(),
		RegistryName: "registry-test.db",
	}
	return NewManager(cfg, logging.NewTestLogger())
}

func TestInitMigratesAllModels(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.Init())
	defer m.Close()

	db := m.GetConnection()
	require.NotNil(t, db)
	assert.True(t, db.Migrator().HasTable(&sites.Site{}))
	assert.True(t, db.Migrator().HasTable(&funnels.Funnel{}))
	assert.True(t, db.Migrator().HasTable(&goals.Goal{}))

	// Running the migrations again is safe.
	assert.NoError(t, m.Migrate())
}

func TestCloseBeforeInit(t *testing.T) {
	m := newManager(t)
	assert.NoError(t, m.Close())
}
