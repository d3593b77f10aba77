package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veilytics/internal/config"
	"veilytics/internal/database"
	"veilytics/internal/heatmap"
	"veilytics/internal/logging"
	"veilytics/internal/sites"
	"veilytics/internal/store"
)

func newTestManager(t *testing.T) (*config.Config, *database.Manager) {
	t.Helper()

	cfg := &config.Config{
		StoragePath:         t.TempDir(),
		RegistryName:        "registry-test.db",
		RollupRetentionDays: 30,
		JobIntervalSeconds:  3600,
	}
	manager := database.NewManager(cfg, logging.NewTestLogger())
	require.NoError(t, manager.Init())
	t.Cleanup(func() { manager.Close() })
	return cfg, manager
}

func TestRetentionSweep(t *testing.T) {
	cfg, manager := newTestManager(t)
	db := manager.GetConnection()
	site, err := sites.Create(db, "test-user", "example.com")
	require.NoError(t, err)
	other, err := sites.Create(db, "test-user", "other.org")
	require.NoError(t, err)

	kv := store.NewMemoryStore()
	today := time.Now().UTC().Format("2006-01-02")
	stale := "2020-01-01"

	kept := []string{
		store.RollupKey(site.PublicID, today),
		store.HeatmapKey(site.PublicID, heatmap.KindClick, today, "/docs"),
		store.RollupKey(other.PublicID, today),
	}
	swept := []string{
		store.RollupKey(site.PublicID, stale),
		store.HeatmapKey(site.PublicID, heatmap.KindClick, stale, "/docs"),
		store.HeatmapKey(site.PublicID, heatmap.KindScroll, stale, "/docs"),
		store.RollupKey(other.PublicID, stale),
	}
	for _, key := range append(append([]string{}, kept...), swept...) {
		require.NoError(t, kv.Set(key, []byte("{}")))
	}
	// Unrelated keys under the site namespace must survive the sweep.
	realtimeKey := store.RealtimeKey(site.PublicID)
	require.NoError(t, kv.Set(realtimeKey, []byte("{}")))

	job := NewRetentionJob(cfg, manager, kv, logging.NewTestLogger())
	require.NoError(t, job.Run())

	for _, key := range kept {
		has, err := kv.Has(key)
		require.NoError(t, err)
		assert.True(t, has, "recent bucket %s must survive", key)
	}
	for _, key := range swept {
		has, err := kv.Has(key)
		require.NoError(t, err)
		assert.False(t, has, "stale bucket %s must be deleted", key)
	}
	has, err := kv.Has(realtimeKey)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestRetentionSweepNoSites(t *testing.T) {
	cfg, manager := newTestManager(t)
	job := NewRetentionJob(cfg, manager, store.NewMemoryStore(), logging.NewTestLogger())
	assert.NoError(t, job.Run())
}

func TestBucketDate(t *testing.T) {
	prefix := store.RollupPrefix("site-1")

	tests := []struct {
		name string
		key  string
		want string
	}{
		{"rollup key", "site-1:rollup:2026-08-20", "2026-08-20"},
		{"heatmap key keeps the path suffix", "site-1:rollup:2026-08-20:%2Fdocs", "2026-08-20"},
		{"too short", "site-1:rollup:2026", ""},
		{"not a date", "site-1:rollup:abcdefghij", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, bucketDate(tt.key, prefix))
		})
	}
}
