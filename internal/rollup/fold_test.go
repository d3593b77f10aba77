package rollup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veilytics/internal/logging"
	"veilytics/internal/store"
)

func TestFoldPersistsAndAccumulates(t *testing.T) {
	kv := store.NewMemoryStore()
	agg := NewAggregator(kv, logging.NewTestLogger())
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	_, err := agg.Fold(pageview("/", "v1", "s1", base))
	require.NoError(t, err)
	_, err = agg.Fold(pageview("/docs", "v1", "s1", base.Add(time.Minute)))
	require.NoError(t, err)

	loaded, err := agg.Load("site-1", "2026-08-20")
	require.NoError(t, err)
	assert.Equal(t, int64(2), loaded.Pageviews)
	assert.Equal(t, int64(1), loaded.UniqueSessions())
	assert.Equal(t, int64(1), loaded.Pages["/docs"])
}

func TestLoadMissingDayReturnsEmptyRollup(t *testing.T) {
	agg := NewAggregator(store.NewMemoryStore(), logging.NewTestLogger())

	loaded, err := agg.Load("site-1", "2026-01-01")
	require.NoError(t, err)
	assert.Zero(t, loaded.Pageviews)
	assert.NotNil(t, loaded.Pages)
	assert.Equal(t, "site-1", loaded.SiteID)
}

func TestFoldSurvivesJSONRoundTrip(t *testing.T) {
	kv := store.NewMemoryStore()
	agg := NewAggregator(kv, logging.NewTestLogger())
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	_, err := agg.Fold(pageview("/", "v1", "s1", base))
	require.NoError(t, err)

	// A second fold re-reads the stored JSON; the trace must keep merging.
	_, err = agg.Fold(pageview("/about", "v1", "s1", base.Add(time.Minute)))
	require.NoError(t, err)

	loaded, err := agg.Load("site-1", "2026-08-20")
	require.NoError(t, err)
	trace := loaded.Sessions["s1"]
	require.NotNil(t, trace)
	assert.Equal(t, int64(2), trace.Pageviews)
	assert.Equal(t, "/", trace.FirstPath)
	assert.Equal(t, "/about", trace.LastPath)
	assert.Len(t, trace.Steps, 2)
}
