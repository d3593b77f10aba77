package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"veilytics/internal/funnels"
	"veilytics/internal/heatmap"
	"veilytics/internal/http/middleware"
	"veilytics/internal/ingest"
	"veilytics/internal/logging"
	"veilytics/internal/query"
	"veilytics/internal/realtime"
	"veilytics/internal/rollup"
	"veilytics/internal/sites"
	"veilytics/internal/store"
	"veilytics/internal/testsupport"
	"veilytics/internal/visitors"
)

const testSecret = "test-secret"

type apiFixture struct {
	app  *fiber.App
	db   *gorm.DB
	site *sites.Site
}

// newAPIFixture assembles the API surface on in-memory storage, mirroring
// the production route layout.
func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	logger := logging.NewTestLogger()
	kv := store.NewMemoryStore()
	db := testsupport.NewTestDB(t)
	site := testsupport.NewTestSite(t, db, "example.com")

	sigs, err := ingest.LoadSignatures("", "", "")
	require.NoError(t, err)
	anonymizer, err := visitors.NewAnonymizer(kv, logger, 30*time.Minute)
	require.NoError(t, err)

	rollups := rollup.NewAggregator(kv, logger)
	heatmaps := heatmap.NewAggregator(kv, logger, 1000)
	window := realtime.NewWindow(kv, logger, 5*time.Minute)
	classifier := ingest.NewClassifier(sigs, nil, "test")
	collector := ingest.NewCollector(classifier, anonymizer, rollups, heatmaps, window, db, logger, 90*24*time.Hour)
	engine := query.NewEngine(rollups, logger)

	app := fiber.New()
	app.Post("/api/v1/event", CreateEventAction(collector, logger))
	app.Post("/api/v1/heartbeat", HeartbeatAction(collector, logger))

	authed := app.Group("/api/v1", middleware.RequireAuth(testSecret, logger))
	authed.Post("/sites", CreateSiteAction(db, logger))
	authed.Get("/sites", ListSitesAction(db, logger))

	scoped := authed.Group("/sites/:siteID", middleware.RequireSiteOwnership(db, logger))
	scoped.Get("/stats", GetStatsAction(engine, logger))
	scoped.Get("/realtime", GetRealtimeAction(window, logger))
	scoped.Get("/heatmap", GetHeatmapAction(heatmaps, logger))
	scoped.Post("/funnels", CreateFunnelAction(db, logger))
	scoped.Get("/funnels", ListFunnelsAction(db, logger))
	scoped.Get("/funnels/:funnelID/results", GetFunnelResultsAction(db, funnels.NewEvaluator(engine), logger))
	scoped.Post("/goals", CreateGoalAction(db, logger))
	scoped.Get("/goals", ListGoalsAction(db, logger))
	scoped.Get("/goals/:goalID/progress", GetGoalProgressAction(db, engine, logger))

	return &apiFixture{app: app, db: db, site: site}
}

func bearerToken(t *testing.T, user string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   user,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (f *apiFixture) request(t *testing.T, method, path, user string, body interface{}) *stdhttp.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken(t, user))
	}

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (f *apiFixture) trackEvent(t *testing.T, body map[string]interface{}) *stdhttp.Response {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(stdhttp.MethodPost, "/api/v1/event", bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	req.Header.Set("Origin", "https://example.com")

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *stdhttp.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	out := make(map[string]interface{})
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestIngestEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.trackEvent(t, map[string]interface{}{
		"siteId": f.site.PublicID,
		"kind":   "pageview",
		"url":    "https://example.com/docs",
	})
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "accepted", decodeBody(t, resp)["status"])
}

func TestIngestBotLooksLikeSuccess(t *testing.T) {
	f := newAPIFixture(t)

	encoded, _ := json.Marshal(map[string]interface{}{
		"siteId": f.site.PublicID,
		"kind":   "pageview",
		"url":    "https://example.com/docs",
	})
	req := httptest.NewRequest(stdhttp.MethodPost, "/api/v1/event", bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "curl/8.4.0")
	req.Header.Set("Origin", "https://example.com")

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode, "bots get a success-shaped answer")
	assert.Equal(t, "ignored", decodeBody(t, resp)["status"])
}

func TestIngestValidationCarriesField(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.trackEvent(t, map[string]interface{}{
		"siteId": f.site.PublicID,
		"kind":   "pageview",
		"url":    "https://example.com/confirm?email=jane@example.org",
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "url", decodeBody(t, resp)["field"])
}

func TestIngestForeignOriginForbidden(t *testing.T) {
	f := newAPIFixture(t)

	encoded, _ := json.Marshal(map[string]interface{}{
		"siteId": f.site.PublicID,
		"kind":   "pageview",
		"url":    "https://example.com/docs",
	})
	req := httptest.NewRequest(stdhttp.MethodPost, "/api/v1/event", bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh) Chrome/120.0 Safari/537.36")
	req.Header.Set("Origin", "https://evil.example.net")

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestIngestUnknownSite(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.trackEvent(t, map[string]interface{}{
		"siteId": "no-such-site",
		"kind":   "pageview",
		"url":    "https://example.com/docs",
	})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, stdhttp.MethodGet, "/api/v1/sites", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(stdhttp.MethodGet, "/api/v1/sites", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestSiteOwnershipNeverLeaksExistence(t *testing.T) {
	f := newAPIFixture(t)

	owned := f.request(t, stdhttp.MethodGet, "/api/v1/sites/"+f.site.PublicID+"/stats?period=7d", "test-user", nil)
	assert.Equal(t, fiber.StatusOK, owned.StatusCode)

	foreign := f.request(t, stdhttp.MethodGet, "/api/v1/sites/"+f.site.PublicID+"/stats?period=7d", "other-user", nil)
	assert.Equal(t, fiber.StatusForbidden, foreign.StatusCode)

	missing := f.request(t, stdhttp.MethodGet, "/api/v1/sites/unknown-site/stats?period=7d", "test-user", nil)
	assert.Equal(t, fiber.StatusForbidden, missing.StatusCode, "unknown and foreign sites answer identically")
}

func TestStatsEndToEnd(t *testing.T) {
	f := newAPIFixture(t)

	for _, path := range []string{"/docs", "/docs", "/pricing"} {
		resp := f.trackEvent(t, map[string]interface{}{
			"siteId": f.site.PublicID,
			"kind":   "pageview",
			"url":    "https://example.com" + path,
		})
		require.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	}

	resp := f.request(t, stdhttp.MethodGet,
		"/api/v1/sites/"+f.site.PublicID+"/stats?period=7d&breakdown=page", "test-user", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	totals := body["totals"].(map[string]interface{})
	assert.Equal(t, float64(3), totals["pageviews"])

	rows := body["rows"].([]interface{})
	require.Len(t, rows, 2)
	first := rows[0].(map[string]interface{})
	assert.Equal(t, "/docs", first["key"])
	assert.Equal(t, float64(2), first["count"])
}

func TestStatsValidation(t *testing.T) {
	f := newAPIFixture(t)
	base := "/api/v1/sites/" + f.site.PublicID + "/stats"

	tests := []struct {
		name  string
		query string
	}{
		{"unknown period", "?period=fortnight"},
		{"custom without dates", "?period=custom"},
		{"unknown breakdown", "?period=7d&breakdown=flavor"},
		{"malformed filters", "?period=7d&filters=page"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.request(t, stdhttp.MethodGet, base+tt.query, "test-user", nil)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestRealtimeEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.trackEvent(t, map[string]interface{}{
		"siteId": f.site.PublicID,
		"kind":   "pageview",
		"url":    "https://example.com/docs",
	})
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	resp = f.request(t, stdhttp.MethodGet, "/api/v1/sites/"+f.site.PublicID+"/realtime", "test-user", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(1), body["count"])
}

func TestHeatmapEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.trackEvent(t, map[string]interface{}{
		"siteId":   f.site.PublicID,
		"kind":     "click",
		"url":      "https://example.com/docs",
		"x":        45.5,
		"y":        67.8,
		"viewport": "1920x1080",
	})
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	resp = f.request(t, stdhttp.MethodGet,
		"/api/v1/sites/"+f.site.PublicID+"/heatmap?kind=click&path=/docs&period=7d", "test-user", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(1), body["total"])

	missingPath := f.request(t, stdhttp.MethodGet,
		"/api/v1/sites/"+f.site.PublicID+"/heatmap?kind=click", "test-user", nil)
	assert.Equal(t, fiber.StatusBadRequest, missingPath.StatusCode)
}

func TestFunnelLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	base := "/api/v1/sites/" + f.site.PublicID + "/funnels"

	created := f.request(t, stdhttp.MethodPost, base, "test-user", map[string]interface{}{
		"name": "Signup flow",
		"steps": []map[string]string{
			{"type": "page", "match": "/pricing"},
			{"type": "event", "match": "signup"},
		},
	})
	require.Equal(t, fiber.StatusCreated, created.StatusCode)
	funnelID := decodeBody(t, created)["id"].(string)

	list := f.request(t, stdhttp.MethodGet, base, "test-user", nil)
	require.Equal(t, fiber.StatusOK, list.StatusCode)

	results := f.request(t, stdhttp.MethodGet, base+"/"+funnelID+"/results?period=7d", "test-user", nil)
	require.Equal(t, fiber.StatusOK, results.StatusCode)
	body := decodeBody(t, results)
	assert.Len(t, body["steps"], 2)

	invalid := f.request(t, stdhttp.MethodPost, base, "test-user", map[string]interface{}{
		"name":  "Too short",
		"steps": []map[string]string{{"type": "page", "match": "/"}},
	})
	assert.Equal(t, fiber.StatusBadRequest, invalid.StatusCode)

	missing := f.request(t, stdhttp.MethodGet, base+"/nope/results?period=7d", "test-user", nil)
	assert.Equal(t, fiber.StatusNotFound, missing.StatusCode)
}

func TestGoalLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	base := "/api/v1/sites/" + f.site.PublicID + "/goals"

	created := f.request(t, stdhttp.MethodPost, base, "test-user", map[string]interface{}{
		"name":       "Traffic push",
		"metric":     "pageviews",
		"target":     2,
		"comparator": "gte",
		"period":     "7d",
	})
	require.Equal(t, fiber.StatusCreated, created.StatusCode)
	goalID := decodeBody(t, created)["id"].(string)

	for i := 0; i < 3; i++ {
		resp := f.trackEvent(t, map[string]interface{}{
			"siteId": f.site.PublicID,
			"kind":   "pageview",
			"url":    fmt.Sprintf("https://example.com/p%d", i),
		})
		require.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	}

	progress := f.request(t, stdhttp.MethodGet, base+"/"+goalID+"/progress", "test-user", nil)
	require.Equal(t, fiber.StatusOK, progress.StatusCode)
	evaluation := decodeBody(t, progress)["evaluation"].(map[string]interface{})
	assert.Equal(t, float64(3), evaluation["currentValue"])
	assert.Equal(t, true, evaluation["isComplete"])

	invalid := f.request(t, stdhttp.MethodPost, base, "test-user", map[string]interface{}{
		"name":       "Bad",
		"metric":     "clicks",
		"target":     5,
		"comparator": "gte",
		"period":     "7d",
	})
	assert.Equal(t, fiber.StatusBadRequest, invalid.StatusCode)
}

func TestCreateAndListSites(t *testing.T) {
	f := newAPIFixture(t)

	created := f.request(t, stdhttp.MethodPost, "/api/v1/sites", "test-user", map[string]string{
		"domain": "blog.example.org",
	})
	require.Equal(t, fiber.StatusCreated, created.StatusCode)

	list := f.request(t, stdhttp.MethodGet, "/api/v1/sites", "test-user", nil)
	require.Equal(t, fiber.StatusOK, list.StatusCode)
	defer list.Body.Close()
	var result []map[string]interface{}
	require.NoError(t, json.NewDecoder(list.Body).Decode(&result))
	assert.Len(t, result, 2)
}
