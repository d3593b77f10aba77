package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veilytics/internal/events"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	sigs, err := LoadSignatures("", "", "")
	require.NoError(t, err)
	return NewClassifier(sigs, nil, "test")
}

func validPayload() *Payload {
	return &Payload{
		SiteID:    "site-1",
		Kind:      events.KindPageview,
		URL:       "https://example.com/docs/intro",
		Screen:    "1920x1080",
		Language:  "en-US",
		Timestamp: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
	}
}

func validHeaders() Headers {
	return Headers{
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
		Origin:    "https://example.com",
		ClientIP:  "203.0.113.7",
	}
}

func TestClassifyAcceptsValidPageview(t *testing.T) {
	c := newTestClassifier(t)

	ev, rej := c.Classify(validPayload(), validHeaders(), "example.com")
	require.Nil(t, rej)
	assert.Equal(t, "/docs/intro", ev.Path)
	assert.Equal(t, "example.com", ev.Hostname)
	assert.Equal(t, "desktop", ev.Device)
	assert.Equal(t, "chrome", ev.Browser)
	assert.Equal(t, "en-us", ev.Language)
	assert.Equal(t, events.DirectSource, ev.Source)
	assert.Equal(t, events.UnknownCountry, ev.Country)
}

func TestClassifyRequiredFields(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		name   string
		mutate func(*Payload)
		field  string
	}{
		{"missing site", func(p *Payload) { p.SiteID = "" }, "siteId"},
		{"unknown kind", func(p *Payload) { p.Kind = "impression" }, "kind"},
		{"missing url", func(p *Payload) { p.URL = "" }, "url"},
		{"relative url", func(p *Payload) { p.URL = "/docs" }, "url"},
		{"custom without name", func(p *Payload) { p.Kind = events.KindCustom }, "name"},
		{"error without message", func(p *Payload) { p.Kind = events.KindError }, "name"},
		{"click without coordinates", func(p *Payload) { p.Kind = events.KindClick }, "x"},
		{"scroll without depth", func(p *Payload) { p.Kind = events.KindScroll }, "depth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPayload()
			tt.mutate(p)
			_, rej := c.Classify(p, validHeaders(), "example.com")
			require.NotNil(t, rej)
			assert.Equal(t, RejectMalformed, rej.Kind)
			assert.Equal(t, tt.field, rej.Field)
		})
	}
}

func TestClassifyRejectsBots(t *testing.T) {
	c := newTestClassifier(t)

	agents := []string{
		"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
		"curl/8.4.0",
		"python-requests/2.31.0",
		"Mozilla/5.0 (X11; Linux x86_64) HeadlessChrome/119.0.0.0",
		"GPTBot/1.0",
	}
	for _, ua := range agents {
		h := validHeaders()
		h.UserAgent = ua
		_, rej := c.Classify(validPayload(), h, "example.com")
		require.NotNil(t, rej, "agent %q should be filtered", ua)
		assert.Equal(t, RejectBot, rej.Kind)
	}
}

func TestClassifyRejectsPII(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		name   string
		mutate func(*Payload)
		field  string
	}{
		{"email in url", func(p *Payload) { p.URL = "https://example.com/confirm?email=jane@example.org" }, "url"},
		{"ip in referrer", func(p *Payload) { p.Referrer = "https://example.com/from/203.0.113.55" }, "referrer"},
		{"email in event name", func(p *Payload) {
			p.Kind = events.KindCustom
			p.Name = "signup jane@example.org"
		}, "name"},
		{"email in meta", func(p *Payload) { p.Meta = map[string]string{"note": "contact jane@example.org"} }, "meta.note"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPayload()
			tt.mutate(p)
			_, rej := c.Classify(p, validHeaders(), "example.com")
			require.NotNil(t, rej)
			assert.Equal(t, RejectPII, rej.Kind)
			assert.Equal(t, tt.field, rej.Field)
		})
	}
}

func TestClassifyRejectsForeignOrigin(t *testing.T) {
	c := newTestClassifier(t)

	h := validHeaders()
	h.Origin = "https://evil.example.net"
	_, rej := c.Classify(validPayload(), h, "example.com")
	require.NotNil(t, rej)
	assert.Equal(t, RejectOrigin, rej.Kind)
}

// The checks short-circuit in a fixed order: a bot user agent wins over a PII
// payload, and a PII payload wins over a foreign origin.
func TestClassifyRejectionOrder(t *testing.T) {
	c := newTestClassifier(t)

	p := validPayload()
	p.URL = "https://example.com/confirm?email=jane@example.org"
	h := validHeaders()
	h.UserAgent = "curl/8.4.0"
	h.Origin = "https://evil.example.net"

	_, rej := c.Classify(p, h, "example.com")
	require.NotNil(t, rej)
	assert.Equal(t, RejectBot, rej.Kind)

	h.UserAgent = validHeaders().UserAgent
	_, rej = c.Classify(p, h, "example.com")
	require.NotNil(t, rej)
	assert.Equal(t, RejectPII, rej.Kind)

	p.URL = validPayload().URL
	_, rej = c.Classify(p, h, "example.com")
	require.NotNil(t, rej)
	assert.Equal(t, RejectOrigin, rej.Kind)
}

func TestClassifyNormalizesPathsAndCampaigns(t *testing.T) {
	c := newTestClassifier(t)

	p := validPayload()
	p.URL = "https://example.com/docs/?utm_source=newsletter&utm_campaign=launch"
	p.Referrer = "https://www.google.com/search"

	ev, rej := c.Classify(p, validHeaders(), "example.com")
	require.Nil(t, rej)
	assert.Equal(t, "/docs", ev.Path, "trailing slash is stripped")
	assert.Equal(t, "launch", ev.Campaign)
	assert.Equal(t, "newsletter", ev.Source, "utm_source overrides the referrer classification")
	assert.Equal(t, "www.google.com", ev.ReferrerHost)
}

func TestClassifyClampsClickCoordinates(t *testing.T) {
	c := newTestClassifier(t)

	x, y := 145.5, -3.0
	p := validPayload()
	p.Kind = events.KindClick
	p.X, p.Y = &x, &y
	p.Viewport = "1920x1080"

	ev, rej := c.Classify(p, validHeaders(), "example.com")
	require.Nil(t, rej)
	assert.Equal(t, 100.0, ev.ClickX)
	assert.Equal(t, 0.0, ev.ClickY)
	assert.Equal(t, "1920x1080", ev.Viewport)
}

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		host        string
		domain      string
		environment string
		want        bool
	}{
		{"example.com", "example.com", "production", true},
		{"www.example.com", "example.com", "production", true},
		{"example.com", "www.example.com", "production", true},
		{"evil.example.net", "example.com", "production", false},
		{"localhost", "example.com", "production", false},
		{"localhost", "example.com", "development", true},
		{"127.0.0.1", "example.com", "test", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OriginAllowed(tt.host, tt.domain, tt.environment),
			"host=%s domain=%s env=%s", tt.host, tt.domain, tt.environment)
	}
}
