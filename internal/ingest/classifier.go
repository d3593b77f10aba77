package ingest

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"veilytics/internal/events"
)

// Payload is the raw, untrusted body of an ingest request.
type Payload struct {
	SiteID       string            `json:"siteId"`
	Kind         events.Kind       `json:"kind"`
	URL          string            `json:"url"`
	Referrer     string            `json:"referrer"`
	Name         string            `json:"name"`
	Value        *float64          `json:"value,omitempty"`
	Duration     *float64          `json:"duration,omitempty"`
	Screen       string            `json:"screen"`
	Language     string            `json:"language"`
	Meta         map[string]string `json:"meta,omitempty"`
	X            *float64          `json:"x,omitempty"`
	Y            *float64          `json:"y,omitempty"`
	Element      string            `json:"element,omitempty"`
	Viewport     string            `json:"viewport,omitempty"`
	Depth        *float64          `json:"depth,omitempty"`
	FoldPosition *float64          `json:"foldPosition,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// Headers carries the connection metadata the classifier needs. The client
// IP and user agent never travel further than the anonymizer.
type Headers struct {
	UserAgent string
	Origin    string
	Referer   string
	ClientIP  string
}

// RejectionKind classifies why a payload was refused.
type RejectionKind string

const (
	RejectMalformed RejectionKind = "malformed"
	RejectBot       RejectionKind = "bot"
	RejectPII       RejectionKind = "pii"
	RejectOrigin    RejectionKind = "origin"
)

// Rejection describes a refused payload. Bot rejections are surfaced to the
// client as a success-shaped "ignored" outcome; the rest are client errors.
type Rejection struct {
	Kind   RejectionKind
	Field  string
	Detail string
}

func (r *Rejection) Error() string {
	if r.Field != "" {
		return fmt.Sprintf("%s rejection on field %s: %s", r.Kind, r.Field, r.Detail)
	}
	return fmt.Sprintf("%s rejection: %s", r.Kind, r.Detail)
}

// GeoResolver resolves a client IP to coarse location before the IP is
// discarded. Implemented by internal/pkg/geoip; nil-safe.
type GeoResolver interface {
	Lookup(ip string) (country string, city string)
}

// Classifier validates payloads and turns them into events. It is pure:
// identity hashing and all persistence happen in the Collector.
type Classifier struct {
	sigs        *SignatureSet
	geo         GeoResolver
	environment string
}

func NewClassifier(sigs *SignatureSet, geo GeoResolver, environment string) *Classifier {
	return &Classifier{sigs: sigs, geo: geo, environment: environment}
}

// Classify validates in a fixed order, short-circuiting on first failure:
// required fields, bot filter, PII scan, origin check.
func (c *Classifier) Classify(p *Payload, h Headers, siteDomain string) (*events.Event, *Rejection) {
	if rej := c.checkRequired(p); rej != nil {
		return nil, rej
	}
	if name, isBot := c.sigs.MatchBot(h.UserAgent); isBot {
		return nil, &Rejection{Kind: RejectBot, Detail: name}
	}
	if rej := c.scanPII(p); rej != nil {
		return nil, rej
	}
	if rej := c.checkOrigin(p, h, siteDomain); rej != nil {
		return nil, rej
	}

	pageURL, _ := url.Parse(p.URL) // parse already validated in checkRequired

	ev := &events.Event{
		SiteID:    p.SiteID,
		Kind:      p.Kind,
		Hostname:  pageURL.Hostname(),
		Path:      normalizePath(pageURL.Path),
		Screen:    p.Screen,
		Language:  strings.ToLower(p.Language),
		Name:      p.Name,
		Device:    c.sigs.ClassifyDevice(h.UserAgent),
		Browser:   c.sigs.ClassifyBrowser(h.UserAgent),
		OS:        c.sigs.ClassifyOS(h.UserAgent),
		Timestamp: p.Timestamp,
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	if ref, err := url.Parse(p.Referrer); err == nil && p.Referrer != "" {
		ev.ReferrerHost = ref.Hostname()
		ev.ReferrerPath = normalizePath(ref.Path)
	}
	ev.Source = events.ClassifySource(ev.ReferrerHost, siteDomain)
	ev.Campaign = pageURL.Query().Get("utm_campaign")
	if utmSource := pageURL.Query().Get("utm_source"); utmSource != "" {
		ev.Source = utmSource
	}

	if c.geo != nil {
		ev.Country, ev.City = c.geo.Lookup(h.ClientIP)
	}
	if ev.Country == "" {
		ev.Country = events.UnknownCountry
	}

	if p.Value != nil {
		ev.Value, ev.HasValue = *p.Value, true
	}
	if p.Duration != nil && *p.Duration >= 0 {
		ev.Duration, ev.HasDuration = *p.Duration, true
	}
	switch p.Kind {
	case events.KindClick:
		ev.ClickX, ev.ClickY = clampPercent(*p.X), clampPercent(*p.Y)
		ev.Element = p.Element
		ev.Viewport = p.Viewport
	case events.KindScroll:
		ev.ScrollDepth = clampPercent(*p.Depth)
		if p.FoldPosition != nil {
			ev.FoldPosition = clampPercent(*p.FoldPosition)
		}
	}

	return ev, nil
}

func (c *Classifier) checkRequired(p *Payload) *Rejection {
	if p.SiteID == "" {
		return &Rejection{Kind: RejectMalformed, Field: "siteId", Detail: "missing site id"}
	}
	if !events.ValidKind(p.Kind) {
		return &Rejection{Kind: RejectMalformed, Field: "kind", Detail: fmt.Sprintf("unknown event kind %q", p.Kind)}
	}
	if p.URL == "" {
		return &Rejection{Kind: RejectMalformed, Field: "url", Detail: "missing url"}
	}
	if u, err := url.Parse(p.URL); err != nil || u.Hostname() == "" {
		return &Rejection{Kind: RejectMalformed, Field: "url", Detail: "unparsable url"}
	}
	switch p.Kind {
	case events.KindCustom:
		if p.Name == "" {
			return &Rejection{Kind: RejectMalformed, Field: "name", Detail: "custom events require a name"}
		}
	case events.KindError:
		if p.Name == "" {
			return &Rejection{Kind: RejectMalformed, Field: "name", Detail: "error events require a message"}
		}
	case events.KindClick:
		if p.X == nil || p.Y == nil {
			return &Rejection{Kind: RejectMalformed, Field: "x", Detail: "click events require x and y"}
		}
		if p.Viewport == "" {
			return &Rejection{Kind: RejectMalformed, Field: "viewport", Detail: "click events require a viewport"}
		}
	case events.KindScroll:
		if p.Depth == nil {
			return &Rejection{Kind: RejectMalformed, Field: "depth", Detail: "scroll events require a depth"}
		}
	}
	return nil
}

// scanPII runs the detectors over every free-text field. The URL host is
// exempt (it is the registered domain), the rest of the payload is not.
func (c *Classifier) scanPII(p *Payload) *Rejection {
	fields := map[string]string{
		"url":      pathAndQuery(p.URL),
		"referrer": pathAndQuery(p.Referrer),
		"name":     p.Name,
		"element":  p.Element,
	}
	for key, value := range p.Meta {
		fields["meta."+key] = value
	}
	for field, text := range fields {
		if text == "" {
			continue
		}
		if name, found := c.sigs.MatchPII(text); found {
			return &Rejection{Kind: RejectPII, Field: field, Detail: fmt.Sprintf("detected %s", name)}
		}
	}
	return nil
}

func (c *Classifier) checkOrigin(p *Payload, h Headers, siteDomain string) *Rejection {
	declared := h.Origin
	if declared == "" {
		declared = h.Referer
	}
	if declared == "" {
		declared = p.URL
	}
	parsed, err := url.Parse(declared)
	if err != nil || parsed.Hostname() == "" {
		return &Rejection{Kind: RejectOrigin, Detail: "unparsable origin"}
	}
	if !OriginAllowed(parsed.Hostname(), siteDomain, c.environment) {
		return &Rejection{Kind: RejectOrigin, Detail: fmt.Sprintf("origin %s does not match site domain", parsed.Hostname())}
	}
	return nil
}

// OriginAllowed reports whether host may report events for siteDomain:
// exact match, the www. variant, or localhost outside production.
func OriginAllowed(host, siteDomain, environment string) bool {
	host = strings.ToLower(host)
	domain := strings.ToLower(siteDomain)
	if host == domain || host == "www."+domain || "www."+host == domain {
		return true
	}
	if environment != "production" && (host == "localhost" || host == "127.0.0.1") {
		return true
	}
	return false
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		return strings.TrimSuffix(path, "/")
	}
	return path
}

func pathAndQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.RawQuery != "" {
		return u.Path + "?" + u.RawQuery
	}
	return u.Path
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
