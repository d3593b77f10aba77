// Package events defines the validated event model every aggregator consumes.
// Events are created at ingestion time, folded into rollups and then
// discarded; nothing in this package is ever persisted as a raw row.
package events

import "time"

// Kind represents the type of visitor action.
type Kind string

const (
	KindPageview Kind = "pageview"
	KindCustom   Kind = "custom"
	KindError    Kind = "error"
	KindClick    Kind = "click"
	KindScroll   Kind = "scroll"
)

// ValidKind reports whether k is one of the ingestable event kinds.
func ValidKind(k Kind) bool {
	switch k {
	case KindPageview, KindCustom, KindError, KindClick, KindScroll:
		return true
	}
	return false
}

// Event is one validated, anonymized visitor action. The raw IP and
// user agent it was derived from are gone by the time an Event exists;
// only the classification results and hashes remain.
type Event struct {
	SiteID   string
	Kind     Kind
	Hostname string
	Path     string

	// Referrer classification
	ReferrerHost string
	ReferrerPath string
	Source       string // friendly traffic-source class (Direct, Google, ...)

	// Device classification
	Device   string
	Browser  string
	OS       string
	Screen   string
	Language string
	Country  string
	City     string

	// Campaign attribution
	Campaign string

	// Derived identity (one-way, day-scoped). Empty when the salt store was
	// unavailable and the event is counted without identity granularity.
	IdentityHash string
	SessionHash  string
	NewVisitor   bool

	// Custom/error payload
	Name     string
	Value    float64
	HasValue bool

	// Timing payload (seconds on page, reported by the tracker on unload)
	Duration    float64
	HasDuration bool

	// Click payload (percentages of page dimensions)
	ClickX   float64
	ClickY   float64
	Element  string
	Viewport string // "{width}x{height}"

	// Scroll payload (percentages)
	ScrollDepth  float64
	FoldPosition float64

	Timestamp time.Time
}

// Date returns the UTC calendar day the event belongs to.
func (e *Event) Date() string {
	return e.Timestamp.UTC().Format("2006-01-02")
}

// Engaged reports whether this event counts as a qualifying engagement for
// bounce classification: anything beyond the bare pageview itself.
func (e *Event) Engaged() bool {
	switch e.Kind {
	case KindCustom, KindClick:
		return true
	case KindScroll:
		return e.ScrollDepth >= 50
	}
	return false
}

// Unknown values used when classification yields nothing.
const (
	UnknownDevice  = "unknown"
	UnknownBrowser = "unknown"
	UnknownOS      = "Unknown"
	UnknownCountry = "Unknown"
	DirectSource   = "Direct"
)
