// Package rollup holds the per-site, per-day merge-aggregation core. Every
// field of a DailyRollup is exactly one of three kinds with one combine rule
// each: plain counters add, dimension maps union-add by key, and averaged
// metrics are stored as (sum, count) pairs that add pairwise. Folding a set
// of events therefore yields the same rollup in any order, which is what
// makes retry and replay safe without store-level atomicity.
package rollup

import (
	"sort"

	"veilytics/internal/events"
)

// SumCount is the stored form of every averaged metric. Means are derived at
// read time, never persisted.
type SumCount struct {
	Sum   float64 `json:"sum"`
	Count int64   `json:"count"`
}

func (s SumCount) Add(o SumCount) SumCount {
	return SumCount{Sum: s.Sum + o.Sum, Count: s.Count + o.Count}
}

// Avg returns the mean, or 0 for an empty pair.
func (s SumCount) Avg() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}

// maxTraceSteps bounds the ordered activity kept per session for funnel
// matching. Counts keep accumulating past the cap.
const maxTraceSteps = 100

// Step is one entry of a session's ordered activity.
type Step struct {
	Kind events.Kind `json:"kind"`
	Path string      `json:"path"`
	Name string      `json:"name,omitempty"`
	TS   int64       `json:"ts"` // unix milliseconds
}

// SessionTrace accumulates everything the engine knows about one session
// hash within a day. Bounces, landing/exit pages and session durations are
// derived from traces at read time so the stored fields stay purely additive.
type SessionTrace struct {
	Pageviews   int64  `json:"pageviews"`
	Engagements int64  `json:"engagements"`
	FirstTS     int64  `json:"firstTs"`
	LastTS      int64  `json:"lastTs"`
	FirstPath   string `json:"firstPath"`
	LastPath    string `json:"lastPath"`
	Steps       []Step `json:"steps,omitempty"`
}

// Bounced reports whether the trace describes a single-pageview session with
// no qualifying engagement.
func (t *SessionTrace) Bounced() bool {
	return t.Pageviews == 1 && t.Engagements == 0
}

// DurationSeconds is the span between the first and last event of the
// session. A single-event session has duration 0.
func (t *SessionTrace) DurationSeconds() float64 {
	if t.LastTS <= t.FirstTS {
		return 0
	}
	return float64(t.LastTS-t.FirstTS) / 1000
}

func (t *SessionTrace) merge(o *SessionTrace) {
	t.Pageviews += o.Pageviews
	t.Engagements += o.Engagements
	if o.FirstTS != 0 && (t.FirstTS == 0 || o.FirstTS < t.FirstTS) {
		t.FirstTS = o.FirstTS
		t.FirstPath = o.FirstPath
	}
	if o.LastTS > t.LastTS {
		t.LastTS = o.LastTS
		t.LastPath = o.LastPath
	}
	t.Steps = append(t.Steps, o.Steps...)
	// Total order with a tiebreak beyond the timestamp: truncation at the cap
	// must retain the same steps no matter which merge order produced them.
	sort.SliceStable(t.Steps, func(i, j int) bool {
		a, b := t.Steps[i], t.Steps[j]
		if a.TS != b.TS {
			return a.TS < b.TS
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Name < b.Name
	})
	if len(t.Steps) > maxTraceSteps {
		t.Steps = t.Steps[:maxTraceSteps]
	}
}

// DailyRollup is the pre-aggregated summary for one (site, UTC day). It is
// the only durable record of that day's traffic; raw events are not kept.
type DailyRollup struct {
	SiteID string `json:"siteId"`
	Date   string `json:"date"`

	// Counters
	Pageviews   int64 `json:"pageviews"`
	CustomCount int64 `json:"customCount"`
	ErrorCount  int64 `json:"errorCount"`
	NewVisitors int64 `json:"newVisitors"`

	// Identity sets. Hashes rotate daily, so within one rollup the map keys
	// are exact uniques; across days they never collide by construction.
	Visitors map[string]int64         `json:"visitors"`
	Sessions map[string]*SessionTrace `json:"sessions"`

	// Dimension maps
	Pages     map[string]int64 `json:"pages"`
	Referrers map[string]int64 `json:"referrers"`
	Sources   map[string]int64 `json:"sources"`
	Devices   map[string]int64 `json:"devices"`
	Browsers  map[string]int64 `json:"browsers"`
	OSes      map[string]int64 `json:"oses"`
	Screens   map[string]int64 `json:"screens"`
	Languages map[string]int64 `json:"languages"`
	Countries map[string]int64 `json:"countries"`
	Cities    map[string]int64 `json:"cities"`
	Campaigns map[string]int64 `json:"campaigns"`
	Events    map[string]int64 `json:"events"`
	Errors    map[string]int64 `json:"errors"`

	// Sum/count pairs
	TimeOnPage  SumCount `json:"timeOnPage"`
	ScrollDepth SumCount `json:"scrollDepth"`
	EventValue  SumCount `json:"eventValue"`
}

// New returns an empty rollup for (siteID, date).
func New(siteID, date string) *DailyRollup {
	r := &DailyRollup{SiteID: siteID, Date: date}
	r.ensureMaps()
	return r
}

// ensureMaps repairs nil maps after a JSON round trip.
func (r *DailyRollup) ensureMaps() {
	if r.Visitors == nil {
		r.Visitors = make(map[string]int64)
	}
	if r.Sessions == nil {
		r.Sessions = make(map[string]*SessionTrace)
	}
	for _, m := range []*map[string]int64{
		&r.Pages, &r.Referrers, &r.Sources, &r.Devices, &r.Browsers, &r.OSes,
		&r.Screens, &r.Languages, &r.Countries, &r.Cities, &r.Campaigns,
		&r.Events, &r.Errors,
	} {
		if *m == nil {
			*m = make(map[string]int64)
		}
	}
}

// Add folds one validated event into the rollup. Every mutation is a pure
// addition, so Add commutes with itself across any event ordering.
func (r *DailyRollup) Add(ev *events.Event) {
	r.ensureMaps()

	ts := ev.Timestamp.UTC().UnixMilli()

	if ev.IdentityHash != "" {
		r.Visitors[ev.IdentityHash]++
	}
	if ev.SessionHash != "" {
		trace := r.Sessions[ev.SessionHash]
		if trace == nil {
			trace = &SessionTrace{}
			r.Sessions[ev.SessionHash] = trace
		}
		delta := &SessionTrace{FirstTS: ts, LastTS: ts, FirstPath: ev.Path, LastPath: ev.Path}
		if ev.Kind == events.KindPageview {
			delta.Pageviews = 1
			delta.Steps = []Step{{Kind: ev.Kind, Path: ev.Path, TS: ts}}
		}
		if ev.Kind == events.KindCustom {
			delta.Steps = []Step{{Kind: ev.Kind, Path: ev.Path, Name: ev.Name, TS: ts}}
		}
		if ev.Engaged() {
			delta.Engagements = 1
		}
		trace.merge(delta)
	}

	switch ev.Kind {
	case events.KindPageview:
		r.Pageviews++
		if ev.NewVisitor {
			r.NewVisitors++
		}
		r.Pages[ev.Path]++
		if ev.ReferrerHost != "" {
			r.Referrers[ev.ReferrerHost]++
		}
		r.Sources[ev.Source]++
		r.Devices[ev.Device]++
		r.Browsers[ev.Browser]++
		r.OSes[ev.OS]++
		if ev.Screen != "" {
			r.Screens[ev.Screen]++
		}
		if ev.Language != "" {
			r.Languages[ev.Language]++
		}
		r.Countries[ev.Country]++
		if ev.City != "" {
			r.Cities[ev.City]++
		}
		if ev.Campaign != "" {
			r.Campaigns[ev.Campaign]++
		}
		if ev.HasDuration {
			r.TimeOnPage = r.TimeOnPage.Add(SumCount{Sum: ev.Duration, Count: 1})
		}
	case events.KindCustom:
		r.CustomCount++
		r.Events[ev.Name]++
		if ev.HasValue {
			r.EventValue = r.EventValue.Add(SumCount{Sum: ev.Value, Count: 1})
		}
	case events.KindError:
		r.ErrorCount++
		r.Errors[ev.Name]++
	case events.KindScroll:
		r.ScrollDepth = r.ScrollDepth.Add(SumCount{Sum: ev.ScrollDepth, Count: 1})
	}
}

// Merge folds another rollup into r. The operation is associative and
// commutative field by field: counters add, dimension maps union-add,
// pairs add, session traces merge.
func (r *DailyRollup) Merge(o *DailyRollup) {
	r.ensureMaps()

	r.Pageviews += o.Pageviews
	r.CustomCount += o.CustomCount
	r.ErrorCount += o.ErrorCount
	r.NewVisitors += o.NewVisitors

	addMap(r.Visitors, o.Visitors)
	for hash, trace := range o.Sessions {
		existing := r.Sessions[hash]
		if existing == nil {
			existing = &SessionTrace{}
			r.Sessions[hash] = existing
		}
		existing.merge(trace)
	}

	addMap(r.Pages, o.Pages)
	addMap(r.Referrers, o.Referrers)
	addMap(r.Sources, o.Sources)
	addMap(r.Devices, o.Devices)
	addMap(r.Browsers, o.Browsers)
	addMap(r.OSes, o.OSes)
	addMap(r.Screens, o.Screens)
	addMap(r.Languages, o.Languages)
	addMap(r.Countries, o.Countries)
	addMap(r.Cities, o.Cities)
	addMap(r.Campaigns, o.Campaigns)
	addMap(r.Events, o.Events)
	addMap(r.Errors, o.Errors)

	r.TimeOnPage = r.TimeOnPage.Add(o.TimeOnPage)
	r.ScrollDepth = r.ScrollDepth.Add(o.ScrollDepth)
	r.EventValue = r.EventValue.Add(o.EventValue)
}

// Combine returns a new rollup holding a merged with b, leaving both inputs
// untouched. Range queries use it to fold N days into one answer.
func Combine(a, b *DailyRollup) *DailyRollup {
	merged := New(a.SiteID, a.Date)
	merged.Merge(a)
	merged.Merge(b)
	return merged
}

func addMap(dst, src map[string]int64) {
	for key, count := range src {
		dst[key] += count
	}
}

// Derived metrics. All of these read session traces; none are stored.

func (r *DailyRollup) UniqueVisitors() int64 {
	return int64(len(r.Visitors))
}

func (r *DailyRollup) UniqueSessions() int64 {
	return int64(len(r.Sessions))
}

func (r *DailyRollup) Bounces() int64 {
	var bounces int64
	for _, trace := range r.Sessions {
		if trace.Bounced() {
			bounces++
		}
	}
	return bounces
}

// BounceRate is bounces over unique sessions as a percentage, 0 when the
// rollup has no sessions.
func (r *DailyRollup) BounceRate() float64 {
	sessions := r.UniqueSessions()
	if sessions == 0 {
		return 0
	}
	return float64(r.Bounces()) / float64(sessions) * 100
}

// LandingPages counts sessions by the first path seen.
func (r *DailyRollup) LandingPages() map[string]int64 {
	out := make(map[string]int64)
	for _, trace := range r.Sessions {
		if trace.FirstPath != "" {
			out[trace.FirstPath]++
		}
	}
	return out
}

// ExitPages counts sessions by the last path seen.
func (r *DailyRollup) ExitPages() map[string]int64 {
	out := make(map[string]int64)
	for _, trace := range r.Sessions {
		if trace.LastPath != "" {
			out[trace.LastPath]++
		}
	}
	return out
}

// SessionDuration returns the (sum, count) pair of per-session durations.
func (r *DailyRollup) SessionDuration() SumCount {
	var pair SumCount
	for _, trace := range r.Sessions {
		pair = pair.Add(SumCount{Sum: trace.DurationSeconds(), Count: 1})
	}
	return pair
}

// PagesPerSession returns the (sum, count) pair of per-session pageviews.
func (r *DailyRollup) PagesPerSession() SumCount {
	var pair SumCount
	for _, trace := range r.Sessions {
		pair = pair.Add(SumCount{Sum: float64(trace.Pageviews), Count: 1})
	}
	return pair
}
