package query

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"veilytics/internal/pkg/async"
	"veilytics/internal/rollup"
)

const (
	defaultBreakdownLimit = 100
	fanoutWorkers         = 8
)

// Filter restricts one dimension to keys matching an exact value or a
// `prefix/*` wildcard. Multiple filters AND together. A filter constrains
// the dimension it names; pre-aggregated storage holds no cross-dimension
// correlation to re-slice other properties by.
type Filter struct {
	Property string `json:"property"`
	Value    string `json:"value"`
}

// Matches reports whether key satisfies the filter value.
func (f Filter) Matches(key string) bool {
	if strings.HasSuffix(f.Value, "/*") {
		return strings.HasPrefix(key, strings.TrimSuffix(f.Value, "*"))
	}
	return key == f.Value
}

// Params describes one range query.
type Params struct {
	SiteID    string
	Period    Period
	Breakdown string
	Filters   []Filter
	Limit     int
}

// Row is one breakdown result.
type Row struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Totals are the derived headline metrics for the merged range.
type Totals struct {
	Pageviews          int64   `json:"pageviews"`
	UniqueVisitors     int64   `json:"uniqueVisitors"`
	UniqueSessions     int64   `json:"uniqueSessions"`
	NewVisitors        int64   `json:"newVisitors"`
	Bounces            int64   `json:"bounces"`
	BounceRate         float64 `json:"bounceRate"`
	AvgSessionDuration float64 `json:"avgSessionDuration"`
	AvgTimeOnPage      float64 `json:"avgTimeOnPage"`
	AvgScrollDepth     float64 `json:"avgScrollDepth"`
	AvgPagesPerSession float64 `json:"avgPagesPerSession"`
	CustomEvents       int64   `json:"customEvents"`
	Errors             int64   `json:"errors"`
}

// Result is the answer to one range query.
type Result struct {
	Period     Period                      `json:"period"`
	Totals     Totals                      `json:"totals"`
	Dimensions map[string]map[string]int64 `json:"dimensions"`
	Rows       []Row                       `json:"rows,omitempty"`
}

// RollupReader is the slice of the aggregator the engine needs.
type RollupReader interface {
	Load(siteID, date string) (*rollup.DailyRollup, error)
}

// Engine merges daily rollups into range answers.
type Engine struct {
	reader RollupReader
	pool   *async.Pool
	logger *slog.Logger
}

func NewEngine(reader RollupReader, logger *slog.Logger) *Engine {
	return &Engine{
		reader: reader,
		pool:   async.NewPool(fanoutWorkers),
		logger: logger,
	}
}

// MergedRollup fans out one read per date in the period and combines them.
func (e *Engine) MergedRollup(ctx context.Context, siteID string, period Period) (*rollup.DailyRollup, error) {
	dates := period.Dates()
	tasks := make([]async.Task, len(dates))
	for i, date := range dates {
		date := date
		tasks[i] = async.Task{
			Key: date,
			Execute: func() (interface{}, error) {
				return e.reader.Load(siteID, date)
			},
		}
	}

	merged := rollup.New(siteID, period.From.UTC().Format("2006-01-02"))
	for date, result := range e.pool.Execute(ctx, tasks) {
		if result.Err != nil {
			return nil, fmt.Errorf("failed to load rollup for %s: %w", date, result.Err)
		}
		merged.Merge(result.Data.(*rollup.DailyRollup))
	}
	return merged, nil
}

// Query answers a range query: merge the days, apply filters, derive totals
// and optionally break down one property into sorted rows.
func (e *Engine) Query(ctx context.Context, params Params) (*Result, error) {
	if params.Breakdown != "" {
		if _, ok := dimensionOf(rollup.New("", ""), params.Breakdown); !ok {
			return nil, &ValidationError{Field: "breakdown", Message: fmt.Sprintf("unknown property %q", params.Breakdown)}
		}
	}
	for _, f := range params.Filters {
		if _, ok := dimensionOf(rollup.New("", ""), f.Property); !ok {
			return nil, &ValidationError{Field: "filters", Message: fmt.Sprintf("unknown property %q", f.Property)}
		}
	}

	merged, err := e.MergedRollup(ctx, params.SiteID, params.Period)
	if err != nil {
		return nil, err
	}

	filtered := applyFilters(merged, params.Filters)

	result := &Result{
		Period:     params.Period,
		Totals:     deriveTotals(merged, filtered, params.Filters),
		Dimensions: filtered,
	}

	if params.Breakdown != "" {
		limit := params.Limit
		if limit <= 0 {
			limit = defaultBreakdownLimit
		}
		result.Rows = sortedRows(filtered[params.Breakdown], limit)
	}
	return result, nil
}

// dimensionOf maps a breakdown/filter property name onto the rollup field
// holding it. Landing and exit pages are derived from session traces.
func dimensionOf(r *rollup.DailyRollup, property string) (map[string]int64, bool) {
	switch property {
	case "page":
		return r.Pages, true
	case "landing":
		return r.LandingPages(), true
	case "exit":
		return r.ExitPages(), true
	case "referrer":
		return r.Referrers, true
	case "source":
		return r.Sources, true
	case "device":
		return r.Devices, true
	case "browser":
		return r.Browsers, true
	case "os":
		return r.OSes, true
	case "screen":
		return r.Screens, true
	case "language":
		return r.Languages, true
	case "country":
		return r.Countries, true
	case "city":
		return r.Cities, true
	case "campaign":
		return r.Campaigns, true
	case "event":
		return r.Events, true
	case "error":
		return r.Errors, true
	default:
		return nil, false
	}
}

var allProperties = []string{
	"page", "landing", "exit", "referrer", "source", "device", "browser",
	"os", "screen", "language", "country", "city", "campaign", "event", "error",
}

// applyFilters materializes every dimension with filter pruning applied.
func applyFilters(r *rollup.DailyRollup, filters []Filter) map[string]map[string]int64 {
	out := make(map[string]map[string]int64, len(allProperties))
	for _, property := range allProperties {
		dim, _ := dimensionOf(r, property)
		pruned := make(map[string]int64, len(dim))
		for key, count := range dim {
			if keyPassesFilters(property, key, filters) {
				pruned[key] = count
			}
		}
		out[property] = pruned
	}
	return out
}

func keyPassesFilters(property, key string, filters []Filter) bool {
	for _, f := range filters {
		if f.Property == property && !f.Matches(key) {
			return false
		}
	}
	return true
}

func deriveTotals(merged *rollup.DailyRollup, filtered map[string]map[string]int64, filters []Filter) Totals {
	totals := Totals{
		Pageviews:          merged.Pageviews,
		UniqueVisitors:     merged.UniqueVisitors(),
		UniqueSessions:     merged.UniqueSessions(),
		NewVisitors:        merged.NewVisitors,
		Bounces:            merged.Bounces(),
		BounceRate:         merged.BounceRate(),
		AvgSessionDuration: merged.SessionDuration().Avg(),
		AvgTimeOnPage:      merged.TimeOnPage.Avg(),
		AvgScrollDepth:     merged.ScrollDepth.Avg(),
		AvgPagesPerSession: merged.PagesPerSession().Avg(),
		CustomEvents:       merged.CustomCount,
		Errors:             merged.ErrorCount,
	}
	// A page filter narrows the pageview total to matching paths, since the
	// page dimension counts pageviews per path.
	for _, f := range filters {
		if f.Property == "page" {
			totals.Pageviews = sumMap(filtered["page"])
			break
		}
	}
	return totals
}

func sumMap(m map[string]int64) int64 {
	var total int64
	for _, count := range m {
		total += count
	}
	return total
}

// sortedRows emits one row per key, count descending, ties broken by key.
func sortedRows(dim map[string]int64, limit int) []Row {
	rows := make([]Row, 0, len(dim))
	for key, count := range dim {
		rows = append(rows, Row{Key: key, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Key < rows[j].Key
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}
