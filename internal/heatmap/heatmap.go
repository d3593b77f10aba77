// Package heatmap bucket-accumulates click coordinates and scroll depths per
// (site, page, day) so density renders never re-read raw events.
package heatmap

import (
	"fmt"
	"log/slog"

	"veilytics/internal/rollup"
	"veilytics/internal/store"
)

const (
	KindClick  = "click"
	KindScroll = "scroll"

	// Cells of the coarse density grid, in percent of page dimensions.
	gridCellPercent = 5
	depthBands      = 10
)

// ClickPoint is one recorded click in page-percentage coordinates.
type ClickPoint struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Element  string  `json:"element,omitempty"`
	Viewport string  `json:"viewport"`
}

// ClickBucket accumulates clicks for one (site, page, day). The point list
// is capped; past the cap clicks still land in the total, the viewport
// counters and the density grid, so density stays derivable.
type ClickBucket struct {
	SiteID    string           `json:"siteId"`
	Path      string           `json:"path"`
	Date      string           `json:"date"`
	Total     int64            `json:"total"`
	Points    []ClickPoint     `json:"points"`
	Viewports map[string]int64 `json:"viewports"`
	Grid      map[string]int64 `json:"grid"`
}

// ScrollBucket accumulates scroll behaviour for one (site, page, day).
type ScrollBucket struct {
	SiteID    string            `json:"siteId"`
	Path      string            `json:"path"`
	Date      string            `json:"date"`
	Sessions  int64             `json:"sessions"`
	Bands     [depthBands]int64 `json:"bands"` // 10%-wide depth histogram
	MaxDepths []float64         `json:"maxDepths"`
	FoldLine  rollup.SumCount   `json:"foldLine"`
}

// Aggregator records and queries heatmap buckets.
type Aggregator struct {
	store    store.Store
	logger   *slog.Logger
	pointCap int
}

func NewAggregator(s store.Store, logger *slog.Logger, pointCap int) *Aggregator {
	if pointCap <= 0 {
		pointCap = 1000
	}
	return &Aggregator{store: s, logger: logger, pointCap: pointCap}
}

// RecordClick folds one click into the day's bucket.
func (a *Aggregator) RecordClick(siteID, path, date string, x, y float64, element, viewport string) error {
	key := store.HeatmapKey(siteID, KindClick, date, path)
	bucket := newClickBucket(siteID, path, date)
	if _, err := a.store.GetJSON(key, bucket); err != nil {
		return fmt.Errorf("failed to read click bucket: %w", err)
	}
	bucket.ensure()

	bucket.Total++
	bucket.Viewports[viewport]++
	bucket.Grid[gridCell(x, y)]++
	if len(bucket.Points) < a.pointCap {
		bucket.Points = append(bucket.Points, ClickPoint{X: x, Y: y, Element: element, Viewport: viewport})
	}

	if err := a.store.SetJSON(key, bucket); err != nil {
		return fmt.Errorf("failed to write click bucket: %w", err)
	}
	return nil
}

// RecordScroll folds one session's max scroll depth into the day's bucket.
func (a *Aggregator) RecordScroll(siteID, path, date string, maxDepth, foldPosition float64) error {
	key := store.HeatmapKey(siteID, KindScroll, date, path)
	bucket := newScrollBucket(siteID, path, date)
	if _, err := a.store.GetJSON(key, bucket); err != nil {
		return fmt.Errorf("failed to read scroll bucket: %w", err)
	}

	bucket.Sessions++
	bucket.Bands[depthBand(maxDepth)]++
	if len(bucket.MaxDepths) < a.pointCap {
		bucket.MaxDepths = append(bucket.MaxDepths, maxDepth)
	}
	if foldPosition > 0 {
		bucket.FoldLine = bucket.FoldLine.Add(rollup.SumCount{Sum: foldPosition, Count: 1})
	}

	if err := a.store.SetJSON(key, bucket); err != nil {
		return fmt.Errorf("failed to write scroll bucket: %w", err)
	}
	return nil
}

// QueryClicks merges the click buckets for a page across the given dates.
func (a *Aggregator) QueryClicks(siteID, path string, dates []string) (*ClickBucket, error) {
	merged := newClickBucket(siteID, path, "")
	for _, date := range dates {
		bucket := newClickBucket(siteID, path, date)
		found, err := a.store.GetJSON(store.HeatmapKey(siteID, KindClick, date, path), bucket)
		if err != nil {
			return nil, fmt.Errorf("failed to read click bucket for %s: %w", date, err)
		}
		if !found {
			continue
		}
		bucket.ensure()
		merged.Total += bucket.Total
		for viewport, count := range bucket.Viewports {
			merged.Viewports[viewport] += count
		}
		for cell, count := range bucket.Grid {
			merged.Grid[cell] += count
		}
		remaining := a.pointCap - len(merged.Points)
		if remaining > 0 {
			if len(bucket.Points) > remaining {
				bucket.Points = bucket.Points[:remaining]
			}
			merged.Points = append(merged.Points, bucket.Points...)
		}
	}
	return merged, nil
}

// QueryScroll merges the scroll buckets for a page across the given dates.
func (a *Aggregator) QueryScroll(siteID, path string, dates []string) (*ScrollBucket, error) {
	merged := newScrollBucket(siteID, path, "")
	for _, date := range dates {
		bucket := newScrollBucket(siteID, path, date)
		found, err := a.store.GetJSON(store.HeatmapKey(siteID, KindScroll, date, path), bucket)
		if err != nil {
			return nil, fmt.Errorf("failed to read scroll bucket for %s: %w", date, err)
		}
		if !found {
			continue
		}
		merged.Sessions += bucket.Sessions
		for band, count := range bucket.Bands {
			merged.Bands[band] += count
		}
		remaining := a.pointCap - len(merged.MaxDepths)
		if remaining > 0 {
			if len(bucket.MaxDepths) > remaining {
				bucket.MaxDepths = bucket.MaxDepths[:remaining]
			}
			merged.MaxDepths = append(merged.MaxDepths, bucket.MaxDepths...)
		}
		merged.FoldLine = merged.FoldLine.Add(bucket.FoldLine)
	}
	return merged, nil
}

func newClickBucket(siteID, path, date string) *ClickBucket {
	bucket := &ClickBucket{SiteID: siteID, Path: path, Date: date}
	bucket.ensure()
	return bucket
}

func (b *ClickBucket) ensure() {
	if b.Viewports == nil {
		b.Viewports = make(map[string]int64)
	}
	if b.Grid == nil {
		b.Grid = make(map[string]int64)
	}
	if b.Points == nil {
		b.Points = []ClickPoint{}
	}
}

func newScrollBucket(siteID, path, date string) *ScrollBucket {
	return &ScrollBucket{SiteID: siteID, Path: path, Date: date, MaxDepths: []float64{}}
}

func gridCell(x, y float64) string {
	return fmt.Sprintf("%d,%d", int(x)/gridCellPercent, int(y)/gridCellPercent)
}

func depthBand(depth float64) int {
	band := int(depth) / (100 / depthBands)
	if band >= depthBands {
		band = depthBands - 1
	}
	if band < 0 {
		band = 0
	}
	return band
}
