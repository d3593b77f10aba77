// Package goals defines site-owned metric targets and evaluates them against
// range aggregates.
package goals

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"veilytics/internal/query"
)

// Comparator decides what "reaching" the target means.
type Comparator string

const (
	ComparatorGte Comparator = "gte"
	ComparatorLte Comparator = "lte"
)

// Metrics a goal can target. "event:<name>" targets a custom event count.
const (
	MetricPageviews = "pageviews"
	MetricVisitors  = "visitors"
	MetricSessions  = "sessions"
	eventMetric     = "event:"
)

// ValidationError is a client-facing 400 raised at definition time.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NotFoundError is returned when a goal id does not exist for the site.
type NotFoundError struct {
	GoalID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("goal not found: %s", e.GoalID)
}

// Goal is a stored metric target owned by a site.
type Goal struct {
	ID         uint       `gorm:"primaryKey;autoIncrement" json:"-"`
	PublicID   string     `gorm:"uniqueIndex;size:36;not null" json:"id"`
	SiteID     string     `gorm:"index;size:36;not null" json:"site_id"`
	Name       string     `gorm:"not null" json:"name"`
	Metric     string     `gorm:"not null" json:"metric"`
	Target     float64    `gorm:"not null" json:"target"`
	Comparator Comparator `gorm:"not null" json:"comparator"`
	Period     string     `gorm:"not null" json:"period"`
	Notify     bool       `json:"notify"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Evaluation is the query-time result of checking a goal.
type Evaluation struct {
	CurrentValue float64 `json:"currentValue"`
	Progress     float64 `json:"progress"`
	IsComplete   bool    `json:"isComplete"`
}

// Migrate creates the goals table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Goal{})
}

// Create validates and stores a goal. The target is clamped to a minimum of
// 1 here, at definition time.
func Create(db *gorm.DB, siteID, name, metric string, target float64, comparator Comparator, period string, notify bool) (*Goal, error) {
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "name is required"}
	}
	if !validMetric(metric) {
		return nil, &ValidationError{Field: "metric", Message: fmt.Sprintf("unknown metric %q", metric)}
	}
	if comparator != ComparatorGte && comparator != ComparatorLte {
		return nil, &ValidationError{Field: "comparator", Message: fmt.Sprintf("unknown comparator %q", comparator)}
	}
	if _, err := query.ParsePeriod(period, "2000-01-01", "2000-01-01", time.Now()); err != nil {
		return nil, &ValidationError{Field: "period", Message: fmt.Sprintf("unknown period %q", period)}
	}
	if target < 1 {
		target = 1
	}
	goal := &Goal{
		PublicID:   uuid.NewString(),
		SiteID:     siteID,
		Name:       name,
		Metric:     metric,
		Target:     target,
		Comparator: comparator,
		Period:     period,
		Notify:     notify,
	}
	if err := db.Create(goal).Error; err != nil {
		return nil, fmt.Errorf("failed to create goal: %w", err)
	}
	return goal, nil
}

// GetByPublicID loads one goal scoped to a site.
func GetByPublicID(db *gorm.DB, siteID, publicID string) (*Goal, error) {
	var goal Goal
	err := db.Where("site_id = ? AND public_id = ?", siteID, publicID).First(&goal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{GoalID: publicID}
		}
		return nil, fmt.Errorf("failed to look up goal: %w", err)
	}
	return &goal, nil
}

// ListBySite returns every goal defined for a site.
func ListBySite(db *gorm.DB, siteID string) ([]Goal, error) {
	var result []Goal
	if err := db.Where("site_id = ?", siteID).Order("created_at ASC").Find(&result).Error; err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	return result, nil
}

func validMetric(metric string) bool {
	switch metric {
	case MetricPageviews, MetricVisitors, MetricSessions:
		return true
	}
	return strings.HasPrefix(metric, eventMetric) && len(metric) > len(eventMetric)
}

// CurrentValue pulls the goal's metric out of a range aggregate.
func (g *Goal) CurrentValue(result *query.Result) float64 {
	switch g.Metric {
	case MetricPageviews:
		return float64(result.Totals.Pageviews)
	case MetricVisitors:
		return float64(result.Totals.UniqueVisitors)
	case MetricSessions:
		return float64(result.Totals.UniqueSessions)
	}
	if name, ok := strings.CutPrefix(g.Metric, eventMetric); ok {
		return float64(result.Dimensions["event"][name])
	}
	return 0
}

// Evaluate compares the current range aggregate against the target. A value
// exactly equal to the target is complete under both comparators. For lte
// the progress reflects distance below the target: 100% at or under it,
// scaling down as the value exceeds it.
func (g *Goal) Evaluate(result *query.Result) Evaluation {
	current := g.CurrentValue(result)
	eval := Evaluation{CurrentValue: current}

	switch g.Comparator {
	case ComparatorLte:
		eval.IsComplete = current <= g.Target
		if eval.IsComplete {
			eval.Progress = 100
		} else {
			eval.Progress = g.Target / current * 100
		}
	default: // gte
		eval.IsComplete = current >= g.Target
		eval.Progress = current / g.Target * 100
		if eval.Progress > 100 {
			eval.Progress = 100
		}
	}
	return eval
}
