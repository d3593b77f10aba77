// Package funnels defines site-owned step sequences and evaluates sessions
// against them.
package funnels

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Step limits enforced at definition time, not evaluation time.
const (
	MinSteps = 2
	MaxSteps = 10
)

// StepType distinguishes page-match steps from event-match steps.
type StepType string

const (
	StepPage  StepType = "page"
	StepEvent StepType = "event"
)

// Step is one entry of a funnel definition. Page matches accept a
// `prefix/*` wildcard; event matches are exact custom-event names.
type Step struct {
	Type  StepType `json:"type"`
	Match string   `json:"match"`
	Label string   `json:"label,omitempty"`
}

// ValidationError is a client-facing 400 raised at definition time.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NotFoundError is returned when a funnel id does not exist for the site.
type NotFoundError struct {
	FunnelID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("funnel not found: %s", e.FunnelID)
}

// Funnel is a stored definition, owned by a site. Steps are kept as a JSON
// document; they are read as a unit and never queried individually.
type Funnel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	PublicID  string    `gorm:"uniqueIndex;size:36;not null" json:"id"`
	SiteID    string    `gorm:"index;size:36;not null" json:"site_id"`
	Name      string    `gorm:"not null" json:"name"`
	StepsJSON string    `gorm:"type:text;not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Migrate creates the funnels table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Funnel{})
}

// Steps decodes the stored step list.
func (f *Funnel) Steps() ([]Step, error) {
	var steps []Step
	if err := json.Unmarshal([]byte(f.StepsJSON), &steps); err != nil {
		return nil, fmt.Errorf("failed to decode funnel steps: %w", err)
	}
	return steps, nil
}

// ValidateSteps enforces the definition-time rules.
func ValidateSteps(steps []Step) error {
	if len(steps) < MinSteps {
		return &ValidationError{Field: "steps", Message: fmt.Sprintf("a funnel needs at least %d steps", MinSteps)}
	}
	if len(steps) > MaxSteps {
		return &ValidationError{Field: "steps", Message: fmt.Sprintf("a funnel is capped at %d steps", MaxSteps)}
	}
	for i, step := range steps {
		if step.Type != StepPage && step.Type != StepEvent {
			return &ValidationError{Field: "steps", Message: fmt.Sprintf("step %d has unknown type %q", i, step.Type)}
		}
		if step.Match == "" {
			return &ValidationError{Field: "steps", Message: fmt.Sprintf("step %d has an empty match", i)}
		}
	}
	return nil
}

// Create validates and stores a new funnel definition.
func Create(db *gorm.DB, siteID, name string, steps []Step) (*Funnel, error) {
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "name is required"}
	}
	if err := ValidateSteps(steps); err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(steps)
	if err != nil {
		return nil, fmt.Errorf("failed to encode funnel steps: %w", err)
	}
	funnel := &Funnel{
		PublicID:  uuid.NewString(),
		SiteID:    siteID,
		Name:      name,
		StepsJSON: string(encoded),
	}
	if err := db.Create(funnel).Error; err != nil {
		return nil, fmt.Errorf("failed to create funnel: %w", err)
	}
	return funnel, nil
}

// GetByPublicID loads one funnel scoped to a site.
func GetByPublicID(db *gorm.DB, siteID, publicID string) (*Funnel, error) {
	var funnel Funnel
	err := db.Where("site_id = ? AND public_id = ?", siteID, publicID).First(&funnel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{FunnelID: publicID}
		}
		return nil, fmt.Errorf("failed to look up funnel: %w", err)
	}
	return &funnel, nil
}

// ListBySite returns every funnel defined for a site.
func ListBySite(db *gorm.DB, siteID string) ([]Funnel, error) {
	var result []Funnel
	if err := db.Where("site_id = ?", siteID).Order("created_at ASC").Find(&result).Error; err != nil {
		return nil, fmt.Errorf("failed to list funnels: %w", err)
	}
	return result, nil
}
