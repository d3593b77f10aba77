// Package sites is the registry of tracked sites. A site belongs to exactly
// one owner; every aggregate the engine stores is scoped to a site's public
// id, and every query must pass the ownership check here first.
package sites

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SiteNotFoundError represents an error when a site is not found
type SiteNotFoundError struct {
	Domain string
}

func (e *SiteNotFoundError) Error() string {
	return fmt.Sprintf("site not found for domain: %s", e.Domain)
}

func NewSiteNotFoundError(domain string) *SiteNotFoundError {
	return &SiteNotFoundError{Domain: domain}
}

// NotOwnerError is returned when the caller does not own the site. It is
// also returned for unknown site ids so a 403 never reveals whether the
// site exists under a different owner.
type NotOwnerError struct {
	SiteID string
}

func (e *NotOwnerError) Error() string {
	return fmt.Sprintf("not authorized for site: %s", e.SiteID)
}

// Site represents a tracked website
type Site struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	PublicID  string    `gorm:"uniqueIndex;size:36;not null" json:"id"`
	Domain    string    `gorm:"unique;not null" json:"domain"` // Base domain, e.g. "example.com"
	OwnerID   string    `gorm:"index;not null" json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Migrate creates the sites table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Site{})
}

// NormalizeDomain lowercases a host and strips the www. prefix so lookups
// match however the tracker reported it.
func NormalizeDomain(host string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), "www.")
}

// Create registers a new site for an owner.
func Create(db *gorm.DB, ownerID, domain string) (*Site, error) {
	site := &Site{
		PublicID: uuid.NewString(),
		Domain:   NormalizeDomain(domain),
		OwnerID:  ownerID,
	}
	if site.Domain == "" {
		return nil, fmt.Errorf("domain is required")
	}
	if err := db.Create(site).Error; err != nil {
		return nil, fmt.Errorf("failed to create site: %w", err)
	}
	return site, nil
}

// GetByPublicID looks a site up by its public id.
func GetByPublicID(db *gorm.DB, publicID string) (*Site, error) {
	var site Site
	if err := db.Where("public_id = ?", publicID).First(&site).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewSiteNotFoundError(publicID)
		}
		return nil, fmt.Errorf("failed to look up site: %w", err)
	}
	return &site, nil
}

// GetByDomain looks a site up by its registered base domain.
func GetByDomain(db *gorm.DB, domain string) (*Site, error) {
	var site Site
	if err := db.Where("domain = ?", NormalizeDomain(domain)).First(&site).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewSiteNotFoundError(domain)
		}
		return nil, fmt.Errorf("failed to look up site: %w", err)
	}
	return &site, nil
}

// ListByOwner returns every site owned by the user.
func ListByOwner(db *gorm.DB, ownerID string) ([]Site, error) {
	var result []Site
	if err := db.Where("owner_id = ?", ownerID).Order("created_at ASC").Find(&result).Error; err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	return result, nil
}

// Authorize loads the site and verifies ownership. Unknown ids and foreign
// ownership both come back as NotOwnerError.
func Authorize(db *gorm.DB, publicID, userID string) (*Site, error) {
	var site Site
	if err := db.Where("public_id = ?", publicID).First(&site).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotOwnerError{SiteID: publicID}
		}
		return nil, fmt.Errorf("failed to look up site: %w", err)
	}
	if site.OwnerID != userID {
		return nil, &NotOwnerError{SiteID: publicID}
	}
	return &site, nil
}
