// Package geoip resolves client IPs to coarse location. The lookup happens
// before anonymization; the IP itself is never stored. GeoIP is optional: a
// missing database disables it and every lookup degrades to unknown.
package geoip

import (
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/oschwald/geoip2-golang"
	"github.com/pariz/gountries"
)

// Resolver wraps the GeoLite2 reader behind the classifier's GeoResolver
// interface.
type Resolver struct {
	mu        sync.RWMutex
	db        *geoip2.Reader
	countries *gountries.Query
	logger    *slog.Logger
	path      string
}

// NewResolver opens the GeoLite2 database at path. A missing or unreadable
// database is not an error; the resolver just answers unknown.
func NewResolver(path string, logger *slog.Logger) *Resolver {
	r := &Resolver{
		countries: gountries.New(),
		logger:    logger,
		path:      path,
	}
	r.db = r.open()
	return r
}

func (r *Resolver) open() *geoip2.Reader {
	if r.path == "" {
		r.logger.Debug("GeoIP database path not configured - geo classification disabled")
		return nil
	}
	if _, err := os.Stat(r.path); err != nil {
		r.logger.Info("GeoLite2 database not found - geo classification disabled",
			slog.String("path", r.path),
			slog.String("hint", "Download from https://www.maxmind.com/en/geolite2/signup"))
		return nil
	}
	db, err := geoip2.Open(r.path)
	if err != nil {
		r.logger.Error("Failed to open GeoLite2 database",
			slog.String("path", r.path),
			slog.Any("error", err))
		return nil
	}
	r.logger.Info("GeoLite2 database initialized", slog.String("path", r.path))
	return db
}

// Lookup resolves an IP to a country name and city. Unknown on any failure.
func (r *Resolver) Lookup(ip string) (string, string) {
	r.mu.RLock()
	db := r.db
	r.mu.RUnlock()
	if db == nil {
		return "", ""
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", ""
	}
	record, err := db.City(parsed)
	if err != nil {
		return "", ""
	}

	country := r.countryName(record.Country.IsoCode)
	city := record.City.Names["en"]
	return country, city
}

// countryName maps an ISO code to its common name, falling back to the code.
func (r *Resolver) countryName(isoCode string) string {
	if isoCode == "" {
		return ""
	}
	if country, err := r.countries.FindCountryByAlpha(isoCode); err == nil {
		return country.Name.Common
	}
	return isoCode
}

// Reload reopens the database from disk, for use after a fresh download.
func (r *Resolver) Reload() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db != nil {
		r.db.Close()
	}
	r.db = r.open()
}

// Close releases the underlying reader.
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db != nil {
		r.db.Close()
		r.db = nil
	}
}
