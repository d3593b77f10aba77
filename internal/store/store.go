// Package store provides the durable key-value storage used by the
// aggregation engine. Values are opaque bytes or JSON documents; the engine
// never relies on atomic increments or cross-key transactions, only on
// get/set/list/delete.
package store

import (
	"fmt"
	"net/url"
	"time"
)

// Store is the key-value contract every aggregate lives behind. A missing key
// is not an error: Get returns (nil, nil) and GetJSON returns (false, nil).
type Store interface {
	Get(key string) ([]byte, error)
	GetJSON(key string, out interface{}) (bool, error)
	Set(key string, value []byte) error
	SetJSON(key string, value interface{}) error
	SetWithTTL(key string, value []byte, ttl time.Duration) error
	Has(key string) (bool, error)
	Delete(key string) error
	List(prefix string) ([]string, error)
	Close() error
}

// UnavailableError wraps a backing-store failure so callers can map it to a
// 500 without leaking internal detail.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Deterministic key builders. Dates are UTC "2006-01-02" strings.

func RollupKey(siteID, date string) string {
	return fmt.Sprintf("%s:rollup:%s", siteID, date)
}

func RollupPrefix(siteID string) string {
	return fmt.Sprintf("%s:rollup:", siteID)
}

func RealtimeKey(siteID string) string {
	return fmt.Sprintf("%s:realtime", siteID)
}

func HeatmapKey(siteID, kind, date, path string) string {
	return fmt.Sprintf("%s:heatmap:%s:%s:%s", siteID, kind, date, url.PathEscape(path))
}

func HeatmapPrefix(siteID, kind string) string {
	return fmt.Sprintf("%s:heatmap:%s:", siteID, kind)
}

func SaltKey(date string) string {
	return fmt.Sprintf("salt:%s", date)
}

func SeenVisitorKey(siteID, identityHash string) string {
	return fmt.Sprintf("seen:%s:%s", siteID, identityHash)
}
