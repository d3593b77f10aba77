// Package visitors derives one-way, day-scoped identity and session hashes.
// Raw IPs and user agents exist only as arguments to the hashing calls; they
// are never stored and must never be logged by callers.
package visitors

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto"

	"veilytics/internal/metrics"
	"veilytics/internal/store"
)

// ErrUnattributed is returned when the salt store is unavailable. Callers
// must treat the event as non-fatal-but-unattributed: keep ingesting, drop
// identity granularity.
var ErrUnattributed = errors.New("salt store unavailable, event unattributed")

const (
	saltLength = 32
	// Old salts stay around long enough to validate same-day session
	// continuity across the UTC midnight boundary, then expire on their own.
	saltTTL = 48 * time.Hour
)

// Anonymizer hands out daily salts and identity/session hashes.
type Anonymizer struct {
	store         store.Store
	cache         *ristretto.Cache
	logger        *slog.Logger
	sessionWindow time.Duration
}

func NewAnonymizer(s store.Store, logger *slog.Logger, sessionWindow time.Duration) (*Anonymizer, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1 << 10,
		MaxCost:     1 << 16,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create salt cache: %w", err)
	}
	return &Anonymizer{
		store:         s,
		cache:         cache,
		logger:        logger,
		sessionWindow: sessionWindow,
	}, nil
}

// DailySalt returns the secret for the given UTC day, creating it lazily on
// the first event of a new day. Two concurrent creators race benignly: both
// write, both re-read, and both proceed with whatever landed in the store.
func (a *Anonymizer) DailySalt(date time.Time) ([]byte, error) {
	day := date.UTC().Format("2006-01-02")
	if cached, ok := a.cache.Get(day); ok {
		return cached.([]byte), nil
	}

	key := store.SaltKey(day)
	existing, err := a.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnattributed, err)
	}
	if existing != nil {
		a.cache.Set(day, existing, int64(len(existing)))
		return existing, nil
	}

	fresh := make([]byte, saltLength)
	if _, err := rand.Read(fresh); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if err := a.store.SetWithTTL(key, fresh, saltTTL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnattributed, err)
	}

	// Read back rather than trusting our own write so racing creators all
	// converge on the same stored value.
	stored, err := a.store.Get(key)
	if err != nil || stored == nil {
		return nil, fmt.Errorf("%w: salt readback failed", ErrUnattributed)
	}
	a.cache.Set(day, stored, int64(len(stored)))
	metrics.SaltRotations.Inc()
	a.logger.Info("Rotated daily salt", slog.String("day", day))
	return stored, nil
}

// IdentityHash derives the visitor hash for one UTC day. Same coarse inputs
// and the same day's salt always produce the same hash; a new salt makes the
// same visitor unlinkable the next day.
func IdentityHash(salt []byte, siteID, ip, userAgent string) string {
	mac := hmac.New(sha256.New, salt)
	fmt.Fprintf(mac, "%s.%s.%s", siteID, ip, userAgent)
	return hex.EncodeToString(mac.Sum(nil))
}

// SessionHash groups an identity hash into a coarse time window so that
// events inside one window share a session without storing any timeline of
// the visitor.
func (a *Anonymizer) SessionHash(salt []byte, identityHash string, at time.Time) string {
	windowStart := at.UTC().Truncate(a.sessionWindow)
	mac := hmac.New(sha256.New, salt)
	fmt.Fprintf(mac, "%s.%d", identityHash, windowStart.Unix())
	return hex.EncodeToString(mac.Sum(nil))
}

// SeenBefore reports whether the identity hash was observed on a prior day
// for the site, then marks it as seen with the given retention. Used for
// new-vs-returning classification; the marker is the only cross-day state
// derived from a visitor and it stores nothing but the hash itself.
func (a *Anonymizer) SeenBefore(siteID, identityHash string, retention time.Duration) (bool, error) {
	if identityHash == "" {
		return false, nil
	}
	key := store.SeenVisitorKey(siteID, identityHash)
	seen, err := a.store.Has(key)
	if err != nil {
		return false, err
	}
	if err := a.store.SetWithTTL(key, []byte{1}, retention); err != nil {
		return seen, err
	}
	return seen, nil
}
