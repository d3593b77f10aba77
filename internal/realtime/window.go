// Package realtime maintains the per-site active visitor window. A session
// is active iff its last heartbeat is within the TTL; readers always filter
// by TTL and never trust store occupancy, so purge timing is a storage
// optimization, not a correctness concern.
package realtime

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"veilytics/internal/store"
	"veilytics/internal/visitors"
)

type entry struct {
	LastSeen int64  `json:"lastSeen"` // unix seconds
	Path     string `json:"path"`
}

// ActiveSession is one currently-active session as reported to dashboards.
type ActiveSession struct {
	Alias      string `json:"alias"`
	Path       string `json:"path"`
	SecondsAgo int64  `json:"secondsAgo"`
}

// Snapshot is the answer to an active-count query.
type Snapshot struct {
	Count    int             `json:"count"`
	Sessions []ActiveSession `json:"sessions"`
}

// Window tracks heartbeats per site.
type Window struct {
	store  store.Store
	logger *slog.Logger
	ttl    time.Duration
	now    func() time.Time
}

func NewWindow(s store.Store, logger *slog.Logger, ttl time.Duration) *Window {
	return &Window{store: s, logger: logger, ttl: ttl, now: time.Now}
}

// Heartbeat unconditionally overwrites the session's last-seen timestamp and
// current path.
func (w *Window) Heartbeat(siteID, sessionID, path string) error {
	key := store.RealtimeKey(siteID)
	window := make(map[string]entry)
	if _, err := w.store.GetJSON(key, &window); err != nil {
		return fmt.Errorf("failed to read realtime window: %w", err)
	}
	window[sessionID] = entry{LastSeen: w.now().Unix(), Path: path}
	if err := w.store.SetJSON(key, window); err != nil {
		return fmt.Errorf("failed to write realtime window: %w", err)
	}
	return nil
}

// Active returns the sessions heartbeated within the TTL. When at least half
// of the stored window is stale it is compacted opportunistically on the way
// out; correctness never depends on that write landing.
func (w *Window) Active(siteID string) (*Snapshot, error) {
	key := store.RealtimeKey(siteID)
	window := make(map[string]entry)
	if _, err := w.store.GetJSON(key, &window); err != nil {
		return nil, fmt.Errorf("failed to read realtime window: %w", err)
	}

	nowUnix := w.now().Unix()
	cutoff := nowUnix - int64(w.ttl.Seconds())

	live := make(map[string]entry, len(window))
	snapshot := &Snapshot{Sessions: []ActiveSession{}}
	for sessionID, e := range window {
		if e.LastSeen < cutoff {
			continue
		}
		live[sessionID] = e
		snapshot.Sessions = append(snapshot.Sessions, ActiveSession{
			Alias:      visitors.Alias(sessionID),
			Path:       e.Path,
			SecondsAgo: nowUnix - e.LastSeen,
		})
	}
	snapshot.Count = len(snapshot.Sessions)
	sort.Slice(snapshot.Sessions, func(i, j int) bool {
		if snapshot.Sessions[i].SecondsAgo != snapshot.Sessions[j].SecondsAgo {
			return snapshot.Sessions[i].SecondsAgo < snapshot.Sessions[j].SecondsAgo
		}
		return snapshot.Sessions[i].Alias < snapshot.Sessions[j].Alias
	})

	if len(window) >= 2*len(live) && len(window) > len(live) {
		if err := w.store.SetJSON(key, live); err != nil {
			w.logger.Debug("Skipped realtime window compaction", slog.Any("error", err))
		}
	}

	return snapshot, nil
}
