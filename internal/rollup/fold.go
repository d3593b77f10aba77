package rollup

import (
	"fmt"
	"log/slog"

	"veilytics/internal/events"
	"veilytics/internal/store"
)

// Aggregator folds events into stored rollups. Folds are read-modify-write
// without locks or store transactions: concurrent folds against the same key
// can race, and a write may overwrite a racing write. Because every field is
// an associative combine, any later fold re-reads current state and the
// aggregate converges; occasional undercounting under extreme write pressure
// on one key is accepted. The engine never retries internally; callers may,
// safely, because folds commute.
type Aggregator struct {
	store  store.Store
	logger *slog.Logger
}

func NewAggregator(s store.Store, logger *slog.Logger) *Aggregator {
	return &Aggregator{store: s, logger: logger}
}

// Fold applies one event to the rollup for (event.SiteID, event day) and
// writes the result back.
func (a *Aggregator) Fold(ev *events.Event) (*DailyRollup, error) {
	key := store.RollupKey(ev.SiteID, ev.Date())

	current := New(ev.SiteID, ev.Date())
	if _, err := a.store.GetJSON(key, current); err != nil {
		return nil, fmt.Errorf("failed to read rollup %s: %w", key, err)
	}
	current.ensureMaps()
	current.SiteID = ev.SiteID
	current.Date = ev.Date()

	current.Add(ev)

	if err := a.store.SetJSON(key, current); err != nil {
		return nil, fmt.Errorf("failed to write rollup %s: %w", key, err)
	}
	a.logger.Debug("Folded event into rollup",
		slog.String("key", key),
		slog.String("kind", string(ev.Kind)))
	return current, nil
}

// Load reads the rollup for one day, returning an empty rollup when the day
// has no traffic yet.
func (a *Aggregator) Load(siteID, date string) (*DailyRollup, error) {
	r := New(siteID, date)
	found, err := a.store.GetJSON(store.RollupKey(siteID, date), r)
	if err != nil {
		return nil, fmt.Errorf("failed to read rollup for %s on %s: %w", siteID, date, err)
	}
	if !found {
		return New(siteID, date), nil
	}
	r.ensureMaps()
	return r, nil
}
