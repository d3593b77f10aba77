package ingest

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"veilytics/internal/events"
	"veilytics/internal/heatmap"
	"veilytics/internal/metrics"
	"veilytics/internal/realtime"
	"veilytics/internal/rollup"
	"veilytics/internal/sites"
	"veilytics/internal/visitors"
)

// Outcome reports what happened to a payload. Ignored outcomes (bot traffic)
// must look like success to the client so legitimate trackers are never
// retried into the bot filter.
type Outcome struct {
	Status    string // "accepted" or "ignored"
	Rejection *Rejection
}

// Collector wires the full ingestion pipeline: site lookup, classification,
// anonymization, then folding into rollups, heatmap buckets and the realtime
// window. Handlers stay thin; this is the engine's front door.
type Collector struct {
	classifier *Classifier
	anonymizer *visitors.Anonymizer
	rollups    *rollup.Aggregator
	heatmaps   *heatmap.Aggregator
	window     *realtime.Window
	db         *gorm.DB
	logger     *slog.Logger
	retention  time.Duration // seen-before marker retention
}

func NewCollector(
	classifier *Classifier,
	anonymizer *visitors.Anonymizer,
	rollups *rollup.Aggregator,
	heatmaps *heatmap.Aggregator,
	window *realtime.Window,
	db *gorm.DB,
	logger *slog.Logger,
	retention time.Duration,
) *Collector {
	return &Collector{
		classifier: classifier,
		anonymizer: anonymizer,
		rollups:    rollups,
		heatmaps:   heatmaps,
		window:     window,
		db:         db,
		logger:     logger,
		retention:  retention,
	}
}

// Collect runs one payload through the pipeline.
func (c *Collector) Collect(p *Payload, h Headers) (*Outcome, error) {
	site, err := sites.GetByPublicID(c.db, p.SiteID)
	if err != nil {
		return nil, err
	}

	ev, rej := c.classifier.Classify(p, h, site.Domain)
	if rej != nil {
		metrics.EventsRejected.WithLabelValues(string(rej.Kind)).Inc()
		if rej.Kind == RejectBot {
			c.logger.Debug("Ignored bot traffic", slog.String("signature", rej.Detail))
			return &Outcome{Status: "ignored", Rejection: rej}, nil
		}
		return &Outcome{Rejection: rej}, nil
	}

	c.anonymize(ev, h)

	if err := c.dispatch(ev); err != nil {
		metrics.FoldFailures.Inc()
		return nil, err
	}

	metrics.EventsIngested.WithLabelValues(string(ev.Kind)).Inc()
	return &Outcome{Status: "accepted"}, nil
}

// anonymize attaches identity and session hashes. A salt store outage is
// non-fatal: the event is counted without identity granularity.
func (c *Collector) anonymize(ev *events.Event, h Headers) {
	salt, err := c.anonymizer.DailySalt(ev.Timestamp)
	if err != nil {
		if errors.Is(err, visitors.ErrUnattributed) {
			metrics.UnattributedEvents.Inc()
			c.logger.Warn("Counting event without identity granularity", slog.Any("error", err))
			return
		}
		c.logger.Error("Failed to derive daily salt", slog.Any("error", err))
		return
	}

	ev.IdentityHash = visitors.IdentityHash(salt, ev.SiteID, h.ClientIP, h.UserAgent)
	ev.SessionHash = c.anonymizer.SessionHash(salt, ev.IdentityHash, ev.Timestamp)

	seen, err := c.anonymizer.SeenBefore(ev.SiteID, ev.IdentityHash, c.retention)
	if err != nil {
		c.logger.Warn("Seen-before lookup failed, classifying visitor as new", slog.Any("error", err))
	}
	ev.NewVisitor = !seen
}

// dispatch folds the event into every aggregate it contributes to.
func (c *Collector) dispatch(ev *events.Event) error {
	if _, err := c.rollups.Fold(ev); err != nil {
		return fmt.Errorf("failed to fold event: %w", err)
	}

	switch ev.Kind {
	case events.KindPageview:
		if ev.SessionHash != "" {
			if err := c.window.Heartbeat(ev.SiteID, ev.SessionHash, ev.Path); err != nil {
				// Realtime is best-effort; the rollup already has the event.
				c.logger.Warn("Failed to heartbeat realtime window", slog.Any("error", err))
			}
		}
	case events.KindClick:
		if err := c.heatmaps.RecordClick(ev.SiteID, ev.Path, ev.Date(), ev.ClickX, ev.ClickY, ev.Element, ev.Viewport); err != nil {
			return fmt.Errorf("failed to record click: %w", err)
		}
	case events.KindScroll:
		if err := c.heatmaps.RecordScroll(ev.SiteID, ev.Path, ev.Date(), ev.ScrollDepth, ev.FoldPosition); err != nil {
			return fmt.Errorf("failed to record scroll: %w", err)
		}
	}
	return nil
}

// Heartbeat services the explicit realtime heartbeat endpoint: it derives
// the session hash the same way Collect does and refreshes the window.
func (c *Collector) Heartbeat(p *Payload, h Headers) (*Outcome, error) {
	site, err := sites.GetByPublicID(c.db, p.SiteID)
	if err != nil {
		return nil, err
	}

	p.Kind = events.KindPageview
	ev, rej := c.classifier.Classify(p, h, site.Domain)
	if rej != nil {
		metrics.EventsRejected.WithLabelValues(string(rej.Kind)).Inc()
		if rej.Kind == RejectBot {
			return &Outcome{Status: "ignored", Rejection: rej}, nil
		}
		return &Outcome{Rejection: rej}, nil
	}

	c.anonymize(ev, h)
	if ev.SessionHash == "" {
		// Unattributed heartbeats cannot be windowed; report success anyway.
		return &Outcome{Status: "accepted"}, nil
	}
	if err := c.window.Heartbeat(ev.SiteID, ev.SessionHash, ev.Path); err != nil {
		return nil, err
	}
	return &Outcome{Status: "accepted"}, nil
}
