package jobs

import (
	"log/slog"
	"strings"
	"time"

	"veilytics/internal/config"
	"veilytics/internal/database"
	"veilytics/internal/heatmap"
	"veilytics/internal/sites"
	"veilytics/internal/store"
)

// RetentionJob deletes rollup and heatmap buckets older than the configured
// retention. Salts and seen-before markers carry their own TTLs and expire
// without help.
type RetentionJob struct {
	cfg       *config.Config
	dbManager *database.Manager
	kv        store.Store
	logger    *slog.Logger
}

func NewRetentionJob(cfg *config.Config, dbManager *database.Manager, kv store.Store, logger *slog.Logger) *RetentionJob {
	return &RetentionJob{cfg: cfg, dbManager: dbManager, kv: kv, logger: logger}
}

// Run sweeps every registered site once.
func (j *RetentionJob) Run() error {
	cutoff := time.Now().UTC().AddDate(0, 0, -j.cfg.RollupRetentionDays).Format("2006-01-02")

	var allSites []sites.Site
	db := j.dbManager.GetConnection()
	if err := db.Find(&allSites).Error; err != nil {
		return err
	}

	var deleted int
	for _, site := range allSites {
		n, err := j.sweepSite(site.PublicID, cutoff)
		if err != nil {
			j.logger.Error("Retention sweep failed for site",
				slog.String("site", site.PublicID),
				slog.Any("error", err))
			continue
		}
		deleted += n
	}

	j.logger.Info("Retention sweep finished",
		slog.String("cutoff", cutoff),
		slog.Int("deleted_buckets", deleted))
	return nil
}

func (j *RetentionJob) sweepSite(siteID, cutoff string) (int, error) {
	var deleted int

	prefixes := []string{
		store.RollupPrefix(siteID),
		store.HeatmapPrefix(siteID, heatmap.KindClick),
		store.HeatmapPrefix(siteID, heatmap.KindScroll),
	}
	for _, prefix := range prefixes {
		keys, err := j.kv.List(prefix)
		if err != nil {
			return deleted, err
		}
		for _, key := range keys {
			date := bucketDate(key, prefix)
			if date == "" || date >= cutoff {
				continue
			}
			if err := j.kv.Delete(key); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
	return deleted, nil
}

// bucketDate pulls the 2006-01-02 segment that follows the key prefix.
// Rollup keys end with the date; heatmap keys continue with the page path.
func bucketDate(key, prefix string) string {
	rest := strings.TrimPrefix(key, prefix)
	if len(rest) < 10 {
		return ""
	}
	date := rest[:10]
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return ""
	}
	return date
}
