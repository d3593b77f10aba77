package jobs

import (
	"log/slog"

	"veilytics/internal/database"
	"veilytics/internal/realtime"
	"veilytics/internal/sites"
)

// RealtimeCompactionJob walks every site's realtime window so stale sessions
// get compacted even when no dashboard is polling. Reading the window is
// enough; the window compacts itself when most of it is stale.
type RealtimeCompactionJob struct {
	dbManager *database.Manager
	window    *realtime.Window
	logger    *slog.Logger
}

func NewRealtimeCompactionJob(dbManager *database.Manager, window *realtime.Window, logger *slog.Logger) *RealtimeCompactionJob {
	return &RealtimeCompactionJob{dbManager: dbManager, window: window, logger: logger}
}

func (j *RealtimeCompactionJob) Run() error {
	var allSites []sites.Site
	if err := j.dbManager.GetConnection().Find(&allSites).Error; err != nil {
		return err
	}
	for _, site := range allSites {
		if _, err := j.window.Active(site.PublicID); err != nil {
			j.logger.Debug("Skipped realtime compaction for site",
				slog.String("site", site.PublicID),
				slog.Any("error", err))
		}
	}
	return nil
}
