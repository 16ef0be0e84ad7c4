// Package tasks wires the maintenance jobs into the scheduler: catalog
// hygiene, title refresh and the configured autostart run.
package tasks

import (
	"fmt"

	"github.com/rs/zerolog"

	"aniloader/internal/catalog"
	"aniloader/internal/config"
	"aniloader/internal/engine"
	"aniloader/internal/scheduler"
)

// Deps carries the services the tasks operate on.
type Deps struct {
	Store   *catalog.Store
	Scraper engine.Scraper
	Engine  *engine.Engine
	Config  *config.Store
	Logger  zerolog.Logger
}

// Register installs all maintenance tasks.
func Register(s *scheduler.Scheduler, d Deps) error {
	cfg := d.Config.Snapshot()

	entries := []scheduler.TaskConfig{
		{
			ID:          "deleted-check",
			Name:        "Deleted content check",
			Description: "Un-marks complete series whose local files disappeared",
			Cron:        "0 5 * * *",
			RunOnStart:  true,
			Func:        deletedCheck(d),
		},
		{
			ID:          "queue-prune",
			Name:        "Queue prune",
			Description: "Drops queue rows pointing at completed or vanished series",
			Cron:        "0 3 * * *",
			RunOnStart:  false,
			Func:        queuePrune(d),
		},
	}

	if cfg.RefreshTitles {
		entries = append(entries, scheduler.TaskConfig{
			ID:          "refresh-titles",
			Name:        "Title refresh",
			Description: "Re-scrapes missing or stale series titles",
			Cron:        "0 6 * * *",
			RunOnStart:  true,
			Func:        refreshTitles(d),
		})
	}

	if mode, ok := engine.ParseMode(cfg.AutostartMode); ok {
		entries = append(entries, scheduler.TaskConfig{
			ID:          "autostart",
			Name:        "Autostart run",
			Description: fmt.Sprintf("Starts a %s run at boot and nightly", mode),
			Cron:        "0 4 * * *",
			RunOnStart:  true,
			Func:        autostart(d, mode),
		})
	}

	for _, entry := range entries {
		if err := s.RegisterTask(entry); err != nil {
			return err
		}
	}
	return nil
}
