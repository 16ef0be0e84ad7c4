package tasks

import (
	"context"

	"aniloader/internal/catalog"
	"aniloader/internal/scheduler"
	"aniloader/internal/startup"
)

// refreshTitles re-scrapes titles for rows that never got one, plus any row
// whose stored title drifted from the site. The first fetch goes through the
// startup retry helper because this task also runs at boot, often before
// the network is up.
func refreshTitles(d Deps) scheduler.TaskFunc {
	return func(ctx context.Context) error {
		log := d.Logger.With().Str("task", "refresh-titles").Logger()

		series, err := d.Store.ListSeries(ctx, catalog.ListFilter{})
		if err != nil {
			return err
		}

		retried := false
		for _, s := range series {
			var title string
			fetch := func() error {
				var err error
				title, err = d.Scraper.SeriesTitle(ctx, s.URL)
				return err
			}

			var err error
			if !retried {
				err = startup.WithRetry(ctx, "refresh-titles", startup.DefaultRetryConfig(), fetch, log)
				retried = true
			} else {
				err = fetch()
			}
			if err != nil || title == "" || title == s.Title {
				continue
			}

			log.Info().Str("series", s.URL).Str("title", title).Msg("updating series title")
			if err := d.Store.UpdateSeries(ctx, s.ID, catalog.SeriesUpdate{Title: &title}); err != nil {
				log.Warn().Err(err).Str("series", s.URL).Msg("title update failed")
			}
		}
		return nil
	}
}
