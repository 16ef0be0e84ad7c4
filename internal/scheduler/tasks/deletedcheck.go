package tasks

import (
	"context"

	"aniloader/internal/catalog"
	"aniloader/internal/library"
	"aniloader/internal/scheduler"
)

// deletedCheck enforces the rule that a complete series still has content on
// disk. When a user removed the files by hand, the flag and the progress
// counters are reset so the next default run fetches everything again.
func deletedCheck(d Deps) scheduler.TaskFunc {
	return func(ctx context.Context) error {
		log := d.Logger.With().Str("task", "deleted-check").Logger()
		layout := library.NewLayout(d.Config.Snapshot())

		complete := true
		series, err := d.Store.ListSeries(ctx, catalog.ListFilter{Complete: &complete})
		if err != nil {
			return err
		}

		falseV := false
		zero := 0
		for _, s := range series {
			base := layout.BasePath(s.ContentType, false)
			folder := layout.SeriesFolder(base, s.Title)
			if s.Title == "" || library.HasAnyContent(folder) {
				continue
			}
			log.Info().Str("series", s.URL).Msg("local files gone, resetting completion")
			upd := catalog.SeriesUpdate{
				Complete:       &falseV,
				GermanComplete: &falseV,
				LastFilm:       &zero,
				LastSeason:     &zero,
				LastEpisode:    &zero,
			}
			if err := d.Store.UpdateSeries(ctx, s.ID, upd); err != nil {
				log.Warn().Err(err).Str("series", s.URL).Msg("reset failed")
			}
		}
		return nil
	}
}
