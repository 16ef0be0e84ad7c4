package engine

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"aniloader/internal/catalog"
	"aniloader/internal/config"
	"aniloader/internal/library"
	"aniloader/internal/scraper"
)

// seriesProgress accumulates what one series traversal saw. A series is
// marked complete only when both loops ended because the site ran out of
// content, never because something errored along the way.
type seriesProgress struct {
	downloaded   int // fresh OK results
	present      int // OK plus SKIPPED
	filmsClean   bool
	seasonsClean bool
}

func (p *seriesProgress) record(r result) {
	switch r {
	case resOK:
		p.downloaded++
		p.present++
	case resSkipped:
		p.present++
	}
}

// modeDefault resumes every non-complete series from its stored progress.
func (e *Engine) modeDefault(ctx context.Context, rc *runContext, series catalog.Series, log zerolog.Logger) error {
	if series.Complete {
		return nil
	}
	p := &seriesProgress{}
	if err := e.downloadFilms(ctx, rc, &series, series.LastFilm+1, 1, p, log); err != nil {
		return err
	}
	startSeason, startEpisode := series.LastSeason, series.LastEpisode
	if startSeason < 1 {
		startSeason = 1
	}
	if startEpisode < 1 {
		startEpisode = 1
	}
	if err := e.downloadSeasons(ctx, rc, &series, startSeason, startEpisode, p, log); err != nil {
		return err
	}
	// Resume runs only promote when they placed something new; a walk over
	// files that were already on disk proves nothing about the site side.
	if p.filmsClean && p.seasonsClean && p.downloaded > 0 {
		if err := e.store.UpdateSeries(ctx, series.ID, catalog.SeriesUpdate{Complete: boolPtr(true)}); err != nil {
			log.Warn().Err(err).Msg("could not mark series complete")
		}
	}
	return e.recomputeGermanComplete(ctx, series.ID, log)
}

// modeNew probes complete series beyond their stored progress for freshly
// published content. Completion status is left alone; only real additions
// move the progress counters.
func (e *Engine) modeNew(ctx context.Context, rc *runContext, series catalog.Series, log zerolog.Logger) error {
	if !series.Complete {
		return nil
	}
	p := &seriesProgress{}
	if err := e.downloadFilms(ctx, rc, &series, series.LastFilm+1, 1, p, log); err != nil {
		return err
	}
	startSeason := series.LastSeason
	if startSeason < 1 {
		startSeason = 1
	}
	if err := e.downloadSeasons(ctx, rc, &series, startSeason, series.LastEpisode+1, p, log); err != nil {
		return err
	}
	return e.recomputeGermanComplete(ctx, series.ID, log)
}

// modeGerman retries every remembered missing-German episode in
// german-only mode and shrinks the list on success.
func (e *Engine) modeGerman(ctx context.Context, rc *runContext, series catalog.Series, log zerolog.Logger) error {
	if len(series.MissingGerman) == 0 {
		return nil
	}
	for _, episodeURL := range series.MissingGerman {
		if e.state.StopRequested() {
			return errStopped
		}
		ref, ok := scraper.ParseEpisodeURL(episodeURL)
		if !ok {
			log.Warn().Str("episode", episodeURL).Msg("unparseable missing-german entry, dropping")
			if err := e.store.RemoveMissingGerman(ctx, series.ID, episodeURL); err != nil {
				log.Warn().Err(err).Msg("could not drop missing-german entry")
			}
			continue
		}
		res := e.processEpisode(ctx, rc, episodeJob{
			series:     series,
			season:     ref.Season,
			episode:    ref.Episode,
			episodeURL: episodeURL,
			germanOnly: true,
		}, log)
		if res == resNoSpace {
			return errNoSpace
		}
		if res == resOK {
			if err := e.store.RemoveMissingGerman(ctx, series.ID, episodeURL); err != nil {
				log.Warn().Err(err).Str("episode", episodeURL).Msg("could not clear missing-german entry")
			}
		}
		time.Sleep(EpisodePause)
	}
	return e.recomputeGermanComplete(ctx, series.ID, log)
}

// modeCheckMissing re-walks a series with prior progress from the very
// beginning, filling holes the normal resume logic would jump over.
func (e *Engine) modeCheckMissing(ctx context.Context, rc *runContext, series catalog.Series, log zerolog.Logger) error {
	hasProgress := series.Complete || series.LastFilm > 0 || series.LastSeason > 0 || series.LastEpisode > 0
	if !hasProgress {
		return nil
	}
	p := &seriesProgress{}
	if err := e.downloadFilms(ctx, rc, &series, 1, 3, p, log); err != nil {
		return err
	}
	if err := e.downloadSeasons(ctx, rc, &series, 1, 1, p, log); err != nil {
		return err
	}
	return e.recomputeGermanComplete(ctx, series.ID, log)
}

// modeFullCheck is the exhaustive audit: every episode from film 1 and
// season 1 is either fetched, or language-upgraded when a German dub became
// available since it was downloaded.
func (e *Engine) modeFullCheck(ctx context.Context, rc *runContext, series catalog.Series, log zerolog.Logger) error {
	p := &seriesProgress{}
	if err := e.downloadFilms(ctx, rc, &series, 1, 3, p, log); err != nil {
		return err
	}
	if err := e.downloadSeasons(ctx, rc, &series, 1, 1, p, log); err != nil {
		return err
	}
	if p.filmsClean && p.seasonsClean && p.present > 0 {
		if err := e.store.UpdateSeries(ctx, series.ID, catalog.SeriesUpdate{Complete: boolPtr(true)}); err != nil {
			log.Warn().Err(err).Msg("could not mark series complete")
		}
	}
	return e.recomputeGermanComplete(ctx, series.ID, log)
}

// downloadFilms probes films starting at start. missBudget is how many
// consecutive misses end the loop: 1 for resume traversals, 3 for the
// from-scratch audits where early gaps are possible.
func (e *Engine) downloadFilms(ctx context.Context, rc *runContext, series *catalog.Series, start, missBudget int, p *seriesProgress, log zerolog.Logger) error {
	misses := 0
	hardFailure := false
	for n := start; ; n++ {
		if e.state.StopRequested() {
			return errStopped
		}
		filmURL, err := scraper.FilmURL(series.URL, n)
		if err != nil {
			return err
		}
		res := e.attemptEpisode(ctx, rc, *series, 0, n, filmURL, log)
		switch res {
		case resNoSpace:
			return errNoSpace
		case resOK, resSkipped:
			p.record(res)
			misses = 0
			hardFailure = false
			if n > series.LastFilm {
				series.LastFilm = n
				if err := e.store.UpdateSeries(ctx, series.ID, catalog.SeriesUpdate{LastFilm: intPtr(n)}); err != nil {
					log.Warn().Err(err).Msg("could not advance film progress")
				}
			}
		default:
			misses++
			if res == resFailed {
				hardFailure = true
			}
			if misses >= missBudget {
				p.filmsClean = !hardFailure
				return nil
			}
		}
		time.Sleep(EpisodePause)
	}
}

// downloadSeasons walks seasons from startSeason. A season ends after three
// consecutive misses; the series ends after two consecutive seasons without
// a single episode.
func (e *Engine) downloadSeasons(ctx context.Context, rc *runContext, series *catalog.Series, startSeason, startEpisode int, p *seriesProgress, log zerolog.Logger) error {
	emptySeasons := 0
	clean := true
	for season := startSeason; ; season++ {
		if e.state.StopRequested() {
			return errStopped
		}
		epStart := 1
		if season == startSeason {
			epStart = startEpisode
		}

		found := 0
		misses := 0
		hardFailure := false
		for episode := epStart; ; episode++ {
			if e.state.StopRequested() {
				return errStopped
			}
			episodeURL, err := scraper.EpisodeURL(series.URL, season, episode)
			if err != nil {
				return err
			}
			res := e.attemptEpisode(ctx, rc, *series, season, episode, episodeURL, log)
			switch res {
			case resNoSpace:
				return errNoSpace
			case resOK, resSkipped:
				p.record(res)
				found++
				misses = 0
				hardFailure = false
				if season > series.LastSeason || (season == series.LastSeason && episode > series.LastEpisode) {
					series.LastSeason, series.LastEpisode = season, episode
					upd := catalog.SeriesUpdate{LastSeason: intPtr(season), LastEpisode: intPtr(episode)}
					if err := e.store.UpdateSeries(ctx, series.ID, upd); err != nil {
						log.Warn().Err(err).Msg("could not advance episode progress")
					}
				}
			default:
				misses++
				if res == resFailed {
					hardFailure = true
				}
			}
			if misses >= 3 {
				break
			}
			time.Sleep(EpisodePause)
		}

		if hardFailure {
			clean = false
		}
		if found == 0 {
			emptySeasons++
		} else {
			emptySeasons = 0
		}
		if emptySeasons >= 2 {
			p.seasonsClean = clean
			return nil
		}
	}
}

// attemptEpisode runs one pipeline pass; in full-check mode an existing
// non-German file gets a german-only retry first when the dub appeared.
func (e *Engine) attemptEpisode(ctx context.Context, rc *runContext, series catalog.Series, season, episode int, episodeURL string, log zerolog.Logger) result {
	if rc.mode == ModeFullCheck {
		if res, handled := e.upgradeLanguage(ctx, rc, series, season, episode, episodeURL, log); handled {
			return res
		}
	}
	return e.processEpisode(ctx, rc, episodeJob{
		series:     series,
		season:     season,
		episode:    episode,
		episodeURL: episodeURL,
	}, log)
}

// upgradeLanguage checks whether a local file is a non-German variant whose
// German dub has since appeared. handled=true means the episode is settled
// either way and the normal pipeline pass is unnecessary.
func (e *Engine) upgradeLanguage(ctx context.Context, rc *runContext, series catalog.Series, season, episode int, episodeURL string, log zerolog.Logger) (result, bool) {
	isFilm := season == 0
	base := rc.layout.BasePath(series.ContentType, isFilm)
	seriesName := seriesDisplayTitle(series)
	seriesFolder := rc.layout.SeriesFolder(base, seriesName)
	dedicated := isFilm && rc.layout.DedicatedMovies(series.ContentType)

	path, exists := library.FindEpisode(seriesFolder, season, episode, isFilm, dedicated, seriesName)
	if !exists {
		return resFailed, false
	}
	if library.ClassifyLanguage(filepath.Base(path)) == config.GermanDub {
		return resSkipped, true
	}

	available, err := e.scraper.Languages(ctx, episodeURL)
	if err != nil || !containsLanguage(available, config.GermanDub) {
		return resSkipped, true
	}

	log.Info().Str("episode", episodeURL).Msg("german dub now available, upgrading local copy")
	res := e.processEpisode(ctx, rc, episodeJob{
		series:     series,
		season:     season,
		episode:    episode,
		episodeURL: episodeURL,
		germanOnly: true,
	}, log)
	if res == resFailed {
		// The old copy still exists; the episode is present either way.
		return resSkipped, true
	}
	return res, true
}

// recomputeGermanComplete refreshes the derived flag from the row itself.
func (e *Engine) recomputeGermanComplete(ctx context.Context, id int64, log zerolog.Logger) error {
	series, err := e.store.GetSeries(ctx, id)
	if err != nil {
		log.Warn().Err(err).Msg("could not reload series for german-complete check")
		return nil
	}
	complete := len(series.MissingGerman) == 0
	if series.GermanComplete == complete {
		return nil
	}
	if err := e.store.UpdateSeries(ctx, id, catalog.SeriesUpdate{GermanComplete: boolPtr(complete)}); err != nil {
		log.Warn().Err(err).Msg("could not update german-complete flag")
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }
func intPtr(n int) *int    { return &n }
