package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"aniloader/internal/catalog"
	"aniloader/internal/config"
	"aniloader/internal/downloader"
	"aniloader/internal/library"
)

// result is the per-episode pipeline outcome.
type result int

const (
	resOK result = iota
	resSkipped
	resNoStreams
	resFailed
	resNoSpace
)

func (r result) String() string {
	switch r {
	case resOK:
		return "ok"
	case resSkipped:
		return "skipped"
	case resNoStreams:
		return "no_streams"
	case resNoSpace:
		return "no_space"
	default:
		return "failed"
	}
}

// episodeJob names one download attempt.
type episodeJob struct {
	series     catalog.Series
	season     int
	episode    int
	episodeURL string
	germanOnly bool
}

func (j episodeJob) isFilm() bool { return j.season == 0 }

// processEpisode runs the full per-episode pipeline: publish state, check
// disk, skip when present, probe languages, then walk the language priority
// list until one attempt sticks.
func (e *Engine) processEpisode(ctx context.Context, rc *runContext, job episodeJob, log zerolog.Logger) result {
	now := time.Now()
	e.state.Update(func(s *Snapshot) {
		s.CurrentSeason = job.season
		s.CurrentEpisode = job.episode
		s.CurrentIsFilm = job.isFilm()
		s.EpisodeStartedAt = &now
	})
	log = log.With().Str("episode", job.episodeURL).Logger()

	base := rc.layout.BasePath(job.series.ContentType, job.isFilm())
	if !library.HasRoom(base, rc.cfg.MinFreeGB) {
		return resNoSpace
	}

	seriesName := seriesDisplayTitle(job.series)
	seriesFolder := rc.layout.SeriesFolder(base, seriesName)
	dedicated := job.isFilm() && rc.layout.DedicatedMovies(job.series.ContentType)

	// The german-only path re-fetches on purpose: a file exists, just in
	// the wrong language.
	if !job.germanOnly && library.AlreadyDownloaded(seriesFolder, job.season, job.episode, job.isFilm(), dedicated, seriesName) {
		return resSkipped
	}

	available, err := e.scraper.Languages(ctx, job.episodeURL)
	if err != nil {
		log.Warn().Err(err).Msg("language probe failed")
		return resNoStreams
	}
	if len(available) == 0 {
		return resNoStreams
	}
	e.cacheLanguages(ctx, job.episodeURL, available)

	order := rc.cfg.Languages
	if job.germanOnly {
		order = []config.Language{config.GermanDub}
	}

	downloaded := false
	germanAvailable := false
	for _, lang := range order {
		if !containsLanguage(available, lang) {
			continue
		}
		switch e.runner.Run(ctx, job.episodeURL, lang, base) {
		case downloader.OutcomeNoStreams:
			return resNoStreams
		case downloader.OutcomeOK:
			if !downloader.Verify(seriesFolder, job.episode, job.isFilm()) {
				log.Warn().Str("language", string(lang)).Msg("download reported ok but no file appeared")
				continue
			}
			title, err := e.scraper.EpisodeTitle(ctx, job.episodeURL, lang == config.EnglishDub || lang == config.EnglishSub)
			if err != nil {
				title = ""
			}
			if _, err := library.RenameDownloaded(seriesFolder, job.season, job.episode, title, lang, job.isFilm(), dedicated, seriesName); err != nil {
				log.Warn().Err(err).Msg("placement failed")
				continue
			}
			if lang == config.GermanDub {
				germanAvailable = true
				if job.germanOnly {
					library.DeleteDowngrades(seriesFolder, job.season, job.episode, job.isFilm(), dedicated, seriesName)
				}
			}
			downloaded = true
		default:
			// LANGUAGE_ERROR, FAILED and TIMEOUT all cycle to the next
			// language after a short backoff.
			time.Sleep(FailurePause)
			continue
		}
		if downloaded {
			break
		}
	}

	if !germanAvailable {
		// Only remember the gap while there is still room to fill it later;
		// under disk pressure the list would just grow unboundedly.
		if library.HasRoom(base, rc.cfg.MinFreeGB) {
			if err := e.store.AddMissingGerman(ctx, job.series.ID, job.episodeURL); err != nil {
				log.Warn().Err(err).Msg("could not record missing german episode")
			}
		}
	}

	if downloaded {
		return resOK
	}
	return resFailed
}

func (e *Engine) cacheLanguages(ctx context.Context, episodeURL string, langs []config.Language) {
	names := make([]string, len(langs))
	for i, l := range langs {
		names[i] = string(l)
	}
	if err := e.store.SaveEpisodeLanguages(ctx, episodeURL, names); err != nil {
		e.log.Debug().Err(err).Str("episode", episodeURL).Msg("language cache write failed")
	}
}

func containsLanguage(list []config.Language, lang config.Language) bool {
	for _, l := range list {
		if l == lang {
			return true
		}
	}
	return false
}
