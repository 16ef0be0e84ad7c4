// Package engine implements the mode engine: the single worker that walks
// the catalog, drives the scraper and downloader per episode, and keeps the
// shared run snapshot current. Exactly one run exists at a time; the
// snapshot's status field is the gate.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"aniloader/internal/catalog"
	"aniloader/internal/config"
	"aniloader/internal/downloader"
	"aniloader/internal/library"
	"aniloader/internal/logger"
	"aniloader/internal/scraper"
)

// Mode selects one of the five traversal procedures.
type Mode string

const (
	ModeDefault      Mode = "default"
	ModeGerman       Mode = "german"
	ModeNew          Mode = "new"
	ModeCheckMissing Mode = "check-missing"
	ModeFullCheck    Mode = "full-check"
)

// ParseMode validates a mode name from the API.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeDefault, ModeGerman, ModeNew, ModeCheckMissing, ModeFullCheck:
		return Mode(s), true
	}
	return "", false
}

// ErrAlreadyRunning is returned by Start while a run is in flight.
var ErrAlreadyRunning = errors.New("engine: already running")

// Pacing knobs, package-level so tests can shrink them.
var (
	EpisodePause = time.Second
	FailurePause = 2 * time.Second
)

// Control-flow sentinels inside a run.
var (
	errStopped = errors.New("stop requested")
	errNoSpace = errors.New("disk pressure")
)

// Scraper is the site surface the engine consumes. Traversal is blind URL
// probing, so the engine never needs the season or episode listings.
type Scraper interface {
	SeriesTitle(ctx context.Context, seriesURL string) (string, error)
	Languages(ctx context.Context, episodeURL string) ([]config.Language, error)
	EpisodeTitle(ctx context.Context, episodeURL string, preferEnglish bool) (string, error)
}

// Engine owns the single download worker.
type Engine struct {
	store   *catalog.Store
	scraper Scraper
	runner  downloader.Runner
	cfg     *config.Store
	state   *State
	log     zerolog.Logger
	runLog  *logger.RunLog
}

func New(store *catalog.Store, sc Scraper, runner downloader.Runner, cfg *config.Store, state *State, log zerolog.Logger, runLog *logger.RunLog) *Engine {
	return &Engine{
		store:   store,
		scraper: sc,
		runner:  runner,
		cfg:     cfg,
		state:   state,
		log:     log.With().Str("component", "engine").Logger(),
		runLog:  runLog,
	}
}

// State exposes the run snapshot holder for the API layer.
func (e *Engine) State() *State {
	return e.state
}

// Start spawns the worker goroutine for one run. The snapshot flip is the
// compare-and-swap; a second caller gets ErrAlreadyRunning.
func (e *Engine) Start(mode Mode) error {
	runID := uuid.NewString()
	if !e.state.TryStart(string(mode), runID) {
		return ErrAlreadyRunning
	}
	if e.runLog != nil {
		if err := e.runLog.Start(); err != nil {
			e.log.Warn().Err(err).Msg("could not reset run log")
		}
	}
	go e.run(mode, runID)
	return nil
}

// Stop sets the cooperative stop flag. The current episode finishes; the
// child process is never killed here.
func (e *Engine) Stop() bool {
	return e.state.RequestStop()
}

// run is the worker body.
func (e *Engine) run(mode Mode, runID string) {
	ctx := context.Background()
	log := e.log.With().Str("run_id", runID).Str("mode", string(mode)).Logger()
	log.Info().Msg("run started")

	rc := e.newRunContext(mode)
	err := e.traverse(ctx, rc, log)

	noSpace := errors.Is(err, errNoSpace)
	switch {
	case noSpace:
		log.Error().Msg("run aborted, not enough free disk space")
	case errors.Is(err, errStopped):
		log.Info().Msg("run stopped on request")
	case err != nil:
		log.Error().Err(err).Msg("run failed")
	default:
		log.Info().Msg("run finished")
	}

	if e.runLog != nil {
		e.runLog.Stop()
	}
	e.state.Finish(noSpace)
}

// runContext freezes the config for the duration of one run.
type runContext struct {
	mode   Mode
	cfg    config.Config
	layout library.Layout
}

func (e *Engine) newRunContext(mode Mode) *runContext {
	cfg := e.cfg.Snapshot()
	return &runContext{mode: mode, cfg: cfg, layout: library.NewLayout(cfg)}
}

// traverse builds the work list and walks it: queue items first in queue
// order, then the remaining catalog. After each bulk series the queue is
// re-inspected and any new items are drained before bulk work resumes.
func (e *Engine) traverse(ctx context.Context, rc *runContext, log zerolog.Logger) error {
	queued, err := e.store.QueueList(ctx)
	if err != nil {
		log.Error().Err(err).Msg("could not load queue")
		queued = nil
	}
	all, err := e.store.ListSeries(ctx, catalog.ListFilter{Deleted: catalog.DeletedExclude})
	if err != nil {
		return err
	}

	byID := make(map[int64]catalog.Series, len(all))
	for _, s := range all {
		byID[s.ID] = *s
	}

	processed := map[int64]bool{}
	for _, item := range queued {
		series, ok := byID[item.SeriesID]
		if !ok {
			continue
		}
		if err := e.runSeries(ctx, rc, series, log); err != nil {
			return err
		}
		processed[series.ID] = true
		if err := e.store.QueueDeleteBySeries(ctx, series.ID); err != nil && !errors.Is(err, catalog.ErrNotFound) {
			log.Warn().Err(err).Int64("series_id", series.ID).Msg("could not dequeue series")
		}
	}

	for _, series := range all {
		if processed[series.ID] {
			continue
		}
		if err := e.drainQueue(ctx, rc, processed, byID, log); err != nil {
			return err
		}
		if processed[series.ID] {
			continue
		}
		if err := e.runSeries(ctx, rc, *series, log); err != nil {
			return err
		}
		processed[series.ID] = true
	}
	return e.drainQueue(ctx, rc, processed, byID, log)
}

// drainQueue processes queue items that appeared while bulk work was
// running. Queue items interrupt bulk order depth-first.
func (e *Engine) drainQueue(ctx context.Context, rc *runContext, processed map[int64]bool, byID map[int64]catalog.Series, log zerolog.Logger) error {
	for {
		if e.state.StopRequested() {
			return errStopped
		}
		items, err := e.store.QueueList(ctx)
		if err != nil {
			log.Error().Err(err).Msg("could not re-inspect queue")
			return nil
		}
		var next *catalog.QueueItem
		for _, item := range items {
			if !processed[item.SeriesID] {
				next = item
				break
			}
		}
		if next == nil {
			return nil
		}
		series, ok := byID[next.SeriesID]
		if !ok {
			// byID only holds non-deleted rows; a queue entry pointing at a
			// tombstone is stale and gets dropped, never downloaded.
			fetched, err := e.store.GetSeries(ctx, next.SeriesID)
			if err != nil || fetched.Deleted {
				processed[next.SeriesID] = true
				_ = e.store.QueueDelete(ctx, next.ID)
				continue
			}
			series = *fetched
			byID[series.ID] = series
		}
		if err := e.runSeries(ctx, rc, series, log); err != nil {
			return err
		}
		processed[series.ID] = true
		if err := e.store.QueueDeleteBySeries(ctx, series.ID); err != nil && !errors.Is(err, catalog.ErrNotFound) {
			log.Warn().Err(err).Int64("series_id", series.ID).Msg("could not dequeue series")
		}
	}
}

// runSeries dispatches one series to the mode procedure. Errors other than
// the stop and disk sentinels are logged and swallowed so one broken series
// cannot sink the whole run.
func (e *Engine) runSeries(ctx context.Context, rc *runContext, series catalog.Series, log zerolog.Logger) error {
	if e.state.StopRequested() {
		return errStopped
	}

	e.state.Update(func(s *Snapshot) {
		s.CurrentSeries = seriesDisplayTitle(series)
		s.CurrentSeriesURL = series.URL
		s.CurrentSeason = 0
		s.CurrentEpisode = 0
		s.CurrentIsFilm = false
		s.EpisodeStartedAt = nil
	})

	var err error
	switch rc.mode {
	case ModeDefault:
		err = e.modeDefault(ctx, rc, series, log)
	case ModeGerman:
		err = e.modeGerman(ctx, rc, series, log)
	case ModeNew:
		err = e.modeNew(ctx, rc, series, log)
	case ModeCheckMissing:
		err = e.modeCheckMissing(ctx, rc, series, log)
	case ModeFullCheck:
		err = e.modeFullCheck(ctx, rc, series, log)
	}
	if errors.Is(err, errStopped) || errors.Is(err, errNoSpace) {
		return err
	}
	if err != nil {
		log.Error().Err(err).Str("series", series.URL).Msg("series failed, continuing with next")
	}
	return nil
}

// seriesDisplayTitle falls back to the URL slug when no title is stored.
func seriesDisplayTitle(s catalog.Series) string {
	if s.Title != "" {
		return s.Title
	}
	return scraper.Slug(s.URL)
}
