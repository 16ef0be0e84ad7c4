package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aniloader/internal/catalog"
	"aniloader/internal/config"
	"aniloader/internal/database"
	"aniloader/internal/downloader"
	"aniloader/internal/scraper"
)

const demoSeriesURL = "https://aniworld.to/anime/stream/demo-show"

// fakeScraper serves canned language sets and titles; URLs outside the maps
// behave like 404 pages, which is exactly what blind probing runs into.
type fakeScraper struct {
	mu        sync.Mutex
	languages map[string][]config.Language
	titles    map[string]string
}

func (f *fakeScraper) SeriesTitle(ctx context.Context, seriesURL string) (string, error) {
	return "", fmt.Errorf("no title for %s", seriesURL)
}

func (f *fakeScraper) Languages(ctx context.Context, episodeURL string) ([]config.Language, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	langs, ok := f.languages[episodeURL]
	if !ok {
		return nil, fmt.Errorf("fetch %s: 404", episodeURL)
	}
	return append([]config.Language(nil), langs...), nil
}

func (f *fakeScraper) EpisodeTitle(ctx context.Context, episodeURL string, preferEnglish bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if title, ok := f.titles[episodeURL]; ok {
		return title, nil
	}
	return "", fmt.Errorf("no title on %s", episodeURL)
}

// fakeRunner drops a file exactly where the external binary would, under the
// series folder with the pre-placement name.
type fakeRunner struct {
	mu     sync.Mutex
	folder string // series folder name under outputDir
	calls  []string
	onRun  func() // optional, invoked once per call
}

func (r *fakeRunner) Run(ctx context.Context, episodeURL string, lang config.Language, outputDir string) downloader.Outcome {
	r.mu.Lock()
	r.calls = append(r.calls, episodeURL+"|"+string(lang))
	hook := r.onRun
	r.mu.Unlock()
	if hook != nil {
		hook()
	}

	ref, ok := scraper.ParseEpisodeURL(episodeURL)
	if !ok {
		return downloader.OutcomeFailed
	}
	name := fmt.Sprintf("Episode %03d.mp4", ref.Episode)
	if ref.IsFilm {
		name = fmt.Sprintf("Movie %d.mp4", ref.Episode)
	}
	dir := filepath.Join(outputDir, r.folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return downloader.OutcomeFailed
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte("video"), 0o644); err != nil {
		return downloader.OutcomeFailed
	}
	return downloader.OutcomeOK
}

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *fakeRunner) callList() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type testEnv struct {
	engine *Engine
	store  *catalog.Store
	runner *fakeRunner
	cfg    *config.Store
	dlDir  string
}

func newTestEnv(t *testing.T, sc *fakeScraper, folder string) *testEnv {
	t.Helper()

	oldEpisode, oldFailure := EpisodePause, FailurePause
	oldTries, oldBackoff := downloader.VerifyTries, downloader.VerifyBackoff
	EpisodePause, FailurePause = 0, 0
	downloader.VerifyTries, downloader.VerifyBackoff = 1, 0
	t.Cleanup(func() {
		EpisodePause, FailurePause = oldEpisode, oldFailure
		downloader.VerifyTries, downloader.VerifyBackoff = oldTries, oldBackoff
	})

	dir := t.TempDir()
	db, err := database.New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	store := catalog.NewStore(db.Conn(), zerolog.Nop())

	cfgStore, err := config.Load(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	cfg := cfgStore.Snapshot()
	cfg.DownloadPath = filepath.Join(dir, "downloads")
	cfg.DataFolderPath = dir
	cfg.MinFreeGB = 0
	require.NoError(t, cfgStore.Update(cfg))
	require.NoError(t, os.MkdirAll(cfg.DownloadPath, 0o755))

	runner := &fakeRunner{folder: folder}
	eng := New(store, sc, runner, cfgStore, NewState(), zerolog.Nop(), nil)
	return &testEnv{engine: eng, store: store, runner: runner, cfg: cfgStore, dlDir: cfg.DownloadPath}
}

func runAndWait(t *testing.T, e *Engine, mode Mode) Snapshot {
	t.Helper()
	require.NoError(t, e.Start(mode))
	require.Eventually(t, func() bool {
		st := e.State().Get().Status
		return st == StatusFinished || st == StatusNoSpace
	}, 10*time.Second, 10*time.Millisecond)
	return e.State().Get()
}

func episodeURL(t *testing.T, season, episode int) string {
	t.Helper()
	u, err := scraper.EpisodeURL(demoSeriesURL, season, episode)
	require.NoError(t, err)
	return u
}

func TestDefaultRunDownloadsAndCompletes(t *testing.T) {
	sc := &fakeScraper{
		languages: map[string][]config.Language{
			episodeURL(t, 1, 1): {config.GermanDub},
			episodeURL(t, 1, 2): {config.GermanDub},
		},
		titles: map[string]string{
			episodeURL(t, 1, 1): "Pilot",
			episodeURL(t, 1, 2): "Zweite",
		},
	}
	env := newTestEnv(t, sc, "Demo Show")
	ctx := context.Background()

	id, err := env.store.UpsertSeries(ctx, demoSeriesURL, "Demo Show")
	require.NoError(t, err)

	snap := runAndWait(t, env.engine, ModeDefault)
	assert.Equal(t, StatusFinished, snap.Status)
	assert.Equal(t, "default", snap.Mode)

	staffel := filepath.Join(env.dlDir, "Demo Show", "Staffel 1")
	assert.FileExists(t, filepath.Join(staffel, "S01E001 - Pilot.mp4"))
	assert.FileExists(t, filepath.Join(staffel, "S01E002 - Zweite.mp4"))

	series, err := env.store.GetSeries(ctx, id)
	require.NoError(t, err)
	assert.True(t, series.Complete)
	assert.True(t, series.GermanComplete)
	assert.Equal(t, 1, series.LastSeason)
	assert.Equal(t, 2, series.LastEpisode)
	assert.Zero(t, series.LastFilm)
	assert.Empty(t, series.MissingGerman)
}

func TestDefaultRunSkipsExistingFiles(t *testing.T) {
	sc := &fakeScraper{
		languages: map[string][]config.Language{
			episodeURL(t, 1, 1): {config.GermanDub},
		},
	}
	env := newTestEnv(t, sc, "Demo Show")
	ctx := context.Background()

	id, err := env.store.UpsertSeries(ctx, demoSeriesURL, "Demo Show")
	require.NoError(t, err)

	existing := filepath.Join(env.dlDir, "Demo Show", "Staffel 1", "S01E001 - Pilot.mp4")
	require.NoError(t, os.MkdirAll(filepath.Dir(existing), 0o755))
	require.NoError(t, os.WriteFile(existing, []byte("video"), 0o644))

	runAndWait(t, env.engine, ModeDefault)

	// Nothing gets re-fetched, and a walk that placed zero new episodes
	// must not promote the series to complete.
	assert.Zero(t, env.runner.callCount())
	series, err := env.store.GetSeries(ctx, id)
	require.NoError(t, err)
	assert.False(t, series.Complete)
}

func TestDefaultRunIgnoresCompleteSeries(t *testing.T) {
	sc := &fakeScraper{
		languages: map[string][]config.Language{
			episodeURL(t, 1, 1): {config.GermanDub},
		},
	}
	env := newTestEnv(t, sc, "Demo Show")
	ctx := context.Background()

	id, err := env.store.UpsertSeries(ctx, demoSeriesURL, "Demo Show")
	require.NoError(t, err)
	require.NoError(t, env.store.UpdateSeries(ctx, id, catalog.SeriesUpdate{Complete: boolPtr(true)}))

	runAndWait(t, env.engine, ModeDefault)
	assert.Zero(t, env.runner.callCount())
}

func TestStopRequestLimitsRunToCurrentEpisode(t *testing.T) {
	sc := &fakeScraper{
		languages: map[string][]config.Language{
			episodeURL(t, 1, 1): {config.GermanDub},
			episodeURL(t, 1, 2): {config.GermanDub},
		},
		titles: map[string]string{
			episodeURL(t, 1, 1): "Pilot",
			episodeURL(t, 1, 2): "Zweite",
		},
	}
	env := newTestEnv(t, sc, "Demo Show")
	ctx := context.Background()

	_, err := env.store.UpsertSeries(ctx, demoSeriesURL, "Demo Show")
	require.NoError(t, err)

	// Stop lands while the first episode is in flight; that episode still
	// finishes, nothing after it starts.
	env.runner.onRun = func() { env.engine.Stop() }

	snap := runAndWait(t, env.engine, ModeDefault)
	assert.Equal(t, StatusFinished, snap.Status)
	assert.Equal(t, 1, env.runner.callCount())

	staffel := filepath.Join(env.dlDir, "Demo Show", "Staffel 1")
	assert.FileExists(t, filepath.Join(staffel, "S01E001 - Pilot.mp4"))
	assert.NoFileExists(t, filepath.Join(staffel, "S01E002 - Zweite.mp4"))
}

func TestCheckMissingFillsHoles(t *testing.T) {
	sc := &fakeScraper{
		languages: map[string][]config.Language{
			episodeURL(t, 1, 1): {config.GermanDub},
			episodeURL(t, 1, 2): {config.GermanDub},
			episodeURL(t, 1, 3): {config.GermanDub},
		},
		titles: map[string]string{
			episodeURL(t, 1, 2): "Loch",
		},
	}
	env := newTestEnv(t, sc, "Demo Show")
	ctx := context.Background()

	id, err := env.store.UpsertSeries(ctx, demoSeriesURL, "Demo Show")
	require.NoError(t, err)
	require.NoError(t, env.store.UpdateSeries(ctx, id, catalog.SeriesUpdate{
		LastSeason:  intPtr(1),
		LastEpisode: intPtr(3),
	}))

	// Episodes 1 and 3 are on disk, 2 fell through the resume logic.
	staffel := filepath.Join(env.dlDir, "Demo Show", "Staffel 1")
	require.NoError(t, os.MkdirAll(staffel, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(staffel, "S01E001 - Pilot.mp4"), []byte("video"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(staffel, "S01E003 - Drei.mp4"), []byte("video"), 0o644))

	runAndWait(t, env.engine, ModeCheckMissing)

	assert.FileExists(t, filepath.Join(staffel, "S01E002 - Loch.mp4"))
	calls := env.runner.callList()
	require.Len(t, calls, 1)
	assert.Equal(t, episodeURL(t, 1, 2)+"|"+string(config.GermanDub), calls[0])
}

func TestFullCheckUpgradesToGerman(t *testing.T) {
	ep := episodeURL(t, 1, 1)
	sc := &fakeScraper{
		languages: map[string][]config.Language{
			ep: {config.GermanDub, config.EnglishDub},
		},
		titles: map[string]string{ep: "Alt"},
	}
	env := newTestEnv(t, sc, "Demo Show")
	ctx := context.Background()

	id, err := env.store.UpsertSeries(ctx, demoSeriesURL, "Demo Show")
	require.NoError(t, err)

	// The local copy predates the German dub.
	staffel := filepath.Join(env.dlDir, "Demo Show", "Staffel 1")
	old := filepath.Join(staffel, "S01E001 - Alt [English Dub].mp4")
	require.NoError(t, os.MkdirAll(staffel, 0o755))
	require.NoError(t, os.WriteFile(old, []byte("video"), 0o644))

	runAndWait(t, env.engine, ModeFullCheck)

	assert.FileExists(t, filepath.Join(staffel, "S01E001 - Alt.mp4"))
	assert.NoFileExists(t, old)

	calls := env.runner.callList()
	require.Len(t, calls, 1)
	assert.Equal(t, ep+"|"+string(config.GermanDub), calls[0])

	series, err := env.store.GetSeries(ctx, id)
	require.NoError(t, err)
	assert.True(t, series.Complete)
}

func TestSoftDeletedSeriesNeverDownloaded(t *testing.T) {
	ep := episodeURL(t, 1, 1)
	sc := &fakeScraper{
		languages: map[string][]config.Language{ep: {config.GermanDub}},
		titles:    map[string]string{ep: "Pilot"},
	}
	env := newTestEnv(t, sc, "Demo Show")
	ctx := context.Background()

	id, err := env.store.UpsertSeries(ctx, demoSeriesURL, "Demo Show")
	require.NoError(t, err)
	require.NoError(t, env.store.QueueAdd(ctx, id))

	// Tombstoning drops the queue row.
	require.NoError(t, env.store.SoftDelete(ctx, id))
	items, err := env.store.QueueList(ctx)
	require.NoError(t, err)
	require.Empty(t, items)

	// A stale row pointing at the tombstone gets dropped by the run, not
	// downloaded.
	require.NoError(t, env.store.QueueAdd(ctx, id))

	runAndWait(t, env.engine, ModeDefault)

	assert.Zero(t, env.runner.callCount())
	assert.NoFileExists(t, filepath.Join(env.dlDir, "Demo Show", "Staffel 1", "S01E001 - Pilot.mp4"))

	items, err = env.store.QueueList(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestEnglishOnlyEpisodeRecordsMissingGerman(t *testing.T) {
	ep := episodeURL(t, 1, 1)
	sc := &fakeScraper{
		languages: map[string][]config.Language{
			ep: {config.EnglishDub},
		},
		titles: map[string]string{ep: "Pilot"},
	}
	env := newTestEnv(t, sc, "Demo Show")
	ctx := context.Background()

	id, err := env.store.UpsertSeries(ctx, demoSeriesURL, "Demo Show")
	require.NoError(t, err)

	runAndWait(t, env.engine, ModeDefault)

	assert.FileExists(t, filepath.Join(env.dlDir, "Demo Show", "Staffel 1", "S01E001 - Pilot [English Dub].mp4"))
	series, err := env.store.GetSeries(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{ep}, series.MissingGerman)
	assert.False(t, series.GermanComplete)
	// The fallback copy still advances progress and completion.
	assert.True(t, series.Complete)
}

func TestGermanModeUpgradesAndCleans(t *testing.T) {
	ep := episodeURL(t, 1, 2)
	sc := &fakeScraper{
		languages: map[string][]config.Language{
			ep: {config.GermanDub, config.EnglishDub},
		},
		titles: map[string]string{ep: "Zweite"},
	}
	env := newTestEnv(t, sc, "Demo Show")
	ctx := context.Background()

	id, err := env.store.UpsertSeries(ctx, demoSeriesURL, "Demo Show")
	require.NoError(t, err)
	missing := []string{ep}
	require.NoError(t, env.store.UpdateSeries(ctx, id, catalog.SeriesUpdate{MissingGerman: &missing}))

	old := filepath.Join(env.dlDir, "Demo Show", "Staffel 1", "S01E002 - Zweite [English Dub].mp4")
	require.NoError(t, os.MkdirAll(filepath.Dir(old), 0o755))
	require.NoError(t, os.WriteFile(old, []byte("video"), 0o644))

	runAndWait(t, env.engine, ModeGerman)

	assert.FileExists(t, filepath.Join(env.dlDir, "Demo Show", "Staffel 1", "S01E002 - Zweite.mp4"))
	assert.NoFileExists(t, old)

	series, err := env.store.GetSeries(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, series.MissingGerman)
	assert.True(t, series.GermanComplete)

	calls := env.runner.callList()
	require.Len(t, calls, 1)
	assert.Equal(t, ep+"|"+string(config.GermanDub), calls[0])
}

func TestNewModeProbesBeyondStoredProgress(t *testing.T) {
	ep2 := episodeURL(t, 1, 2)
	sc := &fakeScraper{
		languages: map[string][]config.Language{
			episodeURL(t, 1, 1): {config.GermanDub},
			ep2:                 {config.GermanDub},
		},
		titles: map[string]string{ep2: "Neu"},
	}
	env := newTestEnv(t, sc, "Demo Show")
	ctx := context.Background()

	id, err := env.store.UpsertSeries(ctx, demoSeriesURL, "Demo Show")
	require.NoError(t, err)
	require.NoError(t, env.store.UpdateSeries(ctx, id, catalog.SeriesUpdate{
		Complete:    boolPtr(true),
		LastSeason:  intPtr(1),
		LastEpisode: intPtr(1),
	}))

	runAndWait(t, env.engine, ModeNew)

	assert.FileExists(t, filepath.Join(env.dlDir, "Demo Show", "Staffel 1", "S01E002 - Neu.mp4"))
	series, err := env.store.GetSeries(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, series.LastEpisode)
	assert.True(t, series.Complete)

	// Episode 1 is behind the stored progress; it must not be re-probed.
	for _, call := range env.runner.callList() {
		assert.NotContains(t, call, "episode-1|")
	}
}

func TestDiskPressureAbortsRun(t *testing.T) {
	sc := &fakeScraper{
		languages: map[string][]config.Language{
			episodeURL(t, 1, 1): {config.GermanDub},
		},
	}
	env := newTestEnv(t, sc, "Demo Show")
	ctx := context.Background()

	_, err := env.store.UpsertSeries(ctx, demoSeriesURL, "Demo Show")
	require.NoError(t, err)

	cfg := env.cfg.Snapshot()
	cfg.MinFreeGB = 1 << 30 // nothing has an exabyte free
	require.NoError(t, env.cfg.Update(cfg))

	snap := runAndWait(t, env.engine, ModeDefault)
	assert.Equal(t, StatusNoSpace, snap.Status)
	assert.Zero(t, env.runner.callCount())
}

func TestQueueItemsRunFirst(t *testing.T) {
	otherURL := "https://s.to/serie/stream/other-show"
	otherEp, err := scraper.EpisodeURL(otherURL, 1, 1)
	require.NoError(t, err)

	sc := &fakeScraper{
		languages: map[string][]config.Language{
			episodeURL(t, 1, 1): {config.GermanDub},
			otherEp:             {config.GermanDub},
		},
	}
	// Both fake series share one on-disk folder name; ordering is what the
	// test observes, not placement.
	env := newTestEnv(t, sc, "Shared")
	ctx := context.Background()

	_, err = env.store.UpsertSeries(ctx, demoSeriesURL, "Shared")
	require.NoError(t, err)
	otherID, err := env.store.UpsertSeries(ctx, otherURL, "Shared")
	require.NoError(t, err)
	require.NoError(t, env.store.QueueAdd(ctx, otherID))

	runAndWait(t, env.engine, ModeDefault)

	calls := env.runner.callList()
	require.NotEmpty(t, calls)
	assert.Contains(t, calls[0], otherURL)

	// The queue entry is consumed by the run.
	items, err := env.store.QueueList(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestStartRejectsSecondRun(t *testing.T) {
	env := newTestEnv(t, &fakeScraper{}, "Demo Show")

	st := env.engine.State()
	require.True(t, st.TryStart("default", "run-1"))
	assert.ErrorIs(t, env.engine.Start(ModeDefault), ErrAlreadyRunning)
	st.Finish(false)
	assert.Equal(t, StatusFinished, st.Get().Status)
}

func TestParseMode(t *testing.T) {
	for _, name := range []string{"default", "german", "new", "check-missing", "full-check"} {
		mode, ok := ParseMode(name)
		require.True(t, ok, name)
		assert.Equal(t, Mode(name), mode)
	}
	_, ok := ParseMode("turbo")
	assert.False(t, ok)
}

func TestStateLifecycle(t *testing.T) {
	st := NewState()
	assert.Equal(t, StatusIdle, st.Get().Status)
	assert.False(t, st.RequestStop())

	require.True(t, st.TryStart("default", "run-1"))
	assert.False(t, st.TryStart("german", "run-2"))
	assert.True(t, st.RequestStop())
	assert.True(t, st.StopRequested())

	st.Finish(true)
	snap := st.Get()
	assert.Equal(t, StatusNoSpace, snap.Status)
	assert.Equal(t, "default", snap.Mode)
	assert.Equal(t, "run-1", snap.RunID)
	assert.False(t, snap.StopRequested)

	// kein-speicher does not block the next run.
	assert.True(t, st.TryStart("default", "run-3"))
}

func TestStateOnChangeHook(t *testing.T) {
	st := NewState()
	var mu sync.Mutex
	var seen []Status
	st.SetOnChange(func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s.Status)
		mu.Unlock()
	})

	st.TryStart("default", "run-1")
	st.Finish(false)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Status{StatusRunning, StatusFinished}, seen)
}
