package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aniloader/internal/database"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return NewStore(db.Conn(), zerolog.Nop())
}

const (
	demoURL  = "https://aniworld.to/anime/stream/demo-show"
	otherURL = "https://s.to/serie/stream/other-show"
)

func TestUpsertSeries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.UpsertSeries(ctx, demoURL, "Demo Show")
	require.NoError(t, err)
	require.NotZero(t, id)

	series, err := store.GetSeries(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, SiteAniworld, series.Site)
	assert.Equal(t, ContentAnime, series.ContentType)
	assert.Equal(t, "Demo Show", series.Title)
	assert.False(t, series.Complete)
	assert.Empty(t, series.MissingGerman)

	// Same URL is a no-op returning the same id.
	again, err := store.UpsertSeries(ctx, demoURL, "Renamed")
	require.NoError(t, err)
	assert.Equal(t, id, again)
	series, err = store.GetSeries(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Demo Show", series.Title)
}

func TestUpsertRevivesTombstone(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.UpsertSeries(ctx, demoURL, "Demo Show")
	require.NoError(t, err)
	require.NoError(t, store.SoftDelete(ctx, id))

	again, err := store.UpsertSeries(ctx, demoURL, "Demo Show")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	series, err := store.GetSeries(ctx, id)
	require.NoError(t, err)
	assert.False(t, series.Deleted)
}

func TestUpsertRejectsUnknownHost(t *testing.T) {
	store := newTestStore(t)
	_, err := store.UpsertSeries(context.Background(), "https://example.com/anime/stream/x", "")
	assert.Error(t, err)
}

func TestSoftDeleteResetsProgress(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.UpsertSeries(ctx, demoURL, "Demo Show")
	require.NoError(t, err)

	missing := []string{demoURL + "/staffel-1/episode-2"}
	require.NoError(t, store.UpdateSeries(ctx, id, SeriesUpdate{
		Complete:      boolPtr(true),
		MissingGerman: &missing,
		LastSeason:    intPtr(2),
		LastEpisode:   intPtr(5),
		LastFilm:      intPtr(1),
	}))

	require.NoError(t, store.SoftDelete(ctx, id))

	series, err := store.GetSeries(ctx, id)
	require.NoError(t, err)
	assert.True(t, series.Deleted)
	assert.False(t, series.Complete)
	assert.True(t, series.GermanComplete == false)
	assert.Empty(t, series.MissingGerman)
	assert.Zero(t, series.LastSeason)
	assert.Zero(t, series.LastEpisode)
	assert.Zero(t, series.LastFilm)
}

func TestSoftDeleteRemovesQueueRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.UpsertSeries(ctx, demoURL, "Demo Show")
	require.NoError(t, err)
	require.NoError(t, store.QueueAdd(ctx, id))

	require.NoError(t, store.SoftDelete(ctx, id))

	items, err := store.QueueList(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMissingGermanDerivesGermanComplete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.UpsertSeries(ctx, demoURL, "Demo Show")
	require.NoError(t, err)

	episode := demoURL + "/staffel-1/episode-3"
	require.NoError(t, store.AddMissingGerman(ctx, id, episode))
	// Duplicates collapse.
	require.NoError(t, store.AddMissingGerman(ctx, id, episode))

	series, err := store.GetSeries(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{episode}, series.MissingGerman)
	assert.False(t, series.GermanComplete)

	require.NoError(t, store.RemoveMissingGerman(ctx, id, episode))
	series, err = store.GetSeries(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, series.MissingGerman)
	assert.True(t, series.GermanComplete)
}

func TestListSeriesFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id1, err := store.UpsertSeries(ctx, demoURL, "Demo Show")
	require.NoError(t, err)
	id2, err := store.UpsertSeries(ctx, otherURL, "Other Show")
	require.NoError(t, err)
	require.NoError(t, store.UpdateSeries(ctx, id2, SeriesUpdate{Complete: boolPtr(true)}))
	require.NoError(t, store.SoftDelete(ctx, id1))

	active, err := store.ListSeries(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, id2, active[0].ID)

	deleted, err := store.ListSeries(ctx, ListFilter{Deleted: DeletedOnly})
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, id1, deleted[0].ID)

	byQuery, err := store.ListSeries(ctx, ListFilter{Query: "other", Deleted: DeletedInclude})
	require.NoError(t, err)
	require.Len(t, byQuery, 1)
	assert.Equal(t, id2, byQuery[0].ID)
}

func TestQueueOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id1, err := store.UpsertSeries(ctx, demoURL, "Demo Show")
	require.NoError(t, err)
	id2, err := store.UpsertSeries(ctx, otherURL, "Other Show")
	require.NoError(t, err)

	require.NoError(t, store.QueueAdd(ctx, id1))
	require.NoError(t, store.QueueAdd(ctx, id2))
	assert.ErrorIs(t, store.QueueAdd(ctx, id1), ErrAlreadyQueued)

	items, err := store.QueueList(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, id1, items[0].SeriesID)
	assert.Equal(t, id2, items[1].SeriesID)
	assert.Less(t, items[0].Position, items[1].Position)
}

func TestQueueRejectsCompleteSeries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.UpsertSeries(ctx, demoURL, "Demo Show")
	require.NoError(t, err)
	require.NoError(t, store.UpdateSeries(ctx, id, SeriesUpdate{Complete: boolPtr(true)}))

	assert.ErrorIs(t, store.QueueAdd(ctx, id), ErrSeriesComplete)
}

func TestQueueReorder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var queueIDs []int64
	for _, url := range []string{demoURL, otherURL, "https://aniworld.to/anime/stream/third"} {
		id, err := store.UpsertSeries(ctx, url, "")
		require.NoError(t, err)
		require.NoError(t, store.QueueAdd(ctx, id))
	}
	items, err := store.QueueList(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	for _, it := range items {
		queueIDs = append(queueIDs, it.ID)
	}

	// Move the last to the front; unnamed rows keep their relative order.
	require.NoError(t, store.QueueReorder(ctx, []int64{queueIDs[2]}))

	items, err = store.QueueList(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, queueIDs[2], items[0].ID)
	assert.Equal(t, queueIDs[0], items[1].ID)
	assert.Equal(t, queueIDs[1], items[2].ID)
}

func TestMarkCompleteDequeues(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.UpsertSeries(ctx, demoURL, "Demo Show")
	require.NoError(t, err)
	require.NoError(t, store.QueueAdd(ctx, id))

	require.NoError(t, store.UpdateSeries(ctx, id, SeriesUpdate{Complete: boolPtr(true)}))

	items, err := store.QueueList(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestHardDeleteRemovesQueueRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.UpsertSeries(ctx, demoURL, "Demo Show")
	require.NoError(t, err)
	require.NoError(t, store.QueueAdd(ctx, id))

	require.NoError(t, store.HardDelete(ctx, id))

	_, err = store.GetSeries(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	items, err := store.QueueList(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRestoreOptionallyEnqueues(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.UpsertSeries(ctx, demoURL, "Demo Show")
	require.NoError(t, err)
	require.NoError(t, store.SoftDelete(ctx, id))

	require.NoError(t, store.Restore(ctx, id, true))

	series, err := store.GetSeries(ctx, id)
	require.NoError(t, err)
	assert.False(t, series.Deleted)
	items, err := store.QueueList(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].SeriesID)
}

func TestReindexCompactsIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertSeries(ctx, demoURL, "Demo Show")
	require.NoError(t, err)
	id2, err := store.UpsertSeries(ctx, otherURL, "Other Show")
	require.NoError(t, err)
	id3, err := store.UpsertSeries(ctx, "https://aniworld.to/anime/stream/third", "Third")
	require.NoError(t, err)
	require.NoError(t, store.QueueAdd(ctx, id3))

	// Punch a hole in the id sequence.
	require.NoError(t, store.HardDelete(ctx, id2))
	require.NoError(t, store.Reindex(ctx))

	all, err := store.ListSeries(ctx, ListFilter{Deleted: DeletedInclude})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(1), all[0].ID)
	assert.Equal(t, int64(2), all[1].ID)
	assert.Equal(t, demoURL, all[0].URL)

	// Queue rows follow the remapped ids.
	items, err := store.QueueList(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	third, err := store.GetSeriesByURL(ctx, "https://aniworld.to/anime/stream/third")
	require.NoError(t, err)
	assert.Equal(t, third.ID, items[0].SeriesID)
}

func TestActiveExists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.UpsertSeries(ctx, demoURL, "Demo Show")
	require.NoError(t, err)

	exists, err := store.ActiveExists(ctx, demoURL)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.SoftDelete(ctx, id))
	exists, err = store.ActiveExists(ctx, demoURL)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestEpisodeLanguageCache(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	url := demoURL + "/staffel-1/episode-1"
	require.NoError(t, store.SaveEpisodeLanguages(ctx, url, []string{"German Dub", "German Sub"}))
	require.NoError(t, store.SaveEpisodeLanguages(ctx, url, []string{"German Dub"}))

	langs, checkedAt, err := store.GetEpisodeLanguages(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, []string{"German Dub"}, langs)
	assert.False(t, checkedAt.IsZero())

	_, _, err = store.GetEpisodeLanguages(ctx, "https://aniworld.to/anime/stream/none/staffel-1/episode-9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func boolPtr(b bool) *bool { return &b }
func intPtr(n int) *int    { return &n }
