package scraper

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeriesBase(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"series page", "https://aniworld.to/anime/stream/demo-show", "https://aniworld.to/anime/stream/demo-show", true},
		{"episode page", "https://aniworld.to/anime/stream/demo-show/staffel-2/episode-4", "https://aniworld.to/anime/stream/demo-show", true},
		{"film page", "https://aniworld.to/anime/stream/demo-show/filme/film-1", "https://aniworld.to/anime/stream/demo-show", true},
		{"sto series", "https://s.to/serie/stream/other-show/", "https://s.to/serie/stream/other-show", true},
		{"whitespace", "  https://s.to/serie/stream/other-show  ", "https://s.to/serie/stream/other-show", true},
		{"not a stream url", "https://aniworld.to/animes-alphabet", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SeriesBase(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEpisodeURLRoundTrip(t *testing.T) {
	series := "https://aniworld.to/anime/stream/demo-show"

	u, err := EpisodeURL(series, 2, 13)
	require.NoError(t, err)
	assert.Equal(t, series+"/staffel-2/episode-13", u)

	ref, ok := ParseEpisodeURL(u)
	require.True(t, ok)
	assert.Equal(t, EpisodeRef{Season: 2, Episode: 13}, ref)

	base, err := SeriesBaseOfEpisode(u)
	require.NoError(t, err)
	assert.Equal(t, series, base)
}

func TestFilmURLRoundTrip(t *testing.T) {
	series := "https://aniworld.to/anime/stream/demo-show"

	u, err := FilmURL(series, 3)
	require.NoError(t, err)
	assert.Equal(t, series+"/filme/film-3", u)

	ref, ok := ParseEpisodeURL(u)
	require.True(t, ok)
	assert.True(t, ref.IsFilm)
	assert.Equal(t, 0, ref.Season)
	assert.Equal(t, 3, ref.Episode)
}

func TestSeasonURL(t *testing.T) {
	series := "https://s.to/serie/stream/other-show"

	u, err := SeasonURL(series, 4)
	require.NoError(t, err)
	assert.Equal(t, series+"/staffel-4", u)

	u, err = SeasonURL(series, 0)
	require.NoError(t, err)
	assert.Equal(t, series+"/filme", u)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "demo-show", Slug("https://aniworld.to/anime/stream/demo-show/staffel-1/episode-1"))
	assert.Equal(t, "", Slug("https://aniworld.to/"))
}

func TestParseEpisodeURLRejectsSeriesPage(t *testing.T) {
	_, ok := ParseEpisodeURL("https://aniworld.to/anime/stream/demo-show")
	assert.False(t, ok)
}

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already valid", `[{"title":"A"}]`, `[{"title":"A"}]`},
		{"empty", "", "[]"},
		{"truncated mid object", `[{"title":"A"},{"tit`, `[{"title":"A"}]`},
		{"missing closers", `[{"title":"A"},{"title":"B"}`, `[{"title":"A"},{"title":"B"}]`},
		{"trailing comma", `[{"title":"A"},]`, `[{"title":"A"}]`},
		{"bracket inside string", `[{"title":"A ]{"}`, `[{"title":"A ]{"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, repairJSON(tt.in))
		})
	}
}

func TestCleanSearchTitle(t *testing.T) {
	assert.Equal(t, "Demo Show", cleanSearchTitle("<em>Demo</em> Show"))
	assert.Equal(t, "Tom & Jerry", cleanSearchTitle("Tom &amp; Jerry"))
}

func TestNormalizeHits(t *testing.T) {
	p := searchProviders[0] // aniworld.to
	hits := []ajaxSearchHit{
		{Title: "<em>Demo</em> Show (2020)", Link: "/anime/stream/demo-show", Cover: "/public/img/covers/demo.jpg"},
		{Title: "Support", Link: "/support"},
		{Title: "Other", Link: "https://aniworld.to/anime/stream/other-show/staffel-1/episode-2", Cover: "https://cdn.example.org/other.jpg"},
	}

	out := normalizeHits(p, hits)
	require.Len(t, out, 2)

	assert.Equal(t, "Demo Show (2020)", out[0].Title)
	assert.Equal(t, "https://aniworld.to/anime/stream/demo-show", out[0].URL)
	assert.Equal(t, "https://aniworld.to/public/img/covers/demo.jpg", out[0].Cover)
	assert.Equal(t, 2020, out[0].Year)
	assert.Equal(t, "aniworld", out[0].Provider)

	// Episode links collapse to the series base; absolute covers pass through.
	assert.Equal(t, "https://aniworld.to/anime/stream/other-show", out[1].URL)
	assert.Equal(t, "https://cdn.example.org/other.jpg", out[1].Cover)
	assert.Zero(t, out[1].Year)
}

func TestYearFromTitle(t *testing.T) {
	assert.Equal(t, 2019, yearFromTitle("Demo Show (2019)"))
	assert.Equal(t, 0, yearFromTitle("Demo Show"))
	assert.Equal(t, 0, yearFromTitle("(2019) Demo Show"))
}

func TestFlagKey(t *testing.T) {
	html := `<div>
		<img id="a" data-lang-key="German" src="/img/x.svg">
		<img id="b" src="/public/img/japanese-german.svg">
		<img id="c" alt="no source">
	</div>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	assert.Equal(t, "german", flagKey(doc.Find("#a")))
	assert.Equal(t, "japanese-german", flagKey(doc.Find("#b")))
	assert.Equal(t, "", flagKey(doc.Find("#c")))
}
