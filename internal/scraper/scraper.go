package scraper

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"aniloader/internal/catalog"
	"aniloader/internal/config"
	"aniloader/internal/library"
)

// Episode is one scraped season row: its contiguous number plus the
// synthesized canonical URL.
type Episode struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
}

var seasonHrefRe = regexp.MustCompile(`/staffel-(\d+)/?$`)

// languageKeys maps the per-site flag icon keys onto the Language enum.
var languageKeys = map[catalog.Site]map[string]config.Language{
	catalog.SiteAniworld: {
		"german":           config.GermanDub,
		"english":          config.EnglishDub,
		"japanese-german":  config.GermanSub,
		"japanese-english": config.EnglishSub,
	},
	catalog.SiteSTO: {
		"german":         config.GermanDub,
		"english":        config.EnglishDub,
		"english-german": config.GermanSub,
	},
}

// SeriesTitle extracts the display title from a series page. Returns an
// error on fetch or parse failure; callers treat that as "unknown".
func (c *Client) SeriesTitle(ctx context.Context, seriesURL string) (string, error) {
	doc, err := c.document(ctx, seriesURL)
	if err != nil {
		return "", err
	}

	for _, sel := range []string{"div.series-title h1 span", "h1[itemprop=name]", "div.series-title h1", "h1"} {
		if title := strings.TrimSpace(doc.Find(sel).First().Text()); title != "" {
			return title, nil
		}
	}
	return "", fmt.Errorf("no title found on %s", seriesURL)
}

// Seasons returns the season numbers a series page links to, ascending.
// Season 0 is appended when an aniworld series exposes a Filme section.
func (c *Client) Seasons(ctx context.Context, seriesURL string) ([]int, error) {
	site, err := catalog.SiteForURL(seriesURL)
	if err != nil {
		return nil, err
	}
	doc, err := c.document(ctx, seriesURL)
	if err != nil {
		return nil, err
	}

	seen := map[int]struct{}{}
	hasFilms := false
	doc.Find("#stream ul li a, div.hosterSiteDirectNav a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		if m := seasonHrefRe.FindStringSubmatch(href); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				seen[n] = struct{}{}
			}
			return
		}
		// The movies pseudo-season is linked as "Filme"; canonicalized to 0
		// here so nothing downstream ever sees a string season key.
		if strings.HasSuffix(strings.TrimRight(href, "/"), "/filme") {
			hasFilms = true
		}
	})

	seasons := make([]int, 0, len(seen)+1)
	for n := range seen {
		seasons = append(seasons, n)
	}
	sort.Ints(seasons)
	if site == catalog.SiteAniworld && hasFilms {
		seasons = append(seasons, 0)
	}
	return seasons, nil
}

// Episodes lists the episodes of one season, excluding upcoming placeholder
// rows. URLs are synthesized by the URL builder, never scraped.
func (c *Client) Episodes(ctx context.Context, seriesURL string, season int) ([]Episode, error) {
	site, err := catalog.SiteForURL(seriesURL)
	if err != nil {
		return nil, err
	}
	pageURL, err := SeasonURL(seriesURL, season)
	if err != nil {
		return nil, err
	}
	doc, err := c.document(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	var episodes []Episode
	doc.Find("table.seasonEpisodesList tbody tr, table tbody tr").EachWithBreak(func(_ int, tr *goquery.Selection) bool {
		if cls, _ := tr.Attr("class"); strings.Contains(cls, "upcoming") {
			return true
		}
		if tr.Find(".upcoming").Length() > 0 {
			return true
		}

		number := 0
		switch site {
		case catalog.SiteAniworld:
			if content, ok := tr.Find("meta[itemprop=episodeNumber]").Attr("content"); ok {
				number, _ = strconv.Atoi(strings.TrimSpace(content))
			}
		case catalog.SiteSTO:
			text := strings.TrimSpace(tr.Find("th.episode-number-cell").First().Text())
			text = strings.TrimPrefix(text, "Folge ")
			number, _ = strconv.Atoi(strings.TrimSpace(text))
		}
		if number <= 0 {
			return true
		}

		u, err := EpisodeURL(seriesURL, season, number)
		if err != nil {
			return false
		}
		episodes = append(episodes, Episode{Number: number, URL: u})
		return true
	})

	sort.Slice(episodes, func(i, j int) bool { return episodes[i].Number < episodes[j].Number })
	// Duplicate table matches collapse to one row per number.
	dedup := episodes[:0]
	last := -1
	for _, e := range episodes {
		if e.Number != last {
			dedup = append(dedup, e)
			last = e.Number
		}
	}
	return dedup, nil
}

// Languages returns the set of audio/subtitle variants an episode page
// advertises via its flag icons.
func (c *Client) Languages(ctx context.Context, episodeURL string) ([]config.Language, error) {
	site, err := catalog.SiteForURL(episodeURL)
	if err != nil {
		return nil, err
	}
	doc, err := c.document(ctx, episodeURL)
	if err != nil {
		return nil, err
	}

	keys := languageKeys[site]
	seen := map[config.Language]struct{}{}
	var out []config.Language
	doc.Find("div.changeLanguageBox img, img.flag").Each(func(_ int, img *goquery.Selection) {
		key := flagKey(img)
		lang, ok := keys[key]
		if !ok {
			return
		}
		if _, dup := seen[lang]; dup {
			return
		}
		seen[lang] = struct{}{}
		out = append(out, lang)
	})
	return out, nil
}

// flagKey extracts the language key of a flag icon: the data-lang-key
// attribute when present, otherwise the src basename without extension.
func flagKey(img *goquery.Selection) string {
	if key, ok := img.Attr("data-lang-key"); ok && key != "" {
		return strings.ToLower(strings.TrimSpace(key))
	}
	src, ok := img.Attr("src")
	if !ok {
		return ""
	}
	base := src
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}
	if idx := strings.Index(base, "."); idx >= 0 {
		base = base[:idx]
	}
	return strings.ToLower(strings.TrimSpace(base))
}

// EpisodeTitle returns the episode's display title, German preferred unless
// preferEnglish is set, sanitized for filesystem use.
func (c *Client) EpisodeTitle(ctx context.Context, episodeURL string, preferEnglish bool) (string, error) {
	doc, err := c.document(ctx, episodeURL)
	if err != nil {
		return "", err
	}

	german := strings.TrimSpace(doc.Find("span.episodeGermanTitle").First().Text())
	english := strings.TrimSpace(doc.Find("small.episodeEnglishTitle").First().Text())

	title := german
	if preferEnglish || title == "" {
		if english != "" {
			title = english
		}
	}
	if title == "" {
		return "", fmt.Errorf("no episode title on %s", episodeURL)
	}
	return library.SanitizeTitle(title), nil
}
