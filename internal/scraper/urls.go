package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Episode URLs are synthesized rather than scraped so that site template
// drift in anchor hrefs cannot break the traversal.

var (
	episodePathRe = regexp.MustCompile(`/staffel-(\d+)/episode-(\d+)`)
	filmPathRe    = regexp.MustCompile(`/filme/film-(\d+)`)
)

// SeriesBase normalizes a series URL to scheme://host/<section>/stream/<slug>.
func SeriesBase(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse series url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 3 || parts[1] != "stream" {
		return "", fmt.Errorf("unexpected series path %q", u.Path)
	}
	return fmt.Sprintf("%s://%s/%s/%s/%s", u.Scheme, u.Host, parts[0], parts[1], parts[2]), nil
}

// Slug returns the series slug (last path element of the canonical URL).
func Slug(rawURL string) string {
	base, err := SeriesBase(rawURL)
	if err != nil {
		return ""
	}
	idx := strings.LastIndex(base, "/")
	return base[idx+1:]
}

// SeasonURL builds the canonical season page URL. Season 0 is the movies
// pseudo-season.
func SeasonURL(seriesURL string, season int) (string, error) {
	base, err := SeriesBase(seriesURL)
	if err != nil {
		return "", err
	}
	if season == 0 {
		return base + "/filme", nil
	}
	return fmt.Sprintf("%s/staffel-%d", base, season), nil
}

// EpisodeURL builds the canonical episode URL.
func EpisodeURL(seriesURL string, season, episode int) (string, error) {
	base, err := SeriesBase(seriesURL)
	if err != nil {
		return "", err
	}
	if season == 0 {
		return fmt.Sprintf("%s/filme/film-%d", base, episode), nil
	}
	return fmt.Sprintf("%s/staffel-%d/episode-%d", base, season, episode), nil
}

// FilmURL builds the canonical film URL (movies pseudo-season).
func FilmURL(seriesURL string, film int) (string, error) {
	return EpisodeURL(seriesURL, 0, film)
}

// EpisodeRef is the parsed identity of an episode URL.
type EpisodeRef struct {
	Season  int
	Episode int
	IsFilm  bool
}

// ParseEpisodeURL extracts (season, episode) or the film number from an
// episode URL.
func ParseEpisodeURL(episodeURL string) (EpisodeRef, bool) {
	if m := filmPathRe.FindStringSubmatch(episodeURL); m != nil {
		n, _ := strconv.Atoi(m[1])
		return EpisodeRef{Season: 0, Episode: n, IsFilm: true}, true
	}
	if m := episodePathRe.FindStringSubmatch(episodeURL); m != nil {
		s, _ := strconv.Atoi(m[1])
		e, _ := strconv.Atoi(m[2])
		return EpisodeRef{Season: s, Episode: e}, true
	}
	return EpisodeRef{}, false
}

// SeriesBaseOfEpisode strips the episode suffix off an episode URL.
func SeriesBaseOfEpisode(episodeURL string) (string, error) {
	cut := episodePathRe.ReplaceAllString(episodeURL, "")
	cut = filmPathRe.ReplaceAllString(cut, "")
	return SeriesBase(cut)
}
