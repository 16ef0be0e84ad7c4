package catalog

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Site identifies the streaming site a series lives on.
type Site string

const (
	SiteAniworld Site = "aniworld"
	SiteSTO      Site = "s.to"
)

// ContentType is derived from the site: aniworld carries anime, s.to series.
type ContentType string

const (
	ContentAnime  ContentType = "anime"
	ContentSeries ContentType = "series"
)

// Series is one catalog row.
type Series struct {
	ID             int64       `json:"id"`
	URL            string      `json:"url"`
	Title          string      `json:"title"`
	Site           Site        `json:"site"`
	ContentType    ContentType `json:"content_type"`
	Complete       bool        `json:"complete"`
	GermanComplete bool        `json:"german_complete"`
	Deleted        bool        `json:"deleted"`
	MissingGerman  []string    `json:"missing_german"`
	LastFilm       int         `json:"last_film"`
	LastSeason     int         `json:"last_season"`
	LastEpisode    int         `json:"last_episode"`
	AddedAt        time.Time   `json:"added_at"`
}

// QueueItem is one position-ordered priority request.
type QueueItem struct {
	ID        int64     `json:"id"`
	SeriesID  int64     `json:"series_id"`
	SeriesURL string    `json:"series_url"`
	Position  int       `json:"position"`
	AddedAt   time.Time `json:"added_at"`
}

// SiteForURL derives the site from a series URL host.
func SiteForURL(rawURL string) (Site, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse series url: %w", err)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch {
	case strings.Contains(host, "aniworld"):
		return SiteAniworld, nil
	case host == "s.to" || strings.HasSuffix(host, ".s.to") || strings.Contains(host, "serienstream"):
		return SiteSTO, nil
	}
	return "", fmt.Errorf("unsupported site host %q", host)
}

// ContentTypeForSite maps a site to its content type.
func ContentTypeForSite(site Site) ContentType {
	if site == SiteAniworld {
		return ContentAnime
	}
	return ContentSeries
}
