package library

import (
	"fmt"
	"strings"

	"aniloader/internal/config"
)

// EpisodeTag renders the SxxEyyy episode marker.
func EpisodeTag(season, episode int) string {
	return fmt.Sprintf("S%02dE%03d", season, episode)
}

// FilmTag renders the FilmNN marker used in filenames and folder names.
func FilmTag(film int) string {
	return fmt.Sprintf("Film%02d", film)
}

// MovieTag is the alternate marker the downloader emits for films.
func MovieTag(film int) string {
	return fmt.Sprintf("Movie%02d", film)
}

// FileName builds the canonical .mp4 name for an episode or film.
//
//	episodes            S{NN}E{NNN}[ - {title}][ {suffix}].mp4
//	films, normal       Film{NN}[ - {title}][ {suffix}].mp4
//	films, dedicated    {SeriesName} - Film{NN}[ - {title}][ {suffix}].mp4
func FileName(season, episode int, title string, lang config.Language, isFilm, dedicated bool, seriesName string) string {
	var b strings.Builder
	if isFilm {
		if dedicated {
			b.WriteString(SanitizeFolder(seriesName))
			b.WriteString(" - ")
		}
		b.WriteString(FilmTag(episode))
	} else {
		b.WriteString(EpisodeTag(season, episode))
	}
	if title != "" {
		b.WriteString(" - ")
		b.WriteString(title)
	}
	if suffix := lang.Suffix(); suffix != "" {
		b.WriteString(" ")
		b.WriteString(suffix)
	}
	b.WriteString(".mp4")
	return b.String()
}

// ClassifyLanguage derives the language of an existing file from its name.
// No marker means German Dub.
func ClassifyLanguage(name string) config.Language {
	switch {
	case strings.Contains(name, "[English Dub]"):
		return config.EnglishDub
	case strings.Contains(name, "[English Sub]"):
		return config.EnglishSub
	case strings.Contains(name, "[Sub]"):
		return config.GermanSub
	default:
		return config.GermanDub
	}
}
