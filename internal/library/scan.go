package library

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"aniloader/internal/config"
)

// siblingFolder returns the legacy-sanitization twin of a series folder:
// dots swapped for '#' or the reverse. Both forms appear on disk from older
// versions, so every probe checks the twin too. Empty when the name has
// neither character.
func siblingFolder(folder string) string {
	dir, name := filepath.Split(folder)
	switch {
	case strings.Contains(name, "."):
		return filepath.Join(dir, strings.ReplaceAll(name, ".", "#"))
	case strings.Contains(name, "#"):
		return filepath.Join(dir, strings.ReplaceAll(name, "#", "."))
	}
	return ""
}

func searchRoots(seriesFolder string) []string {
	roots := []string{seriesFolder}
	if twin := siblingFolder(seriesFolder); twin != "" {
		roots = append(roots, twin)
	}
	return roots
}

// findMP4s walks root recursively and returns every .mp4 whose lowercased
// base name satisfies match. Walk errors are swallowed: a vanished folder
// means no matches, not a failure.
func findMP4s(root string, match func(lower string) bool) []string {
	var hits []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		lower := strings.ToLower(d.Name())
		if strings.HasSuffix(lower, ".mp4") && match(lower) {
			hits = append(hits, path)
		}
		return nil
	})
	return hits
}

func matchesEpisode(season, episode int, isFilm, dedicated bool, seriesName string) func(string) bool {
	if !isFilm {
		tag := strings.ToLower(EpisodeTag(season, episode))
		return func(lower string) bool { return strings.Contains(lower, tag) }
	}
	film := strings.ToLower(FilmTag(episode))
	movie := strings.ToLower(MovieTag(episode))
	if dedicated {
		prefixed := strings.ToLower(SanitizeFolder(seriesName) + " - " + FilmTag(episode))
		return func(lower string) bool {
			return strings.Contains(lower, prefixed) || strings.Contains(lower, movie)
		}
	}
	return func(lower string) bool {
		return strings.Contains(lower, film) || strings.Contains(lower, movie)
	}
}

// AlreadyDownloaded reports whether a file for the episode already exists.
// This is the pipeline's sole idempotence guard, so it must recognize every
// name this system has ever produced: both folder sanitization variants and
// both film markers. Dedicated-layout films live under the parent of the
// nominal series folder.
func AlreadyDownloaded(seriesFolder string, season, episode int, isFilm, dedicated bool, seriesName string) bool {
	match := matchesEpisode(season, episode, isFilm, dedicated, seriesName)

	roots := searchRoots(seriesFolder)
	if isFilm && dedicated {
		roots = []string{filepath.Dir(seriesFolder)}
	}
	for _, root := range roots {
		if len(findMP4s(root, match)) > 0 {
			return true
		}
	}
	return false
}

// HasAnyContent reports whether any video file exists under the series
// folder or its sanitization twin.
func HasAnyContent(seriesFolder string) bool {
	for _, root := range searchRoots(seriesFolder) {
		if len(findMP4s(root, func(string) bool { return true })) > 0 {
			return true
		}
	}
	return false
}

// FindEpisode returns the first existing file for the episode, for language
// classification during audits.
func FindEpisode(seriesFolder string, season, episode int, isFilm, dedicated bool, seriesName string) (string, bool) {
	match := matchesEpisode(season, episode, isFilm, dedicated, seriesName)
	roots := searchRoots(seriesFolder)
	if isFilm && dedicated {
		roots = []string{filepath.Dir(seriesFolder)}
	}
	for _, root := range roots {
		if hits := findMP4s(root, match); len(hits) > 0 {
			return hits[0], true
		}
	}
	return "", false
}

// DeleteDowngrades removes non-German variants of the episode. Called only
// right after a fresh German Dub copy has been placed. Returns the paths it
// removed.
func DeleteDowngrades(seriesFolder string, season, episode int, isFilm, dedicated bool, seriesName string) []string {
	match := matchesEpisode(season, episode, isFilm, dedicated, seriesName)

	roots := searchRoots(seriesFolder)
	if isFilm && dedicated {
		roots = []string{filepath.Dir(seriesFolder)}
	}
	var removed []string
	for _, root := range roots {
		for _, path := range findMP4s(root, match) {
			if ClassifyLanguage(filepath.Base(path)) == config.GermanDub {
				continue
			}
			if err := os.Remove(path); err == nil {
				removed = append(removed, path)
			}
		}
	}
	return removed
}
