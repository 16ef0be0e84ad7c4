package library

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"aniloader/internal/config"
)

// maxPathLen is the Windows MAX_PATH ceiling; destination paths stay below
// it by truncating the title component.
const maxPathLen = 260

// downloaderPatterns are the name fragments the external binary writes
// before placement renames the file. Both the zero-padded and the plain form
// appear depending on the binary version.
func downloaderPatterns(episode int, isFilm bool) []string {
	word := "Episode"
	if isFilm {
		word = "Movie"
	}
	return []string{
		fmt.Sprintf("%s %03d", word, episode),
		fmt.Sprintf("%s %d", word, episode),
	}
}

// locateFresh finds the file the downloader just produced under the series
// folder or its sanitization twin.
func locateFresh(seriesFolder string, episode int, isFilm bool) (string, bool) {
	patterns := downloaderPatterns(episode, isFilm)
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(p)
	}
	match := func(lower string) bool {
		for _, p := range lowered {
			if strings.Contains(lower, p) {
				return true
			}
		}
		return false
	}
	for _, root := range searchRoots(seriesFolder) {
		if hits := findMP4s(root, match); len(hits) > 0 {
			return hits[0], true
		}
	}
	return "", false
}

// destFolder computes where the placed file belongs.
func destFolder(seriesFolder string, season, episode int, title string, isFilm, dedicated bool) string {
	if !isFilm {
		return filepath.Join(seriesFolder, fmt.Sprintf("Staffel %d", season))
	}
	if dedicated {
		if title != "" {
			return filepath.Join(filepath.Dir(seriesFolder), SanitizeFolder(title))
		}
		return filepath.Join(seriesFolder, FilmTag(episode))
	}
	return filepath.Join(seriesFolder, "Filme")
}

// fitTitle shrinks title until the full destination path fits under the
// MAX_PATH ceiling. Returns the final name.
func fitTitle(dir string, season, episode int, title string, lang config.Language, isFilm, dedicated bool, seriesName string) string {
	for {
		name := FileName(season, episode, title, lang, isFilm, dedicated, seriesName)
		if len(filepath.Join(dir, name)) < maxPathLen || title == "" {
			return name
		}
		runes := []rune(title)
		title = strings.TrimSpace(string(runes[:len(runes)-1]))
	}
}

// FindDownloaded locates the file the downloader just produced, still under
// its pre-placement name. Used by download verification before the rename.
func FindDownloaded(seriesFolder string, episode int, isFilm bool) (string, bool) {
	return locateFresh(seriesFolder, episode, isFilm)
}

// RenameDownloaded moves the freshly downloaded file to its canonical
// location and name. It is the single placement operation: everything the
// downloader leaves behind is either moved here or orphaned.
func RenameDownloaded(seriesFolder string, season, episode int, title string, lang config.Language, isFilm, dedicated bool, seriesName string) (string, error) {
	src, ok := locateFresh(seriesFolder, episode, isFilm)
	if !ok {
		return "", fmt.Errorf("no downloaded file found under %s", seriesFolder)
	}

	dir := destFolder(seriesFolder, season, episode, title, isFilm, dedicated)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create destination %s: %w", dir, err)
	}

	name := fitTitle(dir, season, episode, SanitizeTitle(title), lang, isFilm, dedicated, seriesName)
	dest := filepath.Join(dir, name)
	if err := os.Rename(src, dest); err != nil {
		return "", fmt.Errorf("place %s: %w", dest, err)
	}

	// The dedicated layout pulls the file out of the nominal series folder;
	// drop that folder when the move emptied it.
	if isFilm && dedicated {
		if entries, err := os.ReadDir(seriesFolder); err == nil && len(entries) == 0 {
			_ = os.Remove(seriesFolder)
		}
	}
	return dest, nil
}
