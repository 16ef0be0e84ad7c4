package library

import (
	"path/filepath"

	"aniloader/internal/catalog"
	"aniloader/internal/config"
)

// Layout derives canonical download locations from a config snapshot. It is
// a value type; take a fresh one per run so config edits mid-run do not move
// files around.
type Layout struct {
	cfg config.Config
}

func NewLayout(cfg config.Config) Layout {
	return Layout{cfg: cfg}
}

// BasePath returns the root folder new content for the given content type
// goes under. Standard mode collapses everything into download_path.
func (l Layout) BasePath(ct catalog.ContentType, isFilm bool) string {
	if l.cfg.StorageMode != config.StorageSeparate {
		return l.cfg.DownloadPath
	}

	var root, moviesRoot string
	var separateMovies bool
	if ct == catalog.ContentAnime {
		root, moviesRoot, separateMovies = l.cfg.AnimePath, l.cfg.AnimeMoviesPath, l.cfg.AnimeSeparateMovies
	} else {
		root, moviesRoot, separateMovies = l.cfg.SerienPath, l.cfg.SerienMoviesPath, l.cfg.SerienSeparateMovies
	}
	if root == "" {
		root = l.cfg.DownloadPath
	}
	if isFilm && separateMovies {
		if moviesRoot != "" {
			return moviesRoot
		}
		return filepath.Join(root, "Filme")
	}
	return root
}

// DedicatedMovies reports whether films of this content type get their own
// folder per film, outside the series tree. The predicate also switches the
// filename to the series-prefixed form.
func (l Layout) DedicatedMovies(ct catalog.ContentType) bool {
	if l.cfg.StorageMode != config.StorageSeparate {
		return false
	}
	if ct == catalog.ContentAnime {
		return l.cfg.AnimeSeparateMovies
	}
	return l.cfg.SerienSeparateMovies
}

// SeriesFolder returns the nominal series folder under base.
func (l Layout) SeriesFolder(base, seriesTitle string) string {
	return filepath.Join(base, SanitizeFolder(seriesTitle))
}

// MinFreeGB passes through the configured disk floor.
func (l Layout) MinFreeGB() float64 {
	return l.cfg.MinFreeGB
}
