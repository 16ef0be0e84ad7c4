package library

import (
	"os"
	"path/filepath"
)

// nearestExisting walks up from path to the first directory that exists, so
// free-space checks work before the download tree is created.
func nearestExisting(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(abs); err == nil {
			return abs, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return abs, nil
		}
		abs = parent
	}
}

// HasRoom reports whether the filesystem under path has at least minFreeGB
// gigabytes free. A failed probe counts as having room; the downloader will
// surface the real error.
func HasRoom(path string, minFreeGB float64) bool {
	free, err := FreeSpaceGB(path)
	if err != nil {
		return true
	}
	return free >= minFreeGB
}
