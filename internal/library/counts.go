package library

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// SeriesCounts is the disk-scan summary for one series folder.
type SeriesCounts struct {
	PerSeason     map[string]int `json:"per_season"`
	TotalSeasons  int            `json:"total_seasons"`
	TotalEpisodes int            `json:"total_episodes"`
	Films         int            `json:"films"`
}

var staffelDirRe = regexp.MustCompile(`^Staffel (\d+)$`)

// CountSeries scans a series folder (and its sanitization twin) and tallies
// episodes per Staffel folder plus films. The scan races with the engine by
// design; numbers are a snapshot.
func CountSeries(seriesFolder string) SeriesCounts {
	counts := SeriesCounts{PerSeason: map[string]int{}}

	for _, root := range searchRoots(seriesFolder) {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			n := countMP4s(filepath.Join(root, e.Name()))
			if e.Name() == "Filme" {
				counts.Films += n
				continue
			}
			if m := staffelDirRe.FindStringSubmatch(e.Name()); m != nil {
				counts.PerSeason[m[1]] += n
				counts.TotalEpisodes += n
			}
		}
	}

	counts.TotalSeasons = len(counts.PerSeason)
	return counts
}

// Seasons lists the per-season keys in numeric order.
func (c SeriesCounts) Seasons() []string {
	keys := make([]string, 0, len(c.PerSeason))
	for k := range c.PerSeason {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return len(keys[i]) < len(keys[j]) || (len(keys[i]) == len(keys[j]) && keys[i] < keys[j])
	})
	return keys
}

func countMP4s(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".mp4") {
			n++
		}
	}
	return n
}
