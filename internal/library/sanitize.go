// Package library owns the on-disk media layout: canonical paths and file
// names, detection of already-present episodes, post-download placement and
// cleanup of superseded language variants. The mode engine is the only
// writer under these paths; readers must tolerate files appearing and
// disappearing underneath them.
package library

import (
	"regexp"
	"strings"
)

var (
	movieTokenRe = regexp.MustCompile(`(?i)\[movie\]|the movie|movie`)
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)
)

func stripIllegal(s string, keepDots bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
		case '.':
			if keepDots {
				b.WriteRune(r)
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SanitizeTitle cleans an episode or film title for filename use: illegal
// characters and dots go, as do the redundant Movie tokens the sites embed.
func SanitizeTitle(title string) string {
	title = movieTokenRe.ReplaceAllString(title, "")
	title = stripIllegal(title, false)
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(title, " "))
}

// SanitizeFolder cleans a series title for folder use. Dots survive here;
// "Dr. Stone" stays "Dr. Stone" on disk.
func SanitizeFolder(title string) string {
	title = stripIllegal(title, true)
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(title, " "))
}
