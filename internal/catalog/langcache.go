package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SaveEpisodeLanguages records the language set seen for an episode URL.
// The cache only annotates logs and the UI; the pipeline always re-checks
// the live page before a download.
func (s *Store) SaveEpisodeLanguages(ctx context.Context, episodeURL string, languages []string) error {
	raw, _ := json.Marshal(languages)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO episode_languages (url, languages, checked_at) VALUES (?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET languages = excluded.languages, checked_at = excluded.checked_at`,
		episodeURL, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save episode languages: %w", err)
	}
	return nil
}

// GetEpisodeLanguages returns the cached language set for an episode URL.
func (s *Store) GetEpisodeLanguages(ctx context.Context, episodeURL string) ([]string, time.Time, error) {
	var (
		raw       string
		checkedAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT languages, checked_at FROM episode_languages WHERE url = ?`, episodeURL).
		Scan(&raw, &checkedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("get episode languages: %w", err)
	}
	var langs []string
	if err := json.Unmarshal([]byte(raw), &langs); err != nil {
		return nil, checkedAt, fmt.Errorf("decode episode languages: %w", err)
	}
	return langs, checkedAt, nil
}
