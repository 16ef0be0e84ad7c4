// Package catalog is the durable record of series, per-series progress,
// the missing-German list and the priority work queue.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a series or queue row does not exist.
var ErrNotFound = errors.New("catalog: not found")

// Store provides all catalog operations. Every method opens a short
// transaction; there are no long-lived handles.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore creates a catalog store.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "catalog").Logger(),
	}
}

// Reindex renumbers series ids so they are contiguous starting at 1,
// preserving row order, and remaps queue rows to the new ids. The in-memory
// queue mapping addresses series by id, so ids must stay dense across
// restarts. Runs in a single transaction.
func (s *Store) Reindex(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reindex: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM series ORDER BY id`)
	if err != nil {
		return fmt.Errorf("list series ids: %w", err)
	}
	var oldIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan series id: %w", err)
		}
		oldIDs = append(oldIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate series ids: %w", err)
	}

	// Already dense; nothing to do.
	dense := true
	for i, id := range oldIDs {
		if id != int64(i+1) {
			dense = false
			break
		}
	}
	if dense {
		return nil
	}

	// Two passes through a shifted range avoid unique-key collisions while
	// renumbering in place.
	const shift = int64(1 << 30)
	for i, old := range oldIDs {
		if _, err := tx.ExecContext(ctx, `UPDATE series SET id = ? WHERE id = ?`, shift+int64(i+1), old); err != nil {
			return fmt.Errorf("shift series id %d: %w", old, err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE queue SET series_id = ? WHERE series_id = ?`, shift+int64(i+1), old); err != nil {
			return fmt.Errorf("shift queue series_id %d: %w", old, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE series SET id = id - ? WHERE id > ?`, shift, shift); err != nil {
		return fmt.Errorf("unshift series ids: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE queue SET series_id = series_id - ? WHERE series_id > ?`, shift, shift); err != nil {
		return fmt.Errorf("unshift queue series_ids: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sqlite_sequence SET seq = ? WHERE name = 'series'`, len(oldIDs)); err != nil {
		// sqlite_sequence row may not exist on a fresh table.
		s.logger.Debug().Err(err).Msg("sqlite_sequence update skipped")
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reindex: %w", err)
	}
	s.logger.Info().Int("series", len(oldIDs)).Msg("reindexed series ids")
	return nil
}

func encodeMissing(urls []string) string {
	if urls == nil {
		urls = []string{}
	}
	b, _ := json.Marshal(urls)
	return string(b)
}

func decodeMissing(raw string) []string {
	var urls []string
	if err := json.Unmarshal([]byte(raw), &urls); err != nil {
		return []string{}
	}
	if urls == nil {
		urls = []string{}
	}
	return urls
}

func scanSeries(scanner interface{ Scan(...any) error }) (*Series, error) {
	var (
		sr      Series
		missing string
	)
	err := scanner.Scan(
		&sr.ID, &sr.URL, &sr.Title, &sr.Site, &sr.ContentType,
		&sr.Complete, &sr.GermanComplete, &sr.Deleted, &missing,
		&sr.LastFilm, &sr.LastSeason, &sr.LastEpisode, &sr.AddedAt,
	)
	if err != nil {
		return nil, err
	}
	sr.MissingGerman = decodeMissing(missing)
	return &sr, nil
}

const seriesColumns = `id, url, title, site, content_type, complete, german_complete, deleted, missing_german, last_film, last_season, last_episode, added_at`
