package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// UpsertSeries inserts a series by URL or revives a soft-deleted row.
// An active row with the same URL is a no-op. Returns the series id.
func (s *Store) UpsertSeries(ctx context.Context, url, title string) (int64, error) {
	site, err := SiteForURL(url)
	if err != nil {
		return 0, err
	}
	contentType := ContentTypeForSite(site)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	var (
		id      int64
		deleted bool
	)
	err = tx.QueryRowContext(ctx, `SELECT id, deleted FROM series WHERE url = ?`, url).Scan(&id, &deleted)
	switch {
	case err == nil:
		if deleted {
			if title != "" {
				_, err = tx.ExecContext(ctx, `UPDATE series SET deleted = 0, title = ? WHERE id = ?`, title, id)
			} else {
				_, err = tx.ExecContext(ctx, `UPDATE series SET deleted = 0 WHERE id = ?`, id)
			}
			if err != nil {
				return 0, fmt.Errorf("revive series %d: %w", id, err)
			}
		}
	case errors.Is(err, sql.ErrNoRows):
		res, insErr := tx.ExecContext(ctx,
			`INSERT INTO series (url, title, site, content_type) VALUES (?, ?, ?, ?)
			 ON CONFLICT(url) DO NOTHING`,
			url, title, string(site), string(contentType))
		if insErr != nil {
			return 0, fmt.Errorf("insert series: %w", insErr)
		}
		id, insErr = res.LastInsertId()
		if insErr != nil {
			return 0, fmt.Errorf("series insert id: %w", insErr)
		}
	default:
		return 0, fmt.Errorf("lookup series by url: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}
	return id, nil
}

// SeriesUpdate is a typed partial update; nil fields are left unchanged.
type SeriesUpdate struct {
	Title          *string
	Complete       *bool
	GermanComplete *bool
	MissingGerman  *[]string
	LastFilm       *int
	LastSeason     *int
	LastEpisode    *int
}

// UpdateSeries applies a partial update. Setting Complete=true also removes
// the series from the queue and prunes completed queue rows.
func (s *Store) UpdateSeries(ctx context.Context, id int64, upd SeriesUpdate) error {
	sets := make([]string, 0, 8)
	args := make([]any, 0, 8)
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if upd.Title != nil {
		add("title", *upd.Title)
	}
	if upd.Complete != nil {
		add("complete", *upd.Complete)
	}
	if upd.GermanComplete != nil {
		add("german_complete", *upd.GermanComplete)
	}
	if upd.MissingGerman != nil {
		add("missing_german", encodeMissing(*upd.MissingGerman))
		german := len(*upd.MissingGerman) == 0
		if upd.GermanComplete == nil {
			add("german_complete", german)
		}
	}
	if upd.LastFilm != nil {
		add("last_film", *upd.LastFilm)
	}
	if upd.LastSeason != nil {
		add("last_season", *upd.LastSeason)
	}
	if upd.LastEpisode != nil {
		add("last_episode", *upd.LastEpisode)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE series SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		s.logger.Error().Err(err).Int64("id", id).Msg("series update failed")
		return fmt.Errorf("update series %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if upd.Complete != nil && *upd.Complete {
		if err := s.QueueDeleteBySeries(ctx, id); err != nil {
			s.logger.Error().Err(err).Int64("id", id).Msg("queue cleanup after complete failed")
		}
		if err := s.QueuePruneCompleted(ctx); err != nil {
			s.logger.Error().Err(err).Msg("queue prune after complete failed")
		}
	}
	return nil
}

// GetSeries returns one series by id.
func (s *Store) GetSeries(ctx context.Context, id int64) (*Series, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+seriesColumns+` FROM series WHERE id = ?`, id)
	sr, err := scanSeries(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get series %d: %w", id, err)
	}
	return sr, nil
}

// GetSeriesByURL returns one series by its canonical URL.
func (s *Store) GetSeriesByURL(ctx context.Context, url string) (*Series, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+seriesColumns+` FROM series WHERE url = ?`, url)
	sr, err := scanSeries(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get series by url: %w", err)
	}
	return sr, nil
}

// GetSeriesByTitle returns the first active series whose title matches
// case-insensitively.
func (s *Store) GetSeriesByTitle(ctx context.Context, title string) (*Series, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+seriesColumns+` FROM series WHERE deleted = 0 AND title = ? COLLATE NOCASE ORDER BY id LIMIT 1`, title)
	sr, err := scanSeries(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get series by title: %w", err)
	}
	return sr, nil
}

// DeletedFilter selects soft-delete visibility for ListSeries.
type DeletedFilter int

const (
	DeletedExclude DeletedFilter = iota // default queries hide tombstones
	DeletedInclude
	DeletedOnly
)

// ListFilter narrows and orders ListSeries results.
type ListFilter struct {
	Query          string // substring match on title or url
	Complete       *bool
	GermanComplete *bool
	Deleted        DeletedFilter
	SortBy         string // id, title, url, added_at
	Order          string // asc, desc
	Limit          int
	Offset         int
}

// ListSeries returns catalog rows matching the filter.
func (s *Store) ListSeries(ctx context.Context, f ListFilter) ([]*Series, error) {
	where := make([]string, 0, 4)
	args := make([]any, 0, 4)

	switch f.Deleted {
	case DeletedExclude:
		where = append(where, "deleted = 0")
	case DeletedOnly:
		where = append(where, "deleted = 1")
	}
	if f.Query != "" {
		where = append(where, "(title LIKE ? OR url LIKE ?)")
		pat := "%" + f.Query + "%"
		args = append(args, pat, pat)
	}
	if f.Complete != nil {
		where = append(where, "complete = ?")
		args = append(args, *f.Complete)
	}
	if f.GermanComplete != nil {
		where = append(where, "german_complete = ?")
		args = append(args, *f.GermanComplete)
	}

	q := `SELECT ` + seriesColumns + ` FROM series`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}

	sortBy := "id"
	switch f.SortBy {
	case "title", "url", "added_at", "id":
		sortBy = f.SortBy
	}
	order := "ASC"
	if strings.EqualFold(f.Order, "desc") {
		order = "DESC"
	}
	q += fmt.Sprintf(" ORDER BY %s %s", sortBy, order)
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
		if f.Offset > 0 {
			q += " OFFSET ?"
			args = append(args, f.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.logger.Error().Err(err).Msg("series list failed")
		return nil, fmt.Errorf("list series: %w", err)
	}
	defer rows.Close()

	var out []*Series
	for rows.Next() {
		sr, err := scanSeries(rows)
		if err != nil {
			return nil, fmt.Errorf("scan series: %w", err)
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

// SoftDelete marks the row deleted, resets progress and the missing-German
// set, and drops its queue entries, all in one transaction. A tombstoned
// series must never be reachable through the queue.
func (s *Store) SoftDelete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin soft delete: %w", err)
	}
	defer tx.Rollback()

	var url string
	err = tx.QueryRowContext(ctx, `SELECT url FROM series WHERE id = ?`, id).Scan(&url)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup series %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE series SET deleted = 1, complete = 0, german_complete = 0,
		        missing_german = '[]', last_film = 0, last_season = 0, last_episode = 0
		 WHERE id = ?`, id); err != nil {
		s.logger.Error().Err(err).Int64("id", id).Msg("soft delete failed")
		return fmt.Errorf("soft delete series %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM queue WHERE series_id = ? OR series_url = ?`, id, url); err != nil {
		return fmt.Errorf("delete queue rows for series %d: %w", id, err)
	}
	return tx.Commit()
}

// Restore clears the tombstone, resets progress, and optionally enqueues.
func (s *Store) Restore(ctx context.Context, id int64, enqueue bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE series SET deleted = 0, complete = 0, german_complete = 0,
		        missing_german = '[]', last_film = 0, last_season = 0, last_episode = 0
		 WHERE id = ?`, id)
	if err != nil {
		s.logger.Error().Err(err).Int64("id", id).Msg("restore failed")
		return fmt.Errorf("restore series %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if enqueue {
		if err := s.QueueAdd(ctx, id); err != nil && !errors.Is(err, ErrAlreadyQueued) {
			return err
		}
	}
	return nil
}

// HardDelete removes the row and every queue entry referring to it, both by
// id and by url.
func (s *Store) HardDelete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin hard delete: %w", err)
	}
	defer tx.Rollback()

	var url string
	err = tx.QueryRowContext(ctx, `SELECT url FROM series WHERE id = ?`, id).Scan(&url)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup series %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM queue WHERE series_id = ? OR series_url = ?`, id, url); err != nil {
		return fmt.Errorf("delete queue rows for series %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM series WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete series %d: %w", id, err)
	}
	return tx.Commit()
}

// AddMissingGerman appends an episode URL to the missing-German set, keeping
// order and uniqueness, and recomputes german_complete.
func (s *Store) AddMissingGerman(ctx context.Context, id int64, episodeURL string) error {
	sr, err := s.GetSeries(ctx, id)
	if err != nil {
		return err
	}
	for _, u := range sr.MissingGerman {
		if u == episodeURL {
			return nil
		}
	}
	missing := append(sr.MissingGerman, episodeURL)
	return s.UpdateSeries(ctx, id, SeriesUpdate{MissingGerman: &missing})
}

// RemoveMissingGerman drops an episode URL from the missing-German set and
// recomputes german_complete.
func (s *Store) RemoveMissingGerman(ctx context.Context, id int64, episodeURL string) error {
	sr, err := s.GetSeries(ctx, id)
	if err != nil {
		return err
	}
	missing := make([]string, 0, len(sr.MissingGerman))
	for _, u := range sr.MissingGerman {
		if u != episodeURL {
			missing = append(missing, u)
		}
	}
	if len(missing) == len(sr.MissingGerman) {
		return nil
	}
	return s.UpdateSeries(ctx, id, SeriesUpdate{MissingGerman: &missing})
}

// ActiveExists reports whether an active (non-deleted) series with the URL exists.
func (s *Store) ActiveExists(ctx context.Context, url string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM series WHERE url = ? AND deleted = 0`, url).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check series url: %w", err)
	}
	return n > 0, nil
}
