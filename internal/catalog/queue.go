package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Queue errors.
var (
	ErrAlreadyQueued  = errors.New("catalog: series already queued")
	ErrSeriesComplete = errors.New("catalog: series is complete")
)

// QueueAdd appends a series to the end of the queue. Complete or already
// queued series are refused.
func (s *Store) QueueAdd(ctx context.Context, seriesID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin queue add: %w", err)
	}
	defer tx.Rollback()

	var (
		url      string
		complete bool
	)
	err = tx.QueryRowContext(ctx, `SELECT url, complete FROM series WHERE id = ?`, seriesID).Scan(&url, &complete)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup series %d: %w", seriesID, err)
	}
	if complete {
		return ErrSeriesComplete
	}

	var queued int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue WHERE series_id = ?`, seriesID).Scan(&queued); err != nil {
		return fmt.Errorf("check queued: %w", err)
	}
	if queued > 0 {
		return ErrAlreadyQueued
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO queue (series_id, series_url, position)
		 VALUES (?, ?, COALESCE((SELECT MAX(position) FROM queue), 0) + 1)`,
		seriesID, url); err != nil {
		return fmt.Errorf("insert queue row: %w", err)
	}
	return tx.Commit()
}

// QueueList returns queue items ordered by position, then added_at, then id.
func (s *Store) QueueList(ctx context.Context) ([]*QueueItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, series_id, series_url, position, added_at
		 FROM queue ORDER BY position, added_at, id`)
	if err != nil {
		s.logger.Error().Err(err).Msg("queue list failed")
		return nil, fmt.Errorf("list queue: %w", err)
	}
	defer rows.Close()

	var out []*QueueItem
	for rows.Next() {
		var it QueueItem
		if err := rows.Scan(&it.ID, &it.SeriesID, &it.SeriesURL, &it.Position, &it.AddedAt); err != nil {
			return nil, fmt.Errorf("scan queue row: %w", err)
		}
		out = append(out, &it)
	}
	return out, rows.Err()
}

// QueueClear removes all queue rows.
func (s *Store) QueueClear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queue`); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	return nil
}

// QueueDelete removes one queue row by its queue id.
func (s *Store) QueueDelete(ctx context.Context, queueID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM queue WHERE id = ?`, queueID)
	if err != nil {
		return fmt.Errorf("delete queue row %d: %w", queueID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// QueueDeleteBySeries removes all queue rows for a series id.
func (s *Store) QueueDeleteBySeries(ctx context.Context, seriesID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queue WHERE series_id = ?`, seriesID); err != nil {
		return fmt.Errorf("delete queue rows for series %d: %w", seriesID, err)
	}
	return nil
}

// QueueReorder assigns positions 1..N in the given order; remaining rows
// keep their relative order starting at N+1. One transaction.
func (s *Store) QueueReorder(ctx context.Context, order []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder: %w", err)
	}
	defer tx.Rollback()

	pos := 0
	seen := make(map[int64]struct{}, len(order))
	for _, qid := range order {
		if _, dup := seen[qid]; dup {
			continue
		}
		seen[qid] = struct{}{}
		pos++
		if _, err := tx.ExecContext(ctx, `UPDATE queue SET position = ? WHERE id = ?`, pos, qid); err != nil {
			return fmt.Errorf("reorder queue row %d: %w", qid, err)
		}
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM queue ORDER BY position, added_at, id`)
	if err != nil {
		return fmt.Errorf("list remaining queue rows: %w", err)
	}
	var rest []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan queue id: %w", err)
		}
		if _, ok := seen[id]; !ok {
			rest = append(rest, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate queue ids: %w", err)
	}
	for _, id := range rest {
		pos++
		if _, err := tx.ExecContext(ctx, `UPDATE queue SET position = ? WHERE id = ?`, pos, id); err != nil {
			return fmt.Errorf("reposition queue row %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// QueuePruneCompleted removes queue rows whose series is complete or whose
// url no longer resolves to a series.
func (s *Store) QueuePruneCompleted(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM queue WHERE series_id IN (SELECT id FROM series WHERE complete = 1)
		    OR series_url NOT IN (SELECT url FROM series)`)
	if err != nil {
		s.logger.Error().Err(err).Msg("queue prune failed")
		return fmt.Errorf("prune queue: %w", err)
	}
	return nil
}
