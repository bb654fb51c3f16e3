package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"docsync/internal/docsync"
)

func (s *SQLiteStore) StartCycle(ctx context.Context, generationID string, startedAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO cycles (generation_id, started_at_ns, status) VALUES (?, ?, ?)",
		generationID, startedAt.UnixNano(), string(docsync.CycleRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting cycle: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading cycle id: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) FinishCycle(ctx context.Context, r *docsync.CycleReport) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE cycles
		SET finished_at_ns = ?, status = ?, scanned = ?, new_files = ?, unchanged = ?,
		    attrs_changed = ?, changed = ?, failed = ?, removed = ?, error = ?
		WHERE id = ?`,
		r.FinishedAt.UnixNano(), string(r.Status), r.Scanned, r.New, r.Unchanged,
		r.AttrsChanged, r.Changed, r.Failed, r.Removed, r.Error,
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("finishing cycle %d: %w", r.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListCycles(ctx context.Context, limit int) ([]*docsync.CycleReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, generation_id, started_at_ns, finished_at_ns, status, scanned, new_files,
		       unchanged, attrs_changed, changed, failed, removed, error
		FROM cycles
		ORDER BY started_at_ns DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing cycles: %w", err)
	}
	defer rows.Close()

	var cycles []*docsync.CycleReport
	for rows.Next() {
		var (
			r        docsync.CycleReport
			started  int64
			finished sql.NullInt64
			status   string
		)
		err := rows.Scan(&r.ID, &r.GenerationID, &started, &finished, &status, &r.Scanned, &r.New,
			&r.Unchanged, &r.AttrsChanged, &r.Changed, &r.Failed, &r.Removed, &r.Error)
		if err != nil {
			return nil, fmt.Errorf("scanning cycle: %w", err)
		}
		r.StartedAt = time.Unix(0, started)
		if finished.Valid {
			r.FinishedAt = time.Unix(0, finished.Int64)
		}
		r.Status = docsync.CycleStatus(status)
		cycles = append(cycles, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing cycles: %w", err)
	}
	return cycles, nil
}
