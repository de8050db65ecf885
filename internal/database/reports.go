package database

import (
	"context"
	"time"
)

// InsertRunReport records the summary of one posting run.
func (db *DB) InsertRunReport(ctx context.Context, r RunReport) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO run_reports
		(run_id, dry_run, targets, attempted, succeeded, failed, fallback, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, boolInt(r.DryRun), r.Targets, r.Attempted, r.Succeeded, r.Failed, r.Fallback,
		r.StartedAt.UTC().Format(time.RFC3339), r.FinishedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// LastRunReports returns up to limit reports, newest first.
func (db *DB) LastRunReports(ctx context.Context, limit int) ([]RunReport, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, run_id, dry_run, targets, attempted, succeeded, failed, fallback, started_at, finished_at
		FROM run_reports ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []RunReport
	for rows.Next() {
		var (
			r               RunReport
			dryRun          int
			started, finish string
		)
		if err := rows.Scan(&r.ID, &r.RunID, &dryRun, &r.Targets, &r.Attempted, &r.Succeeded,
			&r.Failed, &r.Fallback, &started, &finish); err != nil {
			return nil, err
		}
		r.DryRun = dryRun == 1
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339, finish)
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM sites", &s.TotalSites},
		{"SELECT COUNT(*) FROM sites WHERE is_approved = 1", &s.ApprovedSites},
		{"SELECT COUNT(*) FROM reviews", &s.TotalReviews},
		{"SELECT COUNT(*) FROM reviews WHERE status = 'pending'", &s.PendingReviews},
		{"SELECT COUNT(*) FROM reviews WHERE status = 'approved'", &s.ApprovedReviews},
		{"SELECT COUNT(*) FROM run_reports", &s.Runs},
	}

	for _, q := range queries {
		if err := db.conn.QueryRowContext(ctx, q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	return s, nil
}
