package database

import (
	"context"
	"fmt"

	"github.com/TobiSchelling/keibareview/internal/store"
)

// CreateReview stores a review for a site. Reviews are pending unless
// AutoApprove is set.
func (db *DB) CreateReview(ctx context.Context, r store.NewReview) (string, error) {
	id := newRecordID()
	status := "pending"
	if r.AutoApprove {
		status = "approved"
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO reviews (id, site_id, user_name, rating, title, content, status, is_approved)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, r.EntityID, r.AuthorName, r.StarRating, r.Title, r.Body, status, boolInt(r.AutoApprove),
	)
	if err != nil {
		return "", fmt.Errorf("inserting review for %s: %w", r.EntityID, err)
	}
	return id, nil
}

// ReviewsForSite returns a site's reviews, newest first.
func (db *DB) ReviewsForSite(ctx context.Context, siteID string) ([]Review, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, site_id, user_name, rating, title, content, status, is_approved, created_at
		FROM reviews WHERE site_id = ? ORDER BY created_at DESC, rowid DESC`, siteID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reviews []Review
	for rows.Next() {
		var (
			r        Review
			approved int
		)
		if err := rows.Scan(&r.ID, &r.SiteID, &r.UserName, &r.Rating, &r.Title, &r.Content,
			&r.Status, &approved, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.IsApproved = approved == 1
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
