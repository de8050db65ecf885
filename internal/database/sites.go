package database

import (
	"context"
	"database/sql"
	"fmt"
	"unicode/utf8"

	"github.com/TobiSchelling/keibareview/internal/site"
)

const (
	maxNameRunes = 100
	maxDescRunes = 500
)

const siteColumns = `s.id, s.name, s.slug, s.url, s.category, s.description, s.is_approved,
	COUNT(r.id), COALESCE(AVG(r.rating), 0)`

// ApprovedEntities returns every approved site with its review count and
// average rating over all linked reviews.
func (db *DB) ApprovedEntities(ctx context.Context) ([]site.Entity, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+siteColumns+`
		FROM sites s LEFT JOIN reviews r ON r.site_id = s.id
		WHERE s.is_approved = 1
		GROUP BY s.id
		ORDER BY s.created_at, s.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying approved sites: %w", err)
	}
	defer rows.Close()

	var out []site.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SiteBySlug returns the site with the given slug, or nil if none exists.
func (db *DB) SiteBySlug(ctx context.Context, slug string) (*site.Entity, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+siteColumns+`
		FROM sites s LEFT JOIN reviews r ON r.site_id = s.id
		WHERE s.slug = ?
		GROUP BY s.id`, slug,
	)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// SiteExists reports whether a site with this URL is already stored.
func (db *DB) SiteExists(ctx context.Context, url string) (bool, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM sites WHERE url = ?", url).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// CreateSite stores a discovered site as unapproved.
func (db *DB) CreateSite(ctx context.Context, e site.Entity) (string, error) {
	id := newRecordID()
	category := e.Category
	if category == "" {
		category = site.Other
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sites (id, name, slug, url, category, description, is_approved)
		VALUES (?, ?, ?, ?, ?, ?, 0)`,
		id, truncate(e.Name, maxNameRunes), e.Slug, e.URL, string(category), truncate(e.Description, maxDescRunes),
	)
	if err != nil {
		return "", fmt.Errorf("inserting site %s: %w", e.URL, err)
	}
	return id, nil
}

// ApproveSite marks a site approved so it is eligible for review posting.
func (db *DB) ApproveSite(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, "UPDATE sites SET is_approved = 1 WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("site %s not found", id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(s scanner) (site.Entity, error) {
	var (
		e        site.Entity
		category string
		approved int
	)
	if err := s.Scan(&e.ID, &e.Name, &e.Slug, &e.URL, &category, &e.Description, &approved,
		&e.ReviewCount, &e.AverageRating); err != nil {
		return site.Entity{}, err
	}
	e.Category = site.ParseCategory(category)
	e.Approved = approved == 1
	return e, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
