// Package store defines the contract with the hosted tabular store that
// holds sites and reviews.
package store

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/TobiSchelling/keibareview/internal/site"
)

// MaxBatch is the most records a single update call may carry.
const MaxBatch = 10

// Table names shared by every backend.
const (
	TableSites   = "Sites"
	TableReviews = "Reviews"
)

// NewReview is a review to be created for a site.
type NewReview struct {
	EntityID    string
	StarRating  int
	Title       string
	Body        string
	AuthorName  string
	AutoApprove bool
}

// ReviewFromDraft wraps a draft for a site.
func ReviewFromDraft(entityID string, d site.ReviewDraft, autoApprove bool) NewReview {
	return NewReview{
		EntityID:    entityID,
		StarRating:  d.StarRating,
		Title:       d.Title,
		Body:        d.Body,
		AuthorName:  d.AuthorName,
		AutoApprove: autoApprove,
	}
}

// RecordUpdate is a partial update of one record.
type RecordUpdate struct {
	ID     string
	Fields map[string]any
}

// EntitySource lists approved sites.
type EntitySource interface {
	ApprovedEntities(ctx context.Context) ([]site.Entity, error)
}

// ReviewWriter creates reviews and returns the new record ID.
type ReviewWriter interface {
	CreateReview(ctx context.Context, r NewReview) (string, error)
}

// RecordUpdater applies at most MaxBatch updates in one call and returns
// how many records were updated.
type RecordUpdater interface {
	UpdateRecords(ctx context.Context, table string, updates []RecordUpdate) (int, error)
}

// SiteRegistry adds newly discovered sites.
type SiteRegistry interface {
	SiteExists(ctx context.Context, url string) (bool, error)
	CreateSite(ctx context.Context, e site.Entity) (string, error)
}

// Store is everything the engine needs from a backend.
type Store interface {
	EntitySource
	ReviewWriter
	RecordUpdater
	SiteRegistry
}

// BatchResult summarises a chunked update.
type BatchResult struct {
	Updated int
	Errors  []string
}

// Chunk splits updates into groups of at most size records.
func Chunk(updates []RecordUpdate, size int) [][]RecordUpdate {
	if size <= 0 {
		size = MaxBatch
	}
	var out [][]RecordUpdate
	for i := 0; i < len(updates); i += size {
		end := min(i+size, len(updates))
		out = append(out, updates[i:end])
	}
	return out
}

// BatchUpdate sends updates in chunks of MaxBatch. A failed chunk is
// recorded in the result and the remaining chunks are still sent. When
// limiter is non-nil every chunk waits on it first.
func BatchUpdate(ctx context.Context, u RecordUpdater, table string, updates []RecordUpdate, limiter *rate.Limiter) BatchResult {
	var res BatchResult
	for i, batch := range Chunk(updates, MaxBatch) {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("batch %d: %v", i+1, err))
				return res
			}
		}
		n, err := u.UpdateRecords(ctx, table, batch)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("batch %d: %v", i+1, err))
			continue
		}
		res.Updated += n
	}
	return res
}
