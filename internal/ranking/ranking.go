// Package ranking computes the public leaderboard score and the rank a
// site is shown with on share cards.
package ranking

import (
	"fmt"
	"math"
	"sort"

	"github.com/TobiSchelling/keibareview/internal/site"
)

const (
	// CategoryDisplayLimit is the worst category rank still shown.
	CategoryDisplayLimit = 10
	// OverallDisplayLimit is the worst overall rank still shown.
	OverallDisplayLimit = 30
	// Unranked marks a missing rank.
	Unranked = 0
)

// Score is averageRating * ln(reviewCount+1) * 10. A site without reviews
// scores zero whatever its rating.
func Score(averageRating float64, reviewCount int) float64 {
	if reviewCount <= 0 {
		return 0
	}
	return averageRating * math.Log(float64(reviewCount)+1) * 10
}

// scorer is the single scoring entry point for both rankings.
var scorer = Score

// Entry is the per-site input to a ranking.
type Entry struct {
	Slug          string
	Category      site.Category
	AverageRating float64
	ReviewCount   int
}

// Ranked is an entry with its score and 1-based rank.
type Ranked struct {
	Entry
	Score float64
	Rank  int
}

// FromEntities converts store snapshots into ranking entries.
func FromEntities(entities []site.Entity) []Entry {
	out := make([]Entry, 0, len(entities))
	for _, e := range entities {
		out = append(out, Entry{
			Slug:          e.Slug,
			Category:      e.Category,
			AverageRating: e.AverageRating,
			ReviewCount:   e.ReviewCount,
		})
	}
	return out
}

// Rank orders all entries by descending score. Ties keep input order.
func Rank(entries []Entry) []Ranked {
	return order(entries)
}

// RankByCategory ranks each category separately.
func RankByCategory(entries []Entry) map[site.Category][]Ranked {
	groups := make(map[site.Category][]Entry)
	for _, e := range entries {
		groups[e.Category] = append(groups[e.Category], e)
	}
	out := make(map[site.Category][]Ranked, len(groups))
	for c, g := range groups {
		out[c] = order(g)
	}
	return out
}

func order(entries []Entry) []Ranked {
	ranked := make([]Ranked, len(entries))
	for i, e := range entries {
		ranked[i] = Ranked{Entry: e, Score: scorer(e.AverageRating, e.ReviewCount)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// Position is where one site sits on the leaderboard.
type Position struct {
	Slug         string
	Category     site.Category
	Score        float64
	Overall      int
	CategoryRank int
}

// Lookup finds slug in a full snapshot and returns its overall and
// category ranks. The second result is false when the slug is absent.
func Lookup(entries []Entry, slug string) (Position, bool) {
	var target *Entry
	for i := range entries {
		if entries[i].Slug == slug {
			target = &entries[i]
			break
		}
	}
	if target == nil {
		return Position{Slug: slug}, false
	}

	pos := Position{Slug: slug, Category: target.Category}
	for _, r := range Rank(entries) {
		if r.Slug == slug {
			pos.Overall = r.Rank
			pos.Score = r.Score
			break
		}
	}
	for _, r := range RankByCategory(entries)[target.Category] {
		if r.Slug == slug {
			pos.CategoryRank = r.Rank
			break
		}
	}
	return pos, true
}

// Display returns the rank text for a share card: the category rank when
// it is in the top CategoryDisplayLimit, otherwise the overall rank when it
// is in the top OverallDisplayLimit, otherwise an empty string.
func (p Position) Display() string {
	if p.CategoryRank != Unranked && p.CategoryRank <= CategoryDisplayLimit {
		return fmt.Sprintf("%s %d位", p.Category.Label(), p.CategoryRank)
	}
	if p.Overall != Unranked && p.Overall <= OverallDisplayLimit {
		return fmt.Sprintf("総合 %d位", p.Overall)
	}
	return ""
}
