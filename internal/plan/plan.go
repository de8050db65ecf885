package plan

import (
	"math/rand/v2"
	"sort"

	"github.com/TobiSchelling/keibareview/internal/classify"
	"github.com/TobiSchelling/keibareview/internal/site"
)

const (
	// DefaultMaxEntities is used when the caller passes a non-positive limit.
	DefaultMaxEntities = 5

	priorityBase   = 1000
	priorityJitter = 100
)

// Entry is one selected site and how many reviews it gets this run.
type Entry struct {
	EntityID           string
	EntityName         string
	Slug               string
	Category           site.Category
	CurrentReviewCount int
	Class              classify.RatingClass
	ReviewsToPost      int
	PriorityScore      float64
}

// Planner picks the sites that receive reviews on a run.
type Planner struct {
	rng *rand.Rand
}

// NewPlanner creates a planner drawing from rng. A nil rng uses a randomly
// seeded source.
func NewPlanner(rng *rand.Rand) *Planner {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Planner{rng: rng}
}

// Plan scores every entity and returns the top maxEntities by descending
// priority. Sites with fewer reviews score higher, plus a random jitter so
// the same site does not win every run. Equal scores keep input order.
func (p *Planner) Plan(entities []site.Entity, malicious []string, maxEntities int) []Entry {
	if maxEntities <= 0 {
		maxEntities = DefaultMaxEntities
	}
	if len(entities) == 0 {
		return []Entry{}
	}

	entries := make([]Entry, 0, len(entities))
	for _, e := range entities {
		class := classify.Classify(e.Name, malicious)
		entries = append(entries, Entry{
			EntityID:           e.ID,
			EntityName:         e.Name,
			Slug:               e.Slug,
			Category:           e.Category,
			CurrentReviewCount: e.ReviewCount,
			Class:              class,
			ReviewsToPost:      p.reviewsToPost(class.Kind),
			PriorityScore:      p.priority(e.ReviewCount),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].PriorityScore > entries[j].PriorityScore
	})

	if len(entries) > maxEntities {
		entries = entries[:maxEntities]
	}
	return entries
}

func (p *Planner) reviewsToPost(k classify.Kind) int {
	switch k {
	case classify.Malicious:
		return 1 + p.rng.IntN(2)
	case classify.Legitimate:
		return 3 + p.rng.IntN(3)
	default:
		return 2 + p.rng.IntN(2)
	}
}

func (p *Planner) priority(reviewCount int) float64 {
	return float64(priorityBase-reviewCount) + p.rng.Float64()*priorityJitter
}

// TotalReviews sums ReviewsToPost across a plan.
func TotalReviews(entries []Entry) int {
	n := 0
	for _, e := range entries {
		n += e.ReviewsToPost
	}
	return n
}
