package plan

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/TobiSchelling/keibareview/internal/classify"
	"github.com/TobiSchelling/keibareview/internal/site"
)

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed*31+7))
}

func makeEntities(n int) []site.Entity {
	out := make([]site.Entity, n)
	for i := range out {
		out[i] = site.Entity{
			ID:          fmt.Sprintf("rec%03d", i),
			Name:        fmt.Sprintf("予想サイト%d", i),
			Category:    site.Nankan,
			ReviewCount: i * 3,
		}
	}
	return out
}

func TestPlanEmptyInput(t *testing.T) {
	p := NewPlanner(seeded(1))
	got := p.Plan(nil, []string{"悪質"}, 5)
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil plan, got %v", got)
	}
}

func TestPlanSizeBounds(t *testing.T) {
	p := NewPlanner(seeded(2))
	for n := 0; n <= 12; n++ {
		for _, limit := range []int{1, 3, 5, 10} {
			got := p.Plan(makeEntities(n), nil, limit)
			want := n
			if want > limit {
				want = limit
			}
			if len(got) != want {
				t.Errorf("n=%d limit=%d: expected %d entries, got %d", n, limit, want, len(got))
			}
		}
	}
}

func TestPlanDefaultMax(t *testing.T) {
	p := NewPlanner(seeded(3))
	if got := p.Plan(makeEntities(9), nil, 0); len(got) != DefaultMaxEntities {
		t.Errorf("expected default of %d, got %d", DefaultMaxEntities, len(got))
	}
}

func TestReviewsToPostBounds(t *testing.T) {
	entities := []site.Entity{
		{ID: "a", Name: "悪質サイトXの予想"},
		{ID: "b", Name: "普通のサイト"},
	}
	for seed := uint64(0); seed < 200; seed++ {
		p := NewPlanner(seeded(seed))
		for _, e := range p.Plan(entities, []string{"悪質サイトX"}, 5) {
			switch e.Class.Kind {
			case classify.Malicious:
				if e.ReviewsToPost < 1 || e.ReviewsToPost > 2 {
					t.Fatalf("malicious reviewsToPost out of range: %d", e.ReviewsToPost)
				}
			case classify.Unknown:
				if e.ReviewsToPost < 2 || e.ReviewsToPost > 3 {
					t.Fatalf("unknown reviewsToPost out of range: %d", e.ReviewsToPost)
				}
			}
		}
	}
}

func TestLegitimateReviewsToPostBounds(t *testing.T) {
	p := NewPlanner(seeded(9))
	seen := map[int]bool{}
	for i := 0; i < 500; i++ {
		n := p.reviewsToPost(classify.Legitimate)
		if n < 3 || n > 5 {
			t.Fatalf("legitimate reviewsToPost out of range: %d", n)
		}
		seen[n] = true
	}
	if len(seen) != 3 {
		t.Errorf("expected all of 3..5 to occur, saw %v", seen)
	}
}

func TestPriorityScoreRange(t *testing.T) {
	p := NewPlanner(seeded(4))
	for _, e := range p.Plan(makeEntities(10), nil, 10) {
		lo := float64(1000 - e.CurrentReviewCount)
		if e.PriorityScore < lo || e.PriorityScore >= lo+100 {
			t.Errorf("%s: score %.2f outside [%.0f,%.0f)", e.EntityID, e.PriorityScore, lo, lo+100)
		}
	}
}

func TestPlanSortedDescending(t *testing.T) {
	p := NewPlanner(seeded(5))
	got := p.Plan(makeEntities(20), nil, 20)
	for i := 1; i < len(got); i++ {
		if got[i-1].PriorityScore < got[i].PriorityScore {
			t.Fatalf("plan not sorted at %d: %.2f < %.2f", i, got[i-1].PriorityScore, got[i].PriorityScore)
		}
	}
}

func TestPlanDeterministicWithSeed(t *testing.T) {
	a := NewPlanner(seeded(42)).Plan(makeEntities(8), nil, 4)
	b := NewPlanner(seeded(42)).Plan(makeEntities(8), nil, 4)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("entry %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestPlanFavoursFewerReviewsButNotAlways(t *testing.T) {
	entities := []site.Entity{
		{ID: "few", Name: "A", ReviewCount: 0},
		{ID: "many", Name: "B", ReviewCount: 50},
	}
	wins := map[string]int{}
	for seed := uint64(0); seed < 400; seed++ {
		got := NewPlanner(seeded(seed)).Plan(entities, nil, 1)
		wins[got[0].EntityID]++
	}
	if wins["few"] <= wins["many"] {
		t.Errorf("expected low-review site to win more often: %v", wins)
	}
	if wins["many"] == 0 {
		t.Errorf("expected high-review site to win occasionally: %v", wins)
	}
}

func TestPlanMaliciousScenario(t *testing.T) {
	entities := []site.Entity{
		{ID: "recX", Name: "悪質サイトXの予想", ReviewCount: 0},
		{ID: "recN", Name: "普通のサイト", ReviewCount: 10},
	}
	ids := map[string]bool{"recX": true, "recN": true}
	wins := map[string]int{}

	for seed := uint64(0); seed < 100; seed++ {
		got := NewPlanner(seeded(seed)).Plan(entities, []string{"悪質サイトX"}, 1)
		if len(got) != 1 {
			t.Fatalf("expected 1 entry, got %d", len(got))
		}
		e := got[0]
		if !ids[e.EntityID] {
			t.Fatalf("selected entity %q not from input", e.EntityID)
		}
		wins[e.EntityID]++
		if e.EntityID == "recX" {
			if e.Class.Kind != classify.Malicious {
				t.Errorf("expected malicious class, got %s", e.Class.Kind)
			}
			if e.ReviewsToPost < 1 || e.ReviewsToPost > 2 {
				t.Errorf("reviewsToPost %d outside [1,2]", e.ReviewsToPost)
			}
		}
	}
	if wins["recX"] <= wins["recN"] || wins["recN"] == 0 {
		t.Errorf("expected selection skewed towards recX but not certain: %v", wins)
	}
}

func TestTotalReviews(t *testing.T) {
	entries := []Entry{{ReviewsToPost: 2}, {ReviewsToPost: 3}}
	if TotalReviews(entries) != 5 {
		t.Errorf("expected 5, got %d", TotalReviews(entries))
	}
}
