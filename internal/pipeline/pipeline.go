// Package pipeline runs one review posting pass: load content, plan,
// synthesize and write.
package pipeline

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/keibareview/internal/classify"
	"github.com/TobiSchelling/keibareview/internal/contentbank"
	"github.com/TobiSchelling/keibareview/internal/database"
	"github.com/TobiSchelling/keibareview/internal/metrics"
	"github.com/TobiSchelling/keibareview/internal/plan"
	"github.com/TobiSchelling/keibareview/internal/site"
	"github.com/TobiSchelling/keibareview/internal/store"
	"github.com/TobiSchelling/keibareview/internal/synthesize"
)

// Store is what a posting run reads from and writes to.
type Store interface {
	store.EntitySource
	store.ReviewWriter
}

// ReportSink records run summaries.
type ReportSink interface {
	InsertRunReport(ctx context.Context, r database.RunReport) (int64, error)
}

// Options configures a run.
type Options struct {
	ContentSources map[int]string
	CuratedPath    string
	MaxSites       int
	Pause          time.Duration
	AutoApprove    bool
	MaxRedraws     int
	DryRun         bool
}

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// SiteResult is the per-site outcome of a run.
type SiteResult struct {
	Name      string
	Class     string
	Planned   int
	Succeeded int
	Failed    int
	Drafts    []site.ReviewDraft
}

// Summary totals a run.
type Summary struct {
	Targets   int
	Attempted int
	Succeeded int
	Failed    int
	Fallback  int
	Sites     []SiteResult
}

// Result holds the results of a full pipeline run.
type Result struct {
	RunID   string
	DryRun  bool
	Steps   []StepResult
	Summary Summary
}

// Err returns the first step error, if any.
func (r *Result) Err() error {
	for _, s := range r.Steps {
		if s.Err != nil {
			return fmt.Errorf("%s: %w", s.Name, s.Err)
		}
	}
	return nil
}

// Pipeline orchestrates a posting run.
type Pipeline struct {
	store   Store
	reports ReportSink
	opts    Options
	rng     *rand.Rand
	limiter *rate.Limiter
}

// New creates a pipeline. A nil rng uses a randomly seeded source.
func New(st Store, opts Options, rng *rand.Rand) *Pipeline {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	limit := rate.Inf
	if opts.Pause > 0 {
		limit = rate.Every(opts.Pause)
	}
	return &Pipeline{
		store:   st,
		opts:    opts,
		rng:     rng,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// WithReports records a run report after every run.
func (p *Pipeline) WithReports(r ReportSink) *Pipeline {
	p.reports = r
	return p
}

// Run executes load, plan and post. A failed review write is logged and
// counted and the run continues; a failed site fetch ends the run.
func (p *Pipeline) Run(ctx context.Context) *Result {
	start := time.Now()
	r := &Result{RunID: uuid.NewString(), DryRun: p.opts.DryRun}
	if !p.opts.DryRun {
		metrics.PostingRuns.Inc()
		defer metrics.ObserveRun(start)
	}
	defer p.record(ctx, r, start)

	// Step 1: Load content
	pool := contentbank.Load(p.opts.ContentSources)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Content",
		Summary: fmt.Sprintf("Loaded %d reviews across %d ratings", pool.Total(), len(pool)),
	})

	// Step 2: Load curated list
	curated, err := classify.LoadCurated(p.opts.CuratedPath)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Curated", Err: err})
		return r
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Curated",
		Summary: fmt.Sprintf("%d curated malicious names", len(curated.Malicious)),
	})

	// Step 3: Fetch approved sites
	zap.S().Info("Fetching approved sites...")
	entities, err := p.store.ApprovedEntities(ctx)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Fetch", Err: err})
		return r
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Fetch",
		Summary: fmt.Sprintf("%d approved sites", len(entities)),
	})

	// Step 4: Plan
	entries := plan.NewPlanner(p.rng).Plan(entities, curated.Malicious, p.opts.MaxSites)
	r.Summary.Targets = len(entries)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Plan",
		Summary: fmt.Sprintf("%d sites selected, %d reviews planned", len(entries), plan.TotalReviews(entries)),
	})
	if len(entries) == 0 {
		zap.S().Info("No approved sites to review")
		return r
	}

	// Step 5: Post
	synth := synthesize.NewSynthesizer(pool, p.rng, p.opts.MaxRedraws)
	step := p.post(ctx, synth, entries, &r.Summary)
	r.Steps = append(r.Steps, step)
	return r
}

func (p *Pipeline) post(ctx context.Context, synth *synthesize.Synthesizer, entries []plan.Entry, sum *Summary) StepResult {
	verb := "Posted"
	if p.opts.DryRun {
		verb = "[dry-run] Drafted"
	}

	for _, e := range entries {
		sr := SiteResult{Name: e.EntityName, Class: e.Class.Label(), Planned: e.ReviewsToPost}
		zap.S().Infof("%s (%s): %d reviews, class %s", e.EntityName, e.Category.Label(), e.ReviewsToPost, sr.Class)

		for i := 0; i < e.ReviewsToPost; i++ {
			if !p.opts.DryRun {
				if err := p.limiter.Wait(ctx); err != nil {
					sum.Sites = append(sum.Sites, sr)
					return StepResult{Name: "Post", Summary: p.postSummary(verb, sum), Err: err}
				}
			}

			draft := synth.Synthesize(e.EntityName, e.Class, e.Category)
			sum.Attempted++
			if synthesize.IsFallback(draft) {
				sum.Fallback++
				if !p.opts.DryRun {
					metrics.FallbackDrafts.Inc()
				}
			}

			if p.opts.DryRun {
				sr.Drafts = append(sr.Drafts, draft)
				zap.S().Infof("  [dry-run] ⭐%d %s by %s", draft.StarRating, draft.Title, draft.AuthorName)
				continue
			}

			id, err := p.store.CreateReview(ctx, store.ReviewFromDraft(e.EntityID, draft, p.opts.AutoApprove))
			if err != nil {
				zap.S().Errorf("  failed to post review for %s: %v", e.EntityName, err)
				metrics.IncPosted("failed")
				sum.Failed++
				sr.Failed++
				continue
			}
			zap.S().Infof("  ⭐%d %s by %s (%s)", draft.StarRating, draft.Title, draft.AuthorName, id)
			metrics.IncPosted("succeeded")
			sum.Succeeded++
			sr.Succeeded++
		}
		sum.Sites = append(sum.Sites, sr)
	}

	return StepResult{Name: "Post", Summary: p.postSummary(verb, sum)}
}

func (p *Pipeline) postSummary(verb string, sum *Summary) string {
	if p.opts.DryRun {
		return fmt.Sprintf("%s %d reviews for %d sites (%d fallback)", verb, sum.Attempted, sum.Targets, sum.Fallback)
	}
	return fmt.Sprintf("%s %d/%d reviews for %d sites, %d failed", verb, sum.Succeeded, sum.Attempted, sum.Targets, sum.Failed)
}

func (p *Pipeline) record(ctx context.Context, r *Result, start time.Time) {
	if p.reports == nil {
		return
	}
	_, err := p.reports.InsertRunReport(context.WithoutCancel(ctx), database.RunReport{
		RunID:      r.RunID,
		DryRun:     r.DryRun,
		Targets:    r.Summary.Targets,
		Attempted:  r.Summary.Attempted,
		Succeeded:  r.Summary.Succeeded,
		Failed:     r.Summary.Failed,
		Fallback:   r.Summary.Fallback,
		StartedAt:  start,
		FinishedAt: time.Now(),
	})
	if err != nil {
		zap.S().Warnf("recording run report: %v", err)
	}
}
