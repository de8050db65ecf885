// Package collect discovers candidate prediction sites from web search and
// feeds and registers the new ones as unapproved listings.
package collect

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/keibareview/internal/config"
	"github.com/TobiSchelling/keibareview/internal/site"
	"github.com/TobiSchelling/keibareview/internal/store"
)

// Describer extracts a description from a site's landing page.
type Describer interface {
	Describe(ctx context.Context, siteURL string) (string, error)
}

// Result holds the results of a discovery run.
type Result struct {
	TotalFound int
	Duplicates int
	Existing   int
	Added      int
	Failed     int
	Categories map[site.Category]int
}

// Collector gathers candidates and registers new sites.
type Collector struct {
	registry   store.SiteRegistry
	search     *SearchClient
	feedParser *FeedParser
	describer  Describer
	queries    []string
	limiter    *rate.Limiter
	dryRun     bool
}

// NewCollector creates a collector from the discovery config. describer
// may be nil.
func NewCollector(cfg config.Discovery, registry store.SiteRegistry, describer Describer) *Collector {
	c := &Collector{
		registry:  registry,
		describer: describer,
		queries:   cfg.Queries,
		limiter:   rate.NewLimiter(rate.Every(max(cfg.Pause, time.Millisecond)), 1),
	}

	if len(cfg.Feeds) > 0 {
		feeds := make([]FeedConfig, len(cfg.Feeds))
		for i, f := range cfg.Feeds {
			feeds[i] = FeedConfig{URL: f.URL, Name: f.Name}
		}
		c.feedParser = NewFeedParser(feeds)
	}

	if len(cfg.Queries) > 0 {
		c.search = NewSearchClient(cfg.SearchKeyEnv, cfg.SearchURL)
	}

	return c
}

// DryRun reports what would be added without writing.
func (c *Collector) DryRun(on bool) *Collector {
	c.dryRun = on
	return c
}

// Collect gathers candidates from every configured source and registers
// the ones the store does not know yet.
func (c *Collector) Collect(ctx context.Context) *Result {
	r := &Result{Categories: make(map[site.Category]int)}
	var candidates []Candidate

	if c.search != nil && c.search.IsConfigured() {
		zap.S().Info("Searching for prediction sites...")
		for _, q := range c.queries {
			if err := c.limiter.Wait(ctx); err != nil {
				break
			}
			found, err := c.search.Search(ctx, q)
			if err != nil {
				zap.S().Errorf("Search error (%s): %v", q, err)
				continue
			}
			candidates = append(candidates, found...)
		}
	} else if c.search != nil {
		zap.S().Warn("Search API key not configured, skipping search")
	}

	if c.feedParser != nil {
		zap.S().Info("Collecting from feeds...")
		candidates = append(candidates, c.feedParser.ParseAll(ctx)...)
	}

	r.TotalFound = len(candidates)
	seen := make(map[string]struct{})
	for _, cand := range candidates {
		if ctx.Err() != nil {
			break
		}
		if _, ok := seen[cand.URL]; ok {
			r.Duplicates++
			continue
		}
		seen[cand.URL] = struct{}{}
		c.register(ctx, cand, r)
	}

	zap.S().Infof("Discovery complete: %d found, %d added, %d existing, %d failed",
		r.TotalFound, r.Added, r.Existing, r.Failed)
	return r
}

func (c *Collector) register(ctx context.Context, cand Candidate, r *Result) {
	exists, err := c.registry.SiteExists(ctx, cand.URL)
	if err != nil {
		zap.S().Errorf("Checking %s: %v", cand.URL, err)
		r.Failed++
		return
	}
	if exists {
		zap.S().Debugf("Skipping existing site: %s", cand.Name)
		r.Existing++
		return
	}

	if cand.Description == "" && c.describer != nil {
		desc, err := c.describer.Describe(ctx, cand.URL)
		if err != nil {
			zap.S().Debugf("No description for %s: %v", cand.URL, err)
		}
		cand.Description = desc
	}

	e := cand.Entity()
	if c.dryRun {
		zap.S().Infof("[dry-run] Would add %s (%s)", e.Name, e.Category)
		r.Added++
		r.Categories[e.Category]++
		return
	}

	if _, err := c.registry.CreateSite(ctx, e); err != nil {
		zap.S().Errorf("Registering %s: %v", e.Name, err)
		r.Failed++
		return
	}
	zap.S().Infof("Added %s (%s)", e.Name, e.Category)
	r.Added++
	r.Categories[e.Category]++
}
