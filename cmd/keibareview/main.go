package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/keibareview/internal/airtable"
	"github.com/TobiSchelling/keibareview/internal/collect"
	"github.com/TobiSchelling/keibareview/internal/config"
	"github.com/TobiSchelling/keibareview/internal/contentbank"
	"github.com/TobiSchelling/keibareview/internal/database"
	"github.com/TobiSchelling/keibareview/internal/fetch"
	"github.com/TobiSchelling/keibareview/internal/lexicon"
	"github.com/TobiSchelling/keibareview/internal/logging"
	"github.com/TobiSchelling/keibareview/internal/pipeline"
	"github.com/TobiSchelling/keibareview/internal/ranking"
	"github.com/TobiSchelling/keibareview/internal/server"
	"github.com/TobiSchelling/keibareview/internal/site"
	"github.com/TobiSchelling/keibareview/internal/store"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	zap.L().Sync()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "keibareview",
	Short:   "Review scheduling and ranking for horse-racing prediction sites",
	Long:    "keibareview posts scheduled reviews to listed prediction sites, discovers new sites, and serves the ranking leaderboard.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			_, err := logging.Setup("INFO", verbose)
			return err
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if _, err := logging.Setup(cfg.Logging.Level, verbose); err != nil {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(rankCmd)
	rootCmd.AddCommand(lintCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(qualityCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("keibareview", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/keibareview/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Set AIRTABLE_API_KEY and AIRTABLE_BASE_ID, or switch store.backend to sqlite.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local database statistics and recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := cmd.Context()
		stats, err := db.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Sites:")
		fmt.Printf("  Total: %d\n", stats.TotalSites)
		fmt.Printf("  Approved: %d\n", stats.ApprovedSites)
		fmt.Println("\nReviews:")
		fmt.Printf("  Total: %d\n", stats.TotalReviews)
		fmt.Printf("  Pending: %d\n", stats.PendingReviews)
		fmt.Printf("  Approved: %d\n", stats.ApprovedReviews)

		reports, err := db.LastRunReports(ctx, 5)
		if err != nil {
			return err
		}
		fmt.Printf("\nRuns: %d\n", stats.Runs)
		for _, r := range reports {
			mode := ""
			if r.DryRun {
				mode = " [dry-run]"
			}
			fmt.Printf("  %s%s: %d sites, %d/%d posted, %d failed, %d fallback\n",
				r.StartedAt.Local().Format("2006-01-02 15:04"), mode, r.Targets, r.Succeeded, r.Attempted, r.Failed, r.Fallback)
		}
		return nil
	},
}

// --- post command ---

var (
	dryRun   bool
	maxSites int
	seed     uint64
)

var postCmd = &cobra.Command{
	Use:   "post",
	Short: "Plan and post today's reviews",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, closeStore, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore()

		opts := pipeline.Options{
			ContentSources: cfg.ContentSources(),
			CuratedPath:    cfg.Content.CuratedPath,
			MaxSites:       cfg.Posting.MaxSites,
			Pause:          cfg.Posting.Pause,
			AutoApprove:    cfg.Posting.AutoApprove,
			MaxRedraws:     cfg.Posting.MaxRedraws,
			DryRun:         dryRun,
		}
		if maxSites > 0 {
			opts.MaxSites = maxSites
		}

		var rng *rand.Rand
		if seed != 0 {
			rng = rand.New(rand.NewPCG(seed, seed))
		}

		pipe := pipeline.New(st, opts, rng)
		if reports, closeReports := openReports(st); reports != nil {
			defer closeReports()
			pipe.WithReports(reports)
		}

		result := pipe.Run(cmd.Context())

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d: %s\n", i+1, step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}

		s := result.Summary
		fmt.Println("\nSummary:")
		fmt.Printf("  Sites: %d\n", s.Targets)
		fmt.Printf("  Attempted: %d\n", s.Attempted)
		fmt.Printf("  Succeeded: %d\n", s.Succeeded)
		fmt.Printf("  Failed: %d\n", s.Failed)
		for _, sr := range s.Sites {
			fmt.Printf("  - %s [%s]: %d planned, %d posted, %d failed\n", sr.Name, sr.Class, sr.Planned, sr.Succeeded, sr.Failed)
			for _, d := range sr.Drafts {
				fmt.Printf("      ⭐%d %s (%s)\n", d.StarRating, d.Title, d.AuthorName)
			}
		}
		// Write failures are reported above; only configuration errors fail the command.
		return nil
	},
}

func init() {
	postCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Plan and draft reviews without writing them")
	postCmd.Flags().IntVar(&maxSites, "max", 0, "Override posting.max_sites")
	postCmd.Flags().Uint64Var(&seed, "seed", 0, "Seed the random source for a reproducible run")
}

// --- rank command ---

var rankCmd = &cobra.Command{
	Use:   "rank [slug]",
	Short: "Show a site's ranking score and share-card rank",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, closeStore, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore()

		entities, err := st.ApprovedEntities(cmd.Context())
		if err != nil {
			return err
		}
		pos, ok := ranking.Lookup(ranking.FromEntities(entities), args[0])
		if !ok {
			return fmt.Errorf("site %q not found among %d approved sites", args[0], len(entities))
		}

		fmt.Printf("Site: %s (%s)\n", pos.Slug, pos.Category.Label())
		fmt.Printf("  Score: %.2f\n", pos.Score)
		fmt.Printf("  Overall rank: %d\n", pos.Overall)
		fmt.Printf("  Category rank: %d\n", pos.CategoryRank)
		if d := pos.Display(); d != "" {
			fmt.Printf("  Display: %s\n", d)
		} else {
			fmt.Println("  Display: (not shown)")
		}
		return nil
	},
}

// --- lint command ---

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Report review texts that contain a category's forbidden keywords",
	RunE: func(cmd *cobra.Command, args []string) error {
		pool := contentbank.Load(cfg.ContentSources())
		fmt.Printf("Loaded %d reviews\n", pool.Total())

		ratings := make([]int, 0, len(pool))
		for r := range pool {
			ratings = append(ratings, r)
		}
		sort.Ints(ratings)

		violations := 0
		for _, c := range site.Categories {
			if len(lexicon.Forbidden(c)) == 0 {
				continue
			}
			usable := 0
			for _, rating := range ratings {
				for _, e := range pool.Entries(rating) {
					w, bad := lexicon.Match(c, e.Title+e.Body)
					if !bad {
						usable++
						continue
					}
					violations++
					zap.S().Debugf("%s ⭐%d %q contains %q", c, rating, e.Title, w)
				}
			}
			fmt.Printf("  %s: %d/%d usable\n", c.Label(), usable, pool.Total())
		}
		fmt.Printf("%d category conflicts found\n", violations)
		return nil
	},
}

// --- discover command ---

var discoverDryRun bool

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Search for new prediction sites and register them unapproved",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, closeStore, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore()

		var describer collect.Describer
		if cfg.Discovery.FetchDescriptions {
			describer = fetch.NewContentFetcher(15 * time.Second)
		}

		result := collect.NewCollector(cfg.Discovery, st, describer).DryRun(discoverDryRun).Collect(cmd.Context())

		fmt.Println("\nDiscovery complete:")
		fmt.Printf("  Total found: %d\n", result.TotalFound)
		fmt.Printf("  Duplicates skipped: %d\n", result.Duplicates)
		fmt.Printf("  Already listed: %d\n", result.Existing)
		fmt.Printf("  Added: %d\n", result.Added)
		fmt.Printf("  Failed: %d\n", result.Failed)
		for _, c := range site.Categories {
			if n := result.Categories[c]; n > 0 {
				fmt.Printf("    %s: %d\n", c.Label(), n)
			}
		}
		return nil
	},
}

func init() {
	discoverCmd.Flags().BoolVar(&discoverDryRun, "dry-run", false, "Show what would be added without writing")
}

// --- quality command ---

var qualityCmd = &cobra.Command{
	Use:   "quality [file]",
	Short: "Apply site quality and display priority updates from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		updates, err := store.LoadQualityUpdates(args[0])
		if err != nil {
			return err
		}
		return applyUpdates(cmd.Context(), updates)
	},
}

// --- approve command ---

var approveCmd = &cobra.Command{
	Use:   "approve [site-id...]",
	Short: "Approve discovered sites so they receive reviews",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		updates := make([]store.RecordUpdate, len(args))
		for i, id := range args {
			updates[i] = store.RecordUpdate{ID: id, Fields: map[string]any{"IsApproved": true}}
		}
		return applyUpdates(cmd.Context(), updates)
	},
}

func applyUpdates(ctx context.Context, updates []store.RecordUpdate) error {
	st, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	limiter := rate.NewLimiter(rate.Every(200*time.Millisecond), 1)
	res := store.BatchUpdate(ctx, st, store.TableSites, updates, limiter)

	fmt.Printf("Updated %d/%d sites\n", res.Updated, len(updates))
	for _, e := range res.Errors {
		fmt.Printf("  Error: %s\n", e)
	}
	if res.Updated == 0 && len(res.Errors) > 0 {
		return errors.New("no sites updated")
	}
	return nil
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ranking server",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, closeStore, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(cmd.Context(), st, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// openStore validates the config and opens the configured backend.
func openStore() (store.Store, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	switch cfg.Store.Backend {
	case config.BackendSQLite:
		db, err := openDB()
		if err != nil {
			return nil, nil, err
		}
		return db, func() { db.Close() }, nil
	default:
		creds := cfg.Credentials()
		var opts []airtable.Option
		if cfg.Store.APIURL != "" {
			opts = append(opts, airtable.WithBaseURL(cfg.Store.APIURL))
		}
		return airtable.New(creds.APIKey, creds.BaseID, opts...), func() {}, nil
	}
}

// openReports returns the local run-report sink. The SQLite backend
// reuses its own database; otherwise a local database is opened, and a
// failure to open it only disables reports.
func openReports(st store.Store) (pipeline.ReportSink, func()) {
	if db, ok := st.(*database.DB); ok {
		return db, func() {}
	}
	db, err := openDB()
	if err != nil {
		zap.S().Warnf("run reports disabled: %v", err)
		return nil, nil
	}
	return db, func() { db.Close() }
}

func openDB() (*database.DB, error) {
	return database.Open(cfg.DatabasePath())
}
