// Package main provides the wgctl CLI for operating the classifier
// lifecycle without the API server.
//
// Usage:
//
//	wgctl <command> [flags]
//
// Commands:
//
//	ingest         - Load a scraped postings JSON file into storage
//	scrape         - Scrape the job board and store new postings
//	run            - Execute one classification run
//	retrain        - Retrain from the gold label store
//	auto-seed      - Bootstrap gold labels from high-confidence postings
//	import-reviews - Apply reviewed queue rows to the gold store
//	queue          - Show the confidence review queue
//	manifest       - Show the promoted model and promotion history
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wildlife-grad/backend/internal/classifier"
	"github.com/wildlife-grad/backend/internal/gold"
	"github.com/wildlife-grad/backend/internal/manifest"
	"github.com/wildlife-grad/backend/internal/pipeline"
	"github.com/wildlife-grad/backend/internal/postings"
	"github.com/wildlife-grad/backend/internal/review"
	"github.com/wildlife-grad/backend/internal/scraper"
	"github.com/wildlife-grad/backend/internal/storage/sqlite"
	"github.com/wildlife-grad/backend/internal/training"
	"github.com/wildlife-grad/backend/pkg/config"
	"github.com/wildlife-grad/backend/pkg/logger"
)

var (
	quiet  bool
	dryRun bool
)

// app bundles everything a command needs; built lazily per invocation.
type app struct {
	cfg      *config.Config
	db       *sqlite.Client
	store    *gold.Store
	registry *manifest.Registry
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if quiet {
		logger.InitNop()
	} else {
		if err := logger.Init(cfg.Logging.Level, "console", "stderr"); err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
	}

	db, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(); err != nil {
		db.Close()
		return nil, err
	}

	store, err := gold.Open(cfg.Data.GoldLabelsPath)
	if err != nil {
		db.Close()
		return nil, err
	}

	registry, err := manifest.Open(cfg.Data.ModelDir)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &app{cfg: cfg, db: db, store: store, registry: registry}, nil
}

func (a *app) Close() {
	a.db.Close()
	logger.Sync()
}

func (a *app) runner() (*pipeline.Runner, error) {
	strategy, err := classifier.StrategyFromName(a.cfg.Classifier.ConfidenceStrategy)
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(a.db, a.registry, strategy, pipeline.Config{
		LockPath:              a.cfg.Data.LockPath,
		QueueCSVPath:          a.cfg.Data.QueueCSVPath,
		QueueJSONPath:         a.cfg.Data.QueueJSONPath,
		ReviewThreshold:       a.cfg.Classifier.ReviewThreshold,
		DisagreeMinConfidence: a.cfg.Classifier.DisagreeMinConfidence,
		DisagreeMinMargin:     a.cfg.Classifier.DisagreeMinMargin,
		Workers:               a.cfg.Pipeline.Workers,
	}), nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

var rootCmd = &cobra.Command{
	Use:           "wgctl",
	Short:         "Operate the wildlife job classifier lifecycle",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <postings.json>",
	Short: "Load a scraped postings JSON file into storage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read postings file: %w", err)
		}
		list, err := postings.Parse(data)
		if err != nil {
			return err
		}
		if err := a.db.UpsertPostings(context.Background(), list); err != nil {
			return err
		}

		fmt.Printf("Ingested %d postings\n", len(list))
		return nil
	},
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape the job board and store new postings",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		s := scraper.New(scraper.Config{
			BaseURL:      a.cfg.Scraper.BaseURL,
			MaxPages:     a.cfg.Scraper.MaxPages,
			Timeout:      time.Duration(a.cfg.Scraper.TimeoutSeconds) * time.Second,
			FetchDetails: a.cfg.Scraper.FetchDetails,
		})

		list, err := s.FetchPostings(context.Background())
		if err != nil {
			return err
		}
		if len(list) > 0 {
			if err := a.db.UpsertPostings(context.Background(), list); err != nil {
				return err
			}
		}

		fmt.Printf("Scraped %d postings\n", len(list))
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one classification run",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		runner, err := a.runner()
		if err != nil {
			return err
		}
		summary, err := runner.Run(context.Background())
		if err != nil {
			return err
		}
		return printJSON(summary)
	},
}

var retrainCmd = &cobra.Command{
	Use:   "retrain",
	Short: "Retrain the discipline model from the gold label store",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		engine := training.NewEngine(a.registry, a.cfg.Data.ModelDir, training.Config{
			MinGoldLabels:    a.cfg.Training.MinGoldLabels,
			MinClassExamples: a.cfg.Training.MinClassExamples,
			HoldoutFraction:  a.cfg.Training.HoldoutFraction,
			MinImprovement:   a.cfg.Training.MinImprovement,
			AutoSeedWeight:   a.cfg.Training.AutoSeedWeight,
			Seed:             a.cfg.Training.RandomSeed,
		})

		report, err := engine.Retrain(context.Background(), a.store)
		if err != nil {
			return err
		}
		if err := printJSON(report); err != nil {
			return err
		}
		if report.Decision != training.DecisionPromoted {
			fmt.Printf("Candidate rejected: %s\n", report.Reason)
		}
		return nil
	},
}

var autoSeedCmd = &cobra.Command{
	Use:   "auto-seed",
	Short: "Bootstrap gold labels from high-confidence postings",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.db.ListPostings()
		if err != nil {
			return err
		}
		added, err := a.store.AutoSeed(list,
			a.cfg.Classifier.AutoSeedMinConfidence,
			a.cfg.Classifier.AutoSeedMaxPerClass)
		if err != nil {
			return err
		}

		fmt.Printf("Auto-seeded %d labels (%d gold labels total)\n", added, a.store.Len())
		return nil
	},
}

var importReviewsCmd = &cobra.Command{
	Use:   "import-reviews [queue.csv]",
	Short: "Apply reviewed queue rows to the gold store",
	Long: `Apply reviewed queue rows to the gold label store.

Reads the configured queue CSV unless a file is given. Rows left pending
are skipped. With --dry-run, reports what would change without writing.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		path := a.cfg.Data.QueueCSVPath
		if len(args) == 1 {
			path = args[0]
		}

		items, err := review.ReadQueueCSV(path)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("Queue is empty, nothing to import")
			return nil
		}

		importer := review.NewImporter(a.store, a.db, a.db, "")
		stats, err := importer.Import(items, dryRun)
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show the confidence review queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		items, err := review.ReadQueueCSV(a.cfg.Data.QueueCSVPath)
		if err != nil {
			return err
		}
		return printJSON(map[string]interface{}{
			"count": len(items),
			"items": items,
		})
	},
}

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Show the promoted model and promotion history",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		return printJSON(map[string]interface{}{
			"promoted": a.registry.GetPromoted(),
			"history":  a.registry.History(),
		})
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress log output")
	importReviewsCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report changes without writing")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(retrainCmd)
	rootCmd.AddCommand(autoSeedCmd)
	rootCmd.AddCommand(importReviewsCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(manifestCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
