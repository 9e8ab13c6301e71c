package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/wildlife-grad/backend/internal/api/handlers"
	"github.com/wildlife-grad/backend/internal/classifier"
	"github.com/wildlife-grad/backend/internal/gold"
	"github.com/wildlife-grad/backend/internal/manifest"
	"github.com/wildlife-grad/backend/internal/metrics"
	"github.com/wildlife-grad/backend/internal/middleware/ratelimit"
	"github.com/wildlife-grad/backend/internal/middleware/security"
	"github.com/wildlife-grad/backend/internal/middleware/validation"
	"github.com/wildlife-grad/backend/internal/pipeline"
	"github.com/wildlife-grad/backend/internal/review"
	"github.com/wildlife-grad/backend/internal/scraper"
	"github.com/wildlife-grad/backend/internal/storage/sqlite"
	"github.com/wildlife-grad/backend/internal/training"
	"github.com/wildlife-grad/backend/pkg/config"
	appLogger "github.com/wildlife-grad/backend/pkg/logger"
	"github.com/wildlife-grad/backend/pkg/runlock"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Wildlife Grad Classifier API Server")

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	goldStore, err := gold.Open(cfg.Data.GoldLabelsPath)
	if err != nil {
		appLogger.Fatal("Failed to open gold label store", zap.Error(err))
	}

	registry, err := manifest.Open(cfg.Data.ModelDir)
	if err != nil {
		appLogger.Fatal("Failed to open model registry", zap.Error(err))
	}

	strategy, err := classifier.StrategyFromName(cfg.Classifier.ConfidenceStrategy)
	if err != nil {
		appLogger.Fatal("Invalid confidence strategy", zap.Error(err))
	}

	runner := pipeline.NewRunner(sqliteClient, registry, strategy, pipeline.Config{
		LockPath:              cfg.Data.LockPath,
		QueueCSVPath:          cfg.Data.QueueCSVPath,
		QueueJSONPath:         cfg.Data.QueueJSONPath,
		ReviewThreshold:       cfg.Classifier.ReviewThreshold,
		DisagreeMinConfidence: cfg.Classifier.DisagreeMinConfidence,
		DisagreeMinMargin:     cfg.Classifier.DisagreeMinMargin,
		Workers:               cfg.Pipeline.Workers,
	})

	engine := training.NewEngine(registry, cfg.Data.ModelDir, training.Config{
		MinGoldLabels:    cfg.Training.MinGoldLabels,
		MinClassExamples: cfg.Training.MinClassExamples,
		HoldoutFraction:  cfg.Training.HoldoutFraction,
		MinImprovement:   cfg.Training.MinImprovement,
		AutoSeedWeight:   cfg.Training.AutoSeedWeight,
		Seed:             cfg.Training.RandomSeed,
	})

	importer := review.NewImporter(goldStore, sqliteClient, sqliteClient, "")

	boardScraper := scraper.New(scraper.Config{
		BaseURL:      cfg.Scraper.BaseURL,
		MaxPages:     cfg.Scraper.MaxPages,
		Timeout:      time.Duration(cfg.Scraper.TimeoutSeconds) * time.Second,
		FetchDetails: cfg.Scraper.FetchDetails,
	})

	metrics.Init()
	metrics.GoldLabelsTotal.Set(float64(goldStore.Len()))

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))
	app.Use(validation.Middleware(validation.Config{
		MaxBodySize: cfg.Server.BodyLimit,
	}))

	limiter := ratelimit.New(ratelimit.Config{})
	defer limiter.Stop()
	app.Use(limiter.Middleware())

	postingHandler := handlers.NewPostingHandler(sqliteClient, boardScraper)
	pipelineHandler := handlers.NewPipelineHandler(runner)
	trainingHandler := handlers.NewTrainingHandler(engine, goldStore, registry, sqliteClient,
		cfg.Classifier.AutoSeedMinConfidence, cfg.Classifier.AutoSeedMaxPerClass)
	reviewHandler := handlers.NewReviewHandler(importer, cfg.Data.QueueCSVPath)

	api := app.Group("/api/v1")

	api.Post("/postings", postingHandler.IngestPostings)
	api.Post("/postings/scrape", postingHandler.ScrapePostings)
	api.Get("/postings", postingHandler.ListPostings)
	api.Get("/runs", postingHandler.GetRuns)

	api.Post("/pipeline/run", pipelineHandler.TriggerRun)

	api.Post("/training/retrain", trainingHandler.TriggerRetrain)
	api.Post("/training/auto-seed", trainingHandler.AutoSeed)
	api.Get("/training/manifest", trainingHandler.GetManifest)

	api.Get("/reviews/queue", reviewHandler.GetQueue)
	api.Post("/reviews/import", reviewHandler.ImportReviews)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Pipeline.Schedule, func() {
		_, err := runner.Run(context.Background())
		if err != nil {
			if errors.Is(err, runlock.ErrLocked) {
				appLogger.Warn("Scheduled run skipped, another run in progress")
				return
			}
			appLogger.Error("Scheduled pipeline run failed", zap.Error(err))
		}
	})
	if err != nil {
		appLogger.Fatal("Invalid pipeline schedule", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
