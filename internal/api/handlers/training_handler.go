package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/wildlife-grad/backend/internal/gold"
	"github.com/wildlife-grad/backend/internal/manifest"
	"github.com/wildlife-grad/backend/internal/metrics"
	"github.com/wildlife-grad/backend/internal/storage/sqlite"
	"github.com/wildlife-grad/backend/internal/training"
	"github.com/wildlife-grad/backend/pkg/logger"
)

type TrainingHandler struct {
	engine                *training.Engine
	store                 *gold.Store
	registry              *manifest.Registry
	db                    *sqlite.Client
	autoSeedMinConfidence float64
	autoSeedMaxPerClass   int
}

func NewTrainingHandler(engine *training.Engine, store *gold.Store, registry *manifest.Registry, db *sqlite.Client, autoSeedMinConfidence float64, autoSeedMaxPerClass int) *TrainingHandler {
	return &TrainingHandler{
		engine:                engine,
		store:                 store,
		registry:              registry,
		db:                    db,
		autoSeedMinConfidence: autoSeedMinConfidence,
		autoSeedMaxPerClass:   autoSeedMaxPerClass,
	}
}

// TriggerRetrain retrains from the gold label store. A rejected candidate is
// still a successful request; the decision and reason are in the response.
func (h *TrainingHandler) TriggerRetrain(c *fiber.Ctx) error {
	report, err := h.engine.Retrain(c.Context(), h.store)
	if err != nil {
		logger.Error("Retraining failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Retraining failed",
		})
	}

	metrics.TrainingRuns.WithLabelValues(report.Decision, report.Reason).Inc()
	if report.Decision == training.DecisionPromoted {
		metrics.PromotedMacroF1.Set(report.ValidationMetric)
	}
	metrics.GoldLabelsTotal.Set(float64(h.store.Len()))

	return c.JSON(report)
}

// AutoSeed bootstraps the gold store from high-confidence stored postings.
func (h *TrainingHandler) AutoSeed(c *fiber.Ctx) error {
	list, err := h.db.ListPostings()
	if err != nil {
		logger.Error("Failed to list postings", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list postings",
		})
	}

	added, err := h.store.AutoSeed(list, h.autoSeedMinConfidence, h.autoSeedMaxPerClass)
	if err != nil {
		logger.Error("Auto-seed failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Auto-seed failed",
		})
	}

	metrics.GoldLabelsTotal.Set(float64(h.store.Len()))

	return c.JSON(fiber.Map{
		"added":       added,
		"gold_labels": h.store.Len(),
	})
}

// GetManifest returns the promoted model entry and the promotion history.
func (h *TrainingHandler) GetManifest(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"promoted": h.registry.GetPromoted(),
		"history":  h.registry.History(),
	})
}
