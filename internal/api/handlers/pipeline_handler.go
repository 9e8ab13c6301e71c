package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/wildlife-grad/backend/internal/pipeline"
	"github.com/wildlife-grad/backend/pkg/logger"
	"github.com/wildlife-grad/backend/pkg/runlock"
)

type PipelineHandler struct {
	runner *pipeline.Runner
}

func NewPipelineHandler(runner *pipeline.Runner) *PipelineHandler {
	return &PipelineHandler{
		runner: runner,
	}
}

// TriggerRun starts a classification run. A run already in progress is
// reported as a conflict, not queued.
func (h *PipelineHandler) TriggerRun(c *fiber.Ctx) error {
	summary, err := h.runner.Run(c.Context())
	if err != nil {
		if errors.Is(err, runlock.ErrLocked) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "A pipeline run is already in progress",
			})
		}
		logger.Error("Pipeline run failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Pipeline run failed",
		})
	}

	return c.JSON(fiber.Map{
		"run_id":         summary.RunID,
		"model_version":  summary.ModelVersion,
		"postings":       summary.Postings,
		"classified":     summary.Classified,
		"unclassifiable": summary.Unclassifiable,
		"queue_size":     summary.QueueSize,
		"duration_ms":    summary.Duration.Milliseconds(),
	})
}
