package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/wildlife-grad/backend/internal/metrics"
	"github.com/wildlife-grad/backend/internal/review"
	"github.com/wildlife-grad/backend/pkg/logger"
)

type ReviewHandler struct {
	importer     *review.Importer
	queueCSVPath string
}

func NewReviewHandler(importer *review.Importer, queueCSVPath string) *ReviewHandler {
	return &ReviewHandler{
		importer:     importer,
		queueCSVPath: queueCSVPath,
	}
}

// GetQueue returns the current confidence review queue.
func (h *ReviewHandler) GetQueue(c *fiber.Ctx) error {
	items, err := review.ReadQueueCSV(h.queueCSVPath)
	if err != nil {
		logger.Error("Failed to read review queue", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read review queue",
		})
	}

	return c.JSON(fiber.Map{
		"count": len(items),
		"items": items,
	})
}

// ImportReviews applies reviewed queue rows to the gold label store. With an
// empty items list the queue CSV on disk is imported, which is the normal
// path after a reviewer edits the exported file.
func (h *ReviewHandler) ImportReviews(c *fiber.Ctx) error {
	var req struct {
		DryRun bool               `json:"dry_run"`
		Items  []review.QueueItem `json:"items"`
	}

	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			logger.Error("Failed to parse request body", zap.Error(err))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}
	if c.Query("dry_run") == "true" {
		req.DryRun = true
	}

	items := req.Items
	if len(items) == 0 {
		var err error
		items, err = review.ReadQueueCSV(h.queueCSVPath)
		if err != nil {
			logger.Error("Failed to read review queue", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to read review queue",
			})
		}
	}

	stats, err := h.importer.Import(items, req.DryRun)
	if err != nil {
		logger.Error("Review import failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Review import failed",
		})
	}

	if !req.DryRun {
		metrics.ReviewDecisions.WithLabelValues("created").Add(float64(stats.Created))
		metrics.ReviewDecisions.WithLabelValues("updated").Add(float64(stats.Updated))
		metrics.ReviewDecisions.WithLabelValues("skipped").Add(float64(stats.Skipped))
	}

	return c.JSON(stats)
}
