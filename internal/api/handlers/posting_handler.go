package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/wildlife-grad/backend/internal/postings"
	"github.com/wildlife-grad/backend/internal/scraper"
	"github.com/wildlife-grad/backend/internal/storage/sqlite"
	"github.com/wildlife-grad/backend/pkg/logger"
)

type PostingHandler struct {
	db      *sqlite.Client
	scraper *scraper.Scraper
}

func NewPostingHandler(db *sqlite.Client, scraper *scraper.Scraper) *PostingHandler {
	return &PostingHandler{
		db:      db,
		scraper: scraper,
	}
}

// ScrapePostings pulls the job board and upserts whatever it finds.
func (h *PostingHandler) ScrapePostings(c *fiber.Ctx) error {
	list, err := h.scraper.FetchPostings(c.Context())
	if err != nil {
		logger.Error("Scrape failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to scrape job board",
		})
	}

	if len(list) > 0 {
		if err := h.db.UpsertPostings(c.Context(), list); err != nil {
			logger.Error("Failed to store scraped postings", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to store postings",
			})
		}
	}

	return c.JSON(fiber.Map{
		"message": "Scrape completed",
		"scraped": len(list),
	})
}

// IngestPostings accepts a scraped postings payload, either a bare JSON
// array or a {"positions": [...]} wrapper, and upserts it into storage.
func (h *PostingHandler) IngestPostings(c *fiber.Ctx) error {
	list, err := postings.Parse(c.Body())
	if err != nil {
		logger.Error("Failed to parse postings payload", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid postings payload",
		})
	}

	if len(list) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No postings in payload",
		})
	}

	if err := h.db.UpsertPostings(c.Context(), list); err != nil {
		logger.Error("Failed to store postings", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store postings",
		})
	}

	return c.JSON(fiber.Map{
		"message":  "Postings ingested",
		"ingested": len(list),
	})
}

func (h *PostingHandler) ListPostings(c *fiber.Ctx) error {
	list, err := h.db.ListPostings()
	if err != nil {
		logger.Error("Failed to list postings", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list postings",
		})
	}

	return c.JSON(fiber.Map{
		"count":    len(list),
		"postings": list,
	})
}

func (h *PostingHandler) GetRuns(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)

	runs, err := h.db.ListRuns(limit)
	if err != nil {
		logger.Error("Failed to list runs", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list runs",
		})
	}

	return c.JSON(fiber.Map{
		"runs": runs,
	})
}
