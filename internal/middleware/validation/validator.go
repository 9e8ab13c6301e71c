package validation

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/wildlife-grad/backend/pkg/logger"
)

type Config struct {
	MaxBodySize         int
	AllowedContentTypes []string
}

// Middleware rejects malformed write requests before they reach a handler:
// wrong content type, oversized body, or a postings/reviews payload that is
// not valid JSON.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = 10 * 1024 * 1024
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != "POST" && c.Method() != "PUT" {
			return c.Next()
		}

		if len(c.Body()) > cfg.MaxBodySize {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"error": "Request body exceeds maximum size",
			})
		}

		contentType := c.Get("Content-Type")
		if len(c.Body()) > 0 && contentType != "" {
			allowed := false
			for _, allowedType := range cfg.AllowedContentTypes {
				if strings.Contains(contentType, allowedType) {
					allowed = true
					break
				}
			}
			if !allowed {
				return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
					"error": "Unsupported content type",
				})
			}
		}

		path := c.Path()
		if len(c.Body()) > 0 &&
			(strings.Contains(path, "/api/v1/postings") || strings.Contains(path, "/api/v1/reviews")) {
			var probe interface{}
			if err := c.App().Config().JSONDecoder(c.Body(), &probe); err != nil {
				logger.Warn("Rejected malformed JSON body",
					zap.String("path", path),
					zap.String("ip", c.IP()),
				)
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}
		}

		return c.Next()
	}
}
