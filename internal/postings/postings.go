// Package postings ingests scraped job postings and derives the stable
// position keys used to match labels across runs.
package postings

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/wildlife-grad/backend/internal/storage/models"
	"github.com/wildlife-grad/backend/pkg/logger"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// PositionKey derives the stable identifier for a posting. A posting with a
// URL is keyed by it; otherwise title, organization, location, and published
// date form the key. Identical postings across scrape runs map to the same key.
func PositionKey(p models.JobPosting) string {
	url := strings.ToLower(strings.TrimSpace(p.URL))
	if url != "" {
		return "url::" + url
	}
	title := strings.ToLower(strings.TrimSpace(p.Title))
	org := strings.ToLower(strings.TrimSpace(p.Organization))
	loc := strings.ToLower(strings.TrimSpace(p.Location))
	pub := strings.ToLower(strings.TrimSpace(p.PublishedDate))
	if title != "" && org != "" {
		return fmt.Sprintf("title_org::%s::%s::%s::%s", title, org, loc, pub)
	}
	if title != "" {
		return fmt.Sprintf("title::%s::%s", title, pub)
	}
	return ""
}

// CombinedText concatenates the free-text fields used for classification.
func CombinedText(p models.JobPosting) string {
	parts := []string{
		p.Title,
		p.Tags,
		p.Organization,
		p.Description,
		p.Requirements,
		p.ProjectDetails,
	}
	return strings.ToLower(strings.TrimSpace(strings.Join(parts, " ")))
}

// Parse decodes an upstream postings artifact. It accepts either a bare
// array or an object wrapping it under "positions" or "jobs". Rows without
// enough identifying fields for a position key are skipped and logged.
func Parse(data []byte) ([]models.JobPosting, error) {
	rows, err := decodeRows(data)
	if err != nil {
		return nil, err
	}

	out := make([]models.JobPosting, 0, len(rows))
	for i, p := range rows {
		p.Title = CleanText(p.Title)
		p.Description = CleanText(p.Description)
		p.Requirements = CleanText(p.Requirements)
		p.ProjectDetails = CleanText(p.ProjectDetails)

		if p.PositionKey == "" {
			p.PositionKey = PositionKey(p)
		}
		if p.PositionKey == "" {
			logger.Warn("Skipping posting without identifying fields", zap.Int("row", i))
			continue
		}
		if p.ScrapedAt.IsZero() {
			p.ScrapedAt = time.Now()
		}
		out = append(out, p)
	}

	return out, nil
}

func decodeRows(data []byte) ([]models.JobPosting, error) {
	var rows []models.JobPosting
	if err := json.Unmarshal(data, &rows); err == nil {
		return rows, nil
	}

	var wrapper struct {
		Positions []models.JobPosting `json:"positions"`
		Jobs      []models.JobPosting `json:"jobs"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("failed to decode postings payload: %w", err)
	}
	if wrapper.Positions != nil {
		return wrapper.Positions, nil
	}
	return wrapper.Jobs, nil
}

// CleanText strips HTML markup and collapses whitespace. Scraped
// descriptions frequently carry markup from the source site.
func CleanText(text string) string {
	if !strings.Contains(text, "<") {
		return normalizeWhitespace(text)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return normalizeWhitespace(text)
	}

	doc.Find("script, style").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	return normalizeWhitespace(doc.Text())
}

func normalizeWhitespace(text string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}
