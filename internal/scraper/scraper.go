// Package scraper fetches postings from the wildlife and fisheries job
// board. The board is server-rendered; listing pages carry job cards and
// each card links to a detail page with the full description.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/wildlife-grad/backend/internal/postings"
	"github.com/wildlife-grad/backend/internal/storage/models"
	"github.com/wildlife-grad/backend/pkg/circuitbreaker"
	"github.com/wildlife-grad/backend/pkg/logger"
	"github.com/wildlife-grad/backend/pkg/retry"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

type Config struct {
	BaseURL      string
	MaxPages     int
	Timeout      time.Duration
	FetchDetails bool
}

type Scraper struct {
	cfg        Config
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
}

func New(cfg Config) *Scraper {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://jobs.rwfm.tamu.edu/search/"
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Scraper{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		breaker: circuitbreaker.NewCircuitBreaker("job-board", circuitbreaker.Config{
			FailureThreshold: 3,
			SuccessThreshold: 1,
			Timeout:          2 * time.Minute,
		}),
	}
}

// FetchPostings walks listing pages until one comes back empty or the page
// cap is hit. Postings already carry their derived position keys.
func (s *Scraper) FetchPostings(ctx context.Context) ([]models.JobPosting, error) {
	var out []models.JobPosting

	for page := 1; page <= s.cfg.MaxPages; page++ {
		doc, err := s.fetchPage(ctx, page)
		if err != nil {
			if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
				return out, fmt.Errorf("job board unavailable: %w", err)
			}
			return out, err
		}

		cards := s.parseListing(doc)
		if len(cards) == 0 {
			break
		}
		out = append(out, cards...)
	}

	if s.cfg.FetchDetails {
		for i := range out {
			if out[i].URL == "" {
				continue
			}
			detail, err := s.fetchDetail(ctx, out[i].URL)
			if err != nil {
				logger.Warn("Failed to fetch posting detail",
					zap.String("url", out[i].URL),
					zap.Error(err),
				)
				continue
			}
			out[i].Description = detail
		}
	}

	now := time.Now()
	for i := range out {
		out[i].PositionKey = postings.PositionKey(out[i])
		out[i].ScrapedAt = now
	}

	logger.Info("Scrape completed", zap.Int("postings", len(out)))
	return out, nil
}

func (s *Scraper) fetchPage(ctx context.Context, page int) (*goquery.Document, error) {
	pageURL := s.cfg.BaseURL
	if page > 1 {
		sep := "?"
		if strings.Contains(pageURL, "?") {
			sep = "&"
		}
		pageURL = fmt.Sprintf("%s%spage=%d", pageURL, sep, page)
	}

	var doc *goquery.Document
	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		return s.breaker.Execute(ctx, func() error {
			req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
			if err != nil {
				return fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("User-Agent", userAgent)

			resp, err := s.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("failed to fetch page: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("job board returned status %d", resp.StatusCode)
			}

			doc, err = goquery.NewDocumentFromReader(resp.Body)
			if err != nil {
				return fmt.Errorf("failed to parse HTML: %w", err)
			}
			return nil
		})
	})
	return doc, err
}

// parseListing extracts job cards from one listing page.
func (s *Scraper) parseListing(doc *goquery.Document) []models.JobPosting {
	var out []models.JobPosting

	doc.Find("a.list-group-item").Each(func(i int, card *goquery.Selection) {
		title := strings.TrimSpace(card.Find("h6").First().Text())
		if title == "" {
			return
		}

		href, _ := card.Attr("href")

		var tags []string
		card.Find(".badge.bg-secondary").Each(func(_ int, badge *goquery.Selection) {
			if t := strings.TrimSpace(badge.Text()); t != "" {
				tags = append(tags, t)
			}
		})

		smalls := card.Find("small")
		org := strings.TrimSpace(smalls.Eq(0).Text())
		loc := strings.TrimSpace(smalls.Eq(1).Text())
		published := strings.TrimSpace(card.Find(".text-muted").Last().Text())

		out = append(out, models.JobPosting{
			Title:         title,
			Organization:  org,
			Location:      loc,
			URL:           s.resolveURL(href),
			Tags:          strings.Join(tags, ", "),
			PublishedDate: published,
		})
	})

	return out
}

// fetchDetail pulls the posting's full text from its detail page.
func (s *Scraper) fetchDetail(ctx context.Context, urlStr string) (string, error) {
	var text string
	err := s.breaker.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, "GET", urlStr, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("detail page returned status %d", resp.StatusCode)
		}

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		if err != nil {
			return err
		}

		doc.Find("script, style, nav, footer, header").Remove()
		text = strings.TrimSpace(doc.Find("body").Text())
		if len(text) > 5000 {
			text = text[:5000]
		}
		return nil
	})
	return text, err
}

func (s *Scraper) resolveURL(href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if ref.IsAbs() {
		return href
	}
	base, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
