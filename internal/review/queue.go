// Package review builds the human confidence-review queue and imports
// reviewer decisions back into the gold label store.
package review

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wildlife-grad/backend/internal/disciplines"
	"github.com/wildlife-grad/backend/internal/storage/models"
	"github.com/wildlife-grad/backend/pkg/atomicfile"
	"github.com/wildlife-grad/backend/pkg/logger"
)

// Review statuses a human can set on a queue row. An empty status means the
// row is still pending.
const (
	StatusPending     = "pending"
	StatusAcceptModel = "accept_model"
	StatusKeepFinal   = "keep_final"
	StatusOverride    = "override"
	StatusSkip        = "skip"
)

// QueueItem is one row of the confidence review queue. The queue is
// regenerated every run; it is a worksheet, not a log.
type QueueItem struct {
	PositionKey              string  `json:"position_key"`
	DisciplineFinal          string  `json:"discipline_final"`
	DisciplineModelSuggested string  `json:"discipline_model_suggested"`
	DisciplineModelSecondary string  `json:"discipline_model_secondary,omitempty"`
	Confidence               float64 `json:"confidence"`
	Margin                   float64 `json:"margin"`
	ReviewStatus             string  `json:"review_status"`
	ReviewedDiscipline       string  `json:"reviewed_discipline"`
	ReviewNotes              string  `json:"review_notes"`
	Reviewer                 string  `json:"reviewer"`
	Title                    string  `json:"title"`
	Organization             string  `json:"organization"`
	URL                      string  `json:"url"`
}

// BuilderConfig gates queue membership.
type BuilderConfig struct {
	// Threshold is the confidence below which a posting always queues.
	Threshold float64
	// DisagreeMinConfidence and DisagreeMinMargin gate the
	// model-disagrees-with-pipeline trigger so only confident
	// disagreements surface.
	DisagreeMinConfidence float64
	DisagreeMinMargin     float64
}

// BuildQueue selects postings needing human review: classifier confidence
// below the threshold, or a confident model prediction that disagrees with
// the pipeline's current label. Output is sorted lowest confidence first
// with position-key tie-breaks, so repeated builds on unchanged input are
// identical. Human-set review fields from prior, not-yet-imported items are
// merged in rather than reset to pending.
func BuildQueue(list []models.JobPosting, results map[string]models.ClassificationResult, prior []QueueItem, cfg BuilderConfig) []QueueItem {
	priorByKey := make(map[string]QueueItem, len(prior))
	for _, item := range prior {
		priorByKey[item.PositionKey] = item
	}

	var queue []QueueItem
	for _, p := range list {
		result, ok := results[p.PositionKey]
		if !ok {
			continue
		}

		final := disciplines.Normalize(p.DisciplineFinal)
		lowConfidence := result.Confidence < cfg.Threshold
		disagrees := result.PredictedLabel != "Other" &&
			result.PredictedLabel != final &&
			result.Confidence >= cfg.DisagreeMinConfidence &&
			result.Margin >= cfg.DisagreeMinMargin
		if !lowConfidence && !disagrees {
			continue
		}

		item := QueueItem{
			PositionKey:              p.PositionKey,
			DisciplineFinal:          final,
			DisciplineModelSuggested: result.PredictedLabel,
			DisciplineModelSecondary: result.Secondary,
			Confidence:               round4(result.Confidence),
			Margin:                   round4(result.Margin),
			ReviewStatus:             StatusPending,
			Title:                    p.Title,
			Organization:             p.Organization,
			URL:                      p.URL,
		}

		if old, found := priorByKey[p.PositionKey]; found {
			if old.ReviewStatus != "" && old.ReviewStatus != StatusPending {
				item.ReviewStatus = old.ReviewStatus
			}
			item.ReviewedDiscipline = old.ReviewedDiscipline
			item.ReviewNotes = old.ReviewNotes
			item.Reviewer = old.Reviewer
		}

		queue = append(queue, item)
	}

	sort.Slice(queue, func(i, j int) bool {
		if queue[i].Confidence != queue[j].Confidence {
			return queue[i].Confidence < queue[j].Confidence
		}
		return queue[i].PositionKey < queue[j].PositionKey
	})
	return queue
}

var csvHeader = []string{
	"position_key",
	"discipline_final",
	"discipline_model_suggested",
	"discipline_model_secondary",
	"confidence",
	"margin",
	"review_status",
	"reviewed_discipline",
	"review_notes",
	"reviewer",
	"title",
	"organization",
	"url",
}

// WriteQueue writes the CSV worksheet for reviewers and its JSON mirror.
// Both writes are atomic.
func WriteQueue(queue []QueueItem, csvPath, jsonPath string) error {
	var buf strings.Builder
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write queue header: %w", err)
	}
	for _, item := range queue {
		record := []string{
			item.PositionKey,
			item.DisciplineFinal,
			item.DisciplineModelSuggested,
			item.DisciplineModelSecondary,
			strconv.FormatFloat(item.Confidence, 'f', 4, 64),
			strconv.FormatFloat(item.Margin, 'f', 4, 64),
			csvStatus(item.ReviewStatus),
			item.ReviewedDiscipline,
			item.ReviewNotes,
			item.Reviewer,
			item.Title,
			item.Organization,
			item.URL,
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write queue row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush queue csv: %w", err)
	}
	if err := atomicfile.WriteFile(csvPath, []byte(buf.String()), 0644); err != nil {
		return fmt.Errorf("failed to persist queue csv: %w", err)
	}

	payload := struct {
		GeneratedAt time.Time   `json:"generated_at"`
		Count       int         `json:"count"`
		Items       []QueueItem `json:"items"`
	}{GeneratedAt: time.Now(), Count: len(queue), Items: queue}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode queue json: %w", err)
	}
	if err := atomicfile.WriteFile(jsonPath, data, 0644); err != nil {
		return fmt.Errorf("failed to persist queue json: %w", err)
	}

	logger.Info("Confidence queue written",
		zap.Int("items", len(queue)),
		zap.String("csv", csvPath),
	)
	return nil
}

// ReadQueueCSV loads a (possibly human-edited) queue CSV. Missing file
// yields an empty queue. Malformed rows are skipped and logged.
func ReadQueueCSV(path string) ([]QueueItem, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open queue csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[strings.TrimSpace(strings.ToLower(name))] = i
	}
	field := func(record []string, name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var items []QueueItem
	for i, record := range records[1:] {
		key := field(record, "position_key")
		if key == "" {
			logger.Warn("Skipping queue row without position_key", zap.Int("row", i+2))
			continue
		}
		confidence, _ := strconv.ParseFloat(field(record, "confidence"), 64)
		margin, _ := strconv.ParseFloat(field(record, "margin"), 64)
		items = append(items, QueueItem{
			PositionKey:              key,
			DisciplineFinal:          field(record, "discipline_final"),
			DisciplineModelSuggested: field(record, "discipline_model_suggested"),
			DisciplineModelSecondary: field(record, "discipline_model_secondary"),
			Confidence:               confidence,
			Margin:                   margin,
			ReviewStatus:             field(record, "review_status"),
			ReviewedDiscipline:       field(record, "reviewed_discipline"),
			ReviewNotes:              field(record, "review_notes"),
			Reviewer:                 field(record, "reviewer"),
			Title:                    field(record, "title"),
			Organization:             field(record, "organization"),
			URL:                      field(record, "url"),
		})
	}
	return items, nil
}

// csvStatus leaves pending rows blank in the worksheet; reviewers fill the
// cell in, they never need to clear it.
func csvStatus(status string) string {
	if status == StatusPending {
		return ""
	}
	return status
}

func round4(v float64) float64 {
	return float64(int(v*10000+0.5)) / 10000
}
