package review

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wildlife-grad/backend/internal/disciplines"
	"github.com/wildlife-grad/backend/internal/gold"
	"github.com/wildlife-grad/backend/internal/storage/models"
	"github.com/wildlife-grad/backend/pkg/logger"
)

// ErrMissingOverrideValue marks an override decision whose
// reviewed_discipline cell was left blank.
var ErrMissingOverrideValue = errors.New("override requires reviewed_discipline")

// statusAliases tolerates the shorthand reviewers actually type.
var statusAliases = map[string]string{
	"accept_model": StatusAcceptModel,
	"accept":       StatusAcceptModel,
	"model":        StatusAcceptModel,
	"keep_final":   StatusKeepFinal,
	"keep":         StatusKeepFinal,
	"final":        StatusKeepFinal,
	"override":     StatusOverride,
	"set_label":    StatusOverride,
	"set":          StatusOverride,
	"skip":         StatusSkip,
	"":             StatusSkip,
	"pending":      StatusSkip,
}

// AuditRecorder persists one audit row per applied decision.
type AuditRecorder interface {
	RecordReviewAudit(audit models.ReviewAudit) error
}

// FinalWriter pushes a settled label back onto the stored posting.
type FinalWriter interface {
	SetDisciplineFinal(key, discipline string) error
}

// ImportStats summarizes one import run.
type ImportStats struct {
	BatchID   string   `json:"batch_id"`
	Processed int      `json:"processed"`
	Created   int      `json:"created"`
	Updated   int      `json:"updated"`
	Unchanged int      `json:"unchanged"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
}

// Importer merges reviewer decisions into the gold label store.
type Importer struct {
	store           *gold.Store
	audit           AuditRecorder
	finals          FinalWriter
	defaultReviewer string
}

// NewImporter builds an importer. audit and finals may be nil.
func NewImporter(store *gold.Store, audit AuditRecorder, finals FinalWriter, defaultReviewer string) *Importer {
	if defaultReviewer == "" {
		defaultReviewer = "discipline_queue_review"
	}
	return &Importer{store: store, audit: audit, finals: finals, defaultReviewer: defaultReviewer}
}

// resolveLabel turns a reviewed queue item into the gold label to write.
// A nil error with an empty label means the row is a deliberate no-op.
func resolveLabel(item QueueItem) (string, error) {
	action, ok := statusAliases[strings.ToLower(strings.TrimSpace(item.ReviewStatus))]
	if !ok {
		return "", fmt.Errorf("invalid review_status %q", item.ReviewStatus)
	}

	switch action {
	case StatusSkip:
		return "", nil
	case StatusAcceptModel:
		label := disciplines.Normalize(item.DisciplineModelSuggested)
		if label == "Other" {
			return "", fmt.Errorf("accept_model selected but model suggestion is %q", item.DisciplineModelSuggested)
		}
		return label, nil
	case StatusKeepFinal:
		return disciplines.Normalize(item.DisciplineFinal), nil
	case StatusOverride:
		if strings.TrimSpace(item.ReviewedDiscipline) == "" {
			return "", fmt.Errorf("position %s: %w", item.PositionKey, ErrMissingOverrideValue)
		}
		return disciplines.Normalize(item.ReviewedDiscipline), nil
	}
	return "", fmt.Errorf("unhandled review action %q", action)
}

// Apply merges a single reviewed item. The boolean reports whether the gold
// store changed. Override rows without a reviewed discipline fail with
// ErrMissingOverrideValue and leave the store untouched.
func (imp *Importer) Apply(item QueueItem, dryRun bool) (bool, error) {
	if item.PositionKey == "" {
		return false, errors.New("queue item has no position_key")
	}

	label, err := resolveLabel(item)
	if err != nil {
		return false, err
	}
	if label == "" {
		return false, nil
	}

	reviewer := strings.TrimSpace(item.Reviewer)
	if reviewer == "" {
		reviewer = imp.defaultReviewer
	}

	// Re-importing an already-applied decision is a no-op, which is what
	// makes repeated imports of the same queue state safe.
	if existing, found := imp.store.Get(item.PositionKey, gold.DimensionDiscipline); found {
		if existing.Label == label && existing.Source == gold.SourceImport && existing.Reviewer == reviewer {
			return false, nil
		}
	}

	if dryRun {
		return true, nil
	}

	err = imp.store.Upsert(gold.Label{
		PositionKey:  item.PositionKey,
		Dimension:    gold.DimensionDiscipline,
		Label:        label,
		Source:       gold.SourceImport,
		Reviewer:     reviewer,
		Notes:        item.ReviewNotes,
		Title:        item.Title,
		Organization: item.Organization,
	})
	if err != nil {
		return false, err
	}

	if imp.finals != nil {
		if err := imp.finals.SetDisciplineFinal(item.PositionKey, label); err != nil {
			logger.Warn("Failed to update stored discipline_final",
				zap.String("position_key", item.PositionKey),
				zap.Error(err),
			)
		}
	}
	return true, nil
}

// Import merges every reviewed item. Malformed rows are skipped and
// reported in the stats, never aborting the run; only a persistence failure
// returns an error. With dryRun set, intended changes are counted but
// nothing is written.
func (imp *Importer) Import(items []QueueItem, dryRun bool) (*ImportStats, error) {
	stats := &ImportStats{BatchID: uuid.New().String()}

	for i, item := range items {
		label, err := resolveLabel(item)
		if err != nil {
			stats.Skipped++
			stats.Errors = append(stats.Errors, fmt.Sprintf("row %d: %v", i+2, err))
			logger.Warn("Skipping malformed review row",
				zap.Int("row", i+2),
				zap.String("position_key", item.PositionKey),
				zap.Error(err),
			)
			continue
		}
		if label == "" || item.PositionKey == "" {
			stats.Skipped++
			continue
		}

		_, existed := imp.store.Get(item.PositionKey, gold.DimensionDiscipline)

		changed, err := imp.Apply(item, dryRun)
		if err != nil {
			return stats, fmt.Errorf("failed to apply review for %s: %w", item.PositionKey, err)
		}

		stats.Processed++
		switch {
		case !changed:
			stats.Unchanged++
		case existed:
			stats.Updated++
		default:
			stats.Created++
		}

		if changed && !dryRun && imp.audit != nil {
			audit := models.ReviewAudit{
				BatchID:     stats.BatchID,
				PositionKey: item.PositionKey,
				Action:      strings.ToLower(strings.TrimSpace(item.ReviewStatus)),
				Label:       label,
				Reviewer:    item.Reviewer,
				CreatedAt:   time.Now(),
			}
			if err := imp.audit.RecordReviewAudit(audit); err != nil {
				logger.Warn("Failed to record review audit", zap.Error(err))
			}
		}
	}

	logger.Info("Review import finished",
		zap.String("batch_id", stats.BatchID),
		zap.Bool("dry_run", dryRun),
		zap.Int("processed", stats.Processed),
		zap.Int("created", stats.Created),
		zap.Int("updated", stats.Updated),
		zap.Int("skipped", stats.Skipped),
	)
	return stats, nil
}
