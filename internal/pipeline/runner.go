// Package pipeline orchestrates one batch classification run: classify
// every stored posting with the promoted model, persist the results, and
// regenerate the confidence review queue.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wildlife-grad/backend/internal/classifier"
	"github.com/wildlife-grad/backend/internal/features"
	"github.com/wildlife-grad/backend/internal/manifest"
	"github.com/wildlife-grad/backend/internal/metrics"
	"github.com/wildlife-grad/backend/internal/postings"
	"github.com/wildlife-grad/backend/internal/review"
	"github.com/wildlife-grad/backend/internal/storage/models"
	"github.com/wildlife-grad/backend/internal/storage/sqlite"
	"github.com/wildlife-grad/backend/pkg/logger"
	"github.com/wildlife-grad/backend/pkg/runlock"
)

// Config carries the run-level settings.
type Config struct {
	LockPath              string
	QueueCSVPath          string
	QueueJSONPath         string
	ReviewThreshold       float64
	DisagreeMinConfidence float64
	DisagreeMinMargin     float64
	Workers               int
}

// RunSummary reports what one run did.
type RunSummary struct {
	RunID          string        `json:"run_id"`
	ModelVersion   string        `json:"model_version"`
	Postings       int           `json:"postings"`
	Classified     int           `json:"classified"`
	Unclassifiable int           `json:"unclassifiable"`
	QueueSize      int           `json:"queue_size"`
	Duration       time.Duration `json:"duration"`
}

// Runner executes batch runs.
type Runner struct {
	db       *sqlite.Client
	registry *manifest.Registry
	strategy classifier.ConfidenceStrategy
	cfg      Config
}

func NewRunner(db *sqlite.Client, registry *manifest.Registry, strategy classifier.ConfidenceStrategy, cfg Config) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Runner{db: db, registry: registry, strategy: strategy, cfg: cfg}
}

type classified struct {
	result models.ClassificationResult
	grad   classifier.GraduateDetection
}

// Run performs one full classification pass. A second concurrent run is
// refused via the run lock rather than interleaved.
func (r *Runner) Run(ctx context.Context) (*RunSummary, error) {
	lock, err := runlock.Acquire(r.cfg.LockPath)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	started := time.Now()
	summary := &RunSummary{RunID: uuid.New().String()}

	model, err := r.registry.LoadPromotedModel()
	if err != nil {
		return nil, fmt.Errorf("failed to load promoted model: %w", err)
	}
	if model == nil {
		logger.Warn("No promoted model; run will only refresh graduate detection")
	} else {
		summary.ModelVersion = model.Version
	}

	list, err := r.db.ListPostings()
	if err != nil {
		return nil, err
	}
	summary.Postings = len(list)

	logger.Info("Pipeline run started",
		zap.String("run_id", summary.RunID),
		zap.String("model_version", summary.ModelVersion),
		zap.Int("postings", len(list)),
	)

	outputs := r.classifyAll(list, model)

	results := make(map[string]models.ClassificationResult, len(outputs))
	for i, p := range list {
		out := outputs[i]
		if out == nil {
			summary.Unclassifiable++
			continue
		}

		if out.result.PredictedLabel != "" {
			results[p.PositionKey] = out.result
			summary.Classified++
			metrics.PostingsClassified.WithLabelValues(out.result.PredictedLabel).Inc()
			metrics.ClassificationConfidence.Observe(out.result.Confidence)
		}

		err := r.db.SaveClassification(ctx, p.PositionKey, out.result,
			out.grad.IsGraduate, out.grad.Confidence, out.grad.PositionType)
		if err != nil {
			// Persistence failures are fatal for the run; a half-written
			// posting set must not feed the queue.
			return nil, err
		}
	}

	prior, err := review.ReadQueueCSV(r.cfg.QueueCSVPath)
	if err != nil {
		logger.Warn("Failed to read prior queue; human edits may be lost", zap.Error(err))
	}

	queue := review.BuildQueue(list, results, prior, review.BuilderConfig{
		Threshold:             r.cfg.ReviewThreshold,
		DisagreeMinConfidence: r.cfg.DisagreeMinConfidence,
		DisagreeMinMargin:     r.cfg.DisagreeMinMargin,
	})
	summary.QueueSize = len(queue)

	if err := review.WriteQueue(queue, r.cfg.QueueCSVPath, r.cfg.QueueJSONPath); err != nil {
		return nil, err
	}

	summary.Duration = time.Since(started)
	metrics.QueueSize.Set(float64(len(queue)))
	metrics.PipelineRunDuration.Observe(summary.Duration.Seconds())

	err = r.db.RecordRun(models.ClassificationRun{
		ID:           summary.RunID,
		ModelVersion: summary.ModelVersion,
		Postings:     summary.Postings,
		Classified:   summary.Classified,
		QueueSize:    summary.QueueSize,
		StartedAt:    started,
		FinishedAt:   time.Now(),
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Pipeline run finished",
		zap.String("run_id", summary.RunID),
		zap.Int("classified", summary.Classified),
		zap.Int("unclassifiable", summary.Unclassifiable),
		zap.Int("queue_size", summary.QueueSize),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

// classifyAll scores postings across a bounded worker pool. Each posting is
// independent: the model is read-only and every worker writes only its own
// output slot.
func (r *Runner) classifyAll(list []models.JobPosting, model *classifier.Model) []*classified {
	outputs := make([]*classified, len(list))

	var wg sync.WaitGroup
	sem := make(chan struct{}, r.cfg.Workers)

	for i := range list {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			outputs[i] = r.classifyOne(list[i], model)
		}(i)
	}
	wg.Wait()

	return outputs
}

func (r *Runner) classifyOne(p models.JobPosting, model *classifier.Model) *classified {
	text := postings.CombinedText(p)
	if text == "" {
		metrics.UnclassifiablePostings.Inc()
		logger.Debug("Posting has no text", zap.String("position_key", p.PositionKey))
		return nil
	}

	out := &classified{grad: classifier.DetectGraduate(text)}
	if model == nil {
		return out
	}

	vec, err := model.Vocabulary.Vectorize(text)
	if err != nil {
		if errors.Is(err, features.ErrEmptyText) {
			metrics.UnclassifiablePostings.Inc()
			return nil
		}
		logger.Warn("Failed to vectorize posting",
			zap.String("position_key", p.PositionKey),
			zap.Error(err),
		)
		return out
	}

	pred := classifier.Classify(vec, model, r.strategy)
	out.result = models.ClassificationResult{
		PositionKey:    p.PositionKey,
		PredictedLabel: pred.Label,
		Secondary:      pred.Secondary,
		Confidence:     pred.Confidence,
		Margin:         pred.Margin,
		ModelVersion:   model.Version,
	}
	return out
}
