// Package training fits candidate discipline models from the gold label
// store, validates them on a held-out split, and decides promotion against
// the currently promoted model's recorded metrics.
package training

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/wildlife-grad/backend/internal/classifier"
	"github.com/wildlife-grad/backend/internal/features"
	"github.com/wildlife-grad/backend/internal/gold"
	"github.com/wildlife-grad/backend/internal/manifest"
	"github.com/wildlife-grad/backend/pkg/atomicfile"
	"github.com/wildlife-grad/backend/pkg/logger"
)

// Decisions and rejection reasons surfaced in training reports. Reasons are
// shown verbatim to operators, so they stay stable strings.
const (
	DecisionPromoted = "promoted"
	DecisionRejected = "rejected"

	ReasonPromoted                   = "promoted"
	ReasonFirstPromotedModel         = "first_promoted_model"
	ReasonInsufficientGoldLabels     = "insufficient_gold_labels"
	ReasonInsufficientClassDiversity = "insufficient_class_diversity"
	ReasonValidationNotImproved      = "validation_not_improved"
)

// Config are the training knobs.
type Config struct {
	MinGoldLabels    int
	MinClassExamples int
	HoldoutFraction  float64
	MinImprovement   float64
	AutoSeedWeight   float64
	Seed             int64
}

// Report is produced once per retraining invocation, whatever the outcome.
type Report struct {
	GeneratedAt       time.Time      `json:"generated_at"`
	DatasetSize       int            `json:"dataset_size"`
	ClassDistribution map[string]int `json:"class_distribution"`
	ValidationMetric  float64        `json:"validation_metric"`
	PriorMetric       float64        `json:"prior_metric"`
	Accuracy          float64        `json:"accuracy"`
	ValidationSamples int            `json:"validation_samples"`
	Decision          string         `json:"decision"`
	Reason            string         `json:"reason"`
	ModelID           string         `json:"model_id,omitempty"`
}

// Engine runs retraining against a registry.
type Engine struct {
	registry *manifest.Registry
	cfg      Config
	modelDir string
}

type example struct {
	key    string
	text   string
	label  string
	weight float64
}

// NewEngine builds a training engine. Reports are written under modelDir.
func NewEngine(registry *manifest.Registry, modelDir string, cfg Config) *Engine {
	if cfg.MinGoldLabels == 0 {
		cfg.MinGoldLabels = 5
	}
	if cfg.MinClassExamples == 0 {
		cfg.MinClassExamples = 2
	}
	if cfg.HoldoutFraction == 0 {
		cfg.HoldoutFraction = 0.2
	}
	if cfg.AutoSeedWeight == 0 {
		cfg.AutoSeedWeight = 0.35
	}
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	return &Engine{registry: registry, cfg: cfg, modelDir: modelDir}
}

// Retrain fits a candidate from the gold label store and decides promotion.
// State problems (too few labels, too few classes, no metric improvement)
// are reported as a rejected decision, never as an error; the promoted model
// stays untouched. Errors are reserved for persistence failures.
func (e *Engine) Retrain(ctx context.Context, store *gold.Store) (*Report, error) {
	examples := e.buildExamples(store)

	report := &Report{
		GeneratedAt:       time.Now(),
		DatasetSize:       len(examples),
		ClassDistribution: classDistribution(examples),
		Decision:          DecisionRejected,
	}
	if promoted := e.registry.GetPromoted(); promoted != nil {
		report.PriorMetric = promoted.Metrics.MacroF1
	}

	if len(examples) < e.cfg.MinGoldLabels {
		report.Reason = ReasonInsufficientGoldLabels
		logger.Warn("Retraining rejected",
			zap.String("reason", report.Reason),
			zap.Int("gold_labels", len(examples)),
			zap.Int("required", e.cfg.MinGoldLabels),
		)
		return report, e.writeReport(report)
	}

	examples, dropped := filterRareClasses(examples, e.cfg.MinClassExamples)
	if len(dropped) > 0 {
		logger.Info("Dropped rare classes from training set", zap.Any("classes", dropped))
	}
	if len(classDistribution(examples)) < 2 {
		report.Reason = ReasonInsufficientClassDiversity
		logger.Warn("Retraining rejected",
			zap.String("reason", report.Reason),
			zap.Int("classes", len(classDistribution(examples))),
		)
		return report, e.writeReport(report)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	trainSet, valSet := stratifiedSplit(examples, e.cfg.HoldoutFraction, e.cfg.Seed)

	evalModel, err := fitModel(trainSet)
	if err != nil {
		return nil, fmt.Errorf("failed to fit candidate model: %w", err)
	}
	metrics := evaluate(evalModel, valSet)
	metrics.EvaluationMode = "holdout"

	report.ValidationMetric = metrics.MacroF1
	report.Accuracy = metrics.Accuracy
	report.ValidationSamples = metrics.ValidationSamples

	promote, reason := e.promotionDecision(metrics)
	report.Reason = reason

	// The promoted artifact is refit on the full gold set; the holdout model
	// only exists to produce an honest validation metric.
	finalModel, err := fitModel(examples)
	if err != nil {
		return nil, fmt.Errorf("failed to fit final model: %w", err)
	}

	entry, err := e.registry.SaveCandidate(finalModel, metrics, len(examples))
	if err != nil {
		return nil, err
	}
	report.ModelID = entry.ModelID

	if promote {
		if err := e.registry.Promote(entry, reason); err != nil {
			return nil, err
		}
		report.Decision = DecisionPromoted
	} else {
		if err := e.registry.RecordRejection(&entry, reason); err != nil {
			return nil, err
		}
	}

	logger.Info("Retraining finished",
		zap.String("decision", report.Decision),
		zap.String("reason", report.Reason),
		zap.Float64("macro_f1", metrics.MacroF1),
		zap.Float64("prior_macro_f1", report.PriorMetric),
		zap.Int("dataset_size", report.DatasetSize),
	)
	return report, e.writeReport(report)
}

func (e *Engine) buildExamples(store *gold.Store) []example {
	labels := store.Disciplines()
	out := make([]example, 0, len(labels))
	for _, l := range labels {
		text := l.Text()
		if text == "" {
			continue
		}
		weight := 1.0
		if l.Source == gold.SourceAutoSeed {
			weight = e.cfg.AutoSeedWeight
		}
		out = append(out, example{key: l.PositionKey, text: text, label: l.Label, weight: weight})
	}
	return out
}

func (e *Engine) promotionDecision(metrics manifest.Metrics) (bool, string) {
	promoted := e.registry.GetPromoted()
	if promoted == nil {
		return true, ReasonFirstPromotedModel
	}
	// Strict improvement required; ties are rejected.
	if metrics.MacroF1 > promoted.Metrics.MacroF1+e.cfg.MinImprovement {
		return true, ReasonPromoted
	}
	return false, ReasonValidationNotImproved
}

func (e *Engine) writeReport(report *Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode training report: %w", err)
	}
	path := filepath.Join(e.modelDir, "latest_training_report.json")
	if err := atomicfile.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write training report: %w", err)
	}
	return nil
}

func classDistribution(examples []example) map[string]int {
	out := make(map[string]int)
	for _, ex := range examples {
		out[ex.label]++
	}
	return out
}

func filterRareClasses(examples []example, minCount int) ([]example, map[string]int) {
	counts := classDistribution(examples)
	dropped := make(map[string]int)
	out := make([]example, 0, len(examples))
	for _, ex := range examples {
		if counts[ex.label] < minCount {
			dropped[ex.label] = counts[ex.label]
			continue
		}
		out = append(out, ex)
	}
	return out, dropped
}

// stratifiedSplit partitions examples per class with a seeded shuffle so
// repeated retraining on identical input produces identical splits. Every
// class keeps at least one example on each side.
func stratifiedSplit(examples []example, holdout float64, seed int64) (train, val []example) {
	byClass := make(map[string][]int)
	for i, ex := range examples {
		byClass[ex.label] = append(byClass[ex.label], i)
	}

	classes := make([]string, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	rng := rand.New(rand.NewSource(seed))
	for _, class := range classes {
		indices := byClass[class]
		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})

		nVal := int(math.Round(holdout * float64(len(indices))))
		if nVal < 1 {
			nVal = 1
		}
		if nVal >= len(indices) {
			nVal = len(indices) - 1
		}
		for _, idx := range indices[:nVal] {
			val = append(val, examples[idx])
		}
		for _, idx := range indices[nVal:] {
			train = append(train, examples[idx])
		}
	}
	return train, val
}

// fitModel builds a vocabulary over the training texts and one weighted
// centroid per class.
func fitModel(examples []example) (*classifier.Model, error) {
	texts := make([]string, len(examples))
	for i, ex := range examples {
		texts[i] = ex.text
	}
	vocab, err := features.Fit(texts)
	if err != nil {
		return nil, err
	}

	sums := make(map[string]features.SparseVector)
	for _, ex := range examples {
		vec, err := vocab.Vectorize(ex.text)
		if err != nil {
			continue
		}
		centroid, ok := sums[ex.label]
		if !ok {
			centroid = make(features.SparseVector)
			sums[ex.label] = centroid
		}
		for idx, w := range vec {
			centroid[idx] += w * ex.weight
		}
	}

	classes := make([]string, 0, len(sums))
	centroids := make(map[string]features.SparseVector, len(sums))
	for class, sum := range sums {
		classes = append(classes, class)
		centroids[class] = sum.Normalize()
	}
	sort.Strings(classes)

	return &classifier.Model{
		Classes:    classes,
		Centroids:  centroids,
		Vocabulary: vocab,
	}, nil
}

// evaluate scores the model on the validation split.
func evaluate(model *classifier.Model, valSet []example) manifest.Metrics {
	var correct int
	yTrue := make([]string, 0, len(valSet))
	yPred := make([]string, 0, len(valSet))

	for _, ex := range valSet {
		vec, err := model.Vocabulary.Vectorize(ex.text)
		if err != nil {
			continue
		}
		pred := classifier.Classify(vec, model, classifier.RawStrategy{})
		yTrue = append(yTrue, ex.label)
		yPred = append(yPred, pred.Label)
		if pred.Label == ex.label {
			correct++
		}
	}

	metrics := manifest.Metrics{ValidationSamples: len(yTrue)}
	if len(yTrue) > 0 {
		metrics.Accuracy = float64(correct) / float64(len(yTrue))
		metrics.MacroF1 = macroF1(yTrue, yPred)
	}
	return metrics
}

// macroF1 averages per-class F1 over every class present in the truth or
// the predictions.
func macroF1(yTrue, yPred []string) float64 {
	classes := make(map[string]bool)
	for _, c := range yTrue {
		classes[c] = true
	}
	for _, c := range yPred {
		classes[c] = true
	}

	var sum float64
	for class := range classes {
		var tp, fp, fn float64
		for i := range yTrue {
			switch {
			case yPred[i] == class && yTrue[i] == class:
				tp++
			case yPred[i] == class:
				fp++
			case yTrue[i] == class:
				fn++
			}
		}
		if tp == 0 {
			continue
		}
		precision := tp / (tp + fp)
		recall := tp / (tp + fn)
		sum += 2 * precision * recall / (precision + recall)
	}
	return sum / float64(len(classes))
}
