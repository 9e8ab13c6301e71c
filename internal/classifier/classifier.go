// Package classifier scores postings against per-class centroid vectors and
// detects graduate positions.
package classifier

import (
	"sort"

	"github.com/wildlife-grad/backend/internal/features"
)

// tieTolerance bounds the similarity gap inside which two classes are
// considered tied and broken alphabetically.
const tieTolerance = 1e-9

// secondaryMinSimilarity is the floor below which a second-best class is not
// reported as a secondary discipline.
const secondaryMinSimilarity = 0.1

// Model is a trained similarity model: one L2-normalized centroid per class
// over a fitted vocabulary.
type Model struct {
	Version    string                           `json:"model_version"`
	Classes    []string                         `json:"classes"`
	Centroids  map[string]features.SparseVector `json:"centroids"`
	Vocabulary *features.Vocabulary             `json:"vocabulary"`
}

// Prediction is the classifier output for one posting.
type Prediction struct {
	Label      string
	Secondary  string
	Confidence float64
	Margin     float64
}

// SortedClasses returns the model classes in alphabetical order.
func (m *Model) SortedClasses() []string {
	out := make([]string, len(m.Classes))
	copy(out, m.Classes)
	sort.Strings(out)
	return out
}

// Classify scores vec against every class centroid and returns the arg-max
// class. Ties within floating-point tolerance break alphabetically so
// repeated runs are reproducible. Confidence comes from the configured
// strategy.
func Classify(vec features.SparseVector, model *Model, strategy ConfidenceStrategy) Prediction {
	var (
		best       = -1.0
		second     = -1.0
		bestClass  string
		secondName string
	)

	for _, class := range model.SortedClasses() {
		centroid, ok := model.Centroids[class]
		if !ok {
			continue
		}
		sim := features.Cosine(vec, centroid)
		switch {
		case sim > best+tieTolerance:
			second, secondName = best, bestClass
			best, bestClass = sim, class
		case sim > second+tieTolerance:
			second, secondName = sim, class
		}
	}

	if bestClass == "" {
		return Prediction{Label: "Other"}
	}
	if best < 0 {
		best = 0
	}
	if second < 0 {
		second = 0
	}

	pred := Prediction{
		Label:      bestClass,
		Confidence: strategy.Confidence(best, second),
		Margin:     best - second,
	}
	if secondName != "" && second >= secondaryMinSimilarity {
		pred.Secondary = secondName
	}
	return pred
}
