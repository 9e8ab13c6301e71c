package classifier

import (
	"math"
	"testing"

	"github.com/wildlife-grad/backend/internal/features"
)

func testModel(centroids map[string]features.SparseVector) *Model {
	classes := make([]string, 0, len(centroids))
	for class := range centroids {
		classes = append(classes, class)
	}
	return &Model{Version: "test", Classes: classes, Centroids: centroids}
}

func TestClassifyPicksBestClass(t *testing.T) {
	model := testModel(map[string]features.SparseVector{
		"Wildlife":              {0: 1},
		"Fisheries and Aquatic": {1: 1},
	})

	pred := Classify(features.SparseVector{0: 1}, model, RawStrategy{})
	if pred.Label != "Wildlife" {
		t.Fatalf("expected Wildlife, got %q", pred.Label)
	}
	if math.Abs(pred.Confidence-1) > 1e-9 {
		t.Fatalf("expected confidence 1, got %v", pred.Confidence)
	}
}

func TestClassifyTieBreaksAlphabetically(t *testing.T) {
	model := testModel(map[string]features.SparseVector{
		"Wildlife":   {0: 1},
		"Entomology": {0: 1},
	})

	pred := Classify(features.SparseVector{0: 1}, model, RawStrategy{})
	if pred.Label != "Entomology" {
		t.Fatalf("expected alphabetical tie-break to Entomology, got %q", pred.Label)
	}
}

func TestClassifyEmptyModel(t *testing.T) {
	pred := Classify(features.SparseVector{0: 1}, &Model{}, RawStrategy{})
	if pred.Label != "Other" {
		t.Fatalf("expected Other for empty model, got %q", pred.Label)
	}
}

func TestClassifyMargin(t *testing.T) {
	model := testModel(map[string]features.SparseVector{
		"Wildlife":              {0: 1},
		"Fisheries and Aquatic": {0: 0.6, 1: 0.8},
	})

	pred := Classify(features.SparseVector{0: 1}, model, MarginStrategy{})
	if pred.Label != "Wildlife" {
		t.Fatalf("expected Wildlife, got %q", pred.Label)
	}
	if math.Abs(pred.Margin-0.4) > 1e-9 {
		t.Fatalf("expected margin 0.4, got %v", pred.Margin)
	}
	if math.Abs(pred.Confidence-0.4) > 1e-9 {
		t.Fatalf("expected margin confidence 0.4, got %v", pred.Confidence)
	}
	if pred.Secondary != "Fisheries and Aquatic" {
		t.Fatalf("expected secondary Fisheries and Aquatic, got %q", pred.Secondary)
	}
}

func TestClassifySecondaryFloor(t *testing.T) {
	model := testModel(map[string]features.SparseVector{
		"Wildlife":   {0: 1},
		"Entomology": {1: 1},
	})

	pred := Classify(features.SparseVector{0: 1}, model, RawStrategy{})
	if pred.Secondary != "" {
		t.Fatalf("expected no secondary below similarity floor, got %q", pred.Secondary)
	}
}

func TestConfidenceStrategies(t *testing.T) {
	if got := (RawStrategy{}).Confidence(0.8, 0.3); math.Abs(got-0.8) > 1e-9 {
		t.Errorf("raw: expected 0.8, got %v", got)
	}
	if got := (MarginStrategy{}).Confidence(0.8, 0.3); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("margin: expected 0.5, got %v", got)
	}
	if got := (MarginStrategy{}).Confidence(1.5, 0); got != 1 {
		t.Errorf("margin: expected clamp to 1, got %v", got)
	}
}

func TestStrategyFromName(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"raw", "raw"},
		{"margin", "margin"},
		{"", "margin"},
	}
	for _, tc := range cases {
		strategy, err := StrategyFromName(tc.name)
		if err != nil {
			t.Fatalf("StrategyFromName(%q): %v", tc.name, err)
		}
		if strategy.Name() != tc.want {
			t.Errorf("StrategyFromName(%q) = %q, want %q", tc.name, strategy.Name(), tc.want)
		}
	}

	if _, err := StrategyFromName("bogus"); err == nil {
		t.Fatal("expected error for unknown strategy name")
	}
}
