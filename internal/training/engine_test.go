package training

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/wildlife-grad/backend/internal/gold"
	"github.com/wildlife-grad/backend/internal/manifest"
	"github.com/wildlife-grad/backend/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.InitNop()
	os.Exit(m.Run())
}

func newTestStore(t *testing.T) *gold.Store {
	t.Helper()
	store, err := gold.Open(filepath.Join(t.TempDir(), "gold_labels.json"))
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func seedClass(t *testing.T, store *gold.Store, class, title string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := store.Upsert(gold.Label{
			PositionKey: fmt.Sprintf("url::https://example.com/%s/%d", class, i),
			Dimension:   gold.DimensionDiscipline,
			Label:       class,
			Source:      gold.SourceManualReview,
			Title:       title,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}

// seedSeparableStore fills three classes with disjoint vocabulary so a
// holdout evaluation classifies every validation example correctly.
func seedSeparableStore(t *testing.T, store *gold.Store) {
	t.Helper()
	seedClass(t, store, "Wildlife", "wildlife deer telemetry collaring ungulate", 8)
	seedClass(t, store, "Fisheries and Aquatic", "trout salmon stream electrofishing spawning", 8)
	seedClass(t, store, "Entomology", "beetle pollinator arthropod sweep netting", 8)
}

func TestRetrainGoldLabelCountGate(t *testing.T) {
	cases := []struct {
		name   string
		labels int
	}{
		{"zero labels", 0},
		{"one label", 1},
		{"one below threshold", 4},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			registry, err := manifest.Open(dir)
			if err != nil {
				t.Fatal(err)
			}
			engine := NewEngine(registry, dir, Config{})

			store := newTestStore(t)
			seedClass(t, store, "Wildlife", "wildlife deer telemetry", tc.labels)

			report, err := engine.Retrain(context.Background(), store)
			if err != nil {
				t.Fatalf("Retrain failed: %v", err)
			}
			if report.Decision != DecisionRejected || report.Reason != ReasonInsufficientGoldLabels {
				t.Fatalf("unexpected outcome: %s/%s", report.Decision, report.Reason)
			}
			if report.DatasetSize != tc.labels {
				t.Fatalf("expected dataset size %d, got %d", tc.labels, report.DatasetSize)
			}
			if registry.GetPromoted() != nil {
				t.Fatal("rejection must not promote")
			}
			if len(registry.History()) != 0 {
				t.Fatal("no candidate was fit, so no manifest event expected")
			}
			if _, err := os.Stat(filepath.Join(dir, "latest_training_report.json")); err != nil {
				t.Fatalf("expected training report on disk: %v", err)
			}
		})
	}
}

func TestRetrainProceedsAtMinGoldLabels(t *testing.T) {
	dir := t.TempDir()
	registry, err := manifest.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	engine := NewEngine(registry, dir, Config{})

	// Exactly the default minimum of 5 labels must pass the count gate.
	store := newTestStore(t)
	seedClass(t, store, "Wildlife", "wildlife deer telemetry collaring ungulate", 3)
	seedClass(t, store, "Fisheries and Aquatic", "trout salmon stream electrofishing spawning", 2)

	report, err := engine.Retrain(context.Background(), store)
	if err != nil {
		t.Fatalf("Retrain failed: %v", err)
	}
	if report.Reason == ReasonInsufficientGoldLabels {
		t.Fatalf("at-threshold label count must pass the gate, got %s/%s", report.Decision, report.Reason)
	}
	if report.Decision != DecisionPromoted || report.Reason != ReasonFirstPromotedModel {
		t.Fatalf("expected first promotion, got %s/%s", report.Decision, report.Reason)
	}
	if report.DatasetSize != 5 {
		t.Fatalf("expected dataset size 5, got %d", report.DatasetSize)
	}
}

func TestRetrainRejectsSingleClass(t *testing.T) {
	dir := t.TempDir()
	registry, err := manifest.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	engine := NewEngine(registry, dir, Config{})

	store := newTestStore(t)
	seedClass(t, store, "Wildlife", "wildlife deer telemetry", 6)

	report, err := engine.Retrain(context.Background(), store)
	if err != nil {
		t.Fatalf("Retrain failed: %v", err)
	}
	if report.Decision != DecisionRejected || report.Reason != ReasonInsufficientClassDiversity {
		t.Fatalf("unexpected outcome: %s/%s", report.Decision, report.Reason)
	}
	if registry.GetPromoted() != nil {
		t.Fatal("rejection must not promote")
	}
}

func TestRetrainFirstPromotion(t *testing.T) {
	dir := t.TempDir()
	registry, err := manifest.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	engine := NewEngine(registry, dir, Config{})

	store := newTestStore(t)
	seedSeparableStore(t, store)

	report, err := engine.Retrain(context.Background(), store)
	if err != nil {
		t.Fatalf("Retrain failed: %v", err)
	}
	if report.Decision != DecisionPromoted {
		t.Fatalf("expected promotion, got %s/%s", report.Decision, report.Reason)
	}
	if report.Reason != ReasonFirstPromotedModel {
		t.Fatalf("expected first_promoted_model, got %q", report.Reason)
	}
	if report.DatasetSize != 24 {
		t.Fatalf("unexpected dataset size %d", report.DatasetSize)
	}
	if report.ValidationMetric != 1.0 {
		t.Fatalf("disjoint-vocabulary classes should validate perfectly, got %v", report.ValidationMetric)
	}

	promoted := registry.GetPromoted()
	if promoted == nil {
		t.Fatal("expected a promoted entry")
	}
	if promoted.ModelID != report.ModelID {
		t.Fatalf("manifest promoted %q, report says %q", promoted.ModelID, report.ModelID)
	}
	// The promoted artifact is refit on every example, not just the split.
	if promoted.TrainingSetSize != 24 {
		t.Fatalf("expected full-set refit size 24, got %d", promoted.TrainingSetSize)
	}

	model, err := registry.LoadPromotedModel()
	if err != nil {
		t.Fatalf("LoadPromotedModel failed: %v", err)
	}
	if len(model.Classes) != 3 {
		t.Fatalf("expected 3 classes in promoted model, got %v", model.Classes)
	}
}

func TestRetrainRejectsWhenMetricDoesNotImprove(t *testing.T) {
	dir := t.TempDir()
	registry, err := manifest.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	engine := NewEngine(registry, dir, Config{})

	store := newTestStore(t)
	seedSeparableStore(t, store)

	first, err := engine.Retrain(context.Background(), store)
	if err != nil {
		t.Fatal(err)
	}
	if first.Decision != DecisionPromoted {
		t.Fatalf("setup promotion failed: %s/%s", first.Decision, first.Reason)
	}

	// Same store, same seed: the metric cannot strictly improve.
	second, err := engine.Retrain(context.Background(), store)
	if err != nil {
		t.Fatalf("second Retrain failed: %v", err)
	}
	if second.Decision != DecisionRejected || second.Reason != ReasonValidationNotImproved {
		t.Fatalf("expected validation_not_improved, got %s/%s", second.Decision, second.Reason)
	}
	if second.PriorMetric != first.ValidationMetric {
		t.Fatalf("prior metric %v should equal the promoted metric %v", second.PriorMetric, first.ValidationMetric)
	}

	promoted := registry.GetPromoted()
	if promoted == nil || promoted.ModelID != first.ModelID {
		t.Fatal("rejected retrain must leave the promoted model untouched")
	}
}

func TestRetrainDeterministicAcrossRuns(t *testing.T) {
	store := newTestStore(t)
	seedSeparableStore(t, store)

	run := func() *Report {
		dir := t.TempDir()
		registry, err := manifest.Open(dir)
		if err != nil {
			t.Fatal(err)
		}
		engine := NewEngine(registry, dir, Config{Seed: 7})
		report, err := engine.Retrain(context.Background(), store)
		if err != nil {
			t.Fatal(err)
		}
		return report
	}

	a, b := run(), run()
	if a.ValidationMetric != b.ValidationMetric || a.Accuracy != b.Accuracy {
		t.Fatalf("same seed and store must reproduce metrics: %+v vs %+v", a, b)
	}
	if a.ValidationSamples != b.ValidationSamples {
		t.Fatalf("validation split sizes differ: %d vs %d", a.ValidationSamples, b.ValidationSamples)
	}
}

func TestRetrainDropsRareClasses(t *testing.T) {
	dir := t.TempDir()
	registry, err := manifest.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	engine := NewEngine(registry, dir, Config{})

	store := newTestStore(t)
	seedSeparableStore(t, store)
	seedClass(t, store, "Agriculture", "cattle grazing pasture rangeland", 1)

	report, err := engine.Retrain(context.Background(), store)
	if err != nil {
		t.Fatalf("Retrain failed: %v", err)
	}
	if report.Decision != DecisionPromoted {
		t.Fatalf("expected promotion, got %s/%s", report.Decision, report.Reason)
	}

	model, err := registry.LoadPromotedModel()
	if err != nil {
		t.Fatal(err)
	}
	for _, class := range model.Classes {
		if class == "Agriculture" {
			t.Fatal("singleton class must be dropped before fitting")
		}
	}
}
