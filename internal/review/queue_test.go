package review

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wildlife-grad/backend/internal/storage/models"
	"github.com/wildlife-grad/backend/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.InitNop()
	os.Exit(m.Run())
}

func queueFixture() ([]models.JobPosting, map[string]models.ClassificationResult) {
	list := []models.JobPosting{
		{PositionKey: "url::low", Title: "Field Technician", DisciplineFinal: "Wildlife"},
		{PositionKey: "url::agree", Title: "Deer Biologist", DisciplineFinal: "Wildlife"},
		{PositionKey: "url::disagree", Title: "Stream Ecologist", DisciplineFinal: "Wildlife"},
		{PositionKey: "url::other", Title: "Program Assistant", DisciplineFinal: "Wildlife"},
		{PositionKey: "url::unclassified", Title: "No Model Output"},
	}
	results := map[string]models.ClassificationResult{
		"url::low":      {PositionKey: "url::low", PredictedLabel: "Wildlife", Confidence: 0.31, Margin: 0.05},
		"url::agree":    {PositionKey: "url::agree", PredictedLabel: "Wildlife", Confidence: 0.92, Margin: 0.4},
		"url::disagree": {PositionKey: "url::disagree", PredictedLabel: "Fisheries and Aquatic", Confidence: 0.88, Margin: 0.35},
		"url::other":    {PositionKey: "url::other", PredictedLabel: "Other", Confidence: 0.9, Margin: 0.5},
	}
	return list, results
}

func TestBuildQueueGating(t *testing.T) {
	list, results := queueFixture()
	queue := BuildQueue(list, results, nil, BuilderConfig{
		Threshold:             0.6,
		DisagreeMinConfidence: 0.75,
		DisagreeMinMargin:     0.2,
	})

	if len(queue) != 2 {
		t.Fatalf("expected 2 queued items, got %d: %+v", len(queue), queue)
	}
	// Sorted lowest confidence first.
	if queue[0].PositionKey != "url::low" {
		t.Fatalf("expected low-confidence posting first, got %q", queue[0].PositionKey)
	}
	if queue[1].PositionKey != "url::disagree" {
		t.Fatalf("expected confident disagreement queued, got %q", queue[1].PositionKey)
	}
	if queue[1].DisciplineModelSuggested != "Fisheries and Aquatic" {
		t.Fatalf("unexpected suggestion %q", queue[1].DisciplineModelSuggested)
	}
	for _, item := range queue {
		if item.ReviewStatus != StatusPending {
			t.Fatalf("fresh rows must be pending, got %q", item.ReviewStatus)
		}
	}
}

func TestBuildQueueSkipsConfidentAgreementAndOther(t *testing.T) {
	list, results := queueFixture()
	queue := BuildQueue(list, results, nil, BuilderConfig{
		Threshold:             0.6,
		DisagreeMinConfidence: 0.75,
		DisagreeMinMargin:     0.2,
	})
	for _, item := range queue {
		if item.PositionKey == "url::agree" {
			t.Fatal("confident agreement must not queue")
		}
		if item.PositionKey == "url::other" {
			t.Fatal("an Other prediction never counts as a disagreement")
		}
		if item.PositionKey == "url::unclassified" {
			t.Fatal("postings without a classification result must not queue")
		}
	}
}

func TestBuildQueuePreservesPriorReviewFields(t *testing.T) {
	list, results := queueFixture()
	prior := []QueueItem{
		{
			PositionKey:        "url::low",
			ReviewStatus:       StatusOverride,
			ReviewedDiscipline: "Entomology",
			ReviewNotes:        "clearly an insect survey",
			Reviewer:           "sam",
		},
	}

	queue := BuildQueue(list, results, prior, BuilderConfig{
		Threshold:             0.6,
		DisagreeMinConfidence: 0.75,
		DisagreeMinMargin:     0.2,
	})

	var found bool
	for _, item := range queue {
		if item.PositionKey != "url::low" {
			continue
		}
		found = true
		if item.ReviewStatus != StatusOverride {
			t.Fatalf("expected prior status preserved, got %q", item.ReviewStatus)
		}
		if item.ReviewedDiscipline != "Entomology" || item.Reviewer != "sam" {
			t.Fatalf("expected prior review fields preserved, got %+v", item)
		}
		if item.ReviewNotes != "clearly an insect survey" {
			t.Fatalf("expected notes preserved, got %q", item.ReviewNotes)
		}
	}
	if !found {
		t.Fatal("expected url::low in queue")
	}
}

func TestBuildQueueDeterministicOrder(t *testing.T) {
	list := []models.JobPosting{
		{PositionKey: "url::b"},
		{PositionKey: "url::a"},
		{PositionKey: "url::c"},
	}
	results := map[string]models.ClassificationResult{
		"url::a": {PredictedLabel: "Wildlife", Confidence: 0.2},
		"url::b": {PredictedLabel: "Wildlife", Confidence: 0.2},
		"url::c": {PredictedLabel: "Wildlife", Confidence: 0.1},
	}
	queue := BuildQueue(list, results, nil, BuilderConfig{Threshold: 0.5})
	if queue[0].PositionKey != "url::c" || queue[1].PositionKey != "url::a" || queue[2].PositionKey != "url::b" {
		t.Fatalf("unexpected order: %+v", queue)
	}
}

func TestWriteAndReadQueueRoundTrip(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "queue.csv")
	jsonPath := filepath.Join(dir, "queue.json")

	queue := []QueueItem{
		{
			PositionKey:              "url::one",
			DisciplineFinal:          "Wildlife",
			DisciplineModelSuggested: "Fisheries and Aquatic",
			DisciplineModelSecondary: "Wildlife",
			Confidence:               0.4321,
			Margin:                   0.1234,
			ReviewStatus:             StatusPending,
			Title:                    "Stream Ecologist, \"Upper Basin\"",
			Organization:             "State Agency",
			URL:                      "https://example.com/1",
		},
		{
			PositionKey:              "url::two",
			DisciplineModelSuggested: "Wildlife",
			Confidence:               0.5,
			ReviewStatus:             StatusAcceptModel,
			Reviewer:                 "sam",
		},
	}

	if err := WriteQueue(queue, csvPath, jsonPath); err != nil {
		t.Fatalf("WriteQueue failed: %v", err)
	}
	if _, err := os.Stat(jsonPath); err != nil {
		t.Fatalf("expected json mirror: %v", err)
	}

	items, err := ReadQueueCSV(csvPath)
	if err != nil {
		t.Fatalf("ReadQueueCSV failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(items))
	}

	first := items[0]
	if first.PositionKey != "url::one" || first.Confidence != 0.4321 || first.Margin != 0.1234 {
		t.Fatalf("row did not round-trip: %+v", first)
	}
	if first.Title != "Stream Ecologist, \"Upper Basin\"" {
		t.Fatalf("quoted title did not round-trip: %q", first.Title)
	}
	// Pending rows are written with a blank status cell.
	if first.ReviewStatus != "" {
		t.Fatalf("expected blank status for pending row, got %q", first.ReviewStatus)
	}
	if items[1].ReviewStatus != StatusAcceptModel || items[1].Reviewer != "sam" {
		t.Fatalf("reviewed row did not round-trip: %+v", items[1])
	}
}

func TestReadQueueCSVMissingFile(t *testing.T) {
	items, err := ReadQueueCSV(filepath.Join(t.TempDir(), "missing.csv"))
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if items != nil {
		t.Fatalf("expected nil queue, got %+v", items)
	}
}

func TestReadQueueCSVSkipsKeylessRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.csv")
	content := "position_key,review_status,reviewed_discipline\n" +
		",accept_model,\n" +
		"url::kept,override,Wildlife\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	items, err := ReadQueueCSV(path)
	if err != nil {
		t.Fatalf("ReadQueueCSV failed: %v", err)
	}
	if len(items) != 1 || items[0].PositionKey != "url::kept" {
		t.Fatalf("expected only the keyed row, got %+v", items)
	}
	if items[0].ReviewStatus != StatusOverride || items[0].ReviewedDiscipline != "Wildlife" {
		t.Fatalf("partial-header row did not parse: %+v", items[0])
	}
}
