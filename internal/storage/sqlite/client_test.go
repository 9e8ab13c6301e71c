package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wildlife-grad/backend/internal/storage/models"
	"github.com/wildlife-grad/backend/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.InitNop()
	os.Exit(m.Run())
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	if err := client.InitSchema(); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}
	return client
}

func samplePosting(key string) models.JobPosting {
	return models.JobPosting{
		PositionKey:   key,
		Title:         "Graduate Research Assistant",
		Organization:  "State University",
		Location:      "Lubbock, TX",
		URL:           "https://example.com/" + key,
		Tags:          "Graduate Opportunities",
		Description:   "Deer movement ecology in west Texas.",
		PublishedDate: "8/1/2026",
		ScrapedAt:     time.Unix(1756400000, 0),
	}
}

func TestUpsertAndListPostings(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	posting := samplePosting("url::https://example.com/1")
	if err := client.UpsertPostings(ctx, []models.JobPosting{posting}); err != nil {
		t.Fatalf("UpsertPostings failed: %v", err)
	}

	list, err := client.ListPostings()
	if err != nil {
		t.Fatalf("ListPostings failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 posting, got %d", len(list))
	}

	got := list[0]
	if got.PositionKey != posting.PositionKey || got.Title != posting.Title {
		t.Fatalf("posting did not round-trip: %+v", got)
	}
	if got.Organization != posting.Organization || got.Description != posting.Description {
		t.Fatalf("scraped fields did not round-trip: %+v", got)
	}
	if !got.ScrapedAt.Equal(posting.ScrapedAt) {
		t.Fatalf("scraped_at mismatch: %v vs %v", got.ScrapedAt, posting.ScrapedAt)
	}
}

func TestUpsertPreservesDisciplineFinal(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	key := "url::https://example.com/1"
	if err := client.UpsertPostings(ctx, []models.JobPosting{samplePosting(key)}); err != nil {
		t.Fatal(err)
	}
	if err := client.SetDisciplineFinal(key, "Wildlife"); err != nil {
		t.Fatal(err)
	}

	// Re-scrape with a changed title and no discipline.
	updated := samplePosting(key)
	updated.Title = "Graduate Research Assistant (Updated)"
	if err := client.UpsertPostings(ctx, []models.JobPosting{updated}); err != nil {
		t.Fatal(err)
	}

	list, err := client.ListPostings()
	if err != nil {
		t.Fatal(err)
	}
	if list[0].Title != "Graduate Research Assistant (Updated)" {
		t.Fatalf("expected title refreshed, got %q", list[0].Title)
	}
	if list[0].DisciplineFinal != "Wildlife" {
		t.Fatalf("expected discipline_final preserved across re-scrape, got %q", list[0].DisciplineFinal)
	}
}

func TestSaveClassification(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	key := "url::https://example.com/1"
	if err := client.UpsertPostings(ctx, []models.JobPosting{samplePosting(key)}); err != nil {
		t.Fatal(err)
	}

	result := models.ClassificationResult{
		PositionKey:    key,
		PredictedLabel: "Wildlife",
		Secondary:      "Forestry and Habitat",
		Confidence:     0.82,
		Margin:         0.3,
		ModelVersion:   "20260801_abcd1234",
	}
	if err := client.SaveClassification(ctx, key, result, true, 0.7, "Graduate Assistantship"); err != nil {
		t.Fatalf("SaveClassification failed: %v", err)
	}

	list, err := client.ListPostings()
	if err != nil {
		t.Fatal(err)
	}
	got := list[0]
	if got.ModelSuggested != "Wildlife" || got.ModelSecondary != "Forestry and Habitat" {
		t.Fatalf("model fields not saved: %+v", got)
	}
	if got.ModelConfidence != 0.82 || got.ModelMargin != 0.3 || got.ModelVersion != "20260801_abcd1234" {
		t.Fatalf("model metrics not saved: %+v", got)
	}
	if !got.IsGraduatePosition || got.GradConfidence != 0.7 || got.PositionType != "Graduate Assistantship" {
		t.Fatalf("graduate fields not saved: %+v", got)
	}
	// Blank discipline_final is filled from the prediction.
	if got.DisciplineFinal != "Wildlife" {
		t.Fatalf("expected blank discipline_final filled, got %q", got.DisciplineFinal)
	}
}

func TestSaveClassificationKeepsExistingFinal(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	key := "url::https://example.com/1"
	if err := client.UpsertPostings(ctx, []models.JobPosting{samplePosting(key)}); err != nil {
		t.Fatal(err)
	}
	if err := client.SetDisciplineFinal(key, "Entomology"); err != nil {
		t.Fatal(err)
	}

	result := models.ClassificationResult{PredictedLabel: "Wildlife", Confidence: 0.9}
	if err := client.SaveClassification(ctx, key, result, false, 0, ""); err != nil {
		t.Fatal(err)
	}

	list, err := client.ListPostings()
	if err != nil {
		t.Fatal(err)
	}
	if list[0].DisciplineFinal != "Entomology" {
		t.Fatalf("classification must not overwrite a settled label, got %q", list[0].DisciplineFinal)
	}
	if list[0].ModelSuggested != "Wildlife" {
		t.Fatalf("suggestion should still refresh, got %q", list[0].ModelSuggested)
	}
}

func TestRecordAndListRuns(t *testing.T) {
	client := newTestClient(t)

	base := time.Unix(1756400000, 0)
	runs := []models.ClassificationRun{
		{ID: "run-1", ModelVersion: "v1", Postings: 10, Classified: 8, QueueSize: 2, StartedAt: base, FinishedAt: base.Add(time.Minute)},
		{ID: "run-2", ModelVersion: "v2", Postings: 12, Classified: 11, QueueSize: 1, StartedAt: base.Add(time.Hour), FinishedAt: base.Add(time.Hour + time.Minute)},
	}
	for _, run := range runs {
		if err := client.RecordRun(run); err != nil {
			t.Fatalf("RecordRun failed: %v", err)
		}
	}

	got, err := client.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(got))
	}
	// Newest first.
	if got[0].ID != "run-2" || got[1].ID != "run-1" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[0].Postings != 12 || got[0].QueueSize != 1 {
		t.Fatalf("run did not round-trip: %+v", got[0])
	}

	limited, err := client.ListRuns(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 || limited[0].ID != "run-2" {
		t.Fatalf("limit not applied: %+v", limited)
	}
}

func TestRecordReviewAudit(t *testing.T) {
	client := newTestClient(t)

	audit := models.ReviewAudit{
		BatchID:     "batch-1",
		PositionKey: "url::https://example.com/1",
		Action:      "override",
		Label:       "Wildlife",
		Reviewer:    "sam",
		CreatedAt:   time.Now(),
	}
	if err := client.RecordReviewAudit(audit); err != nil {
		t.Fatalf("RecordReviewAudit failed: %v", err)
	}
	// Insert a second row in the same batch to exercise the autoincrement key.
	if err := client.RecordReviewAudit(audit); err != nil {
		t.Fatalf("second RecordReviewAudit failed: %v", err)
	}
}
