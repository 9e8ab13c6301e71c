package models

import "time"

// JobPosting is a scraped posting plus the labels the pipeline has
// assigned to it. PositionKey is stable across scrape runs.
type JobPosting struct {
	PositionKey         string    `json:"position_key"`
	Title               string    `json:"title"`
	Organization        string    `json:"organization"`
	Location            string    `json:"location"`
	URL                 string    `json:"url"`
	Tags                string    `json:"tags"`
	Description         string    `json:"description"`
	Requirements        string    `json:"requirements"`
	ProjectDetails      string    `json:"project_details"`
	PublishedDate       string    `json:"published_date"`
	DisciplineFinal     string    `json:"discipline_final"`
	IsGraduatePosition  bool      `json:"is_graduate_position"`
	GradConfidence      float64   `json:"grad_confidence"`
	PositionType        string    `json:"position_type"`
	ModelSuggested      string    `json:"model_suggested,omitempty"`
	ModelSecondary      string    `json:"model_secondary,omitempty"`
	ModelConfidence     float64   `json:"model_confidence,omitempty"`
	ModelMargin         float64   `json:"model_margin,omitempty"`
	ModelVersion        string    `json:"model_version,omitempty"`
	ScrapedAt           time.Time `json:"scraped_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// ClassificationResult is produced fresh for each posting on every run.
// It is embedded into postings, never persisted on its own.
type ClassificationResult struct {
	PositionKey    string  `json:"position_key"`
	PredictedLabel string  `json:"predicted_label"`
	Secondary      string  `json:"secondary,omitempty"`
	Confidence     float64 `json:"confidence"`
	Margin         float64 `json:"margin"`
	ModelVersion   string  `json:"model_version"`
}

// ClassificationRun records one batch pipeline execution.
type ClassificationRun struct {
	ID           string
	ModelVersion string
	Postings     int
	Classified   int
	QueueSize    int
	StartedAt    time.Time
	FinishedAt   time.Time
}

// ReviewAudit records one applied review decision during import.
type ReviewAudit struct {
	ID          int
	BatchID     string
	PositionKey string
	Action      string
	Label       string
	Reviewer    string
	CreatedAt   time.Time
}
