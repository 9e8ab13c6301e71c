// Package manifest tracks which model version is promoted to production and
// the history of attempted training runs. The manifest and every model
// artifact are JSON files written atomically, so a classifier mid-run sees
// either the old or the new promoted model, never a partial write.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wildlife-grad/backend/internal/classifier"
	"github.com/wildlife-grad/backend/pkg/atomicfile"
	"github.com/wildlife-grad/backend/pkg/logger"
)

// Metrics are the recorded validation metrics for a model version.
type Metrics struct {
	Accuracy          float64 `json:"accuracy"`
	MacroF1           float64 `json:"macro_f1"`
	EvaluationMode    string  `json:"evaluation_mode"`
	ValidationSamples int     `json:"validation_samples"`
}

// Entry points at one model artifact and its recorded metrics.
type Entry struct {
	ModelID         string    `json:"model_id"`
	ArtifactPath    string    `json:"artifact_path"`
	Metrics         Metrics   `json:"metrics"`
	TrainingSetSize int       `json:"training_set_size"`
	TrainedAt       time.Time `json:"trained_at"`
	PromotedAt      time.Time `json:"promoted_at,omitempty"`
}

// Event is one attempted training run and its outcome.
type Event struct {
	Timestamp    time.Time `json:"timestamp"`
	Status       string    `json:"status"`
	Reason       string    `json:"reason"`
	ModelID      string    `json:"model_id,omitempty"`
	ArtifactPath string    `json:"artifact_path,omitempty"`
	Metrics      *Metrics  `json:"metrics,omitempty"`
}

// Event statuses.
const (
	StatusPromoted = "promoted"
	StatusRejected = "candidate_rejected"
)

const maxHistory = 100

type manifestDoc struct {
	UpdatedAt time.Time `json:"updated_at"`
	Promoted  *Entry    `json:"promoted"`
	History   []Event   `json:"history"`
}

// Registry owns the manifest file and the model artifact directory.
type Registry struct {
	dir          string
	manifestPath string

	mu  sync.Mutex
	doc manifestDoc
}

// Open loads the registry rooted at dir, creating an empty manifest when no
// file exists yet.
func Open(dir string) (*Registry, error) {
	r := &Registry{
		dir:          dir,
		manifestPath: filepath.Join(dir, "manifest.json"),
	}

	data, err := os.ReadFile(r.manifestPath)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &r.doc); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return r, nil
}

// GetPromoted returns a copy of the promoted entry, or nil when no model has
// been promoted yet.
func (r *Registry) GetPromoted() *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.doc.Promoted == nil {
		return nil
	}
	entry := *r.doc.Promoted
	return &entry
}

// History returns the recorded training attempts, oldest first.
func (r *Registry) History() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, len(r.doc.History))
	copy(out, r.doc.History)
	return out
}

// SaveCandidate writes a candidate model artifact and returns its entry.
// The candidate is not promoted; an interrupted run leaves the promoted
// pointer untouched.
func (r *Registry) SaveCandidate(model *classifier.Model, metrics Metrics, trainingSetSize int) (Entry, error) {
	modelID := fmt.Sprintf("%s_%s", time.Now().Format("20060102_150405"), uuid.New().String()[:8])
	model.Version = modelID

	artifactDir := filepath.Join(r.dir, "models")
	artifactPath := filepath.Join(artifactDir, fmt.Sprintf("discipline_model_%s.json", modelID))

	data, err := json.MarshalIndent(model, "", "  ")
	if err != nil {
		return Entry{}, fmt.Errorf("failed to encode model artifact: %w", err)
	}
	if err := atomicfile.WriteFile(artifactPath, data, 0644); err != nil {
		return Entry{}, fmt.Errorf("failed to write model artifact: %w", err)
	}

	entry := Entry{
		ModelID:         modelID,
		ArtifactPath:    artifactPath,
		Metrics:         metrics,
		TrainingSetSize: trainingSetSize,
		TrainedAt:       time.Now(),
	}

	logger.Info("Candidate model saved",
		zap.String("model_id", modelID),
		zap.Float64("macro_f1", metrics.MacroF1),
	)
	return entry, nil
}

// Promote atomically replaces the promoted pointer with the candidate and
// records the event. Callers decide promotion; the registry only swaps.
func (r *Registry) Promote(entry Entry, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.PromotedAt = time.Now()
	r.doc.Promoted = &entry
	r.appendEventLocked(Event{
		Timestamp:    time.Now(),
		Status:       StatusPromoted,
		Reason:       reason,
		ModelID:      entry.ModelID,
		ArtifactPath: entry.ArtifactPath,
		Metrics:      &entry.Metrics,
	})

	if err := r.saveLocked(); err != nil {
		return err
	}

	logger.Info("Model promoted",
		zap.String("model_id", entry.ModelID),
		zap.String("reason", reason),
	)
	return nil
}

// RecordRejection appends a rejected training attempt to the history without
// touching the promoted pointer. entry may be nil when no candidate was fit.
func (r *Registry) RecordRejection(entry *Entry, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	event := Event{
		Timestamp: time.Now(),
		Status:    StatusRejected,
		Reason:    reason,
	}
	if entry != nil {
		event.ModelID = entry.ModelID
		event.ArtifactPath = entry.ArtifactPath
		event.Metrics = &entry.Metrics
	}
	r.appendEventLocked(event)

	return r.saveLocked()
}

// LoadPromotedModel reads the promoted model artifact. Returns (nil, nil)
// when nothing has been promoted.
func (r *Registry) LoadPromotedModel() (*classifier.Model, error) {
	promoted := r.GetPromoted()
	if promoted == nil {
		return nil, nil
	}
	return LoadModel(promoted.ArtifactPath)
}

// LoadModel reads a model artifact from disk.
func LoadModel(path string) (*classifier.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact: %w", err)
	}
	var model classifier.Model
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("failed to decode model artifact: %w", err)
	}
	return &model, nil
}

func (r *Registry) appendEventLocked(event Event) {
	r.doc.History = append(r.doc.History, event)
	if len(r.doc.History) > maxHistory {
		r.doc.History = r.doc.History[len(r.doc.History)-maxHistory:]
	}
}

func (r *Registry) saveLocked() error {
	r.doc.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(r.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := atomicfile.WriteFile(r.manifestPath, data, 0644); err != nil {
		return fmt.Errorf("failed to persist manifest: %w", err)
	}
	return nil
}
