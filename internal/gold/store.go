// Package gold is the durable store of human-confirmed labels, the source of
// truth for training. Persistence is a single JSON file written atomically.
package gold

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wildlife-grad/backend/internal/disciplines"
	"github.com/wildlife-grad/backend/internal/postings"
	"github.com/wildlife-grad/backend/internal/storage/models"
	"github.com/wildlife-grad/backend/pkg/atomicfile"
	"github.com/wildlife-grad/backend/pkg/logger"
)

// Label dimensions. A position key carries at most one active label per
// dimension.
const (
	DimensionDiscipline = "discipline"
	DimensionGraduate   = "graduate"
)

// Label sources.
const (
	SourceManualReview = "manual_review"
	SourceAutoSeed     = "auto_seed"
	SourceImport       = "import"
)

// Label is one human-confirmed (or conservatively auto-seeded) ground-truth
// classification.
type Label struct {
	PositionKey        string    `json:"position_key"`
	Dimension          string    `json:"dimension"`
	Label              string    `json:"label"`
	Source             string    `json:"source"`
	ReviewerConfidence float64   `json:"reviewer_confidence"`
	Reviewer           string    `json:"reviewer,omitempty"`
	Notes              string    `json:"notes,omitempty"`
	Title              string    `json:"title,omitempty"`
	Organization       string    `json:"organization,omitempty"`
	Tags               string    `json:"tags,omitempty"`
	Description        string    `json:"description,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// Text returns the training text for the label.
func (l Label) Text() string {
	return postings.CombinedText(models.JobPosting{
		Title:        l.Title,
		Tags:         l.Tags,
		Organization: l.Organization,
		Description:  l.Description,
	})
}

type document struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	Labels    []Label   `json:"labels"`
}

// Store holds the gold labels for both dimensions. Single writer at a time;
// the mutex guards the in-memory copy, the atomic rename guards the file.
type Store struct {
	path string

	mu  sync.Mutex
	doc document
}

// Open loads the store at path, creating an empty one when the file does not
// exist. A malformed file is an error, never silently discarded.
func Open(path string) (*Store, error) {
	s := &Store{path: path, doc: document{Version: 1}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read gold label store: %w", err)
	}
	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("failed to decode gold label store: %w", err)
	}
	return s, nil
}

// Upsert writes a label, replacing any existing label for the same position
// key and dimension. The write is persisted atomically before returning.
func (s *Store) Upsert(label Label) error {
	if label.PositionKey == "" {
		return fmt.Errorf("gold label requires a position key")
	}
	if label.Dimension == "" {
		label.Dimension = DimensionDiscipline
	}
	if label.Dimension == DimensionDiscipline {
		label.Label = disciplines.Normalize(label.Label)
	}
	if label.ReviewerConfidence == 0 {
		label.ReviewerConfidence = 1.0
	}
	if label.CreatedAt.IsZero() {
		label.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i, existing := range s.doc.Labels {
		if existing.PositionKey == label.PositionKey && existing.Dimension == label.Dimension {
			s.doc.Labels[i] = label
			replaced = true
			break
		}
	}
	if !replaced {
		s.doc.Labels = append(s.doc.Labels, label)
	}

	return s.saveLocked()
}

// Get returns the active label for a position key and dimension.
func (s *Store) Get(positionKey, dimension string) (Label, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, label := range s.doc.Labels {
		if label.PositionKey == positionKey && label.Dimension == dimension {
			return label, true
		}
	}
	return Label{}, false
}

// All returns every label, discipline labels first, ordered by position key
// for deterministic training input.
func (s *Store) All() []Label {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Label, len(s.doc.Labels))
	copy(out, s.doc.Labels)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Dimension != out[j].Dimension {
			return out[i].Dimension < out[j].Dimension
		}
		return out[i].PositionKey < out[j].PositionKey
	})
	return out
}

// Disciplines returns only the discipline-dimension labels, ordered by
// position key.
func (s *Store) Disciplines() []Label {
	all := s.All()
	out := make([]Label, 0, len(all))
	for _, l := range all {
		if l.Dimension == DimensionDiscipline {
			out = append(out, l)
		}
	}
	return out
}

// Len returns the number of stored labels across dimensions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.doc.Labels)
}

// AutoSeed conservatively manufactures discipline gold labels from
// high-confidence postings so training can bootstrap without human review.
// Rules: never touch keys that already have a label, skip Other, require
// classifier confidence at or above minConfidence, require an explicit
// discipline keyword signal, skip classes with fewer than two candidates,
// and cap additions per class. Seeded labels are tagged source=auto_seed
// so training can down-weight or exclude them.
func (s *Store) AutoSeed(list []models.JobPosting, minConfidence float64, maxPerClass int) (int, error) {
	s.mu.Lock()
	existing := make(map[string]bool, len(s.doc.Labels))
	for _, l := range s.doc.Labels {
		if l.Dimension == DimensionDiscipline {
			existing[l.PositionKey] = true
		}
	}
	s.mu.Unlock()

	buckets := make(map[string][]models.JobPosting)
	for _, p := range list {
		if p.PositionKey == "" || existing[p.PositionKey] {
			continue
		}
		discipline := disciplines.Normalize(p.DisciplineFinal)
		if discipline == "Other" {
			continue
		}
		if p.ModelConfidence < minConfidence {
			continue
		}
		text := postings.CombinedText(p)
		if text == "" || !disciplines.HasStrongSignal(text, discipline) {
			continue
		}
		buckets[discipline] = append(buckets[discipline], p)
	}

	classes := make([]string, 0, len(buckets))
	for class, candidates := range buckets {
		if len(candidates) >= 2 {
			classes = append(classes, class)
		}
	}
	sort.Strings(classes)

	added := 0
	for _, class := range classes {
		candidates := buckets[class]
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].ModelConfidence != candidates[j].ModelConfidence {
				return candidates[i].ModelConfidence > candidates[j].ModelConfidence
			}
			return candidates[i].PositionKey < candidates[j].PositionKey
		})
		if maxPerClass > 0 && len(candidates) > maxPerClass {
			candidates = candidates[:maxPerClass]
		}
		for _, p := range candidates {
			err := s.Upsert(Label{
				PositionKey:        p.PositionKey,
				Dimension:          DimensionDiscipline,
				Label:              class,
				Source:             SourceAutoSeed,
				ReviewerConfidence: p.ModelConfidence,
				Title:              p.Title,
				Organization:       p.Organization,
				Tags:               p.Tags,
				Description:        p.Description,
			})
			if err != nil {
				return added, err
			}
			added++
		}
	}

	if added > 0 {
		logger.Info("Auto-seeded gold labels",
			zap.Int("added", added),
			zap.Int("classes", len(classes)),
		)
	}
	return added, nil
}

// saveLocked persists the store with write-to-temp-then-rename so a crash
// mid-write can never corrupt previously written labels.
func (s *Store) saveLocked() error {
	s.doc.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode gold label store: %w", err)
	}

	if err := atomicfile.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to persist gold label store: %w", err)
	}
	return nil
}
