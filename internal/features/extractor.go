// Package features converts posting text into sparse TF-IDF vectors over a
// fitted vocabulary. Extraction is deterministic: the same text against the
// same vocabulary always yields the same vector.
package features

import (
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/jdkato/prose/v2"
)

// ErrEmptyText is returned when a posting has no usable text. Callers treat
// the posting as unclassifiable rather than failing the run.
var ErrEmptyText = errors.New("no text to vectorize")

// SparseVector maps vocabulary indices to term weights.
type SparseVector map[int]float64

// Vocabulary is a fitted term index with inverse-document-frequency weights.
// Terms are stored in lexicographic order so fitting is reproducible.
type Vocabulary struct {
	Terms []string  `json:"terms"`
	IDF   []float64 `json:"idf"`

	// The term index is rebuilt after JSON decoding. Guarded by a Once so a
	// model shared across pipeline workers stays safe to read concurrently.
	indexOnce sync.Once
	index     map[string]int
}

// Tokenize lowercases, tokenizes, and filters stop words and non-alphabetic
// tokens. Tokens shorter than two runes are dropped.
func Tokenize(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var raw []string
	doc, err := prose.NewDocument(
		strings.ToLower(text),
		prose.WithTagging(false),
		prose.WithExtraction(false),
		prose.WithSegmentation(false),
	)
	if err != nil {
		raw = strings.Fields(strings.ToLower(text))
	} else {
		for _, tok := range doc.Tokens() {
			raw = append(raw, tok.Text)
		}
	}

	out := make([]string, 0, len(raw))
	for _, term := range raw {
		if len([]rune(term)) < 2 || !isAlphabetic(term) {
			continue
		}
		if _, stop := stopWords[term]; stop {
			continue
		}
		out = append(out, term)
	}
	return out
}

func isAlphabetic(term string) bool {
	for _, r := range term {
		if !unicode.IsLetter(r) && r != '-' && r != '\'' {
			return false
		}
	}
	return true
}

// Fit builds a vocabulary from a training corpus. IDF uses smoothed inverse
// document frequency: ln((1+N)/(1+df)) + 1.
func Fit(docs []string) (*Vocabulary, error) {
	if len(docs) == 0 {
		return nil, errors.New("cannot fit vocabulary on empty corpus")
	}

	docFreq := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]bool)
		for _, term := range Tokenize(doc) {
			if !seen[term] {
				seen[term] = true
				docFreq[term]++
			}
		}
	}
	if len(docFreq) == 0 {
		return nil, ErrEmptyText
	}

	terms := make([]string, 0, len(docFreq))
	for term := range docFreq {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	n := float64(len(docs))
	idf := make([]float64, len(terms))
	for i, term := range terms {
		idf[i] = math.Log((1+n)/(1+float64(docFreq[term]))) + 1
	}

	vocab := &Vocabulary{Terms: terms, IDF: idf}
	vocab.ensureIndex()
	return vocab, nil
}

func (v *Vocabulary) ensureIndex() {
	v.indexOnce.Do(func() {
		v.index = make(map[string]int, len(v.Terms))
		for i, term := range v.Terms {
			v.index[term] = i
		}
	})
}

// Size returns the number of terms in the vocabulary.
func (v *Vocabulary) Size() int {
	return len(v.Terms)
}

// Vectorize produces an L2-normalized TF-IDF vector for text. Terms outside
// the vocabulary are ignored. Returns ErrEmptyText when the text is blank or
// yields no tokens.
func (v *Vocabulary) Vectorize(text string) (SparseVector, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	v.ensureIndex()

	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil, ErrEmptyText
	}

	counts := make(map[int]float64)
	for _, term := range tokens {
		if idx, ok := v.index[term]; ok {
			counts[idx]++
		}
	}
	if len(counts) == 0 {
		// All tokens fell outside the vocabulary; an all-zero vector is
		// still a valid (if uninformative) input to the classifier.
		return SparseVector{}, nil
	}

	vec := make(SparseVector, len(counts))
	for idx, tf := range counts {
		vec[idx] = tf * v.IDF[idx]
	}
	return vec.Normalize(), nil
}

// Norm returns the Euclidean norm of the vector.
func (s SparseVector) Norm() float64 {
	var sum float64
	for _, w := range s {
		sum += w * w
	}
	return math.Sqrt(sum)
}

// Normalize scales the vector to unit length. Zero vectors are returned
// unchanged.
func (s SparseVector) Normalize() SparseVector {
	norm := s.Norm()
	if norm == 0 {
		return s
	}
	out := make(SparseVector, len(s))
	for idx, w := range s {
		out[idx] = w / norm
	}
	return out
}

// Dot computes the inner product with another sparse vector.
func (s SparseVector) Dot(other SparseVector) float64 {
	a, b := s, other
	if len(b) < len(a) {
		a, b = b, a
	}
	var sum float64
	for idx, w := range a {
		if ow, ok := b[idx]; ok {
			sum += w * ow
		}
	}
	return sum
}

// Cosine computes cosine similarity between two vectors.
func Cosine(a, b SparseVector) float64 {
	na, nb := a.Norm(), b.Norm()
	if na == 0 || nb == 0 {
		return 0
	}
	return a.Dot(b) / (na * nb)
}
