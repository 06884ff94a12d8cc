// Package index holds the immutable in-memory vector index and its exact
// cosine-similarity search.
package index

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/seanblong/solutionfinder/pkg/models"
)

// Entry pairs a chunk with its embedding.
type Entry struct {
	Chunk  models.Chunk
	Vector []float32
}

// VectorIndex is built once and never mutated. Vectors are stored unit
// length so similarity is a dot product.
type VectorIndex struct {
	model   string
	dim     int
	entries []Entry
}

// New copies entries into a new index. Every vector must have dim components.
func New(model string, dim int, entries []Entry) (*VectorIndex, error) {
	if dim <= 0 && len(entries) > 0 {
		dim = len(entries[0].Vector)
	}
	out := make([]Entry, len(entries))
	for i, e := range entries {
		if len(e.Vector) != dim {
			return nil, fmt.Errorf("entry %d: dimension mismatch: expected %d, got %d", i, dim, len(e.Vector))
		}
		v := make([]float32, dim)
		copy(v, e.Vector)
		normalize(v)
		out[i] = Entry{Chunk: e.Chunk, Vector: v}
	}
	return &VectorIndex{model: model, dim: dim, entries: out}, nil
}

// Len is the number of chunks in the index.
func (ix *VectorIndex) Len() int { return len(ix.entries) }

// Dim is the embedding dimension.
func (ix *VectorIndex) Dim() int { return ix.dim }

// Model names the embedding model the vectors came from.
func (ix *VectorIndex) Model() string { return ix.model }

// Entries returns the entries in insertion order. Callers must not modify them.
func (ix *VectorIndex) Entries() []Entry { return ix.entries }

// Chunks returns the chunks in insertion order.
func (ix *VectorIndex) Chunks() []models.Chunk {
	out := make([]models.Chunk, len(ix.entries))
	for i, e := range ix.entries {
		out[i] = e.Chunk
	}
	return out
}

// Search returns the min(k, Len) entries most similar to vec, best first.
// Equal scores keep insertion order.
func (ix *VectorIndex) Search(vec []float32, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(ix.entries) == 0 {
		return nil, ErrEmptyIndex
	}
	if len(vec) != ix.dim {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", ix.dim, len(vec))
	}

	q := make([]float32, len(vec))
	copy(q, vec)
	normalize(q)

	type scored struct {
		i     int
		score float64
	}
	all := make([]scored, len(ix.entries))
	for i, e := range ix.entries {
		s := dot(q, e.Vector)
		if math.IsNaN(s) {
			s = math.Inf(-1)
		}
		all[i] = scored{i: i, score: s}
	}
	slices.SortStableFunc(all, func(a, b scored) int {
		return cmp.Compare(b.score, a.score)
	})

	k = min(k, len(all))
	out := make([]models.SearchResult, k)
	for j := 0; j < k; j++ {
		score := all[j].score
		if math.IsInf(score, 0) {
			score = 0
		}
		out[j] = models.SearchResult{Chunk: ix.entries[all[j].i].Chunk, Score: score}
	}
	return out, nil
}

// IsEmpty reports whether err is ErrEmptyIndex.
func IsEmpty(err error) bool { return errors.Is(err, ErrEmptyIndex) }

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
