package vectorstore

import (
	"fmt"
	"math"
	"sort"

	"factseeker/internal/core"
)

// Index is a flat nearest-neighbor index over document embeddings using
// exact L2 distance. Partitions and per-article caches are small enough
// (thousands of vectors) that a linear scan outperforms anything fancier
// once loading cost is counted.
//
// An Index is immutable after loading; Add is only called while building.
type Index struct {
	dim     int
	vectors [][]float32
	docs    []core.Document
}

// Match is one nearest-neighbor hit.
type Match struct {
	Document core.Document // matched document
	Distance float64       // L2 distance to the query vector
}

// New creates an empty index for vectors of the given dimensionality.
func New(dim int) *Index {
	return &Index{dim: dim}
}

// Dim returns the vector dimensionality.
func (ix *Index) Dim() int { return ix.dim }

// Len returns the number of stored vectors.
func (ix *Index) Len() int { return len(ix.vectors) }

// Add appends a document and its embedding to the index.
func (ix *Index) Add(doc core.Document, vector []float32) error {
	if len(vector) != ix.dim {
		return fmt.Errorf("vector dimension %d does not match index dimension %d", len(vector), ix.dim)
	}
	ix.vectors = append(ix.vectors, vector)
	ix.docs = append(ix.docs, doc)
	return nil
}

// AddBatch appends documents with their embeddings pairwise.
func (ix *Index) AddBatch(docs []core.Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return fmt.Errorf("document count %d does not match vector count %d", len(docs), len(vectors))
	}
	for i := range docs {
		if err := ix.Add(docs[i], vectors[i]); err != nil {
			return err
		}
	}
	return nil
}

// Search returns the k nearest documents to the query vector, ordered by
// ascending L2 distance. Fewer than k matches are returned when the index
// is smaller than k.
func (ix *Index) Search(query []float32, k int) []Match {
	if k <= 0 || len(ix.vectors) == 0 || len(query) != ix.dim {
		return nil
	}

	matches := make([]Match, 0, len(ix.vectors))
	for i, vec := range ix.vectors {
		matches = append(matches, Match{
			Document: ix.docs[i],
			Distance: l2Distance(query, vec),
		})
	}
	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Distance < matches[b].Distance
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// Documents returns the stored documents in insertion order. The returned
// slice is shared; callers must not mutate it.
func (ix *Index) Documents() []core.Document {
	return ix.docs
}

// l2Distance computes the Euclidean distance between two vectors of equal
// length.
func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
