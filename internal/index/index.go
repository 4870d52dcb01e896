// Package index implements ragnar's local similarity index: an in-memory,
// brute-force cosine search over chunk embeddings, with persistence to a
// directory on disk. It satisfies rag.VectorStore, so the pipeline and
// answer engine treat it interchangeably with the Qdrant backend.
//
// Brute force is a deliberate choice: the corpora ragnar targets are small
// (hundreds to low thousands of chunks), where a linear scan beats the
// bookkeeping cost of an approximate-nearest-neighbour structure.
package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/ragnar-ai/ragnar/internal/rag"
)

// Index is an in-memory vector index. It is safe for concurrent use: reads
// take a shared lock, upserts an exclusive one.
type Index struct {
	mu sync.RWMutex

	// dim is the vector dimensionality, fixed by the first upsert.
	dim int

	// model records which embedding model produced the vectors. Persisted so
	// a reloaded index can reject queries embedded with a different model.
	model string

	// chunks and vectors are parallel: vectors[i] is the embedding of
	// chunks[i]. Chunk Score fields are always zero here; scores are set on
	// copies returned from Search.
	chunks  []rag.Chunk
	vectors [][]float32

	// byID maps chunk ID to its slot for in-place upserts.
	byID map[string]int
}

// New constructs an empty index. modelInfo names the embedding model the
// vectors will come from; it may be empty.
func New(modelInfo string) *Index {
	return &Index{
		model: modelInfo,
		byID:  make(map[string]int),
	}
}

// ModelInfo returns the embedding model recorded for this index.
func (x *Index) ModelInfo() string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.model
}

// Dimension returns the vector dimensionality, or 0 before the first upsert.
func (x *Index) Dimension() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dim
}

// Upsert stores or replaces chunks with their embeddings. All vectors must
// share one dimensionality; the first batch fixes it for the index lifetime.
func (x *Index) Upsert(_ context.Context, chunks []rag.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("index: %d chunks but %d vectors", len(chunks), len(vectors))
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	for i, c := range chunks {
		v := vectors[i]
		if len(v) == 0 {
			return fmt.Errorf("index: empty vector for chunk %s", c.ID)
		}
		if x.dim == 0 {
			x.dim = len(v)
		}
		if len(v) != x.dim {
			return fmt.Errorf("index: vector for chunk %s has dimension %d, index has %d", c.ID, len(v), x.dim)
		}

		c.Score = 0
		if slot, ok := x.byID[c.ID]; ok {
			x.chunks[slot] = c
			x.vectors[slot] = v
			continue
		}
		x.byID[c.ID] = len(x.chunks)
		x.chunks = append(x.chunks, c)
		x.vectors = append(x.vectors, v)
	}
	return nil
}

// Search returns up to topK chunks ordered by descending cosine similarity
// to the query vector. Ties keep insertion order.
func (x *Index) Search(_ context.Context, queryVector []float32, topK int) ([]rag.Chunk, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if topK <= 0 {
		return nil, fmt.Errorf("index: topK must be positive, got %d", topK)
	}
	if x.dim == 0 {
		return nil, fmt.Errorf("index: empty index")
	}
	if len(queryVector) != x.dim {
		return nil, fmt.Errorf("index: query vector has dimension %d, index has %d", len(queryVector), x.dim)
	}

	results := make([]rag.Chunk, len(x.chunks))
	for i, c := range x.chunks {
		c.Score = cosine(queryVector, x.vectors[i])
		results[i] = c
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// Count returns the number of chunks stored.
func (x *Index) Count(_ context.Context) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.chunks), nil
}

// Close is a no-op for the in-memory index.
func (x *Index) Close() error { return nil }

// cosine computes the cosine similarity of two equal-length vectors.
// Zero vectors score 0 rather than NaN.
func cosine(a, b []float32) float32 {
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}
