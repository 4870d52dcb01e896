// Package rag defines the interfaces for retrieval-augmented generation
// components: text embedding, vector storage, and chunk retrieval.
// Concrete implementations (the local index, Qdrant, the HTTP embedders)
// satisfy these interfaces so the answer engine never depends on a specific
// backend.
package rag

import (
	"context"

	"github.com/ragnar-ai/ragnar/internal/corpus"
)

// Chunk is a unit of stored or retrieved knowledge: a slice of a corpus
// document together with a copy of the document's metadata.
type Chunk struct {
	// ID is the unique identifier for this chunk. IDs are deterministic for
	// a given corpus, so re-indexing upserts rather than duplicates.
	ID string

	// Text is the chunk content.
	Text string

	// Metadata is the copy of the source document's metadata.
	Metadata corpus.Metadata

	// Score is the similarity score assigned during retrieval.
	// Zero on stored chunks; higher means more similar on results.
	Score float32
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice, and every vector
	// has the same dimensionality for a given model.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore persists chunk embeddings and answers nearest-neighbour
// queries over them. Implementations must be safe to call from multiple
// goroutines.
type VectorStore interface {
	// Upsert stores or updates a batch of chunks with their pre-computed
	// embeddings. vectors must be parallel to chunks.
	Upsert(ctx context.Context, chunks []Chunk, vectors [][]float32) error

	// Search returns up to topK chunks most similar to the query embedding,
	// ordered by descending score.
	Search(ctx context.Context, queryVector []float32, topK int) ([]Chunk, error)

	// Count returns the number of chunks currently stored.
	Count(ctx context.Context) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// Retriever is the high-level interface used by the answer engine to fetch
// relevant context for a question. It combines embedding and vector search.
type Retriever interface {
	// Retrieve returns the top-k most relevant chunks for the query.
	Retrieve(ctx context.Context, query string, topK int) ([]Chunk, error)
}
