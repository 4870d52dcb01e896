package rag

import (
	"context"
	"fmt"
)

// DefaultRetriever implements Retriever by combining an Embedder and a
// VectorStore: it embeds the query at retrieval time and delegates the
// similarity search to the store. No re-ranking or deduplication is applied
// beyond what the store returns.
type DefaultRetriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// store performs the vector similarity search.
	store VectorStore

	// defaultTopK is the number of results when the caller passes 0.
	defaultTopK int
}

// NewRetriever constructs a DefaultRetriever. defaultTopK sets the fallback
// result count when Retrieve is called with topK=0; values <= 0 select 3.
func NewRetriever(embedder Embedder, store VectorStore, defaultTopK int) *DefaultRetriever {
	if defaultTopK <= 0 {
		defaultTopK = 3
	}
	return &DefaultRetriever{
		embedder:    embedder,
		store:       store,
		defaultTopK: defaultTopK,
	}
}

// Retrieve embeds the query and returns the top-k most similar chunks.
func (r *DefaultRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Chunk, error) {
	if topK <= 0 {
		topK = r.defaultTopK
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("rag: embedder returned no vector for query")
	}

	chunks, err := r.store.Search(ctx, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}

	return chunks, nil
}
