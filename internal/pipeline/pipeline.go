// Package pipeline implements the corpus indexing pipeline.
// It chunks loaded documents, embeds each chunk, upserts the results into
// the vector store, optionally persists the store to disk, and runs a
// verification query against the freshly built index.
// The pipeline is invoked by the `ragnar index` CLI command.
package pipeline

import (
	"context"
	"fmt"

	"github.com/ragnar-ai/ragnar/internal/chunker"
	"github.com/ragnar-ai/ragnar/internal/corpus"
	"github.com/ragnar-ai/ragnar/internal/rag"
)

// DefaultVerifyQuery is the query run against the freshly built index to
// confirm end-to-end retrieval works.
const DefaultVerifyQuery = "What is RAG?"

// defaultEmbedBatch caps how many chunks are embedded per API call.
const defaultEmbedBatch = 64

// Saver is implemented by vector stores that can persist themselves to a
// directory on disk.
type Saver interface {
	Save(dir string) error
}

// Config holds the configuration for the indexing pipeline.
type Config struct {
	// Chunking controls how documents are split. Zero values take the
	// chunker defaults.
	Chunking chunker.Config

	// EmbedBatch caps how many chunks are sent per embedding call.
	// Defaults to 64 if zero.
	EmbedBatch int

	// SaveDir, when non-empty, is the directory the store is persisted to
	// after indexing. The store must implement Saver.
	SaveDir string

	// VerifyQuery is the retrieval query run after indexing to confirm the
	// index answers searches. Defaults to DefaultVerifyQuery. Set
	// SkipVerify to disable.
	VerifyQuery string

	// SkipVerify disables the post-index verification query.
	SkipVerify bool

	// VerifyTopK is the number of results requested by the verification
	// query. Defaults to 3 if zero.
	VerifyTopK int
}

// Pipeline orchestrates the chunk → embed → upsert → save → verify flow.
type Pipeline struct {
	embedder rag.Embedder
	store    rag.VectorStore
	cfg      *Config
	obs      Observer
}

// Result summarises a completed pipeline run.
type Result struct {
	// Documents is the number of input documents.
	Documents int
	// Chunks is the number of chunks produced and indexed.
	Chunks int
	// Stats describes the chunk size distribution.
	Stats chunker.Stats
	// Verified reports whether the verification query returned results.
	Verified bool
}

// New constructs a Pipeline from the provided dependencies and config.
// A nil observer disables progress reporting.
func New(embedder rag.Embedder, store rag.VectorStore, cfg *Config, obs Observer) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("pipeline: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("pipeline: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}

	// Defaults are applied to a copy; the caller's Config is left untouched.
	c := *cfg
	if c.Chunking == (chunker.Config{}) {
		c.Chunking = chunker.Default()
	} else if c.Chunking.MaxSize == 0 {
		c.Chunking.MaxSize = chunker.DefaultMaxSize
	}
	if err := c.Chunking.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if c.EmbedBatch <= 0 {
		c.EmbedBatch = defaultEmbedBatch
	}
	if c.VerifyQuery == "" {
		c.VerifyQuery = DefaultVerifyQuery
	}
	if c.VerifyTopK <= 0 {
		c.VerifyTopK = 3
	}
	if obs == nil {
		obs = NopObserver{}
	}

	return &Pipeline{
		embedder: embedder,
		store:    store,
		cfg:      &c,
		obs:      obs,
	}, nil
}

// Run indexes the given documents. Stages run sequentially and the first
// error aborts the run; every stage start, completion, and failure is
// reported to the observer.
func (p *Pipeline) Run(ctx context.Context, docs []corpus.Document) (*Result, error) {
	result := &Result{Documents: len(docs)}

	// Chunk.
	p.obs.StageStarted(StageChunk, fmt.Sprintf("%d documents", len(docs)))
	chunks, err := chunker.Split(docs, p.cfg.Chunking)
	if err != nil {
		return nil, p.fail(StageChunk, err)
	}
	if len(chunks) == 0 {
		return nil, p.fail(StageChunk, fmt.Errorf("pipeline: no chunks produced from %d documents", len(docs)))
	}
	result.Chunks = len(chunks)
	result.Stats = chunker.Summarise(chunks)
	p.obs.StageCompleted(StageChunk, fmt.Sprintf("%d chunks (min %d, max %d, avg %d chars)",
		len(chunks), result.Stats.Min, result.Stats.Max, result.Stats.Avg()))

	// Embed + upsert, batched so a large corpus does not exceed request
	// limits and progress is visible.
	p.obs.StageStarted(StageEmbed, fmt.Sprintf("%d chunks, batches of %d", len(chunks), p.cfg.EmbedBatch))
	ordinals := make(map[string]int, len(chunks))
	for n := 0; n < len(chunks); n += p.cfg.EmbedBatch {
		end := min(n+p.cfg.EmbedBatch, len(chunks))
		batch := chunks[n:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, p.fail(StageEmbed, fmt.Errorf("pipeline: embed batch at %d: %w", n, err))
		}
		if len(vectors) != len(batch) {
			return nil, p.fail(StageEmbed, fmt.Errorf("pipeline: embed batch at %d: expected %d vectors, got %d", n, len(batch), len(vectors)))
		}

		records := make([]rag.Chunk, len(batch))
		for i, c := range batch {
			ord := ordinals[chunkKey(c.Metadata)]
			ordinals[chunkKey(c.Metadata)] = ord + 1
			records[i] = rag.Chunk{
				ID:       rag.ChunkID(c.Metadata, ord),
				Text:     c.Text,
				Metadata: c.Metadata,
			}
		}
		if err := p.store.Upsert(ctx, records, vectors); err != nil {
			return nil, p.fail(StageStore, fmt.Errorf("pipeline: upsert batch at %d: %w", n, err))
		}
	}
	p.obs.StageCompleted(StageEmbed, fmt.Sprintf("%d chunks embedded and stored", len(chunks)))

	// Save.
	if p.cfg.SaveDir != "" {
		p.obs.StageStarted(StageSave, p.cfg.SaveDir)
		saver, ok := p.store.(Saver)
		if !ok {
			return nil, p.fail(StageSave, fmt.Errorf("pipeline: store %T does not support saving to disk", p.store))
		}
		if err := saver.Save(p.cfg.SaveDir); err != nil {
			return nil, p.fail(StageSave, fmt.Errorf("pipeline: save: %w", err))
		}
		p.obs.StageCompleted(StageSave, p.cfg.SaveDir)
	}

	// Verify.
	if !p.cfg.SkipVerify {
		p.obs.StageStarted(StageVerify, p.cfg.VerifyQuery)
		retriever := rag.NewRetriever(p.embedder, p.store, p.cfg.VerifyTopK)
		hits, err := retriever.Retrieve(ctx, p.cfg.VerifyQuery, p.cfg.VerifyTopK)
		if err != nil {
			return nil, p.fail(StageVerify, fmt.Errorf("pipeline: verify: %w", err))
		}
		result.Verified = len(hits) > 0
		p.obs.StageCompleted(StageVerify, fmt.Sprintf("%d results", len(hits)))
	}

	return result, nil
}

// fail reports the error to the observer and returns it for the caller.
func (p *Pipeline) fail(stage Stage, err error) error {
	p.obs.StageFailed(stage, err)
	return err
}

// chunkKey identifies a source document for ordinal assignment.
func chunkKey(m corpus.Metadata) string {
	return m.Category + "\x00" + m.Section + "\x00" + m.Title
}
