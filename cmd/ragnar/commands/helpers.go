package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/ragnar-ai/ragnar/internal/embedder"
	"github.com/ragnar-ai/ragnar/internal/index"
	"github.com/ragnar-ai/ragnar/internal/rag"
)

// defaultIndexDir is where the on-disk index lives when RAGNAR_INDEX_DIR is
// not set.
const defaultIndexDir = "vector_store"

// indexDir resolves the on-disk index directory.
func indexDir() string {
	return getEnvOrDefault("RAGNAR_INDEX_DIR", defaultIndexDir)
}

// embeddingBackend resolves the effective embedding backend name, mirroring
// the cascade used by embedder.NewFromEnv.
func embeddingBackend() string {
	return getEnvOrDefault("RAGNAR_EMBEDDING_PROVIDER", getEnvOrDefault("RAGNAR_MODEL_PROVIDER", "ollama"))
}

// embeddingModelInfo labels an index with the backend and model that built
// it, so a later load can reject vectors from a different embedder.
func embeddingModelInfo() string {
	backend := embeddingBackend()
	model := os.Getenv("RAGNAR_EMBEDDING_MODEL")
	if model == "" {
		return backend
	}
	return backend + "/" + model
}

// newWriteStore constructs the vector store used for indexing: Qdrant when
// QDRANT_HOST is set, otherwise a fresh in-memory index that will be saved
// to disk by the pipeline.
func newWriteStore(ctx context.Context, log *slog.Logger) (rag.VectorStore, func(), error) {
	if os.Getenv("QDRANT_HOST") != "" {
		return openQdrant(ctx, log)
	}
	x := index.New(embeddingModelInfo())
	return x, func() {}, nil
}

// openReadStore constructs the vector store used for retrieval: Qdrant when
// QDRANT_HOST is set, otherwise the on-disk index loaded from indexDir.
func openReadStore(ctx context.Context, log *slog.Logger) (rag.VectorStore, func(), error) {
	if os.Getenv("QDRANT_HOST") != "" {
		return openQdrant(ctx, log)
	}

	dir := indexDir()
	x, err := index.Load(dir)
	if err != nil {
		if errors.Is(err, index.ErrNotFound) {
			return nil, nil, fmt.Errorf("no index found in %s — run `ragnar index` first", dir)
		}
		return nil, nil, fmt.Errorf("failed to load index from %s: %w", dir, err)
	}
	log.Info("index loaded",
		slog.String("dir", dir),
		slog.String("model", x.ModelInfo()),
		slog.Int("dimension", x.Dimension()),
	)
	return x, func() {}, nil
}

// openQdrant connects to the configured Qdrant instance.
func openQdrant(ctx context.Context, log *slog.Logger) (rag.VectorStore, func(), error) {
	host := getEnvOrDefault("QDRANT_HOST", "localhost")
	port := getEnvInt("QDRANT_PORT", 6334)
	collection := getEnvOrDefault("QDRANT_COLLECTION", "ragnar-corpus")
	vectorSize := uint64(embedder.DefaultDimensions(embeddingBackend())) //nolint:gosec // dimensions are bounded

	store, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
		Host:       host,
		Port:       port,
		Collection: collection,
		VectorSize: vectorSize,
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
	}
	log.Info("qdrant store ready",
		slog.String("host", host),
		slog.Int("port", port),
		slog.String("collection", collection),
	)
	return store, func() { _ = store.Close() }, nil
}

// buildEmbedder validates the embedding configuration and constructs the
// embedder from the environment.
func buildEmbedder(log *slog.Logger) (rag.Embedder, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised", slog.String("backend", embeddingBackend()))
	return emb, nil
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
