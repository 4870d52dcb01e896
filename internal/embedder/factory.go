package embedder

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ragnar-ai/ragnar/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultGeminiModel = "gemini-embedding-001"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	// Other Ollama models may differ — override with RAGNAR_EMBEDDING_DIMENSIONS.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
	// defaultGeminiDimensions keeps Gemini vectors compact; the model supports
	// larger outputs but 768 is plenty for corpus retrieval.
	defaultGeminiDimensions = 768
)

// DefaultDimensions returns the default embedding vector size for the given
// backend name. Callers that need to pre-configure a vector store (e.g. a
// Qdrant collection) should use this rather than hardcoding a value.
// RAGNAR_EMBEDDING_DIMENSIONS always takes precedence when set.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("RAGNAR_EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case "ollama", "gemini":
		return defaultOllamaDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// NewFromEnv constructs a rag.Embedder using cascading defaults that inherit
// from the chat provider configuration when embedding-specific overrides are
// not set.
//
// Resolution order:
//
//  1. RAGNAR_EMBEDDING_PROVIDER — if unset, inherits RAGNAR_MODEL_PROVIDER (default: ollama)
//  2. Per-backend credentials are inherited from the chat provider's env vars
//  3. RAGNAR_EMBEDDING_MODEL — overrides the default model for the resolved backend
//  4. RAGNAR_EMBEDDING_API_KEY — overrides the inherited API key
//  5. RAGNAR_EMBEDDING_ENDPOINT — overrides the inherited endpoint
//  6. RAGNAR_EMBEDDING_DIMENSIONS — overrides the default dimensions
func NewFromEnv() (rag.Embedder, error) {
	backend := getEnv("RAGNAR_EMBEDDING_PROVIDER")
	if backend == "" {
		backend = getEnvOrDefault("RAGNAR_MODEL_PROVIDER", "ollama")
	}

	switch backend {
	case "ollama":
		host := getEnv("RAGNAR_EMBEDDING_ENDPOINT")
		if host == "" {
			host = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		}
		model := getEnvOrDefault("RAGNAR_EMBEDDING_MODEL", defaultOllamaModel)
		return NewOllamaEmbedder(&OllamaConfig{
			Host:  host,
			Model: model,
		}), nil

	case "openai":
		dims := getEnvInt("RAGNAR_EMBEDDING_DIMENSIONS", defaultOpenAIDimensions)
		apiKey := getEnv("RAGNAR_EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = getEnv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or RAGNAR_EMBEDDING_API_KEY")
		}
		baseURL := getEnv("RAGNAR_EMBEDDING_ENDPOINT")
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		model := getEnvOrDefault("RAGNAR_EMBEDDING_MODEL", defaultOpenAIModel)
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    baseURL,
			APIKey:     apiKey,
			Model:      model,
			Dimensions: dims,
		}), nil

	case "azure":
		dims := getEnvInt("RAGNAR_EMBEDDING_DIMENSIONS", defaultOpenAIDimensions)
		apiKey := getEnv("RAGNAR_EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = getEnv("AZURE_OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or RAGNAR_EMBEDDING_API_KEY")
		}
		endpoint := getEnv("RAGNAR_EMBEDDING_ENDPOINT")
		if endpoint == "" {
			endpoint = getEnv("AZURE_OPENAI_ENDPOINT")
		}
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or RAGNAR_EMBEDDING_ENDPOINT")
		}
		apiVersion := getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview")
		model := getEnvOrDefault("RAGNAR_EMBEDDING_MODEL", defaultOpenAIModel)
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    endpoint + "/openai",
			APIKey:     apiKey,
			Model:      model,
			Dimensions: dims,
			Azure:      true,
			APIVersion: apiVersion,
		}), nil

	case "gemini":
		dims := getEnvInt("RAGNAR_EMBEDDING_DIMENSIONS", defaultGeminiDimensions)
		apiKey := getEnv("RAGNAR_EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = getEnv("GOOGLE_API_KEY")
		}
		if apiKey == "" {
			apiKey = getEnv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: gemini requires GOOGLE_API_KEY, GEMINI_API_KEY or RAGNAR_EMBEDDING_API_KEY")
		}
		model := getEnvOrDefault("RAGNAR_EMBEDDING_MODEL", defaultGeminiModel)
		return NewGeminiEmbedder(&GeminiConfig{
			BaseURL:    getEnv("RAGNAR_EMBEDDING_ENDPOINT"),
			APIKey:     apiKey,
			Model:      model,
			Dimensions: dims,
		}), nil

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q — valid values: ollama, openai, azure, gemini", backend)
	}
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
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
