package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are NOT suitable for embedding. If RAGNAR_EMBEDDING_MODEL
// matches any of these, a warning is emitted so the operator knows they may
// have misconfigured the pipeline.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
	"solar",
	"vicuna",
	"falcon",
	"yi-",
	"gemini-1.5",
	"gemini-2",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Validate checks that the embedding configuration is usable before any
// indexing or retrieval starts. It returns an error if the configuration is
// clearly broken (e.g. openai backend with no API key), and logs a warning if
// RAGNAR_EMBEDDING_MODEL looks like a chat model rather than an embedding
// model.
//
// This is a pre-flight check — call it before constructing the embedder so
// operators get a clear error at startup rather than a cryptic failure during
// the first embed call.
func Validate(log *slog.Logger) error {
	// Resolve the effective embedding backend.
	backend := os.Getenv("RAGNAR_EMBEDDING_PROVIDER")
	if backend == "" {
		backend = getEnvOrDefault("RAGNAR_MODEL_PROVIDER", "ollama")
	}

	// Warn if the resolved backend is inherited from the chat provider with no
	// explicit override — the user may have forgotten to set it.
	if backend != "ollama" && os.Getenv("RAGNAR_EMBEDDING_PROVIDER") == "" {
		log.Warn("embedder: RAGNAR_EMBEDDING_PROVIDER is not set — "+
			"inheriting RAGNAR_MODEL_PROVIDER as embedding backend",
			slog.String("backend", backend),
			slog.String("hint", "set RAGNAR_EMBEDDING_PROVIDER=ollama (or openai/azure/gemini) to be explicit"),
		)
	}

	// Validate backend-specific required config.
	switch backend {
	case "ollama":
		// No credentials required; the host defaults to localhost.

	case "openai":
		apiKey := os.Getenv("RAGNAR_EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return fmt.Errorf("embedder: no OpenAI API key found — set OPENAI_API_KEY or RAGNAR_EMBEDDING_API_KEY")
		}

	case "azure":
		apiKey := os.Getenv("RAGNAR_EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = os.Getenv("AZURE_OPENAI_API_KEY")
		}
		if apiKey == "" {
			return fmt.Errorf("embedder: no Azure API key found — set AZURE_OPENAI_API_KEY or RAGNAR_EMBEDDING_API_KEY")
		}
		endpoint := os.Getenv("RAGNAR_EMBEDDING_ENDPOINT")
		if endpoint == "" {
			endpoint = os.Getenv("AZURE_OPENAI_ENDPOINT")
		}
		if endpoint == "" {
			return fmt.Errorf("embedder: no Azure endpoint found — set AZURE_OPENAI_ENDPOINT or RAGNAR_EMBEDDING_ENDPOINT")
		}

	case "gemini":
		apiKey := os.Getenv("RAGNAR_EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = os.Getenv("GOOGLE_API_KEY")
		}
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return fmt.Errorf("embedder: no Gemini API key found — set GOOGLE_API_KEY, GEMINI_API_KEY or RAGNAR_EMBEDDING_API_KEY")
		}

	default:
		return fmt.Errorf("embedder: unknown backend %q — valid values: ollama, openai, azure, gemini", backend)
	}

	// Warn if RAGNAR_EMBEDDING_MODEL looks like a chat model.
	model := os.Getenv("RAGNAR_EMBEDDING_MODEL")
	if model != "" && looksLikeChatModel(model) {
		log.Warn("embedder: RAGNAR_EMBEDDING_MODEL looks like a chat model, not an embedding model — "+
			"this will likely produce poor or broken embeddings",
			slog.String("model", model),
			slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, text-embedding-3-small, gemini-embedding-001"),
		)
	}

	return nil
}
