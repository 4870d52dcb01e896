// Package budget provides token budget estimation and trimming for the
// answer engine. Because ragnar supports multiple model backends with
// different tokenizers, this package uses a conservative character-based
// heuristic: 1 token ≈ 4 characters (English prose). This deliberately
// under-estimates token counts to leave headroom for model-specific overhead.
package budget

import (
	"github.com/cloudwego/eino/schema"

	"github.com/ragnar-ai/ragnar/internal/rag"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English; using 3 would be
	// more aggressive but risks overflowing context windows.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input context budget in tokens.
	// Conservative enough to fit within 8k-context models (Llama 3 8B,
	// GPT-3.5) while leaving room for the output.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// TrimHistory removes the oldest messages from history until the total
// estimated token count of fixed + history fits within maxTokens. fixed
// contains messages that must not be trimmed (system prompt, retrieved
// context, current question). history contains prior conversation turns that
// may be dropped oldest-first.
//
// Returns the trimmed history slice. If even an empty history exceeds the
// budget, the empty slice is returned (fixed messages are never dropped here;
// callers should warn separately if fixed alone exceeds the budget).
func TrimHistory(fixed, history []*schema.Message, maxTokens int) []*schema.Message {
	if len(history) == 0 {
		return history
	}

	fixedTokens := EstimateMessages(fixed)

	// History is typically ≤20 messages; a linear scan dropping the oldest is
	// clear and correct.
	for len(history) > 0 {
		if fixedTokens+EstimateMessages(history) <= maxTokens {
			break
		}
		history = history[1:]
	}
	return history
}

// TrimChunks drops the lowest-scored retrieved chunks until their combined
// estimated token count fits within maxTokens. Chunks are assumed to arrive
// sorted by descending score, so trimming happens from the tail. At least one
// chunk is always kept so the model sees some context even when a single
// chunk exceeds the budget.
func TrimChunks(chunks []rag.Chunk, maxTokens int) []rag.Chunk {
	if len(chunks) <= 1 {
		return chunks
	}

	total := 0
	for _, c := range chunks {
		total += Estimate(c.Text)
	}
	for len(chunks) > 1 && total > maxTokens {
		last := chunks[len(chunks)-1]
		total -= Estimate(last.Text)
		chunks = chunks[:len(chunks)-1]
	}
	return chunks
}
