// Package answer implements the retrieve-and-generate engine at the heart of
// ragnar: given a question, it retrieves the most relevant corpus chunks and
// asks the chat model to answer using only that context.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/ragnar-ai/ragnar/internal/budget"
	"github.com/ragnar-ai/ragnar/internal/history"
	"github.com/ragnar-ai/ragnar/internal/logging"
	"github.com/ragnar-ai/ragnar/internal/rag"
)

// systemPrompt grounds the model in the retrieved context and nothing else.
const systemPrompt = `You are ragnar, a careful research assistant that answers
questions about a document corpus.

Answer the user's question based ONLY on the provided context. If the context
does not contain enough information to answer the question, say
"I don't have enough information to answer that." — do not guess and do not
use outside knowledge.

When you answer, cite the titles of the documents you drew from.`

// generator is the slice of the chat model the engine needs. Narrowing the
// dependency keeps tests free of a real model backend.
type generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Config holds the dependencies required to construct an Engine.
type Config struct {
	// ChatModel is the model backend constructed by the provider factory.
	ChatModel model.ChatModel //nolint:staticcheck // SA1019: model.ChatModel deprecated upstream; migration tracked separately

	// Retriever fetches the most relevant chunks for each question.
	Retriever rag.Retriever

	// TopK controls how many chunks are retrieved per question.
	// Defaults to 3 if zero.
	TopK int

	// History is the optional Q&A store used to persist and replay prior
	// turns. If nil, each question is stateless.
	History *history.Store

	// HistoryDepth is the number of prior turns (question+answer pairs) to
	// inject per question. Defaults to 10 if zero.
	HistoryDepth int

	// MaxContextTokens is the estimated token budget for the full input
	// (system prompt + history + retrieved context + question). Retrieved
	// chunks and history are trimmed to fit. Defaults to
	// budget.DefaultMaxContextTokens if zero.
	MaxContextTokens int
}

// Engine answers questions over the indexed corpus. It holds no per-question
// state and is safe for concurrent use.
type Engine struct {
	model            generator
	retriever        rag.Retriever
	topK             int
	history          *history.Store
	historyDepth     int
	maxContextTokens int
}

// Answer is the result of a single question.
type Answer struct {
	// Text is the model's response.
	Text string
	// Sources are the retrieved chunks the answer was grounded on, in
	// descending score order.
	Sources []rag.Chunk
}

// New constructs an Engine from the provided Config.
func New(cfg *Config) (*Engine, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("answer: ChatModel must not be nil")
	}
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("answer: Retriever must not be nil")
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = 3
	}
	depth := cfg.HistoryDepth
	if depth <= 0 {
		depth = 10
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}

	return &Engine{
		model:            cfg.ChatModel,
		retriever:        cfg.Retriever,
		topK:             topK,
		history:          cfg.History,
		historyDepth:     depth,
		maxContextTokens: maxCtx,
	}, nil
}

// Ask retrieves context for the question, generates an answer, and returns
// both the answer text and the chunks it was grounded on. If a history store
// is configured, the session's prior turns are injected and the new turn is
// persisted after completion. Persistence failures are logged, not returned.
func (e *Engine) Ask(ctx context.Context, session, question string) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("answer: question must not be empty")
	}

	chunks, err := e.retriever.Retrieve(ctx, question, e.topK)
	if err != nil {
		return nil, fmt.Errorf("answer: retrieval failed: %w", err)
	}
	chunks = budget.TrimChunks(chunks, e.maxContextTokens/2)

	messages := e.buildMessages(ctx, session, question, chunks)

	resp, err := e.model.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("answer: generation failed: %w", err)
	}

	if e.history != nil {
		if err := e.history.Append(ctx, session, history.RoleUser, question); err != nil {
			logging.FromContext(ctx).Warn("history: failed to persist question", slog.Any("error", err))
		}
		if err := e.history.Append(ctx, session, history.RoleAssistant, resp.Content); err != nil {
			logging.FromContext(ctx).Warn("history: failed to persist answer", slog.Any("error", err))
		}
	}

	return &Answer{Text: resp.Content, Sources: chunks}, nil
}

// buildMessages assembles the message slice: system prompt, trimmed history,
// retrieved context, then the question.
func (e *Engine) buildMessages(ctx context.Context, session, question string, chunks []rag.Chunk) []*schema.Message {
	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
	}

	var historyMsgs []*schema.Message
	if e.history != nil {
		prior, err := e.history.Recent(ctx, session, e.historyDepth*2)
		if err != nil {
			logging.FromContext(ctx).Warn("history: failed to load prior turns", slog.Any("error", err))
		} else {
			for _, m := range prior {
				switch m.Role {
				case history.RoleUser:
					historyMsgs = append(historyMsgs, schema.UserMessage(m.Content))
				case history.RoleAssistant:
					historyMsgs = append(historyMsgs, schema.AssistantMessage(m.Content, nil))
				}
			}
		}
	}

	if len(chunks) > 0 {
		messages = append(messages, schema.SystemMessage(buildContext(chunks)))
	}

	fixed := append(messages, schema.UserMessage(question)) //nolint:gocritic // intentional copy

	before := len(historyMsgs)
	historyMsgs = budget.TrimHistory(fixed, historyMsgs, e.maxContextTokens)
	if dropped := before - len(historyMsgs); dropped > 0 {
		logging.FromContext(ctx).Warn("budget: dropped history turns to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(historyMsgs)),
			slog.Int("max_tokens", e.maxContextTokens),
		)
	}

	// Final order: [system, ...history, ...context, question].
	result := make([]*schema.Message, 0, len(messages)+len(historyMsgs)+1)
	result = append(result, messages[0])
	result = append(result, historyMsgs...)
	result = append(result, messages[1:]...)
	result = append(result, schema.UserMessage(question))
	return result
}

// buildContext formats retrieved chunks into a system message. Each chunk is
// numbered and labelled with its document title so the model can cite it.
func buildContext(chunks []rag.Chunk) string {
	var sb strings.Builder
	sb.WriteString("## Context\n\n" +
		"The following excerpts were retrieved from the corpus for the user's " +
		"question. Base your answer on these and cite their titles.\n\n")
	for i, c := range chunks {
		fmt.Fprintf(&sb, "### [%d] %s\n%s\n\n", i+1, c.Metadata.Title, c.Text)
	}
	return sb.String()
}
