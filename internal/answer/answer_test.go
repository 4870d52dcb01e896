package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/ragnar-ai/ragnar/internal/corpus"
	"github.com/ragnar-ai/ragnar/internal/history"
	"github.com/ragnar-ai/ragnar/internal/rag"
)

type fakeRetriever struct {
	chunks []rag.Chunk
	err    error
	gotQ   string
	gotK   int
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, topK int) ([]rag.Chunk, error) {
	f.gotQ = query
	f.gotK = topK
	return f.chunks, f.err
}

type fakeModel struct {
	reply string
	err   error
	got   []*schema.Message
}

func (f *fakeModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.got = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func (f *fakeModel) BindTools([]*schema.ToolInfo) error { return nil }

func newTestEngine(t *testing.T, m *fakeModel, r *fakeRetriever, hist *history.Store) *Engine {
	t.Helper()
	e, err := New(&Config{
		ChatModel: m,
		Retriever: r,
		History:   hist,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func someChunks() []rag.Chunk {
	return []rag.Chunk{
		{
			ID:       "c1",
			Text:     "RAG retrieves relevant documents before generating.",
			Metadata: corpus.Metadata{Title: "RAG Basics", Category: "basics"},
			Score:    0.92,
		},
		{
			ID:       "c2",
			Text:     "Chunks are embedded and stored in a vector index.",
			Metadata: corpus.Metadata{Title: "Indexing", Category: "concepts"},
			Score:    0.81,
		},
	}
}

func Test_New_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(&Config{Retriever: &fakeRetriever{}}); err == nil {
		t.Error("New() without a chat model should fail")
	}
	if _, err := New(&Config{ChatModel: &fakeModel{}}); err == nil {
		t.Error("New() without a retriever should fail")
	}
}

func Test_Ask_EmptyQuestion(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &fakeModel{reply: "x"}, &fakeRetriever{}, nil)
	if _, err := e.Ask(context.Background(), "s", "   "); err == nil {
		t.Fatal("Ask() with a blank question should fail")
	}
}

func Test_Ask_ReturnsAnswerAndSources(t *testing.T) {
	t.Parallel()

	r := &fakeRetriever{chunks: someChunks()}
	m := &fakeModel{reply: "RAG retrieves, then generates. (RAG Basics)"}
	e := newTestEngine(t, m, r, nil)

	got, err := e.Ask(context.Background(), "default", "What is RAG?")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if got.Text != m.reply {
		t.Errorf("Ask().Text = %q", got.Text)
	}
	if len(got.Sources) != 2 || got.Sources[0].ID != "c1" {
		t.Errorf("Ask().Sources = %+v", got.Sources)
	}
	if r.gotQ != "What is RAG?" {
		t.Errorf("retriever saw query %q", r.gotQ)
	}
	if r.gotK != 3 {
		t.Errorf("retriever saw topK = %d, want default 3", r.gotK)
	}
}

func Test_Ask_MessageShape(t *testing.T) {
	t.Parallel()

	m := &fakeModel{reply: "answer"}
	e := newTestEngine(t, m, &fakeRetriever{chunks: someChunks()}, nil)

	if _, err := e.Ask(context.Background(), "s", "question?"); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}

	msgs := m.got
	if len(msgs) != 3 {
		t.Fatalf("model received %d messages, want system + context + question", len(msgs))
	}
	if msgs[0].Role != schema.System || !strings.Contains(msgs[0].Content, "based ONLY on the provided context") {
		t.Errorf("msgs[0] is not the grounding system prompt: %q", msgs[0].Content)
	}
	ctxMsg := msgs[1]
	if ctxMsg.Role != schema.System {
		t.Errorf("msgs[1].Role = %q, want system context block", ctxMsg.Role)
	}
	if !strings.Contains(ctxMsg.Content, "[1] RAG Basics") || !strings.Contains(ctxMsg.Content, "[2] Indexing") {
		t.Errorf("context block missing numbered titles:\n%s", ctxMsg.Content)
	}
	if !strings.Contains(ctxMsg.Content, someChunks()[0].Text) {
		t.Error("context block missing chunk text")
	}
	if msgs[2].Role != schema.User || msgs[2].Content != "question?" {
		t.Errorf("msgs[2] = %+v, want the user question last", msgs[2])
	}
}

func Test_Ask_NoChunksOmitsContextBlock(t *testing.T) {
	t.Parallel()

	m := &fakeModel{reply: "I don't have enough information to answer that."}
	e := newTestEngine(t, m, &fakeRetriever{}, nil)

	got, err := e.Ask(context.Background(), "s", "anything?")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(got.Sources) != 0 {
		t.Errorf("Sources = %+v, want none", got.Sources)
	}
	if len(m.got) != 2 {
		t.Fatalf("model received %d messages, want system + question only", len(m.got))
	}
}

func Test_Ask_RetrieverError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("index unavailable")
	e := newTestEngine(t, &fakeModel{}, &fakeRetriever{err: wantErr}, nil)
	_, err := e.Ask(context.Background(), "s", "q")
	if !errors.Is(err, wantErr) {
		t.Fatalf("Ask() error = %v, want wrapped %v", err, wantErr)
	}
}

func Test_Ask_GenerateError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("model down")
	e := newTestEngine(t, &fakeModel{err: wantErr}, &fakeRetriever{chunks: someChunks()}, nil)
	_, err := e.Ask(context.Background(), "s", "q")
	if !errors.Is(err, wantErr) {
		t.Fatalf("Ask() error = %v, want wrapped %v", err, wantErr)
	}
}

func Test_Ask_HistoryInjectedAndPersisted(t *testing.T) {
	t.Parallel()

	hist, err := history.Open(":memory:")
	if err != nil {
		t.Fatalf("history.Open() error = %v", err)
	}
	defer hist.Close()

	ctx := context.Background()
	if err := hist.Append(ctx, "s", history.RoleUser, "earlier question"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := hist.Append(ctx, "s", history.RoleAssistant, "earlier answer"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	m := &fakeModel{reply: "new answer"}
	e := newTestEngine(t, m, &fakeRetriever{chunks: someChunks()}, hist)

	if _, err := e.Ask(ctx, "s", "new question"); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}

	// Shape: system, prior user, prior assistant, context, question.
	msgs := m.got
	if len(msgs) != 5 {
		t.Fatalf("model received %d messages, want 5", len(msgs))
	}
	if msgs[1].Role != schema.User || msgs[1].Content != "earlier question" {
		t.Errorf("msgs[1] = %+v, want prior user turn", msgs[1])
	}
	if msgs[2].Role != schema.Assistant || msgs[2].Content != "earlier answer" {
		t.Errorf("msgs[2] = %+v, want prior assistant turn", msgs[2])
	}

	// The new turn is persisted.
	turns, err := hist.Recent(ctx, "s", 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(turns) != 4 {
		t.Fatalf("history has %d turns after Ask, want 4", len(turns))
	}
	if turns[2].Content != "new question" || turns[3].Content != "new answer" {
		t.Errorf("persisted turns = %q, %q", turns[2].Content, turns[3].Content)
	}

	// Other sessions stay untouched.
	other, err := hist.Recent(ctx, "other", 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(other) != 0 {
		t.Errorf("Recent(other) = %+v, want empty", other)
	}
}

func Test_Ask_TrimsContextToBudget(t *testing.T) {
	t.Parallel()

	big := strings.Repeat("x", 4000) // ~1000 tokens per chunk
	chunks := []rag.Chunk{
		{ID: "a", Text: big, Score: 0.9},
		{ID: "b", Text: big, Score: 0.8},
		{ID: "c", Text: big, Score: 0.7},
	}
	m := &fakeModel{reply: "ok"}
	e, err := New(&Config{
		ChatModel:        m,
		Retriever:        &fakeRetriever{chunks: chunks},
		MaxContextTokens: 4000, // chunk budget is half: two big chunks fit, three do not
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	got, err := e.Ask(context.Background(), "s", "q")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(got.Sources) != 2 {
		t.Fatalf("Sources kept %d chunks, want 2 after trimming", len(got.Sources))
	}
	if got.Sources[0].ID != "a" || got.Sources[1].ID != "b" {
		t.Error("trimming should drop the lowest-scored chunk")
	}
}
