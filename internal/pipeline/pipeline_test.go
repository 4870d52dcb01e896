package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ragnar-ai/ragnar/internal/chunker"
	"github.com/ragnar-ai/ragnar/internal/corpus"
	"github.com/ragnar-ai/ragnar/internal/index"
	"github.com/ragnar-ai/ragnar/internal/rag"
)

// hashEmbedder produces a deterministic 3-dim vector per text so retrieval
// in tests is real but needs no network.
type hashEmbedder struct {
	err     error
	batches [][]string
}

func (e *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.batches = append(e.batches, texts)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		var sum float32
		for _, r := range t {
			sum += float32(r)
		}
		out[i] = []float32{sum, float32(len(t)) + 1, 1}
	}
	return out, nil
}

// eventRecorder captures observer callbacks in order.
type eventRecorder struct {
	events []string
}

func (r *eventRecorder) StageStarted(stage Stage, _ string) {
	r.events = append(r.events, "started:"+string(stage))
}

func (r *eventRecorder) StageCompleted(stage Stage, _ string) {
	r.events = append(r.events, "completed:"+string(stage))
}

func (r *eventRecorder) StageFailed(stage Stage, _ error) {
	r.events = append(r.events, "failed:"+string(stage))
}

func docs() []corpus.Document {
	return []corpus.Document{
		{
			Metadata: corpus.Metadata{Title: "RAG Basics", Category: "basics", Section: "intro"},
			Content:  "Retrieval-augmented generation grounds model answers in a corpus.\n\nIt retrieves relevant chunks before generating.",
		},
		{
			Metadata: corpus.Metadata{Title: "Embeddings", Category: "concepts"},
			Content:  "Embeddings map text to dense vectors so similar texts land near each other.",
		},
	}
}

func Test_New_Validation(t *testing.T) {
	t.Parallel()

	store := index.New("")
	if _, err := New(nil, store, nil, nil); err == nil {
		t.Error("New() without an embedder should fail")
	}
	if _, err := New(&hashEmbedder{}, nil, nil, nil); err == nil {
		t.Error("New() without a store should fail")
	}

	bad := &Config{Chunking: chunker.Config{Separator: "\n\n", MaxSize: 10, Overlap: 10}}
	if _, err := New(&hashEmbedder{}, store, bad, nil); err == nil {
		t.Error("New() with invalid chunking config should fail")
	}
}

func Test_New_ZeroChunkingTakesDefaults(t *testing.T) {
	t.Parallel()

	pipe, err := New(&hashEmbedder{}, index.New(""), &Config{SkipVerify: true}, nil)
	if err != nil {
		t.Fatalf("New() with zero chunking config: %v", err)
	}
	if pipe.cfg.Chunking != chunker.Default() {
		t.Errorf("chunking config = %+v, want defaults", pipe.cfg.Chunking)
	}

	// A partially set config keeps the explicit fields and defaults the rest.
	pipe, err = New(&hashEmbedder{}, index.New(""), &Config{Chunking: chunker.Config{Separator: "\n"}}, nil)
	if err != nil {
		t.Fatalf("New() with separator-only chunking config: %v", err)
	}
	if pipe.cfg.Chunking.Separator != "\n" {
		t.Errorf("Separator = %q, want %q", pipe.cfg.Chunking.Separator, "\n")
	}
	if pipe.cfg.Chunking.MaxSize != chunker.DefaultMaxSize {
		t.Errorf("MaxSize = %d, want %d", pipe.cfg.Chunking.MaxSize, chunker.DefaultMaxSize)
	}
}

func Test_New_DoesNotMutateCallerConfig(t *testing.T) {
	t.Parallel()

	cfg := &Config{SkipVerify: true}
	if _, err := New(&hashEmbedder{}, index.New(""), cfg, nil); err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if cfg.Chunking != (chunker.Config{}) || cfg.EmbedBatch != 0 || cfg.VerifyQuery != "" || cfg.VerifyTopK != 0 {
		t.Errorf("caller config was mutated: %+v", cfg)
	}
}

func Test_Run_IndexesAndVerifies(t *testing.T) {
	t.Parallel()

	emb := &hashEmbedder{}
	store := index.New("test-model")
	rec := &eventRecorder{}

	pipe, err := New(emb, store, &Config{}, rec)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := pipe.Run(context.Background(), docs())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Documents != 2 {
		t.Errorf("Result.Documents = %d, want 2", res.Documents)
	}
	if res.Chunks < 2 {
		t.Errorf("Result.Chunks = %d, want at least one per document", res.Chunks)
	}
	if !res.Verified {
		t.Error("Result.Verified = false, want true")
	}

	n, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != res.Chunks {
		t.Errorf("store holds %d chunks, result says %d", n, res.Chunks)
	}

	want := []string{
		"started:chunk", "completed:chunk",
		"started:embed", "completed:embed",
		"started:verify", "completed:verify",
	}
	if len(rec.events) != len(want) {
		t.Fatalf("observer events = %v, want %v", rec.events, want)
	}
	for i := range want {
		if rec.events[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, rec.events[i], want[i])
		}
	}
}

func Test_Run_DeterministicIDs(t *testing.T) {
	t.Parallel()

	run := func() []rag.Chunk {
		store := index.New("")
		pipe, err := New(&hashEmbedder{}, store, &Config{SkipVerify: true}, nil)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if _, err := pipe.Run(context.Background(), docs()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		hits, err := store.Search(context.Background(), []float32{1, 1, 1}, 10)
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		return hits
	}

	first := run()
	second := run()
	if len(first) != len(second) {
		t.Fatalf("runs produced %d and %d chunks", len(first), len(second))
	}
	ids := make(map[string]bool, len(first))
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("chunk %d ID differs between runs: %q vs %q", i, first[i].ID, second[i].ID)
		}
		if ids[first[i].ID] {
			t.Errorf("duplicate chunk ID %q", first[i].ID)
		}
		ids[first[i].ID] = true
	}
}

func Test_Run_Rerun_UpsertsInPlace(t *testing.T) {
	t.Parallel()

	store := index.New("")
	pipe, err := New(&hashEmbedder{}, store, &Config{SkipVerify: true}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	first, err := pipe.Run(context.Background(), docs())
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	second, err := pipe.Run(context.Background(), docs())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if first.Chunks != second.Chunks {
		t.Fatalf("runs produced %d and %d chunks", first.Chunks, second.Chunks)
	}

	n, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != first.Chunks {
		t.Errorf("store holds %d chunks after re-run, want %d", n, first.Chunks)
	}
}

func Test_Run_BatchesEmbedding(t *testing.T) {
	t.Parallel()

	var manyDocs []corpus.Document
	for i := range 5 {
		manyDocs = append(manyDocs, corpus.Document{
			Metadata: corpus.Metadata{Title: fmt.Sprintf("Doc %d", i), Category: "bulk"},
			Content:  strings.Repeat(fmt.Sprintf("paragraph %d text.\n\n", i), 10),
		})
	}

	emb := &hashEmbedder{}
	pipe, err := New(emb, index.New(""), &Config{
		Chunking:   chunker.Config{Separator: "\n\n", MaxSize: 40, Overlap: 0},
		EmbedBatch: 4,
		SkipVerify: true,
	}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	res, err := pipe.Run(context.Background(), manyDocs)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	total := 0
	for i, b := range emb.batches {
		if len(b) > 4 {
			t.Errorf("batch %d has %d texts, want at most 4", i, len(b))
		}
		total += len(b)
	}
	if total != res.Chunks {
		t.Errorf("embedded %d texts across batches, result says %d chunks", total, res.Chunks)
	}
}

func Test_Run_NoChunks(t *testing.T) {
	t.Parallel()

	rec := &eventRecorder{}
	pipe, err := New(&hashEmbedder{}, index.New(""), nil, rec)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = pipe.Run(context.Background(), nil)
	if err == nil {
		t.Fatal("Run() with no documents should fail")
	}
	if len(rec.events) == 0 || rec.events[len(rec.events)-1] != "failed:chunk" {
		t.Errorf("observer events = %v, want trailing failed:chunk", rec.events)
	}
}

func Test_Run_EmbedFailureAborts(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("embedding service unavailable")
	rec := &eventRecorder{}
	store := index.New("")
	pipe, err := New(&hashEmbedder{err: wantErr}, store, nil, rec)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = pipe.Run(context.Background(), docs())
	if !errors.Is(err, wantErr) {
		t.Fatalf("Run() error = %v, want wrapped %v", err, wantErr)
	}
	if rec.events[len(rec.events)-1] != "failed:embed" {
		t.Errorf("observer events = %v, want trailing failed:embed", rec.events)
	}

	n, _ := store.Count(context.Background())
	if n != 0 {
		t.Errorf("store holds %d chunks after aborted run, want 0", n)
	}
}

func Test_Run_SavesToDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := index.New("test-model")
	rec := &eventRecorder{}
	pipe, err := New(&hashEmbedder{}, store, &Config{SaveDir: dir, SkipVerify: true}, rec)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := pipe.Run(context.Background(), docs()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	loaded, err := index.Load(dir)
	if err != nil {
		t.Fatalf("Load() of saved index error = %v", err)
	}
	if got := loaded.ModelInfo(); got != "test-model" {
		t.Errorf("ModelInfo() = %q after save/load", got)
	}

	found := false
	for _, e := range rec.events {
		if e == "completed:save" {
			found = true
		}
	}
	if !found {
		t.Errorf("observer events = %v, want completed:save", rec.events)
	}
}

func Test_Run_SaveUnsupportedStore(t *testing.T) {
	t.Parallel()

	rec := &eventRecorder{}
	pipe, err := New(&hashEmbedder{}, &unsavableStore{}, &Config{SaveDir: t.TempDir(), SkipVerify: true}, rec)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := pipe.Run(context.Background(), docs()); err == nil {
		t.Fatal("Run() should fail when SaveDir is set but the store cannot save")
	}
	if rec.events[len(rec.events)-1] != "failed:save" {
		t.Errorf("observer events = %v, want trailing failed:save", rec.events)
	}
}

// unsavableStore is a VectorStore without a Save method.
type unsavableStore struct{}

func (*unsavableStore) Upsert(context.Context, []rag.Chunk, [][]float32) error { return nil }
func (*unsavableStore) Search(context.Context, []float32, int) ([]rag.Chunk, error) {
	return nil, nil
}
func (*unsavableStore) Count(context.Context) (int, error) { return 0, nil }
func (*unsavableStore) Close() error                       { return nil }
