package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ragnar-ai/ragnar/internal/corpus"
	"github.com/ragnar-ai/ragnar/internal/rag"
)

func chunk(id, text, title string) rag.Chunk {
	return rag.Chunk{
		ID:   id,
		Text: text,
		Metadata: corpus.Metadata{
			Title:    title,
			Category: "docs",
			Section:  "intro",
		},
	}
}

// seed fills an index with three orthogonal unit vectors so similarity
// ordering in tests is unambiguous.
func seed(t *testing.T) *Index {
	t.Helper()
	x := New("ollama/nomic-embed-text")
	err := x.Upsert(context.Background(),
		[]rag.Chunk{
			chunk("a", "alpha text", "Alpha"),
			chunk("b", "beta text", "Beta"),
			chunk("c", "gamma text", "Gamma"),
		},
		[][]float32{
			{1, 0, 0},
			{0, 1, 0},
			{0, 0, 1},
		},
	)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	return x
}

func Test_Upsert_FixesDimension(t *testing.T) {
	t.Parallel()

	x := seed(t)
	if got := x.Dimension(); got != 3 {
		t.Fatalf("Dimension() = %d, want 3", got)
	}

	err := x.Upsert(context.Background(), []rag.Chunk{chunk("d", "delta", "Delta")}, [][]float32{{1, 2}})
	if err == nil {
		t.Fatal("Upsert() with mismatched dimension should fail")
	}
}

func Test_Upsert_CountMismatch(t *testing.T) {
	t.Parallel()

	x := New("")
	err := x.Upsert(context.Background(), []rag.Chunk{chunk("a", "t", "T")}, nil)
	if err == nil {
		t.Fatal("Upsert() with fewer vectors than chunks should fail")
	}
}

func Test_Upsert_EmptyVector(t *testing.T) {
	t.Parallel()

	x := New("")
	err := x.Upsert(context.Background(), []rag.Chunk{chunk("a", "t", "T")}, [][]float32{{}})
	if err == nil {
		t.Fatal("Upsert() with an empty vector should fail")
	}
}

func Test_Upsert_ReplacesByID(t *testing.T) {
	t.Parallel()

	x := seed(t)
	err := x.Upsert(context.Background(),
		[]rag.Chunk{chunk("b", "beta revised", "Beta v2")},
		[][]float32{{0, 1, 0}},
	)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	n, err := x.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("Count() = %d after replace, want 3", n)
	}

	got, err := x.Search(context.Background(), []float32{0, 1, 0}, 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if got[0].Text != "beta revised" {
		t.Fatalf("Search() top text = %q, want replaced text", got[0].Text)
	}
}

func Test_Search_OrdersByScore(t *testing.T) {
	t.Parallel()

	x := seed(t)

	// Query closest to b, then a, then c.
	got, err := x.Search(context.Background(), []float32{0.3, 1, 0.1}, 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Search() returned %d chunks, want 3", len(got))
	}
	wantOrder := []string{"b", "a", "c"}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Errorf("result[%d].ID = %q, want %q", i, got[i].ID, id)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("scores not descending: %v then %v", got[i-1].Score, got[i].Score)
		}
	}
}

func Test_Search_TruncatesToTopK(t *testing.T) {
	t.Parallel()

	x := seed(t)
	got, err := x.Search(context.Background(), []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Search() returned %d chunks, want 2", len(got))
	}
	if got[0].ID != "a" {
		t.Fatalf("top result = %q, want %q", got[0].ID, "a")
	}
}

func Test_Search_Errors(t *testing.T) {
	t.Parallel()

	x := seed(t)
	ctx := context.Background()

	if _, err := x.Search(ctx, []float32{1, 0, 0}, 0); err == nil {
		t.Error("Search() with topK=0 should fail")
	}
	if _, err := x.Search(ctx, []float32{1, 0}, 3); err == nil {
		t.Error("Search() with wrong query dimension should fail")
	}
	if _, err := New("").Search(ctx, []float32{1}, 1); err == nil {
		t.Error("Search() on an empty index should fail")
	}
}

func Test_Search_DoesNotMutateStoredScores(t *testing.T) {
	t.Parallel()

	x := seed(t)
	ctx := context.Background()

	first, err := x.Search(ctx, []float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	second, err := x.Search(ctx, []float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	for i := range first {
		if first[i].Score != second[i].Score {
			t.Fatalf("repeated search changed scores: %v vs %v", first[i].Score, second[i].Score)
		}
	}
}

func Test_Cosine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := cosine(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-6 || diff < -1e-6 {
				t.Errorf("cosine(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func Test_SaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()

	x := seed(t)
	dir := t.TempDir()
	if err := x.Save(dir); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := loaded.ModelInfo(); got != "ollama/nomic-embed-text" {
		t.Errorf("ModelInfo() = %q after reload", got)
	}
	if got := loaded.Dimension(); got != 3 {
		t.Errorf("Dimension() = %d after reload, want 3", got)
	}
	n, err := loaded.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Count() = %d after reload, want 3", n)
	}

	query := []float32{0.3, 1, 0.1}
	want, err := x.Search(context.Background(), query, 3)
	if err != nil {
		t.Fatalf("Search() on original error = %v", err)
	}
	got, err := loaded.Search(context.Background(), query, 3)
	if err != nil {
		t.Fatalf("Search() on reloaded error = %v", err)
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].Text != want[i].Text || got[i].Metadata != want[i].Metadata {
			t.Errorf("result[%d] = %+v after reload, want %+v", i, got[i], want[i])
		}
	}
}

func Test_Save_Overwrites(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	x := seed(t)
	if err := x.Save(dir); err != nil {
		t.Fatalf("first Save() error = %v", err)
	}

	y := New("m")
	err := y.Upsert(context.Background(), []rag.Chunk{chunk("only", "single", "Single")}, [][]float32{{1, 1}})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := y.Save(dir); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	n, _ := loaded.Count(context.Background())
	if n != 1 {
		t.Fatalf("Count() = %d after overwrite, want 1", n)
	}
}

func Test_Load_NotFound(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() error = %v, want ErrNotFound", err)
	}
}

func Test_Load_MissingMetadataStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := seed(t).Save(dir); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := os.Remove(filepath.Join(dir, chunksFile)); err != nil {
		t.Fatalf("remove metadata store: %v", err)
	}

	_, err := Load(dir)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() error = %v, want ErrNotFound", err)
	}
}

func Test_Load_CorruptVectors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := seed(t).Save(dir); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	garbage := []byte("not a gob stream")
	if err := os.WriteFile(filepath.Join(dir, vectorsFile), garbage, 0o644); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	_, err := Load(dir)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Load() error = %v, want ErrCorrupt", err)
	}
}

func Test_Load_VectorMetadataMismatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := seed(t).Save(dir); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Rewrite the metadata store with one row fewer than the vectors file.
	smaller := New("ollama/nomic-embed-text")
	err := smaller.Upsert(context.Background(),
		[]rag.Chunk{chunk("a", "alpha text", "Alpha")},
		[][]float32{{1, 0, 0}},
	)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	other := t.TempDir()
	if err := smaller.Save(other); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(other, chunksFile))
	if err != nil {
		t.Fatalf("read smaller metadata store: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, chunksFile), data, 0o644); err != nil {
		t.Fatalf("overwrite metadata store: %v", err)
	}

	_, err = Load(dir)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Load() error = %v, want ErrCorrupt", err)
	}
}

func Test_SaveLoad_LargerIndex(t *testing.T) {
	t.Parallel()

	x := New("openai/text-embedding-3-small")
	var chunks []rag.Chunk
	var vectors [][]float32
	for i := range 50 {
		chunks = append(chunks, chunk(fmt.Sprintf("c%02d", i), fmt.Sprintf("text %d", i), fmt.Sprintf("Title %d", i)))
		vectors = append(vectors, []float32{float32(i), float32(50 - i), 1})
	}
	if err := x.Upsert(context.Background(), chunks, vectors); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	dir := t.TempDir()
	if err := x.Save(dir); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want, _ := x.Search(context.Background(), []float32{10, 40, 1}, 5)
	got, err := loaded.Search(context.Background(), []float32{10, 40, 1}, 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	for i := range want {
		if got[i].ID != want[i].ID {
			t.Errorf("result[%d].ID = %q after reload, want %q", i, got[i].ID, want[i].ID)
		}
	}
}
