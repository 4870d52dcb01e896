package index

import (
	"database/sql"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/ragnar-ai/ragnar/internal/corpus"
	"github.com/ragnar-ai/ragnar/internal/rag"
)

// On-disk layout: a directory holding the serialised vectors and a separate
// metadata store, mirroring the two-file layout of common vector-store
// save formats.
const (
	// vectorsFile holds the gob-encoded vectors, IDs, dimension and model.
	vectorsFile = "vectors.gob"
	// chunksFile is the SQLite metadata store with one row per chunk.
	chunksFile = "chunks.db"
)

// ErrNotFound is returned by Load when the index directory or either of its
// files does not exist.
var ErrNotFound = errors.New("index: not found")

// ErrCorrupt is returned by Load when the persisted files cannot be decoded
// or disagree with each other.
var ErrCorrupt = errors.New("index: corrupt")

// vectorsPayload is the gob-serialised portion of the index.
type vectorsPayload struct {
	Model   string
	Dim     int
	IDs     []string
	Vectors [][]float32
}

// Save writes the index to dir, creating it if needed. The vectors file is
// written to a temp file and renamed into place so a crash mid-save never
// leaves a truncated file behind; the metadata store is rebuilt from scratch.
func (x *Index) Save(dir string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("index: create %s: %w", dir, err)
	}

	payload := vectorsPayload{
		Model:   x.model,
		Dim:     x.dim,
		IDs:     make([]string, len(x.chunks)),
		Vectors: x.vectors,
	}
	for i, c := range x.chunks {
		payload.IDs[i] = c.ID
	}

	if err := writeVectors(filepath.Join(dir, vectorsFile), &payload); err != nil {
		return err
	}
	if err := writeChunks(filepath.Join(dir, chunksFile), x.chunks); err != nil {
		return err
	}
	return nil
}

// writeVectors gob-encodes the payload to path via temp file + atomic rename.
func writeVectors(path string, payload *vectorsPayload) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("index: create %s: %w", tmp, err)
	}

	if err := gob.NewEncoder(f).Encode(payload); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("index: encode vectors: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("index: close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("index: rename %s: %w", tmp, err)
	}
	return nil
}

// writeChunks rebuilds the SQLite metadata store at path.
func writeChunks(path string, chunks []rag.Chunk) error {
	// Remove any previous store so the schema and rows are always a clean
	// snapshot of this save.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("index: remove old %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("index: open %s: %w", path, err)
	}
	defer db.Close()

	const ddl = `
CREATE TABLE chunks (
    ord      INTEGER PRIMARY KEY,
    id       TEXT    NOT NULL UNIQUE,
    text     TEXT    NOT NULL,
    title    TEXT    NOT NULL,
    category TEXT    NOT NULL,
    section  TEXT    NOT NULL
);`
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("index: create schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	const ins = `INSERT INTO chunks (ord, id, text, title, category, section) VALUES (?, ?, ?, ?, ?, ?)`
	for i, c := range chunks {
		if _, err := tx.Exec(ins, i, c.ID, c.Text, c.Metadata.Title, c.Metadata.Category, c.Metadata.Section); err != nil {
			tx.Rollback()
			return fmt.Errorf("index: insert chunk %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit: %w", err)
	}
	return nil
}

// Load reads a previously saved index from dir. It fails with ErrNotFound
// when the directory or either file is absent, and ErrCorrupt when decoding
// fails or the vectors and metadata disagree.
func Load(dir string) (*Index, error) {
	vecPath := filepath.Join(dir, vectorsFile)
	dbPath := filepath.Join(dir, chunksFile)
	for _, p := range []string{vecPath, dbPath} {
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
			}
			return nil, fmt.Errorf("index: stat %s: %w", p, err)
		}
	}

	payload, err := readVectors(vecPath)
	if err != nil {
		return nil, err
	}
	chunks, err := readChunks(dbPath)
	if err != nil {
		return nil, err
	}

	if len(chunks) != len(payload.IDs) {
		return nil, fmt.Errorf("%w: %d chunks in metadata store but %d vectors", ErrCorrupt, len(chunks), len(payload.IDs))
	}

	x := New(payload.Model)
	x.dim = payload.Dim
	x.chunks = chunks
	x.vectors = payload.Vectors
	for i, c := range chunks {
		if c.ID != payload.IDs[i] {
			return nil, fmt.Errorf("%w: chunk %d is %s in metadata store but %s in vectors", ErrCorrupt, i, c.ID, payload.IDs[i])
		}
		x.byID[c.ID] = i
	}
	return x, nil
}

// readVectors decodes the gob payload and checks its internal consistency.
func readVectors(path string) (*vectorsPayload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	defer f.Close()

	var payload vectorsPayload
	if err := gob.NewDecoder(f).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrCorrupt, path, err)
	}
	if len(payload.IDs) != len(payload.Vectors) {
		return nil, fmt.Errorf("%w: %d IDs but %d vectors", ErrCorrupt, len(payload.IDs), len(payload.Vectors))
	}
	for i, v := range payload.Vectors {
		if len(v) != payload.Dim {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, expected %d", ErrCorrupt, i, len(v), payload.Dim)
		}
	}
	return &payload, nil
}

// readChunks loads all chunk rows in ordinal order.
func readChunks(path string) ([]rag.Chunk, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT id, text, title, category, section FROM chunks ORDER BY ord ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", ErrCorrupt, path, err)
	}
	defer rows.Close()

	var chunks []rag.Chunk
	for rows.Next() {
		var c rag.Chunk
		var m corpus.Metadata
		if err := rows.Scan(&c.ID, &c.Text, &m.Title, &m.Category, &m.Section); err != nil {
			return nil, fmt.Errorf("%w: scan %s: %v", ErrCorrupt, path, err)
		}
		c.Metadata = m
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows %s: %v", ErrCorrupt, path, err)
	}
	return chunks, nil
}
