package rag

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ragnar-ai/ragnar/internal/corpus"
)

// chunkNamespace is the UUIDv5 namespace for ragnar chunk IDs.
var chunkNamespace = uuid.MustParse("8f1c9a52-7a4e-4a6d-9f3b-2d5e8c41b970")

// ChunkID derives a deterministic UUID for the ordinal-th chunk of the
// document identified by meta. Deterministic IDs make indexing idempotent:
// re-running the pipeline over the same corpus upserts in place. The IDs are
// valid UUIDs because Qdrant point IDs require it.
func ChunkID(meta corpus.Metadata, ordinal int) string {
	name := fmt.Sprintf("%s/%s/%s#%d", meta.Category, meta.Section, meta.Title, ordinal)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}
