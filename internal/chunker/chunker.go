// Package chunker splits corpus documents into overlapping, fixed-size text
// chunks suitable for independent embedding and retrieval.
//
// The strategy is separator-based: document content is split on a separator
// (paragraph breaks by default) and consecutive segments are greedily
// re-joined until the next segment would push the chunk past the size limit.
// A segment that alone exceeds the limit is emitted whole — a paragraph is
// never split mid-word under this strategy.
package chunker

import (
	"fmt"
	"strings"

	"github.com/ragnar-ai/ragnar/internal/corpus"
)

// Defaults match the reference pipeline configuration: split on paragraph
// breaks into ~500-character chunks sharing a 50-character overlap.
const (
	DefaultSeparator = "\n\n"
	DefaultMaxSize   = 500
	DefaultOverlap   = 50
)

// ErrInvalidConfig is returned (wrapped) when the chunking parameters are
// out of range. Callers can test for it with errors.Is.
var ErrInvalidConfig = fmt.Errorf("chunker: invalid configuration")

// Config holds the chunking parameters.
type Config struct {
	// Separator is the boundary string segments are split on and re-joined
	// with. Empty selects DefaultSeparator.
	Separator string

	// MaxSize is the chunk size limit in bytes. Chunks only exceed it when a
	// single segment is already larger. Must be > 0.
	MaxSize int

	// Overlap is the number of trailing bytes of each emitted chunk used to
	// seed the next one, so consecutive chunks share context across the
	// boundary. Must satisfy 0 <= Overlap < MaxSize.
	Overlap int
}

// Default returns the reference configuration.
func Default() Config {
	return Config{Separator: DefaultSeparator, MaxSize: DefaultMaxSize, Overlap: DefaultOverlap}
}

// Validate checks the configuration ranges. It wraps ErrInvalidConfig so the
// failure class is testable independently of the message.
func (c Config) Validate() error {
	if c.MaxSize <= 0 {
		return fmt.Errorf("%w: max size must be positive, got %d", ErrInvalidConfig, c.MaxSize)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidConfig, c.Overlap)
	}
	if c.Overlap >= c.MaxSize {
		return fmt.Errorf("%w: overlap %d must be smaller than max size %d", ErrInvalidConfig, c.Overlap, c.MaxSize)
	}
	return nil
}

// separator returns the configured separator or the default.
func (c Config) separator() string {
	if c.Separator == "" {
		return DefaultSeparator
	}
	return c.Separator
}

// Chunk is a contiguous slice of a document's text. It owns a copy of the
// source document's metadata, so the parent document can be discarded once
// chunking is done.
type Chunk struct {
	corpus.Metadata

	// Text is the chunk content, whitespace-trimmed.
	Text string
}

// Split chunks all documents in order. The output preserves source-document
// order, then intra-document order. A nil or empty input yields no chunks
// and no error; an invalid configuration yields ErrInvalidConfig and no
// chunks.
func Split(docs []corpus.Document, cfg Config) ([]Chunk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var chunks []Chunk
	for _, doc := range docs {
		for _, text := range splitText(doc.Content, cfg) {
			chunks = append(chunks, Chunk{Metadata: doc.Metadata, Text: text})
		}
	}
	return chunks, nil
}

// splitText implements the separator-based greedy accumulation for a single
// document's content. Returned texts are trimmed and never empty.
func splitText(content string, cfg Config) []string {
	sep := cfg.separator()

	var out []string
	emit := func(text string) {
		text = strings.TrimSpace(text)
		if text != "" {
			out = append(out, text)
		}
	}

	// buf accumulates the chunk under construction; fresh tracks whether it
	// holds anything beyond an overlap seed, so a trailing seed with no new
	// segment is never emitted as a chunk of its own.
	var buf string
	fresh := false

	flush := func() string {
		// The seed comes from the trimmed text so the shared suffix matches
		// what the emitted chunk actually ends with.
		text := strings.TrimSpace(buf)
		emit(text)
		seed := overlapTail(text, cfg.Overlap)
		buf = seed
		fresh = false
		return seed
	}

	for _, seg := range strings.Split(content, sep) {
		if strings.TrimSpace(seg) == "" {
			continue
		}

		// Oversize segment: flush whatever is pending, then emit the segment
		// on its own, unmodified. The overlap chain continues from its tail.
		if len(seg) > cfg.MaxSize {
			if fresh {
				flush()
			}
			text := strings.TrimSpace(seg)
			emit(text)
			buf = overlapTail(text, cfg.Overlap)
			fresh = false
			continue
		}

		candidate := join(buf, seg, sep)
		if len(candidate) > cfg.MaxSize {
			if fresh {
				seed := flush()
				candidate = join(seed, seg, sep)
			}
			// The seed is dropped when even it plus this segment is too big:
			// overlap must never push a chunk past the limit.
			if len(candidate) > cfg.MaxSize {
				candidate = seg
			}
		}
		buf = candidate
		fresh = true
	}

	if fresh {
		emit(buf)
	}
	return out
}

// join concatenates prev and seg with the separator, or returns seg alone
// when there is nothing to join onto.
func join(prev, seg, sep string) string {
	if prev == "" {
		return seg
	}
	return prev + sep + seg
}

// overlapTail returns the trailing n bytes of s (all of s if shorter).
func overlapTail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// Stats summarises a chunk sequence for progress reporting.
type Stats struct {
	// Count is the number of chunks.
	Count int
	// Min, Max, and Total are chunk text sizes in bytes.
	Min, Max, Total int
}

// Avg returns the mean chunk size, or 0 for an empty sequence.
func (s Stats) Avg() int {
	if s.Count == 0 {
		return 0
	}
	return s.Total / s.Count
}

// Summarise computes size statistics over chunks.
func Summarise(chunks []Chunk) Stats {
	st := Stats{Count: len(chunks)}
	for i, c := range chunks {
		n := len(c.Text)
		st.Total += n
		if i == 0 || n < st.Min {
			st.Min = n
		}
		if n > st.Max {
			st.Max = n
		}
	}
	return st
}
