// Package corpus defines the document model and loaders for the knowledge
// base that ragnar indexes. A corpus is a small set of text documents, each
// carrying title/category/section metadata that survives chunking and is
// returned alongside retrieval results.
package corpus

import (
	"fmt"
	"sort"
	"strings"
)

// Metadata identifies a document within the corpus. It is a plain value
// type: chunks derived from a document carry their own copy, so no
// back-reference to the parent document is ever needed.
type Metadata struct {
	// Title is the human-readable document title.
	Title string `yaml:"title" json:"title"`

	// Category groups related documents (e.g. "basics", "concepts").
	Category string `yaml:"category" json:"category"`

	// Section is a finer-grained label within the category.
	Section string `yaml:"section" json:"section"`
}

// Document is a single corpus entry. Immutable once created: loaders trim
// the content before returning and nothing mutates it afterwards.
type Document struct {
	Metadata `yaml:",inline" json:",inline"`

	// Content is the whitespace-trimmed document text.
	Content string `yaml:"content" json:"content"`
}

// Validate reports whether the document is usable: it must have a title and
// non-empty content.
func (d Document) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("corpus: document has no title")
	}
	if strings.TrimSpace(d.Content) == "" {
		return fmt.Errorf("corpus: document %q has no content", d.Title)
	}
	return nil
}

// CountByCategory returns the number of documents per category, with
// category names sorted for deterministic iteration by callers.
func CountByCategory(docs []Document) ([]string, map[string]int) {
	counts := make(map[string]int)
	for _, d := range docs {
		counts[d.Category]++
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, counts
}

// TotalChars returns the summed content length of all documents in bytes.
func TotalChars(docs []Document) int {
	total := 0
	for _, d := range docs {
		total += len(d.Content)
	}
	return total
}
