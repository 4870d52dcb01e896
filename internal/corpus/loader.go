package corpus

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// manifest is the on-disk shape of a corpus manifest file.
type manifest struct {
	Documents []Document `yaml:"documents" json:"documents"`
}

// LoadManifest reads a corpus manifest from a YAML or JSON file. The format
// is selected by extension (.json is JSON, everything else is YAML). Every
// document's content is trimmed, and a document without a title or content
// fails the whole load.
func LoadManifest(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: read %s: %w", path, err)
	}

	var m manifest
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("corpus: parse %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("corpus: parse %s: %w", path, err)
		}
	}

	if len(m.Documents) == 0 {
		return nil, fmt.Errorf("corpus: %s contains no documents", path)
	}

	docs := make([]Document, 0, len(m.Documents))
	for i, d := range m.Documents {
		d.Content = strings.TrimSpace(d.Content)
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("corpus: %s document %d: %w", path, i, err)
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// loadableExts lists the file extensions the directory loader picks up.
var loadableExts = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
}

// LoadDir walks root and loads every .md/.markdown/.txt file as one document.
// The title is the file name without extension, the category is the path of
// the containing directory relative to root ("" for files directly under
// root), and the section is left empty. Files with empty content are skipped.
func LoadDir(root string) ([]Document, error) {
	var docs []Document

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !loadableExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		content := strings.TrimSpace(string(data))
		if content == "" {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("rel %s: %w", path, err)
		}

		name := filepath.Base(rel)
		doc := Document{
			Metadata: Metadata{
				Title:    strings.TrimSuffix(name, filepath.Ext(name)),
				Category: filepath.ToSlash(filepath.Dir(rel)),
			},
			Content: content,
		}
		if doc.Category == "." {
			doc.Category = ""
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("corpus: walk %s: %w", root, err)
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("corpus: no loadable documents under %s", root)
	}
	return docs, nil
}

// Load loads documents from path, which may be a manifest file or a
// directory of text files.
func Load(path string) ([]Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadManifest(path)
}
