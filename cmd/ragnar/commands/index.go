package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ragnar-ai/ragnar/internal/chunker"
	"github.com/ragnar-ai/ragnar/internal/corpus"
	"github.com/ragnar-ai/ragnar/internal/logging"
	"github.com/ragnar-ai/ragnar/internal/pipeline"
)

// NewIndexCmd constructs the `ragnar index` command, which runs the corpus
// indexing pipeline: load, chunk, embed, store, save, verify.
func NewIndexCmd() *cobra.Command {
	var (
		maxSize    int
		overlap    int
		separator  string
		skipVerify bool
	)

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a document corpus for retrieval",
		Long: `Split a document corpus into chunks, embed them, and build the
similarity index ragnar answers questions from.

The path may be a directory of .md/.txt files (subdirectory names become
categories) or a YAML/JSON manifest listing documents with metadata.
The index is written to RAGNAR_INDEX_DIR (default: ./vector_store), or to
Qdrant when QDRANT_HOST is set.

Examples:
  ragnar index ./docs
  ragnar index corpus.yaml
  ragnar index ./docs --max-size 800 --overlap 80
  QDRANT_HOST=localhost ragnar index ./docs`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			docs, err := corpus.Load(args[0])
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			categories, counts := corpus.CountByCategory(docs)
			log.Info("corpus loaded",
				slog.String("path", args[0]),
				slog.Int("documents", len(docs)),
				slog.Int("categories", len(categories)),
			)
			for _, cat := range categories {
				label := cat
				if label == "" {
					label = "(none)"
				}
				log.Debug("category", slog.String("name", label), slog.Int("documents", counts[cat]))
			}

			emb, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			store, closeStore, err := newWriteStore(ctx, log)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			defer closeStore()

			saveDir := ""
			if os.Getenv("QDRANT_HOST") == "" {
				saveDir = indexDir()
			}

			pipe, err := pipeline.New(emb, store, &pipeline.Config{
				Chunking: chunker.Config{
					Separator: separator,
					MaxSize:   maxSize,
					Overlap:   overlap,
				},
				SaveDir:    saveDir,
				SkipVerify: skipVerify,
			}, pipeline.NewSlogObserver(log))
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			result, err := pipe.Run(ctx, docs)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			log.Info("indexing complete",
				slog.Int("documents", result.Documents),
				slog.Int("chunks", result.Chunks),
				slog.Bool("verified", result.Verified),
			)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxSize, "max-size", chunker.DefaultMaxSize, "Maximum chunk size in characters")
	cmd.Flags().IntVar(&overlap, "overlap", chunker.DefaultOverlap, "Characters of overlap carried between chunks")
	cmd.Flags().StringVar(&separator, "separator", chunker.DefaultSeparator, "Boundary to split documents on")
	cmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "Skip the post-index verification query")

	return cmd
}
