package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ragnar-ai/ragnar/internal/logging"
	"github.com/ragnar-ai/ragnar/internal/rag"
)

// NewSearchCmd constructs the `ragnar search` command, which runs retrieval
// only — no chat model involved — and prints the matching chunks.
func NewSearchCmd() *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Retrieve the chunks most similar to a query",
		Long: `Search the index and print the most similar chunks with their scores.
Useful for inspecting what context the ask command would see, without
spending chat model tokens.

Examples:
  ragnar search "vector similarity"
  ragnar search --top-k 10 "chunk overlap"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			emb, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			store, closeStore, err := openReadStore(ctx, log)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer closeStore()

			retriever := rag.NewRetriever(emb, store, topK)
			chunks, err := retriever.Retrieve(ctx, args[0], topK)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if len(chunks) == 0 {
				fmt.Println("no results")
				return nil
			}
			for i, c := range chunks {
				fmt.Printf("[%d] %s (score %.3f)\n", i+1, c.Metadata.Title, c.Score)
				if c.Metadata.Category != "" {
					fmt.Printf("    category: %s\n", c.Metadata.Category)
				}
				fmt.Printf("    %s\n\n", c.Text)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 3, "Number of chunks to retrieve")

	return cmd
}
