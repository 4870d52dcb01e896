package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/ragnar-ai/ragnar/internal/answer"
	"github.com/ragnar-ai/ragnar/internal/history"
	"github.com/ragnar-ai/ragnar/internal/logging"
	"github.com/ragnar-ai/ragnar/internal/provider"
	"github.com/ragnar-ai/ragnar/internal/rag"
	"github.com/ragnar-ai/ragnar/internal/tracing"
)

// NewAskCmd constructs the `ragnar ask` command, which answers a single
// natural language question from the indexed corpus.
func NewAskCmd() *cobra.Command {
	var (
		topK        int
		session     string
		showSources bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the indexed corpus",
		Long: `Ask a natural language question. ragnar retrieves the most relevant
chunks from the index and asks the chat model to answer using only that
context, citing the source documents.

Examples:
  ragnar ask "What is RAG?"
  ragnar ask --top-k 5 "How does chunk overlap affect retrieval?"
  ragnar ask --session research "And what about the previous approach?"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			// Langfuse tracing is opt-in and a no-op when the keys are absent.
			if handler, flush, ok := tracing.Setup(); ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise model provider: %w", err)
			}

			emb, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			store, closeStore, err := openReadStore(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer closeStore()

			hist := openHistory(log)
			if hist != nil {
				defer func() { _ = hist.Close() }()
			}

			engine, err := answer.New(&answer.Config{
				ChatModel: chatModel,
				Retriever: rag.NewRetriever(emb, store, topK),
				TopK:      topK,
				History:   hist,
			})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			ans, err := engine.Ask(ctx, session, args[0])
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Println(ans.Text)
			if showSources && len(ans.Sources) > 0 {
				fmt.Println("\nSources:")
				for _, c := range ans.Sources {
					fmt.Printf("  - %s (score %.3f)\n", c.Metadata.Title, c.Score)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 3, "Number of chunks to retrieve")
	cmd.Flags().StringVar(&session, "session", "", "Session name for multi-turn history (empty = stateless)")
	cmd.Flags().BoolVar(&showSources, "sources", false, "Print the retrieved sources after the answer")

	return cmd
}

// openHistory opens the Q&A history store. RAGNAR_HISTORY_DB overrides the
// default path (~/.ragnar/history.db); "disabled" turns history off.
// Failures disable history rather than aborting the command.
func openHistory(log *slog.Logger) *history.Store {
	dbPath := os.Getenv("RAGNAR_HISTORY_DB")
	if dbPath == "disabled" {
		log.Info("history: disabled via RAGNAR_HISTORY_DB=disabled")
		return nil
	}
	if dbPath == "" {
		var err error
		dbPath, err = history.DefaultDBPath()
		if err != nil {
			log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil
		}
	}
	hs, err := history.Open(dbPath)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil
	}
	log.Info("history: store opened", slog.String("path", dbPath))
	return hs
}
