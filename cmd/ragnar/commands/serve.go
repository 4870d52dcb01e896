package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/ragnar-ai/ragnar/internal/answer"
	"github.com/ragnar-ai/ragnar/internal/logging"
	"github.com/ragnar-ai/ragnar/internal/provider"
	"github.com/ragnar-ai/ragnar/internal/rag"
	"github.com/ragnar-ai/ragnar/internal/server"
	"github.com/ragnar-ai/ragnar/internal/tracing"
)

// NewServeCmd constructs the `ragnar serve` command, which starts the HTTP
// server exposing the ask and search API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ragnar HTTP server",
		Long: `Start the ragnar HTTP server on localhost.

The server exposes POST /api/ask and GET /api/search for programmatic
corpus Q&A, plus /api/health, /api/ready, and Prometheus /metrics.

Examples:
  ragnar serve
  ragnar serve --port 9090
  RAGNAR_MODEL_PROVIDER=openai ragnar serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", getEnvOrDefault("RAGNAR_MODEL_PROVIDER", "ollama")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			if handler, flush, ok := tracing.Setup(); ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}

			emb, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			store, closeStore, err := openReadStore(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer closeStore()

			hist := openHistory(log)
			if hist != nil {
				defer func() { _ = hist.Close() }()
			}

			retriever := rag.NewRetriever(emb, store, 0)

			engine, err := answer.New(&answer.Config{
				ChatModel: chatModel,
				Retriever: retriever,
				History:   hist,
			})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			pingers := []server.Pinger{
				server.NewStorePinger(store, "index"),
			}
			if backend := getEnvOrDefault("RAGNAR_MODEL_PROVIDER", "ollama"); backend == "ollama" {
				pingers = append(pingers, server.NewOllamaPinger(getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")))
			}
			if qs, ok := store.(*rag.QdrantStore); ok {
				pingers = append(pingers, server.NewQdrantPinger(qs.Client()))
			}

			srv, err := server.New(engine, retriever, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("RAGNAR_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
