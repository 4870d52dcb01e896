// Package commands defines all Cobra CLI commands for the ragnar binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ragnar-ai/ragnar/internal/audit"
	"github.com/ragnar-ai/ragnar/internal/config"
	"github.com/ragnar-ai/ragnar/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ragnar",
		Short: "ragnar — ask questions about your own document corpus",
		Long: `ragnar is a local-first retrieval assistant for document collections.

It splits your documents into chunks, embeds them, and stores the result in a
similarity index on disk. Questions are answered by retrieving the most
relevant chunks and asking a chat model to respond using only that context.

Model provider is selected via the RAGNAR_MODEL_PROVIDER environment variable
or a YAML config file (~/.ragnar/config.yaml).
See 'ragnar --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A local .env file is a convenience for development; absence is fine.
			_ = godotenv.Load()

			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.ragnar/config.yaml)")

	root.AddCommand(
		NewIndexCmd(),
		NewAskCmd(),
		NewSearchCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
