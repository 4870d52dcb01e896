// Command ragnar is the entry point for the ragnar corpus Q&A assistant.
// It provides a CLI interface (via Cobra) and an optional HTTP server for
// programmatic use.
package main

import (
	"fmt"
	"os"

	"github.com/ragnar-ai/ragnar/cmd/ragnar/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
