// Command docqa is the entry point for the document question answering
// service. It provides a CLI interface (via Cobra) and an HTTP server that
// answers natural language questions grounded in an indexed document corpus.
package main

import (
	"fmt"
	"os"

	"github.com/corpusai/docqa/cmd/docqa/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
