package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/corpusai/docqa/internal/logging"
	"github.com/corpusai/docqa/internal/provider"
	"github.com/corpusai/docqa/internal/rag"
)

// NewAskCmd constructs the `docqa ask` command, which answers a single
// question against the configured corpus and prints the answer to stdout.
func NewAskCmd() *cobra.Command {
	var documentsPath string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question against the document corpus",
		Long: `Answer a single natural language question grounded in the document corpus.

With the default in-process backend the documents at --documents (or
DOCUMENTS_PATH) are indexed first; with QDRANT_HOST set the existing
collection is queried directly.

Examples:
  docqa ask --documents ./documents.csv "When does the delivery arrive?"
  QDRANT_HOST=localhost docqa ask "What does the contract say about refunds?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			emb, dims, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			chatModel, err := provider.New(ctx, provider.ConfigFromEnv())
			if err != nil {
				return fmt.Errorf("ask: failed to initialise model provider: %w", err)
			}

			generator, err := rag.NewAnswerGenerator(chatModel, generatorConfigFromEnv())
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			c, err := buildCorpus(ctx, dims, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer c.close()

			if documentsPath == "" {
				documentsPath = os.Getenv("DOCUMENTS_PATH")
			}
			// Qdrant holds the corpus across runs; the memory backend has to
			// index before it can answer.
			if documentsPath != "" {
				if _, _, err := ingestDocuments(ctx, emb, c, documentsPath, log); err != nil {
					return fmt.Errorf("ask: ingest %s: %w", documentsPath, err)
				}
			} else if c.memory != nil {
				return fmt.Errorf("ask: no documents to query — set --documents or DOCUMENTS_PATH")
			}

			pipeline, err := rag.NewPipeline(emb, c.retriever, nil, generator, pipelineConfigFromEnv(log))
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			answer, err := pipeline.Answer(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Println(answer)
			return nil
		},
	}

	cmd.Flags().StringVar(&documentsPath, "documents", "", "Documents to index: CSV file, text file, or directory (default: DOCUMENTS_PATH)")

	return cmd
}
