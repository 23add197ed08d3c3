package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/corpusai/docqa/internal/ingestion"
	"github.com/corpusai/docqa/internal/logging"
)

// NewIngestCmd constructs the `docqa ingest` command, which embeds and
// indexes documents into a Qdrant collection.
func NewIngestCmd() *cobra.Command {
	var path string
	var watch bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Embed and index documents into the Qdrant vector store",
		Long: `Embed the documents at --path and upsert them into the configured
Qdrant collection. Content-hash IDs make re-runs idempotent: unchanged
documents overwrite themselves, new ones are added.

This command requires QDRANT_HOST — the in-process memory store lives and
dies with the server process, so there is nothing standalone ingestion
could populate. Use 'docqa serve --documents' for the in-process backend.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: docqa-docs)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  EMBEDDING_*          Embedding backend overrides

Examples:
  docqa ingest --path ./documents.csv
  docqa ingest --path ./docs --watch
  docqa ingest  # uses DOCUMENTS_PATH`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if path == "" {
				path = os.Getenv("DOCUMENTS_PATH")
			}
			if path == "" {
				return fmt.Errorf("ingest: --path or DOCUMENTS_PATH is required")
			}
			if os.Getenv("QDRANT_HOST") == "" {
				return fmt.Errorf("ingest: QDRANT_HOST is required — standalone ingestion only targets Qdrant")
			}

			emb, dims, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			c, err := buildCorpus(ctx, dims, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer c.close()

			pipeline, src, err := ingestDocuments(ctx, emb, c, path, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			if !watch {
				return nil
			}

			watcher, err := ingestion.NewWatcher(pipeline, src, path, log)
			if err != nil {
				return fmt.Errorf("ingest: watch %s: %w", path, err)
			}
			log.Info("watching documents for changes", slog.String("path", path))
			return watcher.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Documents to ingest: CSV file, text file, or directory (default: DOCUMENTS_PATH)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running and re-ingest when the path changes")

	return cmd
}
