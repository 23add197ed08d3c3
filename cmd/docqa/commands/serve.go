package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/corpusai/docqa/internal/ingestion"
	"github.com/corpusai/docqa/internal/logging"
	"github.com/corpusai/docqa/internal/provider"
	"github.com/corpusai/docqa/internal/rag"
	"github.com/corpusai/docqa/internal/server"
	"github.com/corpusai/docqa/internal/store"
	"github.com/corpusai/docqa/internal/tracing"
)

// NewServeCmd constructs the `docqa serve` command, which indexes the
// configured documents and starts the HTTP query server.
func NewServeCmd() *cobra.Command {
	var host string
	var port int
	var documentsPath string
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docqa HTTP query server",
		Long: `Start the docqa HTTP server on localhost.

On startup the documents at --documents (or DOCUMENTS_PATH) are embedded
and indexed; POST / and POST /query then answer questions against that
corpus. With --watch the documents path is monitored and re-indexed on
change, so new documents become visible to queries without a restart.

Examples:
  docqa serve --documents ./documents.csv
  docqa serve --documents ./docs --watch --port 9090
  MODEL_PROVIDER=openai docqa serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			emb, dims, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			providerCfg := provider.ConfigFromEnv()
			chatModel, err := provider.New(ctx, providerCfg)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			log.Info("provider initialised", slog.String("provider", string(providerCfg.Backend)))

			generator, err := rag.NewAnswerGenerator(chatModel, generatorConfigFromEnv())
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			c, err := buildCorpus(ctx, dims, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer c.close()

			if documentsPath == "" {
				documentsPath = os.Getenv("DOCUMENTS_PATH")
			}
			var ingestPipeline *ingestion.Pipeline
			var ingestSrc ingestion.Source
			if documentsPath != "" {
				ingestPipeline, ingestSrc, err = ingestDocuments(ctx, emb, c, documentsPath, log)
				if err != nil {
					return fmt.Errorf("serve: ingest %s: %w", documentsPath, err)
				}
			} else {
				log.Warn("no documents path configured — corpus starts empty")
			}

			pipelineCfg := pipelineConfigFromEnv(log)
			pipeline, err := rag.NewPipeline(emb, c.retriever, nil, generator, pipelineCfg)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			// Open conversation history store. DOCQA_HISTORY_DB overrides the
			// default path (~/.docqa/history.db). Set to "disabled" to disable.
			var historyStore store.ConversationStore
			dbPath := os.Getenv("DOCQA_HISTORY_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = store.DefaultDBPath()
					if err != nil {
						log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					hs, hsErr := store.Open(dbPath)
					if hsErr != nil {
						log.Warn("history: failed to open store, disabling", slog.Any("error", hsErr))
					} else {
						historyStore = hs
						defer func() { _ = hs.Close() }()
						log.Info("history: store opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("history: disabled via DOCQA_HISTORY_DB=disabled")
			}

			pingers := []server.Pinger{
				server.NewLLMPinger(chatModel, provider.NewHealthChecker(providerCfg), string(providerCfg.Backend)),
			}
			if c.qdrant != nil {
				pingers = append(pingers, server.NewQdrantPinger(c.qdrant.Client()))
			}

			srv, err := server.New(pipeline, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("DOCQA_API_KEY"),
				History: historyStore,
				Stats: func() server.Stats {
					return server.Stats{
						Documents:      c.documents(),
						Dimension:      dims,
						RetrievalK:     pipelineCfg.TopK,
						RetrievalMode:  string(pipelineCfg.Mode),
						Provider:       string(providerCfg.Backend),
						Model:          modelName(providerCfg),
						EmbeddingModel: os.Getenv("EMBEDDING_MODEL"),
					}
				},
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}
			pipeline.SetRetrievalObserver(srv.ObserveRetrieval)

			if watch && ingestPipeline != nil {
				watcher, werr := ingestion.NewWatcher(ingestPipeline, ingestSrc, documentsPath, log)
				if werr != nil {
					return fmt.Errorf("serve: watch %s: %w", documentsPath, werr)
				}
				go func() {
					if werr := watcher.Run(ctx); werr != nil {
						log.Error("document watcher stopped", slog.Any("error", werr))
					}
				}()
				log.Info("watching documents for changes", slog.String("path", documentsPath))
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")
	cmd.Flags().StringVar(&documentsPath, "documents", "", "Documents to index: CSV file, text file, or directory (default: DOCUMENTS_PATH)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Re-index when the documents path changes")

	return cmd
}
