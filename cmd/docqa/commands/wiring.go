package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/corpusai/docqa/internal/embedder"
	"github.com/corpusai/docqa/internal/ingestion"
	"github.com/corpusai/docqa/internal/provider"
	"github.com/corpusai/docqa/internal/rag"
)

// corpus bundles the retrieval backend selected at startup. Exactly one of
// the two backends is active: an in-process memory store (the default) or a
// Qdrant collection when QDRANT_HOST is set.
type corpus struct {
	// retriever answers similarity queries against the active backend.
	retriever rag.Retriever
	// sink receives embedded documents during ingestion.
	sink ingestion.Sink
	// memory is the in-process store, nil when Qdrant is active.
	memory *rag.MemoryStore
	// qdrant is the Qdrant retriever, nil when the memory store is active.
	qdrant *rag.QdrantRetriever
	// ingested counts documents written through the sink in this process.
	ingested int
	// close releases backend resources.
	close func()
}

// documents returns the number of documents known to the backend: the live
// store size for the memory backend, the count ingested by this process for
// Qdrant.
func (c *corpus) documents() int {
	if c.memory != nil {
		return c.memory.Len()
	}
	return c.ingested
}

// buildCorpus selects and constructs the retrieval backend.
// QDRANT_HOST switches from the default in-process memory store to a Qdrant
// collection; both sit behind the same Retriever interface so the pipeline
// never knows which one it is talking to.
func buildCorpus(ctx context.Context, dimensions int, log *slog.Logger) (*corpus, error) {
	qdrantHost := os.Getenv("QDRANT_HOST")
	if qdrantHost == "" {
		store, err := rag.NewMemoryStore(dimensions)
		if err != nil {
			return nil, fmt.Errorf("memory store: %w", err)
		}
		retriever, err := rag.NewStoreRetriever(store, nil)
		if err != nil {
			return nil, fmt.Errorf("memory store: %w", err)
		}
		log.Info("corpus backend: in-process memory store", slog.Int("dimensions", dimensions))
		return &corpus{
			retriever: retriever,
			sink:      &ingestion.StoreSink{Store: store},
			memory:    store,
			close:     func() {},
		}, nil
	}

	qr, err := rag.NewQdrantRetriever(ctx, &rag.QdrantConfig{
		Host:       qdrantHost,
		Port:       getEnvInt("QDRANT_PORT", 6334),
		Collection: getEnvOrDefault("QDRANT_COLLECTION", "docqa-docs"),
		VectorSize: uint64(dimensions), //nolint:gosec // dimensions are bounded
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant at %s: %w", qdrantHost, err)
	}
	log.Info("corpus backend: qdrant",
		slog.String("host", qdrantHost),
		slog.String("collection", getEnvOrDefault("QDRANT_COLLECTION", "docqa-docs")),
	)
	return &corpus{
		retriever: qr,
		sink:      &ingestion.QdrantSink{Retriever: qr},
		qdrant:    qr,
		close:     func() { _ = qr.Close() },
	}, nil
}

// buildEmbedder validates the embedding configuration and constructs the
// embedder, returning it with the effective vector dimensionality.
func buildEmbedder(log *slog.Logger) (rag.Embedder, int, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, 0, err
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, 0, err
	}
	dims := getEnvInt("EMBEDDING_DIMENSIONS", embedder.DefaultDimensions(embedder.Backend()))
	return emb, dims, nil
}

// generatorConfigFromEnv resolves the generation timeout and retry settings.
func generatorConfigFromEnv() *rag.GeneratorConfig {
	return &rag.GeneratorConfig{
		Timeout:    getEnvDuration("GENERATION_TIMEOUT", rag.DefaultGenerationTimeout),
		MaxRetries: getEnvInt("GENERATION_RETRIES", 0),
		RetryDelay: getEnvDuration("GENERATION_RETRY_DELAY", 0),
	}
}

// pipelineConfigFromEnv resolves the retrieval settings.
func pipelineConfigFromEnv(log *slog.Logger) *rag.PipelineConfig {
	return &rag.PipelineConfig{
		TopK:     getEnvInt("RETRIEVAL_K", rag.DefaultTopK),
		MinScore: getEnvFloat32("RETRIEVAL_MIN_SCORE", rag.DefaultMinScore),
		Mode:     rag.RetrievalMode(getEnvOrDefault("RETRIEVAL_MODE", string(rag.ModeTopK))),
		Logger:   log,
	}
}

// ingestionConfigFromEnv resolves the chunking settings.
func ingestionConfigFromEnv() *ingestion.Config {
	return &ingestion.Config{
		ChunkSize:    getEnvInt("DOCUMENTS_CHUNK_SIZE", 0),
		ChunkOverlap: getEnvInt("DOCUMENTS_CHUNK_OVERLAP", 0),
	}
}

// ingestDocuments runs one ingestion pass over path into the corpus sink.
func ingestDocuments(ctx context.Context, emb rag.Embedder, c *corpus, path string, log *slog.Logger) (*ingestion.Pipeline, ingestion.Source, error) {
	src, err := ingestion.NewSource(path)
	if err != nil {
		return nil, nil, err
	}

	pipeline, err := ingestion.NewPipeline(emb, c.sink, ingestionConfigFromEnv())
	if err != nil {
		return nil, nil, err
	}

	n, err := pipeline.Ingest(ctx, src, func(msg string) { log.Info(msg) })
	if err != nil {
		return nil, nil, err
	}
	c.ingested += n
	log.Info("ingestion complete", slog.String("path", path), slog.Int("documents", n))
	return pipeline, src, nil
}

// modelName returns the generation model configured for the active backend.
func modelName(cfg *provider.Config) string {
	switch cfg.Backend {
	case provider.BackendOllama:
		return cfg.Ollama.Model
	case provider.BackendOpenAI:
		return cfg.OpenAI.Model
	case provider.BackendAzure:
		return cfg.AzureOpenAI.Deployment
	case provider.BackendBedrock:
		return cfg.Bedrock.ModelID
	case provider.BackendGemini:
		return cfg.Gemini.Model
	}
	return ""
}

// getEnvOrDefault returns the env var value, or fallback when unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the env var parsed as an int, or fallback when unset
// or unparsable.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// getEnvFloat32 returns the env var parsed as a float32, or fallback when
// unset or unparsable.
func getEnvFloat32(key string, fallback float32) float32 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return fallback
	}
	return float32(f)
}

// getEnvDuration returns the env var parsed as a duration (e.g. "30s"), or
// fallback when unset or unparsable.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
