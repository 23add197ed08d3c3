package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/corpusai/docqa/internal/rag"
)

// Sink receives embedded documents. The in-memory store and the Qdrant
// retriever both have adapters below; the pipeline never knows which one
// it is feeding.
type Sink interface {
	// Put inserts a batch of documents whose embeddings are already
	// attached. Inserting a document that is already present is a no-op.
	Put(ctx context.Context, docs []rag.Document) error
}

// StoreSink adapts rag.MemoryStore to the Sink interface.
type StoreSink struct {
	// Store is the destination store.
	Store *rag.MemoryStore
}

// Put adds each document to the store. The store attaches each embedding
// atomically at insert, so concurrent readers never see a partial document.
func (s *StoreSink) Put(_ context.Context, docs []rag.Document) error {
	for _, doc := range docs {
		if _, err := s.Store.Add(doc); err != nil {
			return fmt.Errorf("ingestion: store add: %w", err)
		}
	}
	return nil
}

// QdrantSink adapts rag.QdrantRetriever to the Sink interface.
type QdrantSink struct {
	// Retriever is the destination Qdrant collection.
	Retriever *rag.QdrantRetriever
}

// Put upserts the batch into the Qdrant collection.
func (s *QdrantSink) Put(ctx context.Context, docs []rag.Document) error {
	if err := s.Retriever.Upsert(ctx, docs); err != nil {
		return fmt.Errorf("ingestion: qdrant upsert: %w", err)
	}
	return nil
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per document chunk.
	// Zero disables chunking — each record is stored whole, which suits
	// row-per-document corpora.
	ChunkSize int

	// ChunkOverlap is the number of characters to overlap between
	// consecutive chunks. Ignored when chunking is disabled.
	ChunkOverlap int

	// EmbedBatchSize is the number of texts sent to the embedder per
	// request. Defaults to 32 if zero.
	EmbedBatchSize int
}

// Pipeline orchestrates the read → chunk → embed → insert flow for a
// document source.
type Pipeline struct {
	// embedder converts text chunks into dense vector embeddings.
	embedder rag.Embedder

	// sink receives the embedded documents.
	sink Sink

	// cfg holds the resolved pipeline configuration.
	cfg *Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, sink Sink, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if sink == nil {
		return nil, fmt.Errorf("ingestion: sink must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ChunkSize < 0 {
		cfg.ChunkSize = 0
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkSize > 0 && cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 10
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 32
	}

	return &Pipeline{
		embedder: embedder,
		sink:     sink,
		cfg:      cfg,
	}, nil
}

// Ingest reads, chunks, embeds, and inserts all records from the source.
// It returns the number of documents inserted into the sink. Content-hash
// IDs make re-ingesting an unchanged source a no-op, which is what lets
// the watcher call Ingest after every filesystem event.
// Progress is reported via the optional progress callback.
func (p *Pipeline) Ingest(ctx context.Context, src Source, progress func(msg string)) (int, error) {
	if progress == nil {
		progress = func(string) {}
	}

	start := time.Now()
	records, err := src.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("ingestion: read %s: %w", src.Name(), err)
	}
	progress(fmt.Sprintf("read %d records from %s", len(records), src.Name()))
	if len(records) == 0 {
		return 0, nil
	}

	docs := make([]rag.Document, 0, len(records))
	for _, rec := range records {
		chunks := p.chunk(rec.Content)
		for i, chunk := range chunks {
			source := rec.Source
			if len(chunks) > 1 {
				source = fmt.Sprintf("%s@%d", rec.Source, i)
			}
			docs = append(docs, rag.Document{
				ID:      rag.ContentID(chunk),
				Content: chunk,
				Source:  source,
			})
		}
	}
	if p.cfg.ChunkSize > 0 {
		progress(fmt.Sprintf("chunked into %d documents", len(docs)))
	}

	for lo := 0; lo < len(docs); lo += p.cfg.EmbedBatchSize {
		hi := lo + p.cfg.EmbedBatchSize
		if hi > len(docs) {
			hi = len(docs)
		}

		texts := make([]string, 0, hi-lo)
		for _, doc := range docs[lo:hi] {
			texts = append(texts, doc.Content)
		}

		embeddings, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("ingestion: embedding batch failed: %w", err)
		}
		if len(embeddings) != hi-lo {
			return 0, fmt.Errorf("ingestion: embedder returned %d vectors for %d texts", len(embeddings), hi-lo)
		}
		for i := range embeddings {
			docs[lo+i].Embedding = embeddings[i]
		}

		if err := p.sink.Put(ctx, docs[lo:hi]); err != nil {
			return 0, err
		}
	}

	progress(fmt.Sprintf("ingested %d documents from %s in %s", len(docs), src.Name(), time.Since(start).Round(time.Millisecond)))
	return len(docs), nil
}

// chunk splits text into overlapping chunks of cfg.ChunkSize characters.
// With chunking disabled the text is returned whole.
func (p *Pipeline) chunk(text string) []string {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return nil
	}
	if p.cfg.ChunkSize <= 0 || len(text) <= p.cfg.ChunkSize {
		return []string{text}
	}

	var chunks []string
	size := p.cfg.ChunkSize
	overlap := p.cfg.ChunkOverlap

	for start := 0; start < len(text); start += size - overlap {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
	}

	return chunks
}
