// Package rag implements the retrieval-augmented answering core: an
// in-memory document store, cosine similarity ranking, grounded prompt
// assembly, and answer generation against an LLM backend. Embedding and
// vector-index backends are abstracted behind interfaces so the pipeline
// never depends on a specific service.
package rag

import (
	"context"
)

// Document is a unit of stored or retrieved knowledge.
type Document struct {
	// ID is the unique identifier for this document. When empty at insert
	// time, it is derived from the sha256 hash of Content so re-ingesting
	// the same record is idempotent.
	ID string

	// Content is the raw text, immutable once ingested.
	Content string

	// Source is the origin file path or URI of the document.
	Source string

	// Embedding is the fixed-dimension vector computed at ingestion time.
	// It is attached atomically at insert and never mutated.
	Embedding []float32
}

// ScoredMatch pairs a document with the similarity score assigned during
// retrieval. For cosine similarity the score lies in [-1, 1].
type ScoredMatch struct {
	// Document is the matched document. The store remains the owner;
	// matches are discarded once the prompt is built.
	Document Document

	// Score is the similarity between the query and this document.
	Score float32
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Ranker scores a query embedding against a candidate document set and
// returns the top matches. The contract is defined by its inputs and
// outputs, not its algorithm — a linear scan and an ANN index are both
// valid implementations.
type Ranker interface {
	// Rank returns at most k matches with score >= minScore, ordered by
	// descending score. Ties keep the candidates' original order so
	// results are deterministic. k <= 0 is ErrInvalidInput.
	Rank(queryEmbedding []float32, docs []Document, k int, minScore float32) ([]ScoredMatch, error)
}

// Retriever is the high-level retrieval interface used by the pipeline.
// It hides whether matching runs as a local scan over the in-memory store
// or as a server-side search in a vector database.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns at most k matches for the query embedding with
	// score >= minScore, descending by score. Pass minScore <= -1 to
	// disable the threshold.
	Retrieve(ctx context.Context, queryEmbedding []float32, k int, minScore float32) ([]ScoredMatch, error)
}

// Generator produces an answer for an assembled prompt.
// Implementations must be safe to call from multiple goroutines.
type Generator interface {
	// Generate sends the prompt to the LLM backend and returns the
	// generated text. Failures are reported as ErrGenerationTimeout or
	// ErrGenerationBackend, never folded into the answer string.
	Generate(ctx context.Context, prompt string) (string, error)
}
