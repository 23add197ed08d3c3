package rag

import (
	"context"
	"fmt"
)

// StoreRetriever implements Retriever by scanning a MemoryStore snapshot
// with a Ranker. It is the default retrieval path: no external service,
// deterministic, and exact.
type StoreRetriever struct {
	// store holds the corpus to scan.
	store *MemoryStore

	// ranker scores the snapshot against the query embedding.
	ranker Ranker
}

// NewStoreRetriever constructs a StoreRetriever. A nil ranker defaults to
// CosineRanker.
func NewStoreRetriever(store *MemoryStore, ranker Ranker) (*StoreRetriever, error) {
	if store == nil {
		return nil, fmt.Errorf("retriever: store must not be nil")
	}
	if ranker == nil {
		ranker = CosineRanker{}
	}
	return &StoreRetriever{store: store, ranker: ranker}, nil
}

// Retrieve ranks a consistent snapshot of the store against the query
// embedding. An empty store yields an empty match set, not an error.
func (r *StoreRetriever) Retrieve(_ context.Context, queryEmbedding []float32, k int, minScore float32) ([]ScoredMatch, error) {
	return r.ranker.Rank(queryEmbedding, r.store.All(), k, minScore)
}

// Store exposes the underlying MemoryStore for ingestion and stats.
func (r *StoreRetriever) Store() *MemoryStore {
	return r.store
}
