package rag

import (
	"crypto/sha256"
	"fmt"
	"sync"
)

// MemoryStore is an append-only in-memory document store. It enforces a
// fixed embedding dimension at insert time and supports concurrent readers
// with a single writer: All returns a snapshot copy, so a query in flight
// never observes a partially inserted document.
//
// The store owns its documents. They are immutable once added and are only
// discarded by corpus reload (constructing a fresh store).
type MemoryStore struct {
	// mu guards docs and ids. Writes (Add) are exclusive; reads share.
	mu sync.RWMutex

	// dimension is the required embedding length, fixed at construction.
	dimension int

	// docs holds the corpus in insertion order.
	docs []Document

	// ids indexes document IDs for O(1) dedupe on re-ingestion.
	ids map[string]struct{}
}

// NewMemoryStore constructs an empty store that accepts embeddings of the
// given dimension. The dimension must match the embedder's output size —
// use embedder.DefaultDimensions to resolve it per backend.
func NewMemoryStore(dimension int) (*MemoryStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("store: dimension must be positive, got %d: %w", dimension, ErrInvalidInput)
	}
	return &MemoryStore{
		dimension: dimension,
		ids:       make(map[string]struct{}),
	}, nil
}

// Add inserts a document and returns its ID. The document's embedding must
// already be attached and match the store's dimension — a mismatch is
// rejected rather than silently stored. Documents whose ID is already
// present are skipped, which makes re-reads of a source file idempotent.
func (s *MemoryStore) Add(doc Document) (string, error) {
	if len(doc.Embedding) != s.dimension {
		return "", fmt.Errorf("store: embedding dimension %d does not match store dimension %d: %w",
			len(doc.Embedding), s.dimension, ErrInvalidInput)
	}
	if doc.ID == "" {
		doc.ID = ContentID(doc.Content)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[doc.ID]; exists {
		return doc.ID, nil
	}
	s.ids[doc.ID] = struct{}{}
	s.docs = append(s.docs, doc)
	return doc.ID, nil
}

// All returns a snapshot of the corpus in insertion order. The returned
// slice is a copy; callers may not see documents added after the call
// started, but never a half-written one.
func (s *MemoryStore) All() []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make([]Document, len(s.docs))
	copy(snapshot, s.docs)
	return snapshot
}

// Len returns the number of documents currently stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Dimension returns the embedding dimension this store enforces.
func (s *MemoryStore) Dimension() int {
	return s.dimension
}

// ContentID derives a stable document ID from the document content.
func ContentID(content string) string {
	h := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", h[:16])
}
