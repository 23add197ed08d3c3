package rag

import (
	"fmt"
	"math"
	"sort"
)

// CosineRanker ranks documents by cosine similarity with a brute-force
// linear scan: O(n·D) per query for n documents of dimension D. At the
// corpus sizes this store targets (tens to low thousands of documents)
// a scan beats any index; swap in QdrantRetriever for larger corpora.
type CosineRanker struct{}

// Rank computes the cosine similarity between the query embedding and every
// candidate, filters out scores below minScore, and returns the k best in
// descending order. The threshold is applied before truncation so k always
// reflects genuinely relevant matches rather than padding with low scores.
// Ties keep insertion order (stable sort), making results deterministic.
func (CosineRanker) Rank(queryEmbedding []float32, docs []Document, k int, minScore float32) ([]ScoredMatch, error) {
	if k <= 0 {
		return nil, fmt.Errorf("ranker: k must be positive, got %d: %w", k, ErrInvalidInput)
	}

	matches := make([]ScoredMatch, 0, len(docs))
	for _, doc := range docs {
		score := Cosine(queryEmbedding, doc.Embedding)
		if score < minScore {
			continue
		}
		matches = append(matches, ScoredMatch{Document: doc, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Cosine returns the cosine similarity of a and b: dot(a, b) divided by the
// product of their norms. If either norm is zero the vector is degenerate
// and the similarity is defined as 0.0 (not a match). Vectors of unequal
// length score 0.0 — the store's dimension invariant makes that unreachable
// for stored documents, so it only guards direct callers.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
