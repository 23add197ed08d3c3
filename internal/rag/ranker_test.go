package rag

import (
	"errors"
	"math"
	"testing"
)

// doc builds a Document with the given ID and embedding.
func doc(id string, emb ...float32) Document {
	return Document{ID: id, Content: "content " + id, Embedding: emb}
}

func TestCosine_IdenticalVectors(t *testing.T) {
	t.Parallel()

	got := Cosine([]float32{1, 2, 3}, []float32{1, 2, 3})
	if math.Abs(float64(got)-1) > 1e-6 {
		t.Errorf("identical vectors: expected 1.0, got %v", got)
	}
}

func TestCosine_OrthogonalVectors(t *testing.T) {
	t.Parallel()

	got := Cosine([]float32{1, 0}, []float32{0, 1})
	if math.Abs(float64(got)) > 1e-6 {
		t.Errorf("orthogonal vectors: expected 0.0, got %v", got)
	}
}

func TestCosine_OppositeVectors(t *testing.T) {
	t.Parallel()

	got := Cosine([]float32{1, 1}, []float32{-1, -1})
	if math.Abs(float64(got)+1) > 1e-6 {
		t.Errorf("opposite vectors: expected -1.0, got %v", got)
	}
}

// TestCosine_ZeroNorm verifies the degenerate-vector rule: a zero vector
// scores 0.0 rather than producing NaN from a division by zero.
func TestCosine_ZeroNorm(t *testing.T) {
	t.Parallel()

	if got := Cosine([]float32{0, 0, 0}, []float32{1, 2, 3}); got != 0 {
		t.Errorf("zero query vector: expected 0.0, got %v", got)
	}
	if got := Cosine([]float32{1, 2, 3}, []float32{0, 0, 0}); got != 0 {
		t.Errorf("zero document vector: expected 0.0, got %v", got)
	}
}

func TestCosine_MismatchedLengths(t *testing.T) {
	t.Parallel()

	if got := Cosine([]float32{1, 2}, []float32{1, 2, 3}); got != 0 {
		t.Errorf("mismatched lengths: expected 0.0, got %v", got)
	}
	if got := Cosine(nil, nil); got != 0 {
		t.Errorf("empty vectors: expected 0.0, got %v", got)
	}
}

// TestCosine_Bounded verifies similarity stays within [-1, 1] across a
// spread of vectors, within float tolerance.
func TestCosine_Bounded(t *testing.T) {
	t.Parallel()

	pairs := [][2][]float32{
		{{0.5, -0.2, 3}, {1, 1, 1}},
		{{100, 200}, {0.001, 0.002}},
		{{-5, 2, 0.1}, {3, -8, 4}},
	}
	for _, p := range pairs {
		got := Cosine(p[0], p[1])
		if got < -1.0000001 || got > 1.0000001 {
			t.Errorf("Cosine(%v, %v) = %v, outside [-1, 1]", p[0], p[1], got)
		}
	}
}

func TestRank_InvalidK(t *testing.T) {
	t.Parallel()

	var r CosineRanker
	for _, k := range []int{0, -1} {
		_, err := r.Rank([]float32{1, 0}, []Document{doc("a", 1, 0)}, k, -2)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("k=%d: expected ErrInvalidInput, got %v", k, err)
		}
	}
}

func TestRank_EmptyCorpus(t *testing.T) {
	t.Parallel()

	var r CosineRanker
	matches, err := r.Rank([]float32{1, 0}, nil, 3, -2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("empty corpus: expected 0 matches, got %d", len(matches))
	}
}

func TestRank_DescendingOrder(t *testing.T) {
	t.Parallel()

	var r CosineRanker
	docs := []Document{
		doc("far", -1, 0),
		doc("near", 1, 0.1),
		doc("mid", 1, 1),
	}

	matches, err := r.Rank([]float32{1, 0}, docs, 3, -2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matches))
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Errorf("scores not descending at %d: %v then %v", i, matches[i-1].Score, matches[i].Score)
		}
	}
	if matches[0].Document.ID != "near" {
		t.Errorf("best match: expected near, got %s", matches[0].Document.ID)
	}
}

func TestRank_TruncatesToK(t *testing.T) {
	t.Parallel()

	var r CosineRanker
	docs := []Document{
		doc("a", 1, 0), doc("b", 1, 0.1), doc("c", 1, 0.2), doc("d", 1, 0.3),
	}

	matches, err := r.Rank([]float32{1, 0}, docs, 2, -2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("expected 2 matches, got %d", len(matches))
	}
}

// TestRank_ThresholdBeforeTruncation verifies the filter runs before the
// top-k cut: documents below minScore never occupy a slot, so high-scoring
// documents beyond position k can still make the result.
func TestRank_ThresholdBeforeTruncation(t *testing.T) {
	t.Parallel()

	var r CosineRanker
	// Insertion order puts two low scorers first; with k=2 a
	// truncate-then-filter implementation would return only one match.
	docs := []Document{
		doc("low1", -1, 0),
		doc("low2", 0, 1),
		doc("high1", 1, 0),
		doc("high2", 1, 0.05),
	}

	matches, err := r.Rank([]float32{1, 0}, docs, 2, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches above threshold, got %d", len(matches))
	}
	for _, m := range matches {
		if m.Score < 0.5 {
			t.Errorf("match %s below threshold: %v", m.Document.ID, m.Score)
		}
	}
}

// TestRank_StableTies verifies that equal scores keep insertion order.
func TestRank_StableTies(t *testing.T) {
	t.Parallel()

	var r CosineRanker
	// Parallel vectors all score exactly 1.0 against the query.
	docs := []Document{
		doc("first", 2, 0),
		doc("second", 4, 0),
		doc("third", 1, 0),
	}

	matches, err := r.Rank([]float32{1, 0}, docs, 3, -2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"first", "second", "third"}
	for i, w := range want {
		if matches[i].Document.ID != w {
			t.Errorf("position %d: expected %s, got %s", i, w, matches[i].Document.ID)
		}
	}
}

// TestRank_ZeroVectorFiltered verifies a zero-embedding document scores 0.0
// and is removed by any positive threshold.
func TestRank_ZeroVectorFiltered(t *testing.T) {
	t.Parallel()

	var r CosineRanker
	docs := []Document{
		doc("zero", 0, 0),
		doc("real", 1, 0),
	}

	matches, err := r.Rank([]float32{1, 0}, docs, 5, 0.1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 1 || matches[0].Document.ID != "real" {
		t.Errorf("expected only the real document, got %v", matches)
	}
}
