package rag

import "errors"

// Sentinel errors for the answering pipeline. Stage implementations wrap
// these with fmt.Errorf("...: %w", ...) so callers can classify failures
// with errors.Is while still logging the full cause. The HTTP layer maps
// them to status codes; the pipeline never embeds them in answer text.
var (
	// ErrInvalidInput marks input rejected before any backend call:
	// an empty query after trimming, or a non-positive k.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmbedding marks an embedding backend failure. Fatal to the
	// current query; not retried.
	ErrEmbedding = errors.New("embedding failed")

	// ErrGenerationTimeout marks an LLM call that exceeded the configured
	// generation timeout.
	ErrGenerationTimeout = errors.New("generation timed out")

	// ErrGenerationBackend marks any non-success response from the LLM
	// backend other than a timeout.
	ErrGenerationBackend = errors.New("generation backend error")
)
