package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// RetrievalMode selects how retrieved matches are filtered before prompt
// assembly.
type RetrievalMode string

const (
	// ModeTopK keeps the k best matches with no score threshold.
	ModeTopK RetrievalMode = "top_k"

	// ModeThresholdReduce filters matches below MinScore, then collapses
	// the survivors to the single best document before generation.
	ModeThresholdReduce RetrievalMode = "threshold_reduce"
)

// Default retrieval settings.
const (
	// DefaultTopK is the number of documents retrieved per query.
	DefaultTopK = 3

	// DefaultMinScore is the similarity threshold used by
	// ModeThresholdReduce.
	DefaultMinScore float32 = 0.7

	// scoreDisabled passes every candidate through the threshold filter.
	scoreDisabled float32 = -2
)

// PipelineConfig holds the retrieval settings for a Pipeline.
type PipelineConfig struct {
	// TopK is the number of matches requested per query (default: 3).
	TopK int

	// MinScore is the similarity threshold applied by ModeThresholdReduce
	// (default: 0.7). Ignored by ModeTopK.
	MinScore float32

	// Mode selects the retrieval variant (default: ModeTopK).
	Mode RetrievalMode

	// Logger is the structured logger for pipeline events. Defaults to
	// slog.Default if nil.
	Logger *slog.Logger
}

// Pipeline orchestrates a single answer: embed the query, retrieve the most
// similar documents, assemble a grounded prompt, and generate the answer.
// Every stage is a hard dependency on the prior one succeeding; a stage
// failure short-circuits and is propagated as a typed error — no partial
// answer is ever returned, and no call mutates the document store.
type Pipeline struct {
	// embedder converts the query text to a vector.
	embedder Embedder

	// retriever finds the most similar documents.
	retriever Retriever

	// prompts assembles the grounded prompt.
	prompts *PromptBuilder

	// generator produces the final answer text.
	generator Generator

	// cfg holds the resolved retrieval settings.
	cfg *PipelineConfig

	// log is the structured logger for per-query events.
	log *slog.Logger

	// onRetrieve, when set, receives the match count of every query.
	onRetrieve func(matches int)
}

// SetRetrievalObserver registers fn to be called with the number of matches
// used for each query, after threshold filtering and truncation. It feeds
// metrics without coupling this package to a metrics registry. Set once at
// startup, before the pipeline serves queries.
func (p *Pipeline) SetRetrievalObserver(fn func(matches int)) { p.onRetrieve = fn }

// NewPipeline constructs a Pipeline from its four stages and config.
func NewPipeline(embedder Embedder, retriever Retriever, prompts *PromptBuilder, generator Generator, cfg *PipelineConfig) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("pipeline: embedder must not be nil")
	}
	if retriever == nil {
		return nil, fmt.Errorf("pipeline: retriever must not be nil")
	}
	if generator == nil {
		return nil, fmt.Errorf("pipeline: generator must not be nil")
	}
	if prompts == nil {
		prompts = NewPromptBuilder(0)
	}
	if cfg == nil {
		cfg = &PipelineConfig{}
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MinScore == 0 {
		cfg.MinScore = DefaultMinScore
	}
	switch cfg.Mode {
	case ModeTopK, ModeThresholdReduce:
	case "":
		cfg.Mode = ModeTopK
	default:
		return nil, fmt.Errorf("pipeline: unknown retrieval mode %q — valid values: top_k, threshold_reduce", cfg.Mode)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Pipeline{
		embedder:  embedder,
		retriever: retriever,
		prompts:   prompts,
		generator: generator,
		cfg:       cfg,
		log:       log,
	}, nil
}

// Answer runs the full pipeline for one query and returns the generated
// answer. The query is ephemeral: its embedding is computed here and
// discarded with the call.
func (p *Pipeline) Answer(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("pipeline: empty query: %w", ErrInvalidInput)
	}

	embeddings, err := p.embedder.Embed(ctx, []string{query})
	if err != nil {
		if errors.Is(err, ErrEmbedding) || errors.Is(err, ErrInvalidInput) {
			return "", err
		}
		return "", fmt.Errorf("pipeline: %w: %v", ErrEmbedding, err)
	}
	if len(embeddings) == 0 {
		return "", fmt.Errorf("pipeline: %w: embedder returned no vectors for query", ErrEmbedding)
	}

	minScore := scoreDisabled
	if p.cfg.Mode == ModeThresholdReduce {
		minScore = p.cfg.MinScore
	}

	matches, err := p.retriever.Retrieve(ctx, embeddings[0], p.cfg.TopK, minScore)
	if err != nil {
		return "", fmt.Errorf("pipeline: retrieval failed: %w", err)
	}

	// threshold_reduce keeps only the single best surviving match, the way
	// the threshold deployment variant behaves.
	if p.cfg.Mode == ModeThresholdReduce && len(matches) > 1 {
		matches = matches[:1]
	}

	contents := make([]string, len(matches))
	for i, m := range matches {
		contents[i] = m.Document.Content
	}

	if p.onRetrieve != nil {
		p.onRetrieve(len(matches))
	}

	p.log.Debug("retrieval complete",
		slog.Int("matches", len(matches)),
		slog.String("mode", string(p.cfg.Mode)),
	)

	prompt := p.prompts.Build(query, contents)

	answer, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	return answer, nil
}
