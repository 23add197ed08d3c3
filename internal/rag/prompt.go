package rag

import (
	"fmt"
	"strings"

	"github.com/corpusai/docqa/internal/budget"
)

// NoContextMarker is the sentence the prompt leads with when retrieval
// found nothing relevant. Tests and callers may match on it to tell the
// empty-retrieval path apart from a grounded answer.
const NoContextMarker = "No relevant documents were found for this query."

// PromptBuilder assembles the grounded generation prompt from the retrieved
// documents and the user query. The template is a fixed string concatenation;
// document content is treated as opaque text, never interpreted.
type PromptBuilder struct {
	// maxContextTokens caps the estimated token size of the assembled
	// prompt. Documents are dropped lowest-ranked-first to fit; the best
	// match is never dropped.
	maxContextTokens int
}

// NewPromptBuilder constructs a PromptBuilder. maxContextTokens <= 0 falls
// back to budget.DefaultMaxContextTokens.
func NewPromptBuilder(maxContextTokens int) *PromptBuilder {
	if maxContextTokens <= 0 {
		maxContextTokens = budget.DefaultMaxContextTokens
	}
	return &PromptBuilder{maxContextTokens: maxContextTokens}
}

// Build returns the prompt for the given query and matched document
// contents, ordered best-first. With no matches the prompt states
// explicitly that no relevant context was found — an empty documents
// section would invite the model to answer from its own priors.
func (b *PromptBuilder) Build(query string, docs []string) string {
	if len(docs) == 0 {
		var sb strings.Builder
		sb.WriteString(NoContextMarker)
		sb.WriteString("\n\nAnswer this query: ")
		sb.WriteString(query)
		sb.WriteString("\n\nIf you cannot answer without supporting documents, say that no relevant context is available instead of guessing.")
		return sb.String()
	}

	docs = b.fitToBudget(query, docs)

	var sb strings.Builder
	sb.WriteString("Given the following documents:\n")
	for i, doc := range docs {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, doc)
	}
	sb.WriteString("\nAnswer this query using only the documents above: ")
	sb.WriteString(query)
	sb.WriteString("\nIf the documents do not contain the answer, say so.")
	return sb.String()
}

// fitToBudget drops documents from the tail (lowest-ranked) until the
// estimated token count of the full prompt fits maxContextTokens. At least
// one document always survives.
func (b *PromptBuilder) fitToBudget(query string, docs []string) []string {
	for len(docs) > 1 {
		total := budget.Estimate(query)
		for _, doc := range docs {
			total += budget.Estimate(doc)
		}
		if total <= b.maxContextTokens {
			break
		}
		docs = docs[:len(docs)-1]
	}
	return docs
}
