// Package budget provides token budget estimation for prompt assembly.
// Because the pipeline supports multiple LLM backends with different
// tokenizers, this package uses a conservative character-based heuristic:
// 1 token ≈ 4 characters (English prose). This deliberately under-estimates
// token counts to leave headroom for model-specific overhead.
package budget

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English; using 3 would be
	// more aggressive but risks overflowing context windows.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default prompt budget in tokens.
	// Conservative enough to fit within 8k-context models (Llama 3 8B,
	// Mistral 7B) while leaving room for the generated answer.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateAll returns the estimated total token count for a set of prompt
// parts, including a small per-part overhead.
func EstimateAll(parts ...string) int {
	total := 0
	for _, p := range parts {
		total += 2
		total += Estimate(p)
	}
	return total
}
