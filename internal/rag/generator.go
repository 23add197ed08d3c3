package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/sethvargo/go-retry"
)

// DefaultGenerationTimeout bounds a single LLM generate call.
const DefaultGenerationTimeout = 30 * time.Second

// GeneratorConfig holds the answer generation settings.
type GeneratorConfig struct {
	// Timeout is the per-attempt deadline for a generate call.
	// Defaults to DefaultGenerationTimeout if zero.
	Timeout time.Duration

	// MaxRetries is the number of additional attempts after a backend
	// failure. Zero disables retries — retrying is an explicitly
	// configured wrapper, not baked into the call. Timeouts are never
	// retried.
	MaxRetries int

	// RetryDelay is the fixed delay between attempts. Defaults to 1s
	// if zero and MaxRetries > 0.
	RetryDelay time.Duration
}

// AnswerGenerator implements Generator on top of an eino ChatModel.
// The same wrapper serves every provider backend (Ollama, OpenAI, Azure,
// Bedrock, Gemini) because they all surface as model.ToolCallingChatModel.
type AnswerGenerator struct {
	// model is the chat model that produces the answer.
	model model.ToolCallingChatModel

	// cfg holds the resolved generation settings.
	cfg *GeneratorConfig
}

// NewAnswerGenerator constructs an AnswerGenerator from the given chat
// model and config.
func NewAnswerGenerator(chatModel model.ToolCallingChatModel, cfg *GeneratorConfig) (*AnswerGenerator, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("generator: chat model must not be nil")
	}
	if cfg == nil {
		cfg = &GeneratorConfig{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultGenerationTimeout
	}
	if cfg.MaxRetries > 0 && cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &AnswerGenerator{model: chatModel, cfg: cfg}, nil
}

// Generate sends the prompt to the backend and returns the generated text.
// A timeout surfaces as ErrGenerationTimeout and is not retried; other
// backend failures surface as ErrGenerationBackend and are retried with a
// fixed delay when MaxRetries is configured.
func (g *AnswerGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.cfg.MaxRetries <= 0 {
		return g.generateOnce(ctx, prompt)
	}

	var answer string
	backoff := retry.WithMaxRetries(uint64(g.cfg.MaxRetries), retry.NewConstant(g.cfg.RetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var genErr error
		answer, genErr = g.generateOnce(ctx, prompt)
		if genErr == nil {
			return nil
		}
		if errors.Is(genErr, ErrGenerationBackend) {
			return retry.RetryableError(genErr)
		}
		return genErr
	})
	if err != nil {
		return "", err
	}
	return answer, nil
}

// generateOnce performs a single generate call under the configured timeout.
func (g *AnswerGenerator) generateOnce(ctx context.Context, prompt string) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	resp, err := g.model.Generate(genCtx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("generator: %w after %s: %v", ErrGenerationTimeout, g.cfg.Timeout, err)
		}
		return "", fmt.Errorf("generator: %w: %v", ErrGenerationBackend, err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("generator: %w: backend returned an empty response", ErrGenerationBackend)
	}

	return resp.Content, nil
}
