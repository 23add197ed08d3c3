package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HealthChecker reports LLM backend reachability without consuming tokens.
// Backends without a zero-cost probe do not provide one; callers fall back
// to a minimal generate call.
type HealthChecker interface {
	// HealthCheck returns nil when the backend is reachable.
	HealthCheck(ctx context.Context) error
}

// NewHealthChecker returns a zero-cost health checker for the configured
// backend, or nil when none exists for it.
func NewHealthChecker(cfg *Config) HealthChecker {
	if cfg.Backend == BackendOllama {
		return &ollamaHealthChecker{
			host:   cfg.Ollama.Host,
			client: &http.Client{Timeout: 5 * time.Second},
		}
	}
	return nil
}

// ollamaHealthChecker probes the Ollama /api/tags endpoint, which lists
// installed models without running inference.
type ollamaHealthChecker struct {
	// host is the Ollama server base URL.
	host string
	// client is the probe HTTP client with a short timeout.
	client *http.Client
}

// HealthCheck issues GET /api/tags and treats any 2xx as healthy.
func (c *ollamaHealthChecker) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("ollama health check: create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ollama health check: HTTP %d", resp.StatusCode)
	}
	return nil
}
