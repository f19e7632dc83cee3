package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"blueprint/internal/gateway/config"
	"blueprint/internal/llm"
)

// newLLMClient builds the provider client named by cfg and wraps it with
// logging, retry and rate limiting.
func newLLMClient(ctx context.Context, cfg config.LLMConfig) (llm.LLMClient, error) {
	var inner llm.LLMClient
	switch cfg.Provider {
	case "", "fake":
		inner = llm.NewFakeClient()
	case "gemini":
		c, err := llm.NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gemini client: %w", err)
		}
		inner = c
	case "openai":
		inner = llm.NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case "anthropic":
		inner = llm.NewAnthropicClient(cfg.APIKey, cfg.BaseURL, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.Provider)
	}
	if cfg.Provider != "" && cfg.Provider != "fake" && cfg.APIKey == "" {
		return nil, fmt.Errorf("LLM_API_KEY is required for provider %s", cfg.Provider)
	}
	log.Printf("llm: provider=%s rps=%.2f burst=%d retries=%d", inner.Name(), cfg.RPS, cfg.Burst, cfg.Retries)
	return llm.Wrap(inner,
		llm.WithLogging(log.Default()),
		llm.Retry(cfg.Retries, 2*time.Second),
		llm.Timeout(2*time.Minute),
		llm.RateLimit(cfg.RPS, cfg.Burst),
	), nil
}
