// Package genai provides integration with LLM APIs (Gemini and OpenRouter).
// This file contains factory functions for creating LLM providers.
package genai

import (
	"context"
	"errors"
	"log/slog"

	"github.com/garyellow/dr-matricula-go/internal/metrics"
)

// Config holds configuration for all LLM providers.
type Config struct {
	GeminiAPIKey     string
	OpenRouterAPIKey string
	// OpenRouterBaseURL overrides ProviderEndpoint[ProviderOpenRouter].
	OpenRouterBaseURL string

	GeminiRouterModel         string
	GeminiClassifierModel     string
	OpenRouterRouterModel     string
	OpenRouterClassifierModel string

	// RouterPrimary and ClassifierPrimary select which provider is tried first.
	RouterPrimary     Provider
	ClassifierPrimary Provider

	Retry   RetryConfig
	Metrics *metrics.Metrics
}

func providerOrder(primary Provider) []Provider {
	if primary == ProviderOpenRouter {
		return []Provider{ProviderOpenRouter, ProviderGemini}
	}
	return []Provider{ProviderGemini, ProviderOpenRouter}
}

// NewDecider builds the reasoning-step decider chain. Providers without an
// API key are skipped; an error is returned when none is configured.
func NewDecider(ctx context.Context, cfg Config) (*FallbackDecider, error) {
	var chain []Decider
	for _, p := range providerOrder(cfg.RouterPrimary) {
		switch p {
		case ProviderGemini:
			if cfg.GeminiAPIKey == "" {
				continue
			}
			d, err := newGeminiDecider(ctx, cfg.GeminiAPIKey, cfg.GeminiRouterModel, cfg.Metrics)
			if err != nil {
				slog.WarnContext(ctx, "failed to create gemini decider", "error", err)
				continue
			}
			chain = append(chain, d)
		case ProviderOpenRouter:
			if cfg.OpenRouterAPIKey == "" {
				continue
			}
			d, err := newOpenAIDecider(ProviderOpenRouter, cfg.OpenRouterAPIKey, cfg.OpenRouterRouterModel, cfg.OpenRouterBaseURL, cfg.Metrics)
			if err != nil {
				slog.WarnContext(ctx, "failed to create openrouter decider", "error", err)
				continue
			}
			chain = append(chain, d)
		}
	}
	if len(chain) == 0 {
		return nil, errors.New("genai: no LLM provider configured for the router")
	}

	slog.InfoContext(ctx, "decider configured",
		"primary", chain[0].Provider(),
		"chainSize", len(chain))
	return NewFallbackDecider(retryOrDefault(cfg.Retry), cfg.Metrics, chain...), nil
}

// NewClassifier builds the program classifier chain.
func NewClassifier(ctx context.Context, cfg Config) (*FallbackClassifier, error) {
	var chain []Classifier
	for _, p := range providerOrder(cfg.ClassifierPrimary) {
		switch p {
		case ProviderGemini:
			if cfg.GeminiAPIKey == "" {
				continue
			}
			c, err := newGeminiClassifier(ctx, cfg.GeminiAPIKey, cfg.GeminiClassifierModel, cfg.Metrics)
			if err != nil {
				slog.WarnContext(ctx, "failed to create gemini classifier", "error", err)
				continue
			}
			chain = append(chain, c)
		case ProviderOpenRouter:
			if cfg.OpenRouterAPIKey == "" {
				continue
			}
			c, err := newOpenAIClassifier(ProviderOpenRouter, cfg.OpenRouterAPIKey, cfg.OpenRouterClassifierModel, cfg.OpenRouterBaseURL, cfg.Metrics)
			if err != nil {
				slog.WarnContext(ctx, "failed to create openrouter classifier", "error", err)
				continue
			}
			chain = append(chain, c)
		}
	}
	if len(chain) == 0 {
		return nil, errors.New("genai: no LLM provider configured for the classifier")
	}

	slog.InfoContext(ctx, "classifier configured",
		"primary", chain[0].Provider(),
		"chainSize", len(chain))
	return NewFallbackClassifier(retryOrDefault(cfg.Retry), cfg.Metrics, chain...), nil
}

func retryOrDefault(cfg RetryConfig) RetryConfig {
	if cfg.MaxAttempts <= 0 {
		return DefaultRetryConfig()
	}
	return cfg
}
