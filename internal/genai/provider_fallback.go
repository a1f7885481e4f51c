// Package genai provides integration with LLM APIs (Gemini and OpenRouter).
// This file contains the fallback wrappers for cross-provider failover.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/garyellow/dr-matricula-go/internal/metrics"
)

// FallbackDecider tries each Decider in order. Each link is retried with
// backoff on transient errors before moving on.
type FallbackDecider struct {
	chain       []Decider
	retryConfig RetryConfig
	metrics     *metrics.Metrics
}

// NewFallbackDecider creates a fallback-enabled decider over chain.
func NewFallbackDecider(cfg RetryConfig, m *metrics.Metrics, chain ...Decider) *FallbackDecider {
	return &FallbackDecider{chain: chain, retryConfig: cfg, metrics: m}
}

// Decide asks the first provider that answers.
func (f *FallbackDecider) Decide(ctx context.Context, req DecideRequest) (*Decision, error) {
	if f == nil || len(f.chain) == 0 {
		return nil, errors.New("decider not configured")
	}
	return runChain(ctx, f.chain, f.retryConfig, f.metrics, OperationDecide,
		func(d Decider) (*Decision, error) { return d.Decide(ctx, req) })
}

// Provider returns the primary provider type.
func (f *FallbackDecider) Provider() Provider {
	if f == nil || len(f.chain) == 0 {
		return ""
	}
	return f.chain[0].Provider()
}

// Close closes every link.
func (f *FallbackDecider) Close() error {
	if f == nil {
		return nil
	}
	return closeAll(f.chain)
}

// FallbackClassifier tries each Classifier in order.
type FallbackClassifier struct {
	chain       []Classifier
	retryConfig RetryConfig
	metrics     *metrics.Metrics
}

// NewFallbackClassifier creates a fallback-enabled classifier over chain.
func NewFallbackClassifier(cfg RetryConfig, m *metrics.Metrics, chain ...Classifier) *FallbackClassifier {
	return &FallbackClassifier{chain: chain, retryConfig: cfg, metrics: m}
}

// Classify asks the first provider that answers.
func (f *FallbackClassifier) Classify(ctx context.Context, candidates map[int]string, text string) (string, error) {
	if f == nil || len(f.chain) == 0 {
		return "", errors.New("classifier not configured")
	}
	return runChain(ctx, f.chain, f.retryConfig, f.metrics, OperationClassify,
		func(c Classifier) (string, error) { return c.Classify(ctx, candidates, text) })
}

// Provider returns the primary provider type.
func (f *FallbackClassifier) Provider() Provider {
	if f == nil || len(f.chain) == 0 {
		return ""
	}
	return f.chain[0].Provider()
}

// Close closes every link.
func (f *FallbackClassifier) Close() error {
	if f == nil {
		return nil
	}
	return closeAll(f.chain)
}

type provided interface {
	Provider() Provider
	Close() error
}

func runChain[P provided, T any](ctx context.Context, chain []P, cfg RetryConfig, m *metrics.Metrics, operation string, call func(P) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	for i, link := range chain {
		provider := link.Provider()
		start := time.Now()

		result, err := withRetry(ctx, cfg, func(attempt int, err error) {
			slog.DebugContext(ctx, "retrying LLM call",
				"provider", provider,
				"operation", operation,
				"attempt", attempt,
				"error", err)
		}, func() (T, error) { return call(link) })

		if err == nil {
			m.RecordLLMRequest(string(provider), operation, "success", time.Since(start).Seconds())
			if i > 0 {
				m.RecordLLMFallback(operation)
			}
			return result, nil
		}

		lastErr = err
		m.RecordLLMRequest(string(provider), operation, classifyErrorType(err), time.Since(start).Seconds())

		action := ClassifyError(err)
		slog.WarnContext(ctx, "LLM provider failed",
			"provider", provider,
			"operation", operation,
			"action", action,
			"error", err)

		if action == ActionFail || ctx.Err() != nil {
			return zero, err
		}
	}
	return zero, fmt.Errorf("all providers failed: %w", lastErr)
}

func closeAll[P provided](chain []P) error {
	var errs []error
	for _, link := range chain {
		if err := link.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
