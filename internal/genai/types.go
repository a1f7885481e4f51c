// Package genai provides integration with LLM APIs (Gemini and OpenRouter).
// This file contains shared types, interfaces, and configuration for the
// reasoning loop (tool selection) and the program classifier.
//
// Architecture:
// - Gemini: Uses google.golang.org/genai (official SDK)
// - OpenRouter: Uses github.com/openai/openai-go/v3 (OpenAI-compatible API)
//
// Fallback Strategy:
// 1. Model Retry: Same model retried with full-jitter backoff
// 2. Provider Chain: Next provider in the configured order
package genai

import (
	"context"
	"time"
)

// Provider represents an LLM provider.
type Provider string

const (
	// ProviderGemini represents Google's Gemini API (non-OpenAI-compatible).
	ProviderGemini Provider = "gemini"
	// ProviderOpenRouter represents OpenRouter (OpenAI-compatible API).
	ProviderOpenRouter Provider = "openrouter"
)

// ProviderEndpoint defines the base URL for OpenAI-compatible providers.
var ProviderEndpoint = map[Provider]string{
	ProviderOpenRouter: "https://openrouter.ai/api/v1/",
}

// String returns the string representation of the provider.
func (p Provider) String() string {
	return string(p)
}

// Operation labels used in metrics and logs.
const (
	OperationDecide   = "decide"
	OperationClassify = "classify"
)

// Role of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one prior message of the conversation.
type Turn struct {
	Role    Role
	Content string
}

// ToolSpec describes a tool the model may call. Every tool takes at most one
// string argument named ArgName.
type ToolSpec struct {
	Name           string
	Description    string
	ArgName        string
	ArgDescription string
	ArgRequired    bool
}

// Observation is the result of a tool invocation made earlier in the same turn.
type Observation struct {
	Tool     string
	Argument string
	Result   string
}

// DecideRequest is the input of one reasoning step.
type DecideRequest struct {
	Message      string
	History      []Turn
	Observations []Observation
	Tools        []ToolSpec
}

// Decision is either a tool call (Tool != "") or a final answer.
type Decision struct {
	Tool     string
	Argument string
	Answer   string
}

// IsToolCall reports whether the model asked for a tool.
func (d *Decision) IsToolCall() bool {
	return d != nil && d.Tool != ""
}

// Decider chooses the next step of the reasoning loop.
type Decider interface {
	Decide(ctx context.Context, req DecideRequest) (*Decision, error)
	Provider() Provider
	Close() error
}

// Classifier maps free text to one of the candidate ids. It returns the raw
// model output; callers validate it.
type Classifier interface {
	Classify(ctx context.Context, candidates map[int]string, text string) (string, error)
	Provider() Provider
	Close() error
}

// RetryConfig defines retry behavior for LLM API calls.
// Uses AWS-recommended Full Jitter exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	MaxAttempts int
	// InitialDelay is the base delay before first retry.
	InitialDelay time.Duration
	// MaxDelay is the maximum delay between retries.
	MaxDelay time.Duration
}

// Default models.
const (
	DefaultGeminiRouterModel         = "gemini-2.0-flash"
	DefaultGeminiClassifierModel     = "gemini-2.0-flash"
	DefaultOpenRouterRouterModel     = "meta-llama/llama-3.3-70b-instruct"
	DefaultOpenRouterClassifierModel = "meta-llama/llama-3.3-70b-instruct"
)

// Retry configuration defaults
const (
	DefaultMaxRetryAttempts  = 2
	DefaultInitialRetryDelay = 500 * time.Millisecond
	DefaultMaxRetryDelay     = 3 * time.Second
)

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  DefaultMaxRetryAttempts,
		InitialDelay: DefaultInitialRetryDelay,
		MaxDelay:     DefaultMaxRetryDelay,
	}
}
