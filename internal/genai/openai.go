// Package genai provides integration with LLM APIs (Gemini and OpenRouter).
// This file contains the OpenAI-compatible implementations of Decider and
// Classifier. They work with any OpenAI-compatible endpoint via custom BaseURL.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/garyellow/dr-matricula-go/internal/metrics"
)

type openaiBase struct {
	client   openai.Client
	model    string
	provider Provider
	metrics  *metrics.Metrics
}

func newOpenAIBase(provider Provider, apiKey, model, endpoint string, m *metrics.Metrics) (openaiBase, error) {
	if apiKey == "" {
		return openaiBase{}, fmt.Errorf("%s: api key is required", provider)
	}
	if model == "" {
		return openaiBase{}, fmt.Errorf("%s: model is required", provider)
	}
	baseURL := endpoint
	if baseURL == "" {
		var ok bool
		baseURL, ok = ProviderEndpoint[provider]
		if !ok {
			return openaiBase{}, fmt.Errorf("unsupported OpenAI-compatible provider: %s", provider)
		}
	}
	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0), // retries are handled by the fallback wrappers
	)
	return openaiBase{client: client, model: model, provider: provider, metrics: m}, nil
}

func (b *openaiBase) complete(ctx context.Context, operation string, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	params.Model = b.model
	start := time.Now()
	resp, err := b.client.Chat.Completions.New(ctx, params)
	duration := time.Since(start)
	if err != nil {
		slog.WarnContext(ctx, "chat completion failed",
			"provider", b.provider,
			"model", b.model,
			"operation", operation,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return nil, WrapError(fmt.Errorf("chat completion failed: %w", err), b.provider, 0)
	}
	if resp.Usage.TotalTokens > 0 {
		b.metrics.RecordLLMTokens(string(b.provider), operation, int(resp.Usage.PromptTokens), int(resp.Usage.CompletionTokens))
	}
	slog.DebugContext(ctx, "chat completion completed",
		"provider", b.provider,
		"model", b.model,
		"operation", operation,
		"total_tokens", resp.Usage.TotalTokens,
		"duration_ms", duration.Milliseconds())
	return resp, nil
}

// openaiDecider selects tools with tool_choice=auto.
type openaiDecider struct {
	openaiBase
}

func newOpenAIDecider(provider Provider, apiKey, model, endpoint string, m *metrics.Metrics) (*openaiDecider, error) {
	if model == "" && provider == ProviderOpenRouter {
		model = DefaultOpenRouterRouterModel
	}
	base, err := newOpenAIBase(provider, apiKey, model, endpoint, m)
	if err != nil {
		return nil, err
	}
	return &openaiDecider{openaiBase: base}, nil
}

// Decide runs one reasoning step. Observations are passed as a system
// message after the user turn.
func (d *openaiDecider) Decide(ctx context.Context, req DecideRequest) (*Decision, error) {
	params := openai.ChatCompletionNewParams{
		Messages:    openaiDecideMessages(req),
		Temperature: openai.Float(0.1),
		MaxTokens:   openai.Int(2048),
	}
	if tools := openaiTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String(string(openai.ChatCompletionToolChoiceOptionAutoAuto)),
		}
	}

	resp, err := d.complete(ctx, OperationDecide, params)
	if err != nil {
		return nil, err
	}
	return parseOpenAIDecision(resp, req.Tools)
}

func (d *openaiDecider) Provider() Provider { return d.provider }

// Close releases resources. The openai-go client needs no cleanup.
func (d *openaiDecider) Close() error { return nil }

func openaiDecideMessages(req DecideRequest) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+3)
	msgs = append(msgs, openai.SystemMessage(RouterSystemPrompt))
	for _, t := range req.History {
		if t.Role == RoleAssistant {
			msgs = append(msgs, openai.AssistantMessage(t.Content))
		} else {
			msgs = append(msgs, openai.UserMessage(t.Content))
		}
	}
	msgs = append(msgs, openai.UserMessage(req.Message))
	if obs := observationsPrompt(req.Observations); obs != "" {
		msgs = append(msgs, openai.SystemMessage(obs))
	}
	return msgs
}

// openaiTools converts tool specs to the OpenAI v3 tool format.
func openaiTools(specs []ToolSpec) []openai.ChatCompletionToolUnionParam {
	result := make([]openai.ChatCompletionToolUnionParam, 0, len(specs))
	for _, s := range specs {
		properties := map[string]any{}
		required := []string{}
		if s.ArgName != "" {
			properties[s.ArgName] = map[string]string{
				"type":        "string",
				"description": s.ArgDescription,
			}
			if s.ArgRequired {
				required = append(required, s.ArgName)
			}
		}
		result = append(result, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        s.Name,
			Description: openai.String(s.Description),
			Parameters: openai.FunctionParameters{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		}))
	}
	return result
}

func parseOpenAIDecision(resp *openai.ChatCompletion, specs []ToolSpec) (*Decision, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		tc := msg.ToolCalls[0]
		if tc.Type != "function" {
			return nil, fmt.Errorf("unexpected tool type: %s", tc.Type)
		}
		var args map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("failed to parse function arguments: %w", err)
			}
		}
		return decisionFromCall(tc.Function.Name, args, specs)
	}
	return &Decision{Answer: strings.TrimSpace(msg.Content)}, nil
}

// openaiClassifier classifies in JSON-object mode at temperature 0.
type openaiClassifier struct {
	openaiBase
}

func newOpenAIClassifier(provider Provider, apiKey, model, endpoint string, m *metrics.Metrics) (*openaiClassifier, error) {
	if model == "" && provider == ProviderOpenRouter {
		model = DefaultOpenRouterClassifierModel
	}
	base, err := newOpenAIBase(provider, apiKey, model, endpoint, m)
	if err != nil {
		return nil, err
	}
	return &openaiClassifier{openaiBase: base}, nil
}

// Classify returns the raw message content.
func (c *openaiClassifier) Classify(ctx context.Context, candidates map[int]string, text string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(ClassifierSystemPrompt(candidates)),
			openai.UserMessage(ClassifierUserPrompt(text)),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		Temperature: openai.Float(0),
		MaxTokens:   openai.Int(64),
	}
	resp, err := c.complete(ctx, OperationClassify, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", errors.Join(ErrEmptyResponse, fmt.Errorf("finish reason %q", resp.Choices[0].FinishReason))
	}
	return out, nil
}

func (c *openaiClassifier) Provider() Provider { return c.provider }

func (c *openaiClassifier) Close() error { return nil }
