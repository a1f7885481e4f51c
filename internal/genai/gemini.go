// Package genai provides integration with LLM APIs (Gemini and OpenRouter).
// This file contains the Gemini implementations of Decider and Classifier.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/garyellow/dr-matricula-go/internal/metrics"
)

// geminiDecider selects tools through Gemini function calling in AUTO mode.
type geminiDecider struct {
	client  *genai.Client
	model   string
	metrics *metrics.Metrics
}

func newGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return client, nil
}

func newGeminiDecider(ctx context.Context, apiKey, model string, m *metrics.Metrics) (*geminiDecider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if model == "" {
		model = DefaultGeminiRouterModel
	}
	client, err := newGeminiClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	return &geminiDecider{client: client, model: model, metrics: m}, nil
}

// Decide runs one reasoning step.
func (d *geminiDecider) Decide(ctx context.Context, req DecideRequest) (*Decision, error) {
	config := &genai.GenerateContentConfig{
		Tools:             geminiTools(req.Tools),
		SystemInstruction: genai.NewContentFromText(RouterSystemPrompt, genai.RoleUser),
		ToolConfig: &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeAuto,
			},
		},
		Temperature:     genai.Ptr[float32](0.1),
		MaxOutputTokens: 2048,
	}

	start := time.Now()
	result, err := d.client.Models.GenerateContent(ctx, d.model, geminiContents(req), config)
	duration := time.Since(start)
	if err != nil {
		slog.WarnContext(ctx, "decide API call failed",
			"provider", ProviderGemini,
			"model", d.model,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return nil, WrapError(fmt.Errorf("generate content failed: %w", err), ProviderGemini, 0)
	}

	if result.UsageMetadata != nil {
		d.metrics.RecordLLMTokens(string(ProviderGemini), OperationDecide,
			int(result.UsageMetadata.PromptTokenCount), int(result.UsageMetadata.CandidatesTokenCount))
	}

	decision, err := parseGeminiDecision(result, req.Tools)
	if err == nil {
		slog.DebugContext(ctx, "decide completed",
			"provider", ProviderGemini,
			"model", d.model,
			"tool", decision.Tool,
			"duration_ms", duration.Milliseconds())
	}
	return decision, err
}

func (d *geminiDecider) Provider() Provider { return ProviderGemini }

// Close releases resources. genai.Client needs no explicit cleanup.
func (d *geminiDecider) Close() error { return nil }

func geminiTools(specs []ToolSpec) []*genai.Tool {
	if len(specs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, s := range specs {
		params := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: map[string]*genai.Schema{},
		}
		if s.ArgName != "" {
			params.Properties[s.ArgName] = &genai.Schema{
				Type:        genai.TypeString,
				Description: s.ArgDescription,
			}
			if s.ArgRequired {
				params.Required = []string{s.ArgName}
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  params,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// geminiContents renders history, the current message, and this turn's
// function call/response pairs.
func geminiContents(req DecideRequest) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1+2*len(req.Observations))
	for _, t := range req.History {
		var role genai.Role = genai.RoleUser
		if t.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(req.Message, genai.RoleUser))

	argName := make(map[string]string, len(req.Tools))
	for _, s := range req.Tools {
		argName[s.Name] = s.ArgName
	}
	for _, o := range req.Observations {
		args := map[string]any{}
		if name := argName[o.Tool]; name != "" && o.Argument != "" {
			args[name] = o.Argument
		}
		contents = append(contents,
			genai.NewContentFromParts([]*genai.Part{{
				FunctionCall: &genai.FunctionCall{Name: o.Tool, Args: args},
			}}, genai.RoleModel),
			genai.NewContentFromParts([]*genai.Part{{
				FunctionResponse: &genai.FunctionResponse{
					Name:     o.Tool,
					Response: map[string]any{"output": o.Result},
				},
			}}, genai.RoleUser),
		)
	}
	return contents
}

// parseGeminiDecision prefers a function call over text in the first candidate.
func parseGeminiDecision(result *genai.GenerateContentResponse, specs []ToolSpec) (*Decision, error) {
	if result == nil || len(result.Candidates) == 0 {
		return nil, ErrEmptyResponse
	}
	candidate := result.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, ErrEmptyResponse
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil {
			continue
		}
		if part.FunctionCall != nil {
			return decisionFromCall(part.FunctionCall.Name, part.FunctionCall.Args, specs)
		}
		text.WriteString(part.Text)
	}
	return &Decision{Answer: strings.TrimSpace(text.String())}, nil
}

// decisionFromCall extracts the single string argument of a tool call.
// Unknown tool names are passed through; the router rejects them.
func decisionFromCall(name string, args map[string]any, specs []ToolSpec) (*Decision, error) {
	d := &Decision{Tool: name}
	for _, s := range specs {
		if s.Name != name || s.ArgName == "" {
			continue
		}
		if v, ok := args[s.ArgName]; ok && v != nil {
			str, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("parameter %q for function %q is not a string (got %T)", s.ArgName, name, v)
			}
			d.Argument = strings.TrimSpace(str)
		}
		break
	}
	return d, nil
}

// geminiClassifier classifies with a JSON response schema.
type geminiClassifier struct {
	client  *genai.Client
	model   string
	metrics *metrics.Metrics
}

func newGeminiClassifier(ctx context.Context, apiKey, model string, m *metrics.Metrics) (*geminiClassifier, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if model == "" {
		model = DefaultGeminiClassifierModel
	}
	client, err := newGeminiClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	return &geminiClassifier{client: client, model: model, metrics: m}, nil
}

// Classify returns the raw JSON text produced by the model.
func (c *geminiClassifier) Classify(ctx context.Context, candidates map[int]string, text string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(ClassifierSystemPrompt(candidates), genai.RoleUser),
		Temperature:       genai.Ptr[float32](0),
		MaxOutputTokens:   64,
		ResponseMIMEType:  "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"id": {Type: genai.TypeInteger},
			},
			Required: []string{"id"},
		},
	}

	start := time.Now()
	result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(ClassifierUserPrompt(text)), config)
	if err != nil {
		slog.WarnContext(ctx, "classify API call failed",
			"provider", ProviderGemini,
			"model", c.model,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err)
		return "", WrapError(fmt.Errorf("generate content failed: %w", err), ProviderGemini, 0)
	}
	if result.UsageMetadata != nil {
		c.metrics.RecordLLMTokens(string(ProviderGemini), OperationClassify,
			int(result.UsageMetadata.PromptTokenCount), int(result.UsageMetadata.CandidatesTokenCount))
	}

	out := strings.TrimSpace(result.Text())
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}

func (c *geminiClassifier) Provider() Provider { return ProviderGemini }

func (c *geminiClassifier) Close() error { return nil }
