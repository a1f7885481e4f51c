// Package genai provides integration with LLM APIs (Gemini and OpenRouter).
// This file contains error classification and handling for retry/fallback logic.
package genai

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/openai/openai-go/v3"
)

// ErrorAction defines the action to take based on error type.
type ErrorAction int

const (
	// ActionRetry indicates the request should be retried with the same provider/model.
	ActionRetry ErrorAction = iota
	// ActionFallback indicates fallback to another provider should be attempted.
	ActionFallback
	// ActionFail indicates the request should fail immediately (permanent error).
	ActionFail
)

// String returns a human-readable string for the error action.
func (a ErrorAction) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionFallback:
		return "fallback"
	case ActionFail:
		return "fail"
	default:
		return "unknown"
	}
}

// ErrEmptyResponse is returned when the model produced no usable output.
var ErrEmptyResponse = errors.New("genai: empty response from model")

// LLMError wraps an error with the provider and HTTP status that produced it,
// so ClassifyError can decide between retry and fallback without parsing text.
type LLMError struct {
	Err error
	// StatusCode is the upstream HTTP status, or 0 for transport errors.
	StatusCode int
	Provider   Provider
}

// Error implements the error interface.
func (e *LLMError) Error() string {
	if e.StatusCode > 0 {
		return e.Err.Error() + " (status: " + strconv.Itoa(e.StatusCode) + ")"
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *LLMError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with provider and status code information.
// The status code is taken from the SDK error when statusCode is 0.
func WrapError(err error, provider Provider, statusCode int) error {
	if err == nil {
		return nil
	}
	if statusCode == 0 {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			statusCode = apiErr.StatusCode
		}
	}
	return &LLMError{Err: err, StatusCode: statusCode, Provider: provider}
}

// ClassifyError determines the appropriate action based on the error.
//
// Classification order:
//   - Context cancellation → Fail; deadline exceeded → Retry
//   - Empty model output → Fallback, the same model is unlikely to recover
//   - Quota exhaustion (by message) → Fallback to other provider
//   - LLMError with a status code → classifyStatusCode
//   - Transient errors (429, 5xx, network, timeouts) by message → Retry
//   - Permanent errors (400, 401, 403, 404, 422) by message → Fail immediately
//
// Errors matching none of the above are retried. A nil error yields
// ActionFail so callers never loop on a success value.
func ClassifyError(err error) ErrorAction {
	if err == nil {
		return ActionFail
	}

	// Check for context errors first
	if errors.Is(err, context.Canceled) {
		return ActionFail
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ActionRetry
	}
	if errors.Is(err, ErrEmptyResponse) {
		return ActionFallback
	}

	errStr := strings.ToLower(err.Error())

	// Quota exhaustion wins over the status code: a 429 with a quota
	// message will not clear up by retrying the same provider.
	if containsAny(errStr, "quota", "daily limit", "monthly limit", "billing", "insufficient credits") {
		return ActionFallback
	}

	var llmErr *LLMError
	if errors.As(err, &llmErr) && llmErr.StatusCode > 0 {
		return classifyStatusCode(llmErr.StatusCode)
	}

	if containsAny(errStr, "rate limit", "too many requests", "resource_exhausted", "429") {
		return ActionRetry
	}
	if containsAny(errStr, "unavailable", "503", "502", "500", "504",
		"internal server error", "bad gateway", "gateway timeout", "overloaded", "capacity") {
		return ActionRetry
	}
	if containsAny(errStr, "timeout", "deadline", "connection", "eof") {
		return ActionRetry
	}
	// Permanent errors (fail immediately)
	if containsAny(errStr, "400", "401", "403", "404", "422",
		"invalid", "bad request", "unauthorized", "unauthenticated", "forbidden",
		"permission denied", "not found", "unprocessable") {
		return ActionFail
	}

	// Unknown errors get another chance.
	return ActionRetry
}

// classifyStatusCode determines action based on HTTP status code.
// 402 means the account ran out of credit, so the other provider is tried.
func classifyStatusCode(statusCode int) ErrorAction {
	switch {
	// Retry: rate limit, timeout, conflict, server errors
	case statusCode == http.StatusTooManyRequests, // 429
		statusCode == http.StatusRequestTimeout, // 408
		statusCode == http.StatusConflict,       // 409
		statusCode >= 500 && statusCode < 600:  // 5xx
		return ActionRetry
	case statusCode == http.StatusPaymentRequired: // 402
		return ActionFallback
	// Fail: remaining client errors
	case statusCode >= 400 && statusCode < 500:
		return ActionFail
	default:
		return ActionRetry
	}
}

// classifyErrorType maps error to a metric status label.
// Labels: success, timeout, canceled, rate_limit, server_error, auth_error,
// invalid_request, quota_exhausted, transient_error, error.
func classifyErrorType(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}

	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		switch {
		case llmErr.StatusCode == http.StatusTooManyRequests:
			return "rate_limit"
		case llmErr.StatusCode >= 500:
			return "server_error"
		case llmErr.StatusCode == http.StatusUnauthorized || llmErr.StatusCode == http.StatusForbidden:
			return "auth_error"
		case llmErr.StatusCode == http.StatusBadRequest:
			return "invalid_request"
		}
	}

	switch ClassifyError(err) {
	case ActionFallback:
		return "quota_exhausted"
	case ActionRetry:
		return "transient_error"
	default:
		return "error"
	}
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
