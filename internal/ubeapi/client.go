// Package ubeapi is the HTTP client for the UBE admissions backend.
// It fetches the program catalog, groups and curricula, and submits
// enrollments. Transient failures (network, 429, 5xx) are retried with
// exponential backoff. Every failure wraps domerrors.ErrDataUnavailable.
package ubeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/garyellow/dr-matricula-go/internal/buildinfo"
	"github.com/garyellow/dr-matricula-go/internal/catalog"
	"github.com/garyellow/dr-matricula-go/internal/config"
	domerrors "github.com/garyellow/dr-matricula-go/internal/errors"
	"github.com/garyellow/dr-matricula-go/internal/metrics"
)

const maxResponseBytes = 4 << 20

// Config configures a Client.
type Config struct {
	BaseURL    string // e.g. "https://api.ube.edu.ec/v1/"
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	HTTPClient *http.Client // optional, mainly for tests
	Metrics    *metrics.Metrics
}

// Client talks to the admissions backend.
type Client struct {
	base       *url.URL
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	userAgent  string
	metrics    *metrics.Metrics
}

// New creates a backend client.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("ubeapi: invalid base URL %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.BackendRequest
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = config.BackendRetryInitial
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &Client{
		base:       base,
		httpClient: httpClient,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		userAgent:  "dr-matricula/" + buildinfo.Release(),
		metrics:    cfg.Metrics,
	}, nil
}

// FetchCatalog returns every undergraduate and graduate program.
func (c *Client) FetchCatalog(ctx context.Context) (*catalog.Catalog, error) {
	var body envelope[wireCatalog]
	if _, err := c.do(ctx, "carreras", http.MethodGet, "carreras", nil, &body); err != nil {
		return nil, err
	}
	cat := body.Data.toCatalog()
	if err := cat.Validate(); err != nil {
		return nil, domerrors.NewBackendError("carreras", 0, err)
	}
	return cat, nil
}

// FetchGroups returns the upcoming groups of a program. A 404 means the
// program has no groups and yields an empty slice.
func (c *Client) FetchGroups(ctx context.Context, programID int) ([]catalog.Group, error) {
	var body envelope[[]wireGroup]
	found, err := c.do(ctx, "grupos", http.MethodGet, "grupos/"+strconv.Itoa(programID), nil, &body)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return toGroups(body.Data), nil
}

// FetchCurriculum returns the ordered curriculum levels of a program.
// A 404 yields an empty curriculum.
func (c *Client) FetchCurriculum(ctx context.Context, programID int) ([]catalog.CurriculumLevel, error) {
	var body envelope[[]wireLevel]
	found, err := c.do(ctx, "malla", http.MethodGet, "malla/"+strconv.Itoa(programID), nil, &body)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return toCurriculum(body.Data), nil
}

// SubmitEnrollment starts the enrollment of the current user in a program.
// It is never retried since the backend call is not idempotent.
func (c *Client) SubmitEnrollment(ctx context.Context, programID int) (*catalog.EnrollmentResult, error) {
	payload, err := json.Marshal(enrollmentRequest{Aprove: true, IDCarrera: programID})
	if err != nil {
		return nil, fmt.Errorf("ubeapi: encode enrollment: %w", err)
	}
	var body enrollmentResponse
	found, err := c.doOnce(ctx, "matricular", http.MethodPost, "matricular", payload, &body)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domerrors.NewBackendError("matricular", http.StatusNotFound, domerrors.ErrNotFound)
	}
	return &catalog.EnrollmentResult{Status: body.Status}, nil
}

// Health performs a single catalog request without retries.
func (c *Client) Health(ctx context.Context) error {
	var body envelope[wireCatalog]
	_, err := c.doOnce(ctx, "carreras", http.MethodGet, "carreras", nil, &body)
	return err
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, payload []byte, out any) (bool, error) {
	return c.exec(ctx, c.maxRetries, endpoint, method, path, payload, out)
}

func (c *Client) doOnce(ctx context.Context, endpoint, method, path string, payload []byte, out any) (bool, error) {
	return c.exec(ctx, 0, endpoint, method, path, payload, out)
}

// exec performs the request with retries and decodes a 2xx JSON body into out.
// It reports found=false for 404 responses.
func (c *Client) exec(ctx context.Context, retries int, endpoint, method, path string, payload []byte, out any) (bool, error) {
	target := c.base.JoinPath(path).String()
	start := time.Now()
	status := "success"
	found := true

	err := retryWithBackoff(ctx, retries, c.retryDelay, func() error {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
		if err != nil {
			return permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return domerrors.NewBackendError(endpoint, 0, err)
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			found = false
			return nil
		case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
			return domerrors.NewBackendError(endpoint, resp.StatusCode, fmt.Errorf("retryable status %d", resp.StatusCode))
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return permanent(domerrors.NewBackendError(endpoint, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)))
		}

		if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
			return permanent(domerrors.NewBackendError(endpoint, resp.StatusCode, fmt.Errorf("decode response: %w", err)))
		}
		return nil
	})

	switch {
	case err == nil && !found:
		status = "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		status = "timeout"
	case err != nil:
		status = "error"
	}
	c.metrics.RecordBackendRequest(endpoint, status, time.Since(start).Seconds())

	if err != nil {
		slog.WarnContext(ctx, "Backend request failed",
			"endpoint", endpoint,
			"method", method,
			"error", err)
		if !domerrors.IsDataUnavailable(err) {
			err = domerrors.NewBackendError(endpoint, 0, err)
		}
		return false, err
	}
	return found, nil
}
