// Package resolver maps free-text program references to catalog ids by
// delegating to a language-model classifier. There is no local fuzzy
// matching: the classifier's single {"id": N} answer is the only signal.
package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/garyellow/dr-matricula-go/internal/catalog"
	domerrors "github.com/garyellow/dr-matricula-go/internal/errors"
	"github.com/garyellow/dr-matricula-go/internal/metrics"
)

// Outcome labels.
const (
	OutcomeResolved    = "resolved"
	OutcomeNotFound    = "not_found"
	OutcomeMalformed   = "malformed"
	OutcomeUnavailable = "unavailable"
)

// DefaultTimeout bounds a single classification call.
const DefaultTimeout = 10 * time.Second

// Classifier returns the raw classification text for text against candidates.
type Classifier interface {
	Classify(ctx context.Context, candidates map[int]string, text string) (string, error)
}

// Resolver resolves program references. It is safe for concurrent use.
type Resolver struct {
	classifier Classifier
	metrics    *metrics.Metrics
	timeout    time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMetrics records resolution outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// New creates a Resolver backed by classifier.
func New(classifier Classifier, opts ...Option) *Resolver {
	r := &Resolver{classifier: classifier, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the id of the program text refers to. ok is false when the
// reference cannot be resolved for any reason.
//
// The classifier sees the full catalog as id/name candidates and must answer
// {"id": N}, with 0 meaning no match. Each outcome is recorded as a metric:
//   - resolved: a known catalog id
//   - not_found: blank text, empty catalog, id 0, or an id outside the catalog
//   - unavailable: the classifier call failed or timed out
//   - malformed: the answer was not a single {"id": int} object
//
// Resolve never returns an error; callers treat every failure as not found.
func (r *Resolver) Resolve(ctx context.Context, text string, cat *catalog.Catalog) (id int, ok bool) {
	text = strings.TrimSpace(text)
	if text == "" || cat.Len() == 0 || r.classifier == nil {
		r.record(OutcomeNotFound)
		return 0, false
	}

	candidates := cat.Names()

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := r.classifier.Classify(callCtx, candidates, text)
	if err != nil {
		slog.WarnContext(ctx, "program classification failed",
			"reference", text,
			"error", err)
		r.record(OutcomeUnavailable)
		return 0, false
	}

	id, err = ParseClassification(raw)
	if err != nil {
		slog.WarnContext(ctx, "malformed program classification",
			"reference", text,
			"raw", truncate(raw, 200),
			"error", err)
		r.record(OutcomeMalformed)
		return 0, false
	}

	if id == 0 {
		r.record(OutcomeNotFound)
		return 0, false
	}
	if _, known := candidates[id]; !known {
		slog.WarnContext(ctx, "classifier returned unknown program id",
			"reference", text,
			"id", id)
		r.record(OutcomeNotFound)
		return 0, false
	}

	r.record(OutcomeResolved)
	return id, true
}

func (r *Resolver) record(outcome string) {
	r.metrics.RecordResolution(outcome)
}

// ParseClassification accepts exactly one JSON object whose only key is "id"
// holding an integer. Anything else wraps domerrors.ErrMalformedClassification.
//
// Surrounding whitespace is ignored. Trailing data, extra keys, and
// fractional or string ids are rejected so a chatty model answer is never
// mistaken for a selection. Range checks against the catalog are left to
// Resolve.
func ParseClassification(raw string) (int, error) {
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(raw)))
	dec.UseNumber()

	var obj map[string]json.RawMessage
	if err := dec.Decode(&obj); err != nil {
		return 0, fmt.Errorf("%w: %v", domerrors.ErrMalformedClassification, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("%w: trailing data", domerrors.ErrMalformedClassification)
	}
	if obj == nil {
		return 0, fmt.Errorf("%w: not an object", domerrors.ErrMalformedClassification)
	}
	if len(obj) != 1 {
		return 0, fmt.Errorf("%w: expected a single key, got %d", domerrors.ErrMalformedClassification, len(obj))
	}
	value, ok := obj["id"]
	if !ok {
		return 0, fmt.Errorf("%w: missing \"id\"", domerrors.ErrMalformedClassification)
	}

	value = bytes.TrimSpace(value)
	if len(value) > 0 && value[0] == '"' {
		return 0, fmt.Errorf("%w: id is a string", domerrors.ErrMalformedClassification)
	}
	numDec := json.NewDecoder(bytes.NewReader(value))
	numDec.UseNumber()
	var num json.Number
	if err := numDec.Decode(&num); err != nil {
		return 0, fmt.Errorf("%w: id is not a number", domerrors.ErrMalformedClassification)
	}
	id64, err := num.Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: id is not an integer", domerrors.ErrMalformedClassification)
	}
	return int(id64), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
