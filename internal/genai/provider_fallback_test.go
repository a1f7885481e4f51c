package genai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/dr-matricula-go/internal/metrics"
)

type fakeDecider struct {
	provider Provider
	calls    int
	decideFn func(call int) (*Decision, error)
	closed   bool
}

func (f *fakeDecider) Decide(context.Context, DecideRequest) (*Decision, error) {
	f.calls++
	return f.decideFn(f.calls)
}
func (f *fakeDecider) Provider() Provider { return f.provider }
func (f *fakeDecider) Close() error       { f.closed = true; return nil }

type fakeClassifier struct {
	provider Provider
	calls    int
	out      string
	err      error
}

func (f *fakeClassifier) Classify(context.Context, map[int]string, string) (string, error) {
	f.calls++
	return f.out, f.err
}
func (f *fakeClassifier) Provider() Provider { return f.provider }
func (f *fakeClassifier) Close() error       { return errors.New("close " + string(f.provider)) }

var fastRetry = RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

func TestFallbackDecider_PrimarySucceeds(t *testing.T) {
	t.Parallel()

	primary := &fakeDecider{provider: ProviderGemini, decideFn: func(int) (*Decision, error) {
		return &Decision{Tool: "list_programs"}, nil
	}}
	secondary := &fakeDecider{provider: ProviderOpenRouter}
	f := NewFallbackDecider(fastRetry, nil, primary, secondary)

	d, err := f.Decide(context.Background(), DecideRequest{Message: "hola"})
	require.NoError(t, err)
	assert.Equal(t, "list_programs", d.Tool)
	assert.Equal(t, 0, secondary.calls)
	assert.Equal(t, ProviderGemini, f.Provider())
}

func TestFallbackDecider_RetriesThenFallsBack(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	primary := &fakeDecider{provider: ProviderGemini, decideFn: func(int) (*Decision, error) {
		return nil, &LLMError{Err: errors.New("overloaded"), StatusCode: 503}
	}}
	secondary := &fakeDecider{provider: ProviderOpenRouter, decideFn: func(int) (*Decision, error) {
		return &Decision{Answer: "Hola"}, nil
	}}
	f := NewFallbackDecider(fastRetry, m, primary, secondary)

	d, err := f.Decide(context.Background(), DecideRequest{Message: "hola"})
	require.NoError(t, err)
	assert.Equal(t, "Hola", d.Answer)
	assert.Equal(t, 2, primary.calls, "primary retried once")
	assert.Equal(t, 1, secondary.calls)
	assert.InDelta(t, 1, testutil.ToFloat64(m.LLMFallbackTotal.WithLabelValues(OperationDecide)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.LLMRequestsTotal.WithLabelValues("gemini", OperationDecide, "server_error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.LLMRequestsTotal.WithLabelValues("openrouter", OperationDecide, "success")), 0)
}

func TestFallbackDecider_PermanentErrorStops(t *testing.T) {
	t.Parallel()

	primary := &fakeDecider{provider: ProviderGemini, decideFn: func(int) (*Decision, error) {
		return nil, &LLMError{Err: errors.New("bad request"), StatusCode: 400}
	}}
	secondary := &fakeDecider{provider: ProviderOpenRouter}
	f := NewFallbackDecider(fastRetry, nil, primary, secondary)

	_, err := f.Decide(context.Background(), DecideRequest{})
	require.Error(t, err)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, secondary.calls)
}

func TestFallbackDecider_AllFail(t *testing.T) {
	t.Parallel()

	failing := func(p Provider) *fakeDecider {
		return &fakeDecider{provider: p, decideFn: func(int) (*Decision, error) {
			return nil, ErrEmptyResponse
		}}
	}
	a, b := failing(ProviderGemini), failing(ProviderOpenRouter)
	f := NewFallbackDecider(fastRetry, nil, a, b)

	_, err := f.Decide(context.Background(), DecideRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.Equal(t, 1, a.calls, "empty responses are not retried on the same provider")
	assert.Equal(t, 1, b.calls)

	require.NoError(t, f.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestFallbackDecider_Unconfigured(t *testing.T) {
	t.Parallel()

	var f *FallbackDecider
	_, err := f.Decide(context.Background(), DecideRequest{})
	assert.Error(t, err)
	assert.Equal(t, Provider(""), f.Provider())
	assert.NoError(t, f.Close())
}

func TestFallbackClassifier(t *testing.T) {
	t.Parallel()

	primary := &fakeClassifier{provider: ProviderOpenRouter, err: errors.New("quota exceeded")}
	secondary := &fakeClassifier{provider: ProviderGemini, out: `{"id": 4}`}
	f := NewFallbackClassifier(fastRetry, nil, primary, secondary)

	out, err := f.Classify(context.Background(), map[int]string{4: "Derecho"}, "derecho")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id": 4}`, out)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
	assert.Equal(t, ProviderOpenRouter, f.Provider())

	err = f.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close openrouter")
	assert.Contains(t, err.Error(), "close gemini")
}

func TestFallbackClassifier_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	primary := &fakeClassifier{provider: ProviderOpenRouter, err: context.Canceled}
	secondary := &fakeClassifier{provider: ProviderGemini, out: `{"id":1}`}
	f := NewFallbackClassifier(fastRetry, nil, primary, secondary)

	_, err := f.Classify(ctx, nil, "x")
	require.Error(t, err)
	assert.Equal(t, 0, secondary.calls)
}
