package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/dr-matricula-go/internal/capability"
	"github.com/garyellow/dr-matricula-go/internal/genai"
	"github.com/garyellow/dr-matricula-go/internal/session"
)

type fakeGenaiDecider struct {
	decideFn func(ctx context.Context, req genai.DecideRequest) (*genai.Decision, error)
}

func (f *fakeGenaiDecider) Decide(ctx context.Context, req genai.DecideRequest) (*genai.Decision, error) {
	return f.decideFn(ctx, req)
}
func (f *fakeGenaiDecider) Provider() genai.Provider { return genai.ProviderGemini }
func (f *fakeGenaiDecider) Close() error             { return nil }

func TestLLMDecider_ToolCall(t *testing.T) {
	t.Parallel()

	var got genai.DecideRequest
	d := NewLLMDecider(&fakeGenaiDecider{decideFn: func(_ context.Context, req genai.DecideRequest) (*genai.Decision, error) {
		got = req
		return &genai.Decision{Tool: "groups", Argument: "Derecho"}, nil
	}})

	st := &State{
		Message: "¿Hay grupos de Derecho?",
		History: []session.Turn{
			{Role: session.RoleUser, Content: "hola"},
			{Role: session.RoleAssistant, Content: "¡Hola!"},
		},
		Observations: []Observation{{Capability: capability.ProgramDetail, Argument: "Derecho", Result: "detalle"}},
	}
	sel, err := d.DecideCapability(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, Selection{Name: "groups", Argument: "Derecho"}, sel)

	arg, err := d.DecideArgument(context.Background(), st, sel)
	require.NoError(t, err)
	assert.Equal(t, "Derecho", arg)

	assert.Equal(t, st.Message, got.Message)
	assert.Equal(t, []genai.Turn{
		{Role: genai.RoleUser, Content: "hola"},
		{Role: genai.RoleAssistant, Content: "¡Hola!"},
	}, got.History)
	assert.Equal(t, []genai.Observation{{Tool: "program_detail", Argument: "Derecho", Result: "detalle"}}, got.Observations)
	assert.Len(t, got.Tools, len(capability.All()))
}

func TestLLMDecider_Answer(t *testing.T) {
	t.Parallel()
	d := NewLLMDecider(&fakeGenaiDecider{decideFn: func(context.Context, genai.DecideRequest) (*genai.Decision, error) {
		return &genai.Decision{Answer: "Con gusto."}, nil
	}})

	sel, err := d.DecideCapability(context.Background(), &State{Message: "gracias"})
	require.NoError(t, err)
	assert.Equal(t, Selection{Final: true, Answer: "Con gusto."}, sel)
}

func TestLLMDecider_Error(t *testing.T) {
	t.Parallel()
	wantErr := errors.New("quota")
	d := NewLLMDecider(&fakeGenaiDecider{decideFn: func(context.Context, genai.DecideRequest) (*genai.Decision, error) {
		return nil, wantErr
	}})

	_, err := d.DecideCapability(context.Background(), &State{})
	assert.ErrorIs(t, err, wantErr)
}

func TestToolSpecs(t *testing.T) {
	t.Parallel()
	tools := ToolSpecs()
	require.Len(t, tools, len(capability.Specs()))
	for i, s := range capability.Specs() {
		assert.Equal(t, s.Name(), tools[i].Name)
		assert.Equal(t, s.ArgRequired, tools[i].ArgRequired)
	}
}
