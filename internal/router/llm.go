package router

import (
	"context"

	"github.com/garyellow/dr-matricula-go/internal/capability"
	"github.com/garyellow/dr-matricula-go/internal/genai"
	"github.com/garyellow/dr-matricula-go/internal/session"
)

// LLMDecider adapts a genai.Decider to both decision steps. The model
// proposes the capability and its argument in one function call, so
// DecideArgument reads the argument from the selection.
type LLMDecider struct {
	decider genai.Decider
	tools   []genai.ToolSpec
}

// NewLLMDecider exposes every capability to the model as a tool.
func NewLLMDecider(d genai.Decider) *LLMDecider {
	return &LLMDecider{decider: d, tools: ToolSpecs()}
}

// ToolSpecs converts the capability specs to tool declarations.
func ToolSpecs() []genai.ToolSpec {
	specs := capability.Specs()
	tools := make([]genai.ToolSpec, len(specs))
	for i, s := range specs {
		tools[i] = genai.ToolSpec{
			Name:           s.Name(),
			Description:    s.Description,
			ArgName:        s.ArgName,
			ArgDescription: s.ArgDescription,
			ArgRequired:    s.ArgRequired,
		}
	}
	return tools
}

// DecideCapability asks the model for the next step.
func (d *LLMDecider) DecideCapability(ctx context.Context, st *State) (Selection, error) {
	dec, err := d.decider.Decide(ctx, genai.DecideRequest{
		Message:      st.Message,
		History:      toTurns(st.History),
		Observations: toObservations(st.Observations),
		Tools:        d.tools,
	})
	if err != nil {
		return Selection{}, err
	}
	if dec.IsToolCall() {
		return Selection{Name: dec.Tool, Argument: dec.Argument}, nil
	}
	return Selection{Final: true, Answer: dec.Answer}, nil
}

// DecideArgument returns the argument proposed with the selection.
func (d *LLMDecider) DecideArgument(_ context.Context, _ *State, sel Selection) (string, error) {
	return sel.Argument, nil
}

func toTurns(history []session.Turn) []genai.Turn {
	if len(history) == 0 {
		return nil
	}
	out := make([]genai.Turn, len(history))
	for i, t := range history {
		role := genai.RoleUser
		if t.Role == session.RoleAssistant {
			role = genai.RoleAssistant
		}
		out[i] = genai.Turn{Role: role, Content: t.Content}
	}
	return out
}

func toObservations(obs []Observation) []genai.Observation {
	if len(obs) == 0 {
		return nil
	}
	out := make([]genai.Observation, len(obs))
	for i, o := range obs {
		out[i] = genai.Observation{Tool: o.Capability.String(), Argument: o.Argument, Result: o.Result}
	}
	return out
}
