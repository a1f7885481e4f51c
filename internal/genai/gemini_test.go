package genai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestGeminiTools(t *testing.T) {
	t.Parallel()

	tools := geminiTools(testTools)
	require.Len(t, tools, 1)
	decls := tools[0].FunctionDeclarations
	require.Len(t, decls, 3)

	assert.Equal(t, "groups", decls[1].Name)
	assert.Equal(t, []string{"program"}, decls[1].Parameters.Required)
	assert.Empty(t, decls[0].Parameters.Required, "optional argument")
	assert.Empty(t, decls[2].Parameters.Properties, "no argument")

	assert.Nil(t, geminiTools(nil))
}

func TestGeminiContents(t *testing.T) {
	t.Parallel()

	contents := geminiContents(DecideRequest{
		Message: "¿grupos de derecho?",
		History: []Turn{{Role: RoleUser, Content: "hola"}, {Role: RoleAssistant, Content: "¡Hola!"}},
		Observations: []Observation{
			{Tool: "groups", Argument: "derecho", Result: "Paralelo A"},
		},
		Tools: testTools,
	})
	require.Len(t, contents, 5)
	assert.Equal(t, "model", string(contents[1].Role))
	assert.Equal(t, "¿grupos de derecho?", contents[2].Parts[0].Text)

	call := contents[3].Parts[0].FunctionCall
	require.NotNil(t, call)
	assert.Equal(t, "groups", call.Name)
	assert.Equal(t, "derecho", call.Args["program"])

	resp := contents[4].Parts[0].FunctionResponse
	require.NotNil(t, resp)
	assert.Equal(t, "Paralelo A", resp.Response["output"])
}

func TestParseGeminiDecision(t *testing.T) {
	t.Parallel()

	response := func(parts ...*genai.Part) *genai.GenerateContentResponse {
		return &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}},
		}
	}

	tests := []struct {
		name    string
		resp    *genai.GenerateContentResponse
		want    *Decision
		wantErr bool
	}{
		{
			name:    "nil response",
			resp:    nil,
			wantErr: true,
		},
		{
			name:    "no candidates",
			resp:    &genai.GenerateContentResponse{},
			wantErr: true,
		},
		{
			name: "function call with argument",
			resp: response(&genai.Part{FunctionCall: &genai.FunctionCall{
				Name: "groups", Args: map[string]any{"program": " Derecho "},
			}}),
			want: &Decision{Tool: "groups", Argument: "Derecho"},
		},
		{
			name: "function call wins over text",
			resp: response(
				&genai.Part{Text: "Déjame revisar."},
				&genai.Part{FunctionCall: &genai.FunctionCall{Name: "list_programs"}},
			),
			want: &Decision{Tool: "list_programs"},
		},
		{
			name: "text answer",
			resp: response(&genai.Part{Text: "Tenemos "}, &genai.Part{Text: "Derecho. "}),
			want: &Decision{Answer: "Tenemos Derecho."},
		},
		{
			name: "non-string argument",
			resp: response(&genai.Part{FunctionCall: &genai.FunctionCall{
				Name: "groups", Args: map[string]any{"program": 12.0},
			}}),
			wantErr: true,
		},
		{
			name: "unknown tool passes through",
			resp: response(&genai.Part{FunctionCall: &genai.FunctionCall{Name: "weather"}}),
			want: &Decision{Tool: "weather"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseGeminiDecision(tt.resp, testTools)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
