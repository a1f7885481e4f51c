package genai

import (
	"strings"
	"testing"
)

func TestClassifierSystemPrompt(t *testing.T) {
	t.Parallel()

	prompt := ClassifierSystemPrompt(map[int]string{12: "Derecho", 3: "Psicología Clínica"})
	for _, want := range []string{`"12": "Derecho"`, `"3": "Psicología Clínica"`, `{"id": 123}`, "ID 0"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	// Candidate rendering is stable across calls.
	if prompt != ClassifierSystemPrompt(map[int]string{3: "Psicología Clínica", 12: "Derecho"}) {
		t.Error("prompt is not deterministic")
	}
}

func TestClassifierUserPrompt(t *testing.T) {
	t.Parallel()
	if got := ClassifierUserPrompt("derecho"); got != "Mensaje a clasificar: derecho" {
		t.Errorf("got %q", got)
	}
}

func TestObservationsPrompt(t *testing.T) {
	t.Parallel()

	if observationsPrompt(nil) != "" {
		t.Error("no observations should render nothing")
	}
	got := observationsPrompt([]Observation{{Tool: "groups", Argument: "derecho", Result: "Paralelo A"}})
	if !strings.Contains(got, `groups("derecho")`) || !strings.Contains(got, "Paralelo A") {
		t.Errorf("unexpected rendering: %q", got)
	}
}

func TestRouterSystemPrompt_Persona(t *testing.T) {
	t.Parallel()
	if !strings.Contains(RouterSystemPrompt, "Dr. Matrícula") {
		t.Error("router prompt must name the assistant")
	}
}
