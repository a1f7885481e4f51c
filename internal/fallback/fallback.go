// Package fallback answers without the language model. It is used when the
// reasoning loop gives up, runs out of budget, or the session is over its
// model quota. Matching is by accent-insensitive keywords only.
package fallback

import (
	"context"

	"github.com/garyellow/dr-matricula-go/internal/capability"
	"github.com/garyellow/dr-matricula-go/internal/stringutil"
)

// Invoker runs a capability.
type Invoker interface {
	Invoke(ctx context.Context, c capability.Capability, arg string) string
}

// rule maps folded keywords to a capability invoked with no argument.
type rule struct {
	name     string
	keywords []string
	target   capability.Capability
}

// rules are tested in order; the first match wins.
var rules = []rule{
	{name: "greeting", keywords: []string{"hola", "buenos", "buenas", "saludo"}, target: capability.OutOfScope},
	{name: "programs", keywords: []string{"carrera", "estudios", "que tienen", "oferta"}, target: capability.ListPrograms},
	{name: "requirements", keywords: []string{"requisito", "documento", "admision"}, target: capability.AdmissionRequirements},
	{name: "enrollment", keywords: []string{"matricula", "inscrib", "apunt"}, target: capability.Enroll},
}

const menuText = "Soy Dr. Matrícula, el asistente de admisiones de la UBE. No estoy seguro de haber entendido tu mensaje. " +
	"Puedes preguntarme por:\n" +
	"1. Las carreras disponibles\n" +
	"2. Los requisitos de admisión\n" +
	"3. Cómo matricularte\n\n" +
	"¿Sobre cuál te gustaría saber más?"

// Responder produces deterministic replies.
type Responder struct {
	invoker Invoker
}

// New creates a Responder backed by the capability set.
func New(invoker Invoker) *Responder {
	return &Responder{invoker: invoker}
}

// Match returns the name of the rule msg triggers, or "menu".
func Match(msg string) string {
	if r, ok := match(msg); ok {
		return r.name
	}
	return "menu"
}

func match(msg string) (rule, bool) {
	folded := stringutil.Fold(msg)
	for _, r := range rules {
		if stringutil.ContainsAny(folded, r.keywords...) {
			return r, true
		}
	}
	return rule{}, false
}

// Respond returns a non-empty reply for msg.
func (r *Responder) Respond(ctx context.Context, msg string) string {
	rl, ok := match(msg)
	if !ok || r.invoker == nil {
		return menuText
	}
	if text := r.invoker.Invoke(ctx, rl.target, ""); text != "" {
		return text
	}
	return menuText
}
