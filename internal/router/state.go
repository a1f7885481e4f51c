package router

import (
	"github.com/garyellow/dr-matricula-go/internal/capability"
	"github.com/garyellow/dr-matricula-go/internal/session"
)

// Phase is a step of the reasoning loop.
type Phase int

const (
	PhaseStart Phase = iota
	PhaseDecideCapability
	PhaseDecideArgument
	PhaseInvoke
	PhaseObserve
	PhaseAnswer
	PhaseExceeded
)

func (p Phase) String() string {
	switch p {
	case PhaseStart:
		return "start"
	case PhaseDecideCapability:
		return "decide_capability"
	case PhaseDecideArgument:
		return "decide_argument"
	case PhaseInvoke:
		return "invoke"
	case PhaseObserve:
		return "observe"
	case PhaseAnswer:
		return "answer"
	case PhaseExceeded:
		return "exceeded"
	default:
		return "unknown"
	}
}

// Selection is the outcome of a capability decision: either a capability
// to invoke (Name, with an optional proposed Argument) or a final Answer.
type Selection struct {
	Name     string
	Argument string
	Final    bool
	Answer   string
}

// Observation is one capability result within a turn.
type Observation struct {
	Capability capability.Capability
	Argument   string
	Result     string
}

// State is the working memory of one message. It is discarded unless the
// loop produces an answer.
type State struct {
	Message      string
	History      []session.Turn
	Observations []Observation
	Iteration    int
	Phase        Phase

	selection  Selection
	capability capability.Capability
	argument   string
	result     string
	answer     string
}

// invoked reports whether c was already invoked with arg in this turn.
func (s *State) invoked(c capability.Capability, arg string) bool {
	for _, o := range s.Observations {
		if o.Capability == c && o.Argument == arg {
			return true
		}
	}
	return false
}

// Capabilities returns the names of the capabilities invoked so far, in order.
func (s *State) Capabilities() []string {
	if len(s.Observations) == 0 {
		return nil
	}
	names := make([]string, len(s.Observations))
	for i, o := range s.Observations {
		names[i] = o.Capability.String()
	}
	return names
}
