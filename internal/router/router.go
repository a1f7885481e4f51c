// Package router runs the bounded reasoning loop that turns a user message
// into a reply. A language model chooses capabilities; when it cannot reach
// an answer within the iteration and time budget, the deterministic
// fallback responder answers instead and nothing is remembered.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/garyellow/dr-matricula-go/internal/capability"
	"github.com/garyellow/dr-matricula-go/internal/ctxutil"
	domerrors "github.com/garyellow/dr-matricula-go/internal/errors"
	"github.com/garyellow/dr-matricula-go/internal/metrics"
	"github.com/garyellow/dr-matricula-go/internal/sentry"
	"github.com/garyellow/dr-matricula-go/internal/session"
)

// Defaults for zero Config fields.
const (
	DefaultMaxIterations = 2
	DefaultTimeout       = 30 * time.Second
)

// Reply sources.
const (
	SourceRouter   = "router"
	SourceFallback = "fallback"
	SourceInput    = "input"
)

// Outcome labels.
const (
	OutcomeAnswer        = "answer"
	OutcomeExceeded      = "exceeded"
	OutcomeNoConvergence = "no_convergence"
	OutcomeRateLimited   = "rate_limited"
	OutcomeEmptyInput    = "empty_input"
)

const emptyMessageText = "Por favor escribe tu pregunta."

// CapabilityDecider picks the next capability or the final answer.
type CapabilityDecider interface {
	DecideCapability(ctx context.Context, st *State) (Selection, error)
}

// ArgumentDecider fills in the argument for a selected capability.
type ArgumentDecider interface {
	DecideArgument(ctx context.Context, st *State, sel Selection) (string, error)
}

// Invoker runs a capability.
type Invoker interface {
	Invoke(ctx context.Context, c capability.Capability, arg string) string
}

// Fallback answers without the model.
type Fallback interface {
	Respond(ctx context.Context, msg string) string
}

// Sessions serializes access to conversation memory.
type Sessions interface {
	Do(ctx context.Context, key string, fn func(*session.Session) error) error
}

// Limiter budgets model use per session.
type Limiter interface {
	Allow(key string) bool
}

// Deps are the router's collaborators. Limiter and Metrics are optional.
type Deps struct {
	Capabilities CapabilityDecider
	Arguments    ArgumentDecider
	Invoker      Invoker
	Fallback     Fallback
	Sessions     Sessions
	Limiter      Limiter
	Metrics      *metrics.Metrics
}

// Config bounds the loop.
type Config struct {
	MaxIterations int
	Timeout       time.Duration
}

// Reply is the answer to one message.
type Reply struct {
	Text         string
	Source       string
	Capabilities []string
}

// Router handles messages. It is safe for concurrent use.
type Router struct {
	deps          Deps
	maxIterations int
	timeout       time.Duration
}

// New creates a Router.
func New(deps Deps, cfg Config) *Router {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Router{deps: deps, maxIterations: cfg.MaxIterations, timeout: cfg.Timeout}
}

// Handle answers message for sessionID. The reply text is never empty.
//
// Blank input gets a fixed prompt without touching the session. Otherwise
// the turn runs under the session's lock with its prior exchanges as
// history. Sessions over the model budget, a loop that exceeds the
// iteration limit or never converges, and a session that stays busy past
// ctx all get the fallback reply instead, which is not stored in history.
func (r *Router) Handle(ctx context.Context, sessionID, message string) Reply {
	start := time.Now()
	msg := strings.TrimSpace(message)
	if msg == "" {
		r.deps.Metrics.RecordRouterOutcome(OutcomeEmptyInput, 0)
		return Reply{Text: emptyMessageText, Source: SourceInput}
	}
	ctx = ctxutil.WithSessionID(ctx, sessionID)

	if r.deps.Limiter != nil && !r.deps.Limiter.Allow(sessionID) {
		slog.InfoContext(ctx, "Session over model budget, using fallback", "session_id", sessionID)
		return r.fallback(ctx, msg, OutcomeRateLimited, 0, start)
	}

	var reply Reply
	err := r.deps.Sessions.Do(ctx, sessionID, func(sess *session.Session) error {
		st := &State{Message: msg, History: sess.Turns()}
		text, err := r.run(ctx, st)
		if err != nil {
			outcome := OutcomeNoConvergence
			if errors.Is(err, domerrors.ErrReasoningExceeded) {
				outcome = OutcomeExceeded
			}
			slog.InfoContext(ctx, "Reasoning loop gave up, using fallback",
				"session_id", sessionID,
				"iterations", st.Iteration,
				"phase", st.Phase.String(),
				"error", err)
			reply = r.fallback(ctx, msg, outcome, st.Iteration, start)
			return nil
		}

		sess.Append(session.Exchange{
			Input:        msg,
			Output:       text,
			Capabilities: st.Capabilities(),
			At:           time.Now(),
		})
		r.deps.Metrics.RecordRouterOutcome(OutcomeAnswer, st.Iteration)
		r.deps.Metrics.RecordReply(SourceRouter, time.Since(start).Seconds())
		reply = Reply{Text: text, Source: SourceRouter, Capabilities: st.Capabilities()}
		return nil
	})
	if err != nil {
		slog.WarnContext(ctx, "Session busy, using fallback", "session_id", sessionID, "error", err)
		return r.fallback(ctx, msg, OutcomeExceeded, 0, start)
	}
	return reply
}

func (r *Router) fallback(ctx context.Context, msg, outcome string, iterations int, start time.Time) Reply {
	text := r.deps.Fallback.Respond(ctx, msg)
	r.deps.Metrics.RecordRouterOutcome(outcome, iterations)
	r.deps.Metrics.RecordReply(SourceFallback, time.Since(start).Seconds())
	return Reply{Text: text, Source: SourceFallback}
}

// run drives st through the phases until an answer or an exit.
func (r *Router) run(ctx context.Context, st *State) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	st.Phase = PhaseStart
	for {
		switch st.Phase {
		case PhaseStart:
			st.Phase = PhaseDecideCapability

		case PhaseDecideCapability:
			if st.Iteration >= r.maxIterations || ctx.Err() != nil {
				st.Phase = PhaseExceeded
				continue
			}
			st.Iteration++
			sel, err := r.deps.Capabilities.DecideCapability(ctx, st)
			if err != nil {
				if ctx.Err() != nil {
					st.Phase = PhaseExceeded
					continue
				}
				sentry.CaptureException(ctx, err, map[string]string{"phase": st.Phase.String()})
				return "", noConvergence("decide capability: %v", err)
			}
			if sel.Final {
				st.answer = strings.TrimSpace(sel.Answer)
				if st.answer == "" {
					return "", noConvergence("empty answer")
				}
				st.Phase = PhaseAnswer
				continue
			}
			c, ok := capability.Parse(sel.Name)
			if !ok {
				return "", noConvergence("unknown capability %q", sel.Name)
			}
			st.selection, st.capability = sel, c
			st.Phase = PhaseDecideArgument

		case PhaseDecideArgument:
			arg, err := r.deps.Arguments.DecideArgument(ctx, st, st.selection)
			if err != nil {
				if ctx.Err() != nil {
					st.Phase = PhaseExceeded
					continue
				}
				sentry.CaptureException(ctx, err, map[string]string{"phase": st.Phase.String()})
				return "", noConvergence("decide argument: %v", err)
			}
			st.argument = strings.TrimSpace(arg)
			if st.invoked(st.capability, st.argument) {
				return "", noConvergence("repeated %s(%q)", st.capability, st.argument)
			}
			st.Phase = PhaseInvoke

		case PhaseInvoke:
			st.result = r.deps.Invoker.Invoke(ctx, st.capability, st.argument)
			st.Phase = PhaseObserve

		case PhaseObserve:
			st.Observations = append(st.Observations, Observation{
				Capability: st.capability,
				Argument:   st.argument,
				Result:     st.result,
			})
			st.Phase = PhaseDecideCapability

		case PhaseAnswer:
			return st.answer, nil

		case PhaseExceeded:
			return "", fmt.Errorf("%w after %d iterations", domerrors.ErrReasoningExceeded, st.Iteration)

		default:
			return "", noConvergence("invalid phase %d", st.Phase)
		}
	}
}

func noConvergence(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domerrors.ErrNoConvergence, fmt.Sprintf(format, args...))
}
