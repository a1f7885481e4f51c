package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/garyellow/dr-matricula-go/internal/capability"
	"github.com/garyellow/dr-matricula-go/internal/fallback"
	"github.com/garyellow/dr-matricula-go/internal/metrics"
	"github.com/garyellow/dr-matricula-go/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedDecider returns selections in order; the last one repeats.
type scriptedDecider struct {
	mu     sync.Mutex
	script []Selection
	calls  int
	states []State
	err    error
}

func (d *scriptedDecider) DecideCapability(_ context.Context, st *State) (Selection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.states = append(d.states, State{Message: st.Message, History: st.History, Observations: append([]Observation(nil), st.Observations...)})
	d.calls++
	if d.err != nil {
		return Selection{}, d.err
	}
	i := d.calls - 1
	if i >= len(d.script) {
		i = len(d.script) - 1
	}
	return d.script[i], nil
}

type proposedArgument struct{}

func (proposedArgument) DecideArgument(_ context.Context, _ *State, sel Selection) (string, error) {
	return sel.Argument, nil
}

type invokerFunc func(ctx context.Context, c capability.Capability, arg string) string

func (f invokerFunc) Invoke(ctx context.Context, c capability.Capability, arg string) string {
	return f(ctx, c, arg)
}

func echoInvoker() invokerFunc {
	return func(_ context.Context, c capability.Capability, arg string) string {
		return fmt.Sprintf("%s(%s)", c, arg)
	}
}

type denyLimiter struct{}

func (denyLimiter) Allow(string) bool { return false }

type harness struct {
	router   *Router
	decider  *scriptedDecider
	sessions *session.Store
	fallback *fallback.Responder
	metrics  *metrics.Metrics
}

func newHarness(t *testing.T, script []Selection, cfg Config) *harness {
	t.Helper()
	store := session.NewStore(session.Config{SweepInterval: -1})
	t.Cleanup(store.Stop)

	h := &harness{
		decider:  &scriptedDecider{script: script},
		sessions: store,
		fallback: fallback.New(echoInvoker()),
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	h.router = New(Deps{
		Capabilities: h.decider,
		Arguments:    proposedArgument{},
		Invoker:      echoInvoker(),
		Fallback:     h.fallback,
		Sessions:     store,
		Metrics:      h.metrics,
	}, cfg)
	return h
}

func history(t *testing.T, s *session.Store, key string) []session.Exchange {
	t.Helper()
	got, _ := s.Snapshot(key)
	return got
}

func TestHandle_AnswerAfterCapability(t *testing.T) {
	t.Parallel()
	h := newHarness(t, []Selection{
		{Name: "program_detail", Argument: " Derecho "},
		{Final: true, Answer: "  Derecho es una carrera de grado.  "},
	}, Config{})

	reply := h.router.Handle(context.Background(), "u1", "Háblame de Derecho")
	assert.Equal(t, Reply{
		Text:         "Derecho es una carrera de grado.",
		Source:       SourceRouter,
		Capabilities: []string{"program_detail"},
	}, reply)

	require.Len(t, h.decider.states, 2)
	require.Len(t, h.decider.states[1].Observations, 1)
	assert.Equal(t, Observation{Capability: capability.ProgramDetail, Argument: "Derecho", Result: "program_detail(Derecho)"},
		h.decider.states[1].Observations[0])

	got := history(t, h.sessions, "u1")
	require.Len(t, got, 1)
	assert.Equal(t, "Háblame de Derecho", got[0].Input)
	assert.Equal(t, reply.Text, got[0].Output)
	assert.Equal(t, []string{"program_detail"}, got[0].Capabilities)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.RouterOutcomesTotal.WithLabelValues(OutcomeAnswer)), 0)
}

func TestHandle_SecondTurnSeesHistory(t *testing.T) {
	t.Parallel()
	h := newHarness(t, []Selection{{Final: true, Answer: "¡Hola!"}}, Config{})
	ctx := context.Background()

	h.router.Handle(ctx, "u1", "hola")
	require.Len(t, history(t, h.sessions, "u1"), 1)
	h.router.Handle(ctx, "u1", "gracias")

	got := history(t, h.sessions, "u1")
	require.Len(t, got, 2)
	assert.Equal(t, "hola", got[0].Input)
	assert.Equal(t, "gracias", got[1].Input)

	require.Len(t, h.decider.states, 2)
	assert.Equal(t, []session.Turn{
		{Role: session.RoleUser, Content: "hola"},
		{Role: session.RoleAssistant, Content: "¡Hola!"},
	}, h.decider.states[1].History)
	assert.Empty(t, history(t, h.sessions, "other"))
}

func TestHandle_FallbackPaths(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		script  []Selection
		err     error
		outcome string
	}{
		{
			name:    "iterations exceeded",
			script:  []Selection{{Name: "groups", Argument: "Derecho"}, {Name: "curriculum", Argument: "Derecho"}},
			outcome: OutcomeExceeded,
		},
		{
			name:    "repeated capability and argument",
			script:  []Selection{{Name: "groups", Argument: "Derecho"}, {Name: "groups", Argument: "Derecho "}},
			outcome: OutcomeNoConvergence,
		},
		{
			name:    "unknown capability",
			script:  []Selection{{Name: "drop_tables"}},
			outcome: OutcomeNoConvergence,
		},
		{
			name:    "empty answer",
			script:  []Selection{{Final: true, Answer: " \n "}},
			outcome: OutcomeNoConvergence,
		},
		{
			name:    "decider error",
			script:  []Selection{{}},
			err:     errors.New("all providers failed"),
			outcome: OutcomeNoConvergence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, tt.script, Config{MaxIterations: 2})
			h.decider.err = tt.err
			ctx := context.Background()
			msg := "¿Cuáles son los requisitos?"

			reply := h.router.Handle(ctx, "s", msg)
			assert.Equal(t, h.fallback.Respond(ctx, msg), reply.Text)
			assert.NotEmpty(t, reply.Text)
			assert.Equal(t, SourceFallback, reply.Source)
			assert.Empty(t, history(t, h.sessions, "s"), "partial state must not be stored")
			assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.RouterOutcomesTotal.WithLabelValues(tt.outcome)), 0)
		})
	}
}

type blockingDecider struct{}

func (blockingDecider) DecideCapability(ctx context.Context, _ *State) (Selection, error) {
	<-ctx.Done()
	return Selection{}, ctx.Err()
}

func TestHandle_Timeout(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil, Config{})
	h.router = New(Deps{
		Capabilities: blockingDecider{},
		Arguments:    proposedArgument{},
		Invoker:      echoInvoker(),
		Fallback:     h.fallback,
		Sessions:     h.sessions,
		Metrics:      h.metrics,
	}, Config{Timeout: 20 * time.Millisecond})

	start := time.Now()
	reply := h.router.Handle(context.Background(), "s", "hola")
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, h.fallback.Respond(context.Background(), "hola"), reply.Text)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.RouterOutcomesTotal.WithLabelValues(OutcomeExceeded)), 0)
}

func TestHandle_EmptyMessage(t *testing.T) {
	t.Parallel()
	h := newHarness(t, []Selection{{Final: true, Answer: "x"}}, Config{})

	reply := h.router.Handle(context.Background(), "s", "   ")
	assert.Equal(t, Reply{Text: emptyMessageText, Source: SourceInput}, reply)
	assert.Zero(t, h.decider.calls)
	assert.Zero(t, h.sessions.Len())
}

func TestHandle_RateLimited(t *testing.T) {
	t.Parallel()
	h := newHarness(t, []Selection{{Final: true, Answer: "x"}}, Config{})
	h.router.deps.Limiter = denyLimiter{}

	reply := h.router.Handle(context.Background(), "s", "quiero matricularme")
	assert.Equal(t, "enroll()", reply.Text)
	assert.Equal(t, SourceFallback, reply.Source)
	assert.Zero(t, h.decider.calls)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.RouterOutcomesTotal.WithLabelValues(OutcomeRateLimited)), 0)
}

type failingSessions struct{}

func (failingSessions) Do(context.Context, string, func(*session.Session) error) error {
	return context.DeadlineExceeded
}

func TestHandle_SessionBusy(t *testing.T) {
	t.Parallel()
	h := newHarness(t, []Selection{{Final: true, Answer: "x"}}, Config{})
	h.router.deps.Sessions = failingSessions{}

	reply := h.router.Handle(context.Background(), "s", "hola")
	assert.Equal(t, SourceFallback, reply.Source)
	assert.Equal(t, "out_of_scope()", reply.Text)
}

func TestHandle_SameSessionSerialized(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		inFlight int
		maxSeen  int
	)
	invoker := invokerFunc(func(_ context.Context, c capability.Capability, _ string) string {
		mu.Lock()
		inFlight++
		maxSeen = max(maxSeen, inFlight)
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return c.String()
	})

	store := session.NewStore(session.Config{SweepInterval: -1})
	defer store.Stop()
	r := New(Deps{
		Capabilities: &alternatingDecider{},
		Arguments:    proposedArgument{},
		Invoker:      invoker,
		Fallback:     fallback.New(invoker),
		Sessions:     store,
	}, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Handle(context.Background(), "same", "carreras")
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Len(t, history(t, store, "same"), 8)
}

// alternatingDecider calls list_programs once, then answers.
type alternatingDecider struct{}

func (alternatingDecider) DecideCapability(_ context.Context, st *State) (Selection, error) {
	if len(st.Observations) == 0 {
		return Selection{Name: "list_programs"}, nil
	}
	return Selection{Final: true, Answer: st.Observations[0].Result}, nil
}

func TestPhase_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "decide_capability", PhaseDecideCapability.String())
	assert.Equal(t, "unknown", Phase(99).String())
}
