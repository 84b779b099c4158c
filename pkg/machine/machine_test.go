package machine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/llmfsm/pkg/adapters/scripted"
	"github.com/aretw0/llmfsm/pkg/domain"
	"github.com/aretw0/llmfsm/pkg/dsl"
	"github.com/aretw0/llmfsm/pkg/llm"
	"github.com/aretw0/llmfsm/pkg/machine"
	"github.com/aretw0/llmfsm/pkg/registry"
	"github.com/aretw0/llmfsm/pkg/resolver"
	"github.com/aretw0/llmfsm/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reply(transition, content string) scripted.Step {
	return scripted.Reply(map[string]any{"transition": transition, "content": content})
}

// abcRegistry: A -> {B, C}, B terminal, C -> B.
func abcRegistry(t *testing.T, handlers map[string]domain.Handler) *registry.Registry {
	t.Helper()
	b := dsl.New("B")
	b.Add("A").Prompt("You are in A.").Edge("B", "ready").Edge("C", "needs more").Handle(handlers["A"])
	b.Add("B").Prompt("Done.").Handle(handlers["B"])
	b.Add("C").Prompt("In C.").Go("B").Handle(handlers["C"])
	reg, err := b.Build()
	require.NoError(t, err)
	return reg
}

func newMachine(t *testing.T, reg *registry.Registry, client llm.Client, opts ...machine.Option) *machine.Machine {
	t.Helper()
	m, err := machine.New(reg, client, "A", "B", opts...)
	require.NoError(t, err)
	return m
}

func TestRunTurn_ReachesTerminal(t *testing.T) {
	client := scripted.New([]scripted.Step{reply("B", "all set")})
	m := newMachine(t, abcRegistry(t, nil), client)

	rec, err := m.RunTurn(context.Background(), "go")
	require.NoError(t, err)

	assert.Equal(t, "B", m.CurrentState())
	assert.True(t, m.IsCompleted())
	assert.Equal(t, "A", rec.PriorState)
	assert.Equal(t, "B", rec.NextState)
	assert.Equal(t, "B", rec.ProposedState)
	assert.Equal(t, "all set", rec.Response)
	assert.Equal(t, 1, rec.Seq)
	assert.Equal(t, m.ID(), rec.MachineID)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "go", rec.Input)
	assert.Contains(t, rec.Prompt, "You are in A.")
	assert.True(t, rec.Transitioned())
	assert.Len(t, m.History(), 1)
}

func TestRunTurn_UnknownTransitionLeavesStateUnchanged(t *testing.T) {
	client := scripted.New([]scripted.Step{reply("D", "?")})
	m := newMachine(t, abcRegistry(t, nil), client, machine.WithInitialContext(map[string]any{"k": "v"}))

	_, err := m.RunTurn(context.Background(), "hi")

	var ue *domain.UnknownTransitionError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "A", ue.StateID)
	assert.Equal(t, "A", m.CurrentState())
	assert.Empty(t, m.History())
	assert.Equal(t, map[string]any{"k": "v"}, m.Context())
}

func TestRunTurn_FailedTurnKeepsContext(t *testing.T) {
	boom := errors.New("boom")
	handlers := map[string]domain.Handler{
		"A": func(_ context.Context, turn domain.TurnScope, _ schema.Payload, _ bool) (domain.Outcome, error) {
			require.NoError(t, turn.SetContext("written", true))
			turn.DeleteContext("k")
			return nil, boom
		},
	}
	client := scripted.New([]scripted.Step{reply("C", "x"), reply("C", "x")})
	m := newMachine(t, abcRegistry(t, handlers), client, machine.WithInitialContext(map[string]any{"k": "v"}))

	_, err := m.RunTurn(context.Background(), "hi")
	var he *domain.HandlerError
	require.ErrorAs(t, err, &he)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "A", he.StateID)

	assert.Equal(t, "A", m.CurrentState())
	assert.Equal(t, map[string]any{"k": "v"}, m.Context())
	assert.Empty(t, m.History())

	// Retrying is safe.
	_, err = m.RunTurn(context.Background(), "hi")
	assert.ErrorIs(t, err, domain.ErrHandler)
	assert.Equal(t, "A", m.CurrentState())
}

func TestRunTurn_FailedTurnKeepsNestedContext(t *testing.T) {
	boom := errors.New("boom")
	counts := map[string]int{"a": 1}
	calls := 0
	handlers := map[string]domain.Handler{
		"A": func(_ context.Context, turn domain.TurnScope, _ schema.Payload, _ bool) (domain.Outcome, error) {
			calls++
			if calls == 1 {
				return nil, turn.SetContext("counts", counts)
			}
			v, _ := turn.GetContext("counts")
			v.(map[string]any)["a"] = 99
			return nil, boom
		},
	}
	client := scripted.New([]scripted.Step{reply("no-op", "x"), reply("no-op", "x")})
	m := newMachine(t, abcRegistry(t, handlers), client)

	_, err := m.RunTurn(context.Background(), "first")
	require.NoError(t, err)
	counts["a"] = 7

	got, _ := m.GetContext("counts")
	got.(map[string]any)["a"] = 42

	_, err = m.RunTurn(context.Background(), "second")
	require.ErrorIs(t, err, boom)

	v, ok := m.GetContext("counts")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"a": float64(1)}, v)
}

func TestRunTurn_RecordsAreNotShared(t *testing.T) {
	client := scripted.New([]scripted.Step{reply("no-op", "hello")})
	m := newMachine(t, abcRegistry(t, nil), client)

	rec, err := m.RunTurn(context.Background(), "hi")
	require.NoError(t, err)
	rec.Payload["content"] = "tampered"

	hist := m.History()
	require.Len(t, hist, 1)
	assert.Equal(t, "hello", hist[0].Payload["content"])

	hist[0].Payload["content"] = "tampered again"
	assert.Equal(t, "hello", m.Snapshot().History[0].Payload["content"])
}

func TestMachine_InitialContextMustEncode(t *testing.T) {
	_, err := machine.New(abcRegistry(t, nil), scripted.New(nil), "A", "B",
		machine.WithInitialContext(map[string]any{"ch": make(chan int)}))
	assert.ErrorContains(t, err, "initial context")
}

func TestRunTurn_OverrideResponse(t *testing.T) {
	tests := []struct {
		name     string
		override *domain.ImmediateOverride
		content  string
		want     string
	}{
		{"explicit response", &domain.ImmediateOverride{Target: "B", Input: "escalated", Response: "Hold on."}, "model text", "Hold on."},
		{"model content", domain.Override("B", "escalated"), "model text", "model text"},
		{"input as last resort", domain.Override("B", "escalated"), "", "escalated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlers := map[string]domain.Handler{
				"A": func(context.Context, domain.TurnScope, schema.Payload, bool) (domain.Outcome, error) {
					return tt.override, nil
				},
			}
			client := scripted.New([]scripted.Step{reply("C", tt.content)})
			m := newMachine(t, abcRegistry(t, handlers), client)

			rec, err := m.RunTurn(context.Background(), "hi")
			require.NoError(t, err)
			assert.Equal(t, "B", rec.NextState)
			assert.Equal(t, tt.want, rec.Response)
		})
	}
}

func TestRunTurn_SchemaFailureLeavesStateUnchanged(t *testing.T) {
	client := scripted.New([]scripted.Step{scripted.Text("nope"), scripted.Text("still nope")})
	m := newMachine(t, abcRegistry(t, nil), client,
		machine.WithResolverOptions(resolver.WithMaxRetries(1)))

	_, err := m.RunTurn(context.Background(), "hi")
	var se *domain.SchemaValidationError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "still nope", se.Raw)
	assert.Equal(t, "A", m.CurrentState())
	assert.Empty(t, m.History())
}

func TestRunTurn_ClientErrorLeavesStateUnchanged(t *testing.T) {
	client := scripted.New([]scripted.Step{scripted.Fail(context.DeadlineExceeded), reply("B", "ok")})
	m := newMachine(t, abcRegistry(t, nil), client)

	_, err := m.RunTurn(context.Background(), "hi")
	var ce *domain.ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, domain.ClientTimeout, ce.Kind)
	assert.True(t, ce.Temporary())
	assert.Equal(t, "A", m.CurrentState())

	_, err = m.RunTurn(context.Background(), "hi")
	require.NoError(t, err)
	assert.True(t, m.IsCompleted())
}

func TestRunTurn_ContextPersistsAcrossTurns(t *testing.T) {
	var seen any
	handlers := map[string]domain.Handler{
		"A": func(_ context.Context, turn domain.TurnScope, p schema.Payload, _ bool) (domain.Outcome, error) {
			return nil, turn.SetContext("topic", p.Content())
		},
		"C": func(_ context.Context, turn domain.TurnScope, _ schema.Payload, _ bool) (domain.Outcome, error) {
			seen, _ = turn.GetContext("topic")
			return domain.Reply("got it"), nil
		},
	}
	client := scripted.New([]scripted.Step{reply("C", "limits"), reply("no-op", "")})
	m := newMachine(t, abcRegistry(t, handlers), client)

	_, err := m.RunTurn(context.Background(), "teach me")
	require.NoError(t, err)
	v, ok := m.GetContext("topic")
	require.True(t, ok)
	assert.Equal(t, "limits", v)

	rec, err := m.RunTurn(context.Background(), "ok")
	require.NoError(t, err)
	assert.Equal(t, "limits", seen)
	assert.Equal(t, "got it", rec.Response)
	assert.Equal(t, "C", rec.NextState)
	assert.False(t, rec.Transitioned())
}

func TestRunTurn_AlreadyCompleted(t *testing.T) {
	client := scripted.New([]scripted.Step{reply("B", "done")})
	m := newMachine(t, abcRegistry(t, nil), client)

	_, err := m.RunTurn(context.Background(), "go")
	require.NoError(t, err)

	_, err = m.RunTurn(context.Background(), "again")
	var ae *domain.AlreadyCompletedError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "B", ae.StateID)
	assert.Len(t, m.History(), 1)
	assert.Equal(t, 1, client.Calls())
}

func TestRunTurn_StayVariants(t *testing.T) {
	var will []bool
	handlers := map[string]domain.Handler{
		"A": func(_ context.Context, _ domain.TurnScope, _ schema.Payload, w bool) (domain.Outcome, error) {
			will = append(will, w)
			return nil, nil
		},
	}
	client := scripted.New([]scripted.Step{reply("no-op", "a"), reply("A", "b"), reply("C", "c")})
	m := newMachine(t, abcRegistry(t, handlers), client)

	for range 3 {
		_, err := m.RunTurn(context.Background(), "x")
		require.NoError(t, err)
	}
	assert.Equal(t, []bool{false, false, true}, will)
	assert.Equal(t, "C", m.CurrentState())
}

func TestRunTurn_OverrideBeatsGraph(t *testing.T) {
	// X is not an edge of A.
	b := dsl.New("END")
	b.Add("A").Prompt("a").Go("B").Handle(func(_ context.Context, _ domain.TurnScope, _ schema.Payload, _ bool) (domain.Outcome, error) {
		return domain.Override("X", "Critical symptoms detected"), nil
	})
	b.Add("B").Prompt("b").Go("END")
	b.Add("X").Prompt("Forwarded: {{.sys.forwarded}}").Go("END")
	b.Add("END").Prompt("bye")
	reg, err := b.Build()
	require.NoError(t, err)

	var overrides []*domain.OverrideEvent
	client := scripted.New([]scripted.Step{reply("B", "model says B"), reply("no-op", "calm down")})
	m, err := machine.New(reg, client, "A", "", machine.WithHooks(domain.LifecycleHooks{
		OnOverride: func(_ context.Context, e *domain.OverrideEvent) { overrides = append(overrides, e) },
	}))
	require.NoError(t, err)

	rec, err := m.RunTurn(context.Background(), "chest pain")
	require.NoError(t, err)
	assert.Equal(t, "X", m.CurrentState())
	assert.Equal(t, "B", rec.ProposedState)
	assert.Equal(t, "X", rec.NextState)
	assert.True(t, rec.Overridden)
	assert.Equal(t, "model says B", rec.Response, "the forwarded input is not shown to the user")
	assert.Equal(t, "Critical symptoms detected", rec.PendingInput)
	assert.Equal(t, "Critical symptoms detected", m.PendingInput())
	require.Len(t, overrides, 1)
	assert.Equal(t, "A", overrides[0].From)
	assert.Equal(t, "X", overrides[0].To)

	// The forwarded input reaches the next prompt once.
	rec, err = m.RunTurn(context.Background(), "what now")
	require.NoError(t, err)
	assert.Equal(t, "Critical symptoms detected", rec.ForwardedInput)
	req := client.Requests()[1]
	assert.Contains(t, req.Messages[0].Content, "Forwarded: Critical symptoms detected")
	assert.Contains(t, req.Messages[1].Content, "what now")
	assert.Empty(t, m.PendingInput())
}

func TestRunTurn_OverrideUnknownTarget(t *testing.T) {
	handlers := map[string]domain.Handler{
		"A": func(context.Context, domain.TurnScope, schema.Payload, bool) (domain.Outcome, error) {
			return domain.Override("NOWHERE", ""), nil
		},
	}
	client := scripted.New([]scripted.Step{reply("B", "x")})
	m := newMachine(t, abcRegistry(t, handlers), client)

	_, err := m.RunTurn(context.Background(), "hi")
	assert.ErrorIs(t, err, domain.ErrHandler)
	assert.ErrorIs(t, err, domain.ErrUnknownState)
	assert.Equal(t, "A", m.CurrentState())
}

func TestRunTurn_ReusePayloadCascade(t *testing.T) {
	type call struct {
		state string
		will  bool
	}
	var calls []call
	b := dsl.New("END")
	b.Add("TRIAGE").Prompt("triage").
		Schema(schema.New("EmergencyAssessment",
			schema.Required("is_emergency", schema.Bool(), ""),
			schema.Required("reasoning", schema.String(), ""),
		)).
		Go("INFO").
		Handle(func(_ context.Context, turn domain.TurnScope, p schema.Payload, w bool) (domain.Outcome, error) {
			calls = append(calls, call{turn.CurrentState(), w})
			if err := turn.SetContext("assessment", p.Fields()); err != nil {
				return nil, err
			}
			if p["is_emergency"] == true {
				return &domain.ImmediateOverride{Target: "EMERGENCY", Input: "Emergency situation detected", ReusePayload: true}, nil
			}
			return domain.Reply("not urgent"), nil
		})
	b.Add("INFO").Prompt("info").Go("END")
	b.Add("EMERGENCY").Prompt("emergency").Go("END").
		Handle(func(_ context.Context, turn domain.TurnScope, p schema.Payload, w bool) (domain.Outcome, error) {
			calls = append(calls, call{turn.CurrentState(), w})
			_, ok := turn.GetContext("assessment")
			if !ok {
				return nil, errors.New("staged context not visible")
			}
			return domain.Reply("EMERGENCY: " + p.String("reasoning")), nil
		})
	b.Add("END").Prompt("bye")
	reg, err := b.Build()
	require.NoError(t, err)

	client := scripted.New([]scripted.Step{
		scripted.Reply(map[string]any{"transition": "no-op", "is_emergency": true, "reasoning": "chest pain"}),
	})
	m, err := machine.New(reg, client, "TRIAGE", "")
	require.NoError(t, err)

	rec, err := m.RunTurn(context.Background(), "my chest hurts")
	require.NoError(t, err)
	assert.Equal(t, []call{{"TRIAGE", false}, {"EMERGENCY", true}}, calls)
	assert.Equal(t, "EMERGENCY", rec.NextState)
	assert.Equal(t, []string{"EMERGENCY"}, rec.Cascade)
	assert.Equal(t, "EMERGENCY: chest pain", rec.Response)
	assert.Equal(t, "Emergency situation detected", m.PendingInput())
	_, ok := m.GetContext("assessment")
	assert.True(t, ok)
}

func TestRunTurn_CascadeBound(t *testing.T) {
	loop := func(target string) domain.Handler {
		return func(context.Context, domain.TurnScope, schema.Payload, bool) (domain.Outcome, error) {
			return &domain.ImmediateOverride{Target: target, ReusePayload: true}, nil
		}
	}
	handlers := map[string]domain.Handler{"A": loop("C"), "C": loop("A")}

	client := scripted.New([]scripted.Step{reply("no-op", "x"), reply("no-op", "x")})
	m := newMachine(t, abcRegistry(t, handlers), client)
	_, err := m.RunTurn(context.Background(), "hi")
	var he *domain.HandlerError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "C", he.StateID)
	assert.Equal(t, "A", m.CurrentState())

	m = newMachine(t, abcRegistry(t, handlers), client, machine.WithMaxCascade(0))
	_, err = m.RunTurn(context.Background(), "hi")
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "A", he.StateID)
}

func TestRunTurn_HandlerPanic(t *testing.T) {
	handlers := map[string]domain.Handler{
		"A": func(context.Context, domain.TurnScope, schema.Payload, bool) (domain.Outcome, error) {
			panic("nil map")
		},
	}
	client := scripted.New([]scripted.Step{reply("B", "x")})
	m := newMachine(t, abcRegistry(t, handlers), client)

	_, err := m.RunTurn(context.Background(), "hi")
	assert.ErrorIs(t, err, domain.ErrHandler)
	assert.ErrorContains(t, err, "handler panic: nil map")
	assert.Equal(t, "A", m.CurrentState())
}

func TestRunTurn_HandlerRedirect(t *testing.T) {
	handlers := map[string]domain.Handler{
		"A": func(_ context.Context, turn domain.TurnScope, _ schema.Payload, w bool) (domain.Outcome, error) {
			assert.True(t, w)
			assert.Equal(t, "C", turn.NextState())
			assert.Error(t, turn.SetNextState("NOWHERE"))
			return domain.Reply("confirmed"), turn.SetNextState("B")
		},
	}
	client := scripted.New([]scripted.Step{reply("C", "x")})
	m := newMachine(t, abcRegistry(t, handlers), client)

	rec, err := m.RunTurn(context.Background(), "yes")
	require.NoError(t, err)
	assert.Equal(t, "C", rec.ProposedState)
	assert.Equal(t, "B", rec.NextState)
	assert.False(t, rec.Overridden)
	assert.True(t, m.IsCompleted())
}

func TestMachine_SetContextOutsideTurn(t *testing.T) {
	var m *machine.Machine
	handlers := map[string]domain.Handler{
		"A": func(context.Context, domain.TurnScope, schema.Payload, bool) (domain.Outcome, error) {
			return nil, m.SetContext("from_machine", 1)
		},
	}
	client := scripted.New([]scripted.Step{reply("C", "x")})
	m = newMachine(t, abcRegistry(t, handlers), client)

	assert.ErrorIs(t, m.SetContext("k", "v"), domain.ErrOutsideTurn)

	_, err := m.RunTurn(context.Background(), "hi")
	require.NoError(t, err)
	v, ok := m.GetContext("from_machine")
	require.True(t, ok)
	assert.EqualValues(t, 1, v)
}

func TestMachine_LeakedTurnScopeIsClosed(t *testing.T) {
	var leaked domain.TurnScope
	handlers := map[string]domain.Handler{
		"A": func(_ context.Context, turn domain.TurnScope, _ schema.Payload, _ bool) (domain.Outcome, error) {
			leaked = turn
			return nil, nil
		},
	}
	client := scripted.New([]scripted.Step{reply("C", "x")})
	m := newMachine(t, abcRegistry(t, handlers), client)

	_, err := m.RunTurn(context.Background(), "hi")
	require.NoError(t, err)
	assert.ErrorIs(t, leaked.SetContext("late", 1), domain.ErrOutsideTurn)
	_, ok := m.GetContext("late")
	assert.False(t, ok)
}

func TestMachine_Reentrancy(t *testing.T) {
	var m *machine.Machine
	var inner error
	handlers := map[string]domain.Handler{
		"A": func(ctx context.Context, _ domain.TurnScope, _ schema.Payload, _ bool) (domain.Outcome, error) {
			_, inner = m.RunTurn(ctx, "nested")
			return nil, nil
		},
	}
	client := scripted.New([]scripted.Step{reply("no-op", "x")})
	m = newMachine(t, abcRegistry(t, handlers), client)

	_, err := m.RunTurn(context.Background(), "hi")
	require.NoError(t, err)
	assert.ErrorIs(t, inner, domain.ErrTurnInProgress)
	assert.Len(t, m.History(), 1)
}

func TestMachine_SetNextState(t *testing.T) {
	client := scripted.New(nil)
	m := newMachine(t, abcRegistry(t, nil), client)

	assert.ErrorIs(t, m.SetNextState("NOWHERE"), domain.ErrUnknownState)
	require.NoError(t, m.SetNextState("B"))
	assert.True(t, m.IsCompleted())
	assert.Empty(t, m.History())
	assert.Zero(t, client.Calls())
}

func TestMachine_Hooks(t *testing.T) {
	var events []domain.EventType
	record := func(_ context.Context, e *domain.TurnEvent) { events = append(events, e.Type) }
	var retries int
	client := scripted.New([]scripted.Step{scripted.Text("bad"), reply("C", "x"), reply("D", "y")})
	m := newMachine(t, abcRegistry(t, nil), client, machine.WithHooks(domain.LifecycleHooks{
		OnTurnStart:  record,
		OnTurnCommit: record,
		OnTurnError:  record,
		OnRetry:      func(context.Context, *domain.RetryEvent) { retries++ },
	}))

	_, err := m.RunTurn(context.Background(), "1")
	require.NoError(t, err)
	_, err = m.RunTurn(context.Background(), "2")
	require.Error(t, err)

	assert.Equal(t, []domain.EventType{
		domain.EventTurnStart, domain.EventTurnCommit,
		domain.EventTurnStart, domain.EventTurnError,
	}, events)
	assert.Equal(t, 1, retries)
}

func TestMachine_Fallback(t *testing.T) {
	client := scripted.New([]scripted.Step{reply("D", "x")})
	m := newMachine(t, abcRegistry(t, nil), client,
		machine.WithResolverOptions(resolver.WithFallback("C")))

	rec, err := m.RunTurn(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "D", rec.ProposedState)
	assert.Equal(t, "C", rec.NextState)

	_, err = machine.New(abcRegistry(t, nil), client, "A", "B",
		machine.WithResolverOptions(resolver.WithFallback("NOWHERE")))
	assert.ErrorIs(t, err, domain.ErrUnknownState)
}

func TestMachine_SnapshotRestore(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	handlers := map[string]domain.Handler{
		"A": func(_ context.Context, turn domain.TurnScope, _ schema.Payload, _ bool) (domain.Outcome, error) {
			return nil, turn.SetContext("n", 1)
		},
	}
	reg := abcRegistry(t, handlers)
	client := scripted.New([]scripted.Step{reply("C", "x"), reply("B", "y")})
	m := newMachine(t, reg, client, machine.WithID("s-1"), machine.WithAgent("abc"), machine.WithClock(func() time.Time { return fixed }))

	_, err := m.RunTurn(context.Background(), "hi")
	require.NoError(t, err)

	snap := m.Snapshot()
	assert.Equal(t, "s-1", snap.MachineID)
	assert.Equal(t, "abc", snap.Agent)
	assert.Equal(t, "C", snap.Current)
	assert.Equal(t, "B", snap.Terminal)
	assert.Equal(t, fixed, snap.UpdatedAt)
	assert.Len(t, snap.History, 1)

	restored := newMachine(t, reg, client)
	require.NoError(t, restored.Restore(snap))
	assert.Equal(t, "s-1", restored.ID())
	assert.Equal(t, "C", restored.CurrentState())
	v, _ := restored.GetContext("n")
	assert.EqualValues(t, 1, v)

	rec, err := restored.RunTurn(context.Background(), "next")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Seq)
	assert.True(t, restored.IsCompleted())

	snap.Current = "NOWHERE"
	assert.ErrorIs(t, restored.Restore(snap), domain.ErrUnknownState)
}

func TestNew_Validation(t *testing.T) {
	reg := abcRegistry(t, nil)
	client := scripted.New(nil)

	_, err := machine.New(reg, client, "Z", "B")
	assert.ErrorIs(t, err, domain.ErrUnknownState)

	_, err = machine.New(reg, client, "A", "Z")
	assert.ErrorIs(t, err, domain.ErrNoTerminalState)

	_, err = machine.New(registry.New("B"), client, "A", "B")
	assert.ErrorIs(t, err, registry.ErrNotFinalized)

	_, err = machine.New(reg, nil, "A", "B")
	assert.Error(t, err)

	m, err := machine.New(reg, client, "B", "")
	require.NoError(t, err)
	assert.True(t, m.IsCompleted())
}
