package machine

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aretw0/llmfsm/pkg/domain"
	"github.com/aretw0/llmfsm/pkg/prompt"
	"github.com/aretw0/llmfsm/pkg/resolver"
	"github.com/aretw0/llmfsm/pkg/schema"
)

// RunTurn executes one turn: compose, call the model, resolve the transition,
// run the handler chain, then commit.
// On error the machine is left exactly as it was and the turn may be retried.
func (m *Machine) RunTurn(ctx context.Context, input string) (domain.TurnRecord, error) {
	if !m.running.CompareAndSwap(false, true) {
		return domain.TurnRecord{}, domain.ErrTurnInProgress
	}
	defer m.running.Store(false)

	m.mu.RLock()
	current := m.current
	completed := m.completed
	pending := m.pending
	staged := m.store.Clone()
	history := cloneHistory(m.history)
	m.mu.RUnlock()

	ctx, span := m.tracer.Start(ctx, "Machine.RunTurn", trace.WithAttributes(
		attribute.String("machine.id", m.id),
		attribute.String("state.current", current),
	))
	defer span.End()

	if completed {
		err := &domain.AlreadyCompletedError{StateID: current}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.TurnRecord{}, err
	}

	start := m.now()
	if m.hooks.OnTurnStart != nil {
		m.hooks.OnTurnStart(ctx, &domain.TurnEvent{
			EventBase: m.base(domain.EventTurnStart, current),
			Input:     input,
		})
	}

	turn := &Turn{
		m:       m,
		input:   input,
		history: history,
		state:   current,
		next:    current,
		staged:  staged,
	}
	m.mu.Lock()
	m.active = turn
	m.mu.Unlock()

	rec, err := m.execute(ctx, turn, current, pending)

	turn.close()
	m.mu.Lock()
	m.active = nil
	m.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logger.Warn("Turn failed",
			"machine", m.id,
			"state", current,
			"err", err,
		)
		if m.hooks.OnTurnError != nil {
			m.hooks.OnTurnError(ctx, &domain.TurnEvent{
				EventBase: m.base(domain.EventTurnError, current),
				Input:     input,
				Err:       err,
				Duration:  m.now().Sub(start),
			})
		}
		return domain.TurnRecord{}, err
	}

	rec.ID = uuid.NewString()
	rec.MachineID = m.id
	rec.Seq = len(history) + 1
	rec.Timestamp = m.now()
	rec.Duration = rec.Timestamp.Sub(start)

	m.mu.Lock()
	m.store = staged
	m.current = rec.NextState
	m.completed = rec.NextState == m.terminal
	m.pending = rec.PendingInput
	m.history = append(m.history, rec.Clone())
	m.mu.Unlock()

	span.SetAttributes(
		attribute.String("state.proposed", rec.ProposedState),
		attribute.String("state.next", rec.NextState),
		attribute.Int("resolver.attempts", rec.Attempts),
		attribute.Bool("turn.overridden", rec.Overridden),
	)
	m.logger.Info("Turn committed",
		"machine", m.id,
		"from", rec.PriorState,
		"to", rec.NextState,
		"attempts", rec.Attempts,
		"overridden", rec.Overridden,
	)
	if m.hooks.OnTurnCommit != nil {
		out := rec.Clone()
		m.hooks.OnTurnCommit(ctx, &domain.TurnEvent{
			EventBase: m.base(domain.EventTurnCommit, rec.PriorState),
			Input:     input,
			Record:    &out,
			Duration:  rec.Duration,
		})
	}
	return rec, nil
}

func (m *Machine) execute(ctx context.Context, turn *Turn, current, pending string) (domain.TurnRecord, error) {
	def, ok := m.reg.Get(current)
	if !ok {
		return domain.TurnRecord{}, fmt.Errorf("%w: %q", domain.ErrUnknownState, current)
	}

	p, err := m.composer.Compose(ctx, def, prompt.Input{
		Text:      turn.input,
		Forwarded: pending,
		Context:   turn.staged.Snapshot(),
	})
	if err != nil {
		return domain.TurnRecord{}, err
	}

	res, err := m.resolver.Resolve(ctx, def, p)
	if err != nil {
		return domain.TurnRecord{}, err
	}
	turn.proposed = res.Proposed
	turn.redirect(res.Next)
	payload := maps.Clone(map[string]any(res.Payload))

	d, err := m.dispatch(ctx, turn, def, res)
	if err != nil {
		return domain.TurnRecord{}, err
	}

	tokens := res.PromptTokens
	if tokens == 0 {
		tokens = p.Tokens
	}
	return domain.TurnRecord{
		Input:          turn.input,
		ForwardedInput: pending,
		PriorState:     current,
		Prompt:         p.Text(),
		RawOutput:      res.Raw,
		Payload:        payload,
		Attempts:       res.Attempts,
		ProposedState:  res.Proposed,
		NextState:      turn.NextState(),
		Response:       d.response,
		Overridden:     d.overridden,
		Cascade:        d.cascade,
		PendingInput:   d.pending,
		PromptTokens:   tokens,
	}, nil
}

type dispatchResult struct {
	response   string
	overridden bool
	cascade    []string
	pending    string
}

// dispatch runs the handler of def and follows any reuse-payload overrides.
func (m *Machine) dispatch(ctx context.Context, turn *Turn, def domain.StateDefinition, res resolver.Resolution) (dispatchResult, error) {
	var out dispatchResult
	defaultText := res.Payload.Content()
	if defaultText == "" {
		defaultText = res.Raw
	}

	will := res.WillTransition
	for {
		if def.Handler == nil {
			out.response = defaultText
			return out, nil
		}

		outcome, err := invoke(ctx, def.Handler, turn, res.Payload, will)
		if err != nil {
			return out, &domain.HandlerError{StateID: def.ID, Err: err}
		}

		switch o := outcome.(type) {
		case nil:
			out.response = defaultText
			return out, nil
		case domain.Reply:
			out.response = string(o)
			return out, nil
		case *domain.ImmediateOverride:
			if o == nil {
				out.response = defaultText
				return out, nil
			}
			target, ok := m.reg.Get(o.Target)
			if !ok {
				return out, &domain.HandlerError{
					StateID: def.ID,
					Err:     fmt.Errorf("%w: override target %q", domain.ErrUnknownState, o.Target),
				}
			}
			out.overridden = true
			out.pending = o.Input
			turn.redirect(target.ID)
			m.logger.Debug("Override",
				"machine", m.id,
				"from", def.ID,
				"to", target.ID,
				"reuse_payload", o.ReusePayload,
			)
			if m.hooks.OnOverride != nil {
				m.hooks.OnOverride(ctx, &domain.OverrideEvent{
					EventBase:    m.base(domain.EventOverride, def.ID),
					From:         def.ID,
					To:           target.ID,
					ReusePayload: o.ReusePayload,
				})
			}

			if !o.ReusePayload {
				out.response = o.Response
				if out.response == "" {
					out.response = res.Payload.Content()
				}
				if out.response == "" {
					out.response = o.Input
				}
				return out, nil
			}
			if len(out.cascade) >= m.maxCascade {
				return out, &domain.HandlerError{
					StateID: def.ID,
					Err:     fmt.Errorf("override cascade deeper than %d", m.maxCascade),
				}
			}
			out.cascade = append(out.cascade, target.ID)
			def = target
			will = true
			turn.enter(def.ID)
		default:
			return out, &domain.HandlerError{
				StateID: def.ID,
				Err:     fmt.Errorf("unsupported outcome %T", outcome),
			}
		}
	}
}

var errHandlerPanic = errors.New("handler panic")

func invoke(ctx context.Context, h domain.Handler, turn *Turn, payload schema.Payload, will bool) (out domain.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%w: %v", errHandlerPanic, r)
		}
	}()
	return h(ctx, turn, payload, will)
}
